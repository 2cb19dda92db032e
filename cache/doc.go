// 版权所有 2024 AgentFlow Authors. 保留所有权利。
// 此源代码的使用由 MIT 许可规范，该许可可以
// 在 LICENSE 文件中找到。

/*
Package cache 提供基于内容寻址、带 TTL 的结果缓存层。

# 概述

Layer 是编排器唯一依赖的缓存抽象：按命名空间组织键，以 JSON 信封
{data, cached_at, ttl} 存储成功结果，读取时再次校验过期时间。
底层存储通过 Store 接口可替换，缓存不可用时 Layer 降级为旁路模式，
永远不会让请求失败。

# 存储后端

  - MemoryStore：进程内 LRU + 逐条 TTL，适用于单实例与测试
  - RedisStore：基于 go-redis，适用于多实例共享
  - BadgerStore：嵌入式持久化 KV，重启后保留缓存
  - TieredStore：本地 L1 + 远端 L2，L2 命中后回填 L1

# 键生成

KeyFor 对输入做规范化（字段排序与数字表示统一）后与 agentType、
modelPreference 一起做 SHA-256，逻辑相同的请求总是命中同一条目。
*/
package cache
