// 版权所有 2024 AgentFlow Authors. 保留所有权利。
// 此源代码的使用由 MIT 许可规范，该许可可以
// 在 LICENSE 文件中找到。

/*
Package agent 定义编排器调用的可插拔处理单元契约。

# 概述

每个 Agent 只需实现两个能力：Validate（廉价、同步、无副作用）与
Execute（可能访问外部服务，失败时返回 Transient 或 Permanent 错误）。
具体实现通过名称注册到 Registry，由工厂函数按需创建，编排器不依赖
任何类型层级。

# 核心类型

  - Agent：Validate + Execute 契约
  - Func：用函数快速构造 Agent 的适配器
  - Factory：创建 Agent 的工厂函数
  - Registry：线程安全的名称到工厂映射

# 错误约定

  - Transient(err) 标记可重试错误（限流、网络抖动）
  - Permanent(err) 标记不可重试错误（参数错误、内容被拒）
  - 未标记的错误由编排器按 Internal 处理，不会重试

内置 Agent 见子包 builtin。
*/
package agent
