// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 aiorch 命令行入口。

# 子命令

  - serve：启动 HTTP API（可选独立 Metrics 端口与 TLS）
  - process：不经 HTTP 直接执行一次 Agent 请求并输出 JSON 结果
  - agents：列出内置 Agent 及其必填输入字段
  - migrate：管理结果日志表结构（postgres / mysql）
  - health：探测运行中的服务
  - version：显示构建信息

# 中间件链

由外到内：Recovery、RequestID、SecurityHeaders、OTelTracing、Metrics、
RequestLogger、CORS、Auth（API Key 或 JWT）、RateLimiter（按调用方）。
认证后的调用方身份经由 statusRecorder 回传给 RequestLogger。

# 关闭顺序

信号 → 停止限流清理 → 关闭 HTTP → 关闭 Metrics → 关闭编排器（取消在途请求）
→ 关闭缓存、数据库与遥测。
*/
package main
