// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 aiorch HTTP API 的请求处理器实现。

# 概述

handlers 包把编排器的 Process/ProcessBatch/Cancel/Status 能力和
竞品战报流水线暴露为 JSON 接口。所有 Handler 均遵循标准 net/http
接口，路由使用 Go 1.22 ServeMux 的方法与路径参数模式。

# 核心类型

  - AgentHandler：单个 Agent 请求、批量请求、取消与进行中请求列表
  - PipelineHandler：竞品战报流水线（aggregator → battlecard_generation）
  - StatusHandler：状态快照与 WebSocket 状态推送（coder/websocket）
  - ResultsHandler：结果日志查询（可选，需启用数据库）
  - HealthHandler：存活与就绪探针（/health, /healthz, /ready）
  - Response：统一 JSON 信封（success + data + error + timestamp + request_id）
  - ErrorInfo：结构化错误信息，含 code、kind、message、retryable

# 主要能力

  - 统一响应格式：WriteSuccess / WriteResult / WriteError / WriteJSON
  - 错误种类 → HTTP 状态码：validation 400、timeout 504、transient 503、
    permanent 422、cancelled 499、internal 500；internal 原因只写日志
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - 可扩展就绪检查：RegisterCheck + NewCheck
*/
package handlers
