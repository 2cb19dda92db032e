// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、LLM、Agent 执行、编排器、缓存与数据库。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离。
Collector 实现 orchestrator.MetricsSink，由编排器在每次执行结束时回调。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等向量指标。
  - InstrumentedClient：包装 llm.Client，按 provider/model/status
    记录请求数、耗时与 token 用量。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - Agent 指标：agent_executions_total、agent_execution_duration_seconds、
    agent_attempts_total、agent_retries_total、agent_errors_total。
  - 编排器指标：orchestrator_active_requests。
  - 缓存指标：命中与未命中计数，按 cache_type 分组。
  - 数据库指标：活跃/空闲连接数、查询耗时。
*/
package metrics
