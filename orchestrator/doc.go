// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package orchestrator 提供 AI 请求编排层：并发上限、可取消请求、缓存与弹性执行。

# 核心组件

  - Executor: 弹性执行包装器。先 Validate，再在统一截止时间内执行，
    仅对 Transient 错误按指数退避重试，并记录每个 Agent 类型的 HealthStats
  - Orchestrator: 调度器。缓存命中直接返回（不占用并发槽、不计入健康统计），
    未命中时获取 MAX_CONCURRENT 信号量、登记 RequestHandle、调用 Executor、
    成功结果写回缓存
  - Pipeline: 顺序执行多个 Agent，上一步输出作为下一步输入，
    首个失败步骤即停止并保留步骤轨迹
  - HealthTracker: 错误率 <10% 为 healthy，>50% 为 unhealthy，其余为 degraded

# 使用示例

	orch, err := orchestrator.New(cfg, registry, layer, logger,
		orchestrator.WithMetrics(collector))
	if err != nil {
		return err
	}
	defer orch.Close(ctx)

	res := orch.Process(ctx, types.AgentRequest{
		AgentType: "scorer",
		Input:     map[string]any{"content": text},
	})
*/
package orchestrator
