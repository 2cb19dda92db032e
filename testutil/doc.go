// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 aiorch 测试的共享工具和辅助函数。

# 核心能力

  - 结果断言: RequireSuccess 校验成功结果并返回 data；AssertErrorKind
    校验失败结果的错误类别
  - 异步断言: WaitFor / AssertEventuallyTrue / WaitForChannel，超时轮询等待
  - 并发驱动: ProcessConcurrently 同时发起一组请求，返回按输入顺序排列的
    结果与总耗时，用于验证执行槽上限

# 子包

  - testutil/mocks: MockClient（llm.Client）与 StubAgent（agent.Agent），
    支持延迟、错误脚本注入与并发峰值统计
  - testutil/fixtures: Battlecard 场景的 Agent 输入与模型响应样例

# 使用示例

	results, elapsed := testutil.ProcessConcurrently(ctx, orch.Process, reqs)
	for _, res := range results {
		testutil.RequireSuccess(t, res)
	}
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
*/
package testutil
