/*
Package testutil 提供协调器测试的共享工具和数据工厂。

# 概述

testutil 包为整个项目的单元测试提供统一的辅助能力,避免各包
重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext,
    自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue / AssertEventuallyEqual / WaitFor,
    支持超时轮询等待条件满足
  - 数据工具: MustJSON / MustParseJSON
  - 数据工厂: WorkerAgent / SpecialistAgent / AgentWithMetrics /
    PendingTask / TaskWithCapability / TaskChain /
    SuccessResult / FailureResult

# 使用示例

	ctx := testutil.TestContext(t)
	agent := testutil.SpecialistAgent("indexer", "index", 0.8)
	testutil.AssertEventuallyTrue(t, func() bool { return done.Load() }, time.Second)
*/
package testutil
