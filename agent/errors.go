package agent

import "errors"

var (
	// ErrAgentNotFound 未注册的 Agent 类型
	ErrAgentNotFound = errors.New("agent type not registered")

	// ErrNoExecutor Func 未设置 ExecuteFn
	ErrNoExecutor = errors.New("agent has no executor")

	// ErrFactoryReturnedNil 工厂返回了 nil Agent
	ErrFactoryReturnedNil = errors.New("agent factory returned nil")
)
