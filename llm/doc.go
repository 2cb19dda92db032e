// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package llm 定义内置 Agent 访问生成式模型的最小客户端抽象。

# 概述

Client 只暴露一次性补全（Complete），不做重试：重试、超时与并发控制
统一由编排器的执行包装器负责。各 Provider 客户端（子包 anthropic、
openai）将上游 HTTP 状态归类为 Transient（408/409/429/5xx）或
Permanent（其余 4xx），以便执行包装器决定是否重试。

# 核心类型

  - Client：Complete + Name
  - ModelSet：fast / balanced / quality 三档模型映射，auto 取 balanced
  - FallbackClient：主 Provider 失败后切换到备用 Provider
  - RateLimited：基于令牌桶的出站限流
  - TokenCounter：tiktoken 计数，不可用时退化为字符估算
*/
package llm
