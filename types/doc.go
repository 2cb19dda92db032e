// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供编排层共享的基础类型。

# 概述

types 是最底层的公共包，不依赖任何内部包。agent、cache、orchestrator、
api 等上层模块都通过它交换请求、结果与错误，以避免循环依赖。

# 核心类型

  - ErrorKind / Error：封闭的错误分类（Validation、Timeout、Transient、
    Permanent、Cancelled、Internal），每个错误都带有 Retryable 提示
  - Translate：将任意 error 归类为 *Error，未知错误统一为 Internal
  - ProcessingOptions：单次请求的处理选项（模型偏好、TTL、超时、缓存旁路）
  - AgentRequest：提交后不可变的请求
  - AgentResult：编排器对外返回的唯一结果结构
  - Context 传播：WithRequestID / RequestID
*/
package types
