// Copyright (c) TutorFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 tutorflow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent、llm、rag
等上层模块提供统一的类型契约，以避免循环依赖。

# 核心类型

  - Message / Role：对话消息
  - TokenUsage：Token 用量统计
  - Error / ErrorCode：封闭的结构化错误体系

# 错误语义

错误码集合是封闭的。IsRecoverable 对每一种错误码给出确定的
可重试判定：MALFORMED_JSON、EMPTY_OUTPUT、VALIDATOR_REJECTED 与
TIMEOUT 可由调用循环重试；MISSING_VARIABLE、BACKEND_TRANSPORT 与
RETRIES_EXHAUSTED 立即返回给调用方。
*/
package types
