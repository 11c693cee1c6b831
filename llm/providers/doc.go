// Copyright (c) TutorFlow Authors.
// Licensed under the MIT License.

/*
包 providers 是各模型服务商适配的公共层。

# 核心类型

  - BaseProviderConfig、ClaudeConfig、GeminiConfig：原生协议子包的配置
  - OpenAICompat* 系列：OpenAI chat-completions 请求与响应结构

# 核心函数

  - MapHTTPError：上游 HTTP 状态映射为 types.ErrBackendTransport，5xx/408/429/529 可重放
  - ReadErrorMessage：从错误响应体提取可读信息
  - ConvertMessagesToOpenAI / ToLLMChatResponse：统一消息与响应格式转换
  - ChooseModel：请求 > 默认 > 兜底

子包 openaicompat、anthropic、gemini 实现 llm.Provider，由 llm/factory 按
provider 前缀选择。
*/
package providers
