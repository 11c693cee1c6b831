// Copyright (c) TutorFlow Authors.
// Licensed under the MIT License.

/*
包 gemini 直接调用 Gemini REST API 的 generateContent 接口，不经过
OpenAI 兼容层。

# 协议映射

  - 认证使用 x-goog-api-key 请求头
  - system 消息进入 systemInstruction，assistant 角色映射为 model
  - ResponseFormat 为 json_object 时设置 responseMimeType=application/json
  - 多个 part 的文本按顺序拼接为一条回复

模型标识 "gemini:<model>" 与 "google:<model>" 由 llm/factory 路由到本包。
*/
package gemini
