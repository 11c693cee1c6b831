// Copyright (c) TutorFlow Authors.
// Licensed under the MIT License.

/*
包 claude 对接 Anthropic Messages API（/v1/messages）。

  - 认证使用 x-api-key 与 anthropic-version 请求头
  - system 消息合并后放入独立的 system 字段
  - 请求未设置 max_tokens 时使用 4096
  - 只提取 text 类型的内容块；JSON 输出由上层的结构化解析负责

模型标识 "anthropic:<model>" 由 llm/factory 路由到本包。
*/
package claude
