// Copyright 2026 TutorFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 llm 提供统一的大语言模型接入层：Provider 抽象、模型来源、
别名归一化以及超时与传输层重试包装。

# 概述

上层 Agent 只依赖 [Provider] 接口。模型的构造方式由 [ModelSource]
显式区分：[Direct] 直接持有一个 Provider，[FromFactory] 在构造 Agent
时通过 [ProviderFactory] 按 [Settings] 创建（见 llm/factory）。

# 模型名称

[Normalize] 是纯函数，把历史别名（gpt4o、llama 等）解析为
"provider:model" 形式；空名称解析为 [DefaultModel]。
[SplitModel] 拆分 provider 与 model，[ResolveAPIKey] 按 provider
从环境变量读取密钥。

# 错误语义

Provider 返回的网络、鉴权、限流错误统一为 types.ErrBackendTransport，
可重放的错误带 Retryable 标记。[WithTimeout] 把单次调用超时映射为
可由调用循环重试的 types.ErrTimeout；[WithTransportRetry] 只对可重放的
传输错误做指数退避重试，不消耗 Agent 的尝试次数。
*/
package llm
