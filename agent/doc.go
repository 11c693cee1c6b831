// Copyright 2026 TutorFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 agent 实现 Agent 调用核心：把结构化输入绑定到提示词，调用模型，
规整并校验输出，对可恢复的失败进行有界重试。

# 调用状态机

每次调用经历 Idle → Invoking → Validating → {Succeeded, Retrying, Failed}。
可恢复错误（MALFORMED_JSON、EMPTY_OUTPUT、VALIDATOR_REJECTED、TIMEOUT）
进入 Retrying 并开始下一次尝试；MISSING_VARIABLE 与 BACKEND_TRANSPORT
直接进入 Failed。尝试次数达到 MaxRetries（默认 3）后返回
RETRIES_EXHAUSTED，其 Cause 为最后一次失败。

# 模型来源

[Config].Model 是 llm.ModelSource，在 [New] 中解析一次。

# 批量

[Agent.InvokeBatch] 在一次尝试中为全部输入发起调用（Provider 实现
llm.BatchProvider 时走批量接口），任一项失败则整批重试。
多个独立 Agent 调用的并发扇出见 agent/batch。

# 注册表

[Registry.InvokeAgent] 按名称分发调用，供 CLI 与上层编排使用。
*/
package agent
