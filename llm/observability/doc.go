/*
包 observability 基于 OpenTelemetry 为 LLM 调用提供 span 与指标。

# 概述

[Metrics] 记录请求数、Token 消耗、错误码与延迟分布；
[Wrap] 把任意 llm.Provider 包装为 [InstrumentedProvider]，
每次 Completion 生成一个 "llm.completion" span。

未配置全局 TracerProvider / MeterProvider 时，otel 默认实现为 no-op，
包装开销可以忽略。
*/
package observability
