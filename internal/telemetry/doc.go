// Package telemetry 初始化 OpenTelemetry，为 Agent 调用与检索管线的 span
// 以及 llm/observability 的模型调用指标配置 OTLP gRPC 导出。
// 禁用时保持 noop 实现，不连接任何外部服务。
package telemetry
