// Package factory 按 "provider:model" 创建并缓存 llm.Provider。
//
// anthropic、gemini、google 使用原生协议子包，其余 provider 走
// openaicompat。每个实例依次套上观测、超时、熔断与传输重试。
package factory
