// Package tokenizer 提供统一的 Token 计数与编解码接口，
// 支持 tiktoken 精确编码与 CJK 估算器，用于按 token 切分文档。
package tokenizer
