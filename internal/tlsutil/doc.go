// Package tlsutil 提供集中式 TLS 与出站 HTTP 客户端配置，
// 为模型、搜索、网页抓取和向量库客户端提供安全加固的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
