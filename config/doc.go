// Package config 提供 TutorFlow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（前缀 TUTORFLOW_）的顺序合并，
// 覆盖日志、模型、调用控制、搜索、抓取、向量存储、嵌入、检索管线、
// URL 缓存与指标各个分区。Validate 检查取值范围。
package config
