// Copyright (c) TutorFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 TutorFlow 命令行入口。

# 概述

cmd/tutorflow 把 Agent 调用核心与检索增强摄取管线组装成一个命令行程序：
按名称调用已注册的 Agent、为学习会话生成完整的学习文档、对集合执行
搜索摄取或直接检索，以及管理 URL 缓存的 SQL 迁移。

# 子命令

  - invoke：按名称调用 Agent，-batch 时逐项调用并保持输入顺序
  - learn：探索知识点、检索并起草、整合文档，可选出题
  - ingest：搜索、过滤已缓存 URL、抓取、切分并写入向量存储
  - retrieve：只查询向量存储，不触发搜索
  - migrate：由 golang-migrate 执行内嵌迁移
  - version：构建信息，Version、BuildTime、GitCommit 通过 ldflags 注入

# 运行时

配置按 默认值 → YAML → TUTORFLOW_* 环境变量 加载；日志使用 zap 并写到
stderr，stdout 只输出命令结果。metrics.addr 非空时在后台暴露 /metrics 与
/healthz，telemetry.enabled 时通过 OTLP 导出 span 与模型调用指标。
*/
package main
