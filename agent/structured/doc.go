// Copyright 2026 TutorFlow Authors
// Use of this source code is governed by the project license.

/*
# 概述

包 structured 把模型返回的原始文本规整为结构化值，并提供输出校验器。

# 规整流程

[Coerce] 依次执行：

  - 期望 JSON 且文本为空白时返回 EMPTY_OUTPUT
  - 去除首尾的 Markdown 代码围栏（可带 json 等语言标记）
  - 解析 JSON，失败时返回可重试的 MALFORMED_JSON
  - 仅含 tracks 与 result 两个键的对象，除非设置 OutputTracks，否则替换为 result

# 校验器

  - [KeySet]：对象的键集合必须完全相等
  - [ListOf]：列表长度下限及逐项校验
  - [Predicate] / [All]：组合任意判断
  - [SchemaValidator]：基于 JSON Schema 的校验

校验失败统一返回 VALIDATOR_REJECTED，调用循环据此重试。
*/
package structured
