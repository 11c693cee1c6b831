// 版权所有 2026 TutorFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
Agent 调用、检索管线、网页搜索与 URL 缓存四个维度。

# 概述

Collector 持有独立的 prometheus.Registry，通过 promauto.With
注册指标，多个实例之间互不冲突。Handler 返回对应的 /metrics
处理器。所有 Record 方法对 nil Collector 是空操作，调用方无需判空。

# 主要能力

  - Agent 指标：调用总数（按 status）、每次调用的尝试次数、
    调用耗时、调用状态转换计数。
  - 管线指标：search/filter/fetch/split/store 各阶段计数与耗时，
    写入向量库的分块数。
  - 搜索指标：按 provider/status 统计请求数。
  - 缓存指标：URL 过滤命中与未命中计数，按 collection 分组。
*/
package metrics
