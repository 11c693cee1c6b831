// Package tutor 组合四个 Agent 生成个性化学习内容：
//
//  1. explore_knowledge_points：为学习会话列出知识点（foundational / practical / strategic）
//  2. draft_knowledge_point：检索外部资料并起草单个知识点，经 batch 执行器并行
//  3. integrate_learning_document：生成标题、概览与总结，再由 [AssembleMarkdown] 拼成文档
//  4. generate_document_quizzes：按题型数量出题
//
// 提示词以内置 YAML 提示词包发布，可用 [LoadPrompts] 按文件覆盖。
package tutor
