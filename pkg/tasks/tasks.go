// Package tasks 定义了通过消息队列传递的后台任务结构。
package tasks

// ProjectIndexTask 表示一次公开项目索引任务。
// 项目创建、元数据更新、可见性切换和点赞都会触发该任务，
// 消费者根据当前库中的项目状态决定写入还是删除索引文档。
type ProjectIndexTask struct {
	ConversationID string `json:"conversationId"`
}
