package model

import "time"

// ProjectDoc 代表存储在 Elasticsearch 公开项目索引中的文档结构。
type ProjectDoc struct {
	ConversationID      string    `json:"conversation_id"`
	Title               string    `json:"title"`
	Description         string    `json:"description"`
	Features            []string  `json:"features"`
	MainColorTheme      string    `json:"main_color_theme"`
	SecondaryColorTheme string    `json:"secondary_color_theme"`
	Thumbnail           string    `json:"thumbnail"`
	ChaiCount           int       `json:"chai_count"`
	CreatedAt           time.Time `json:"created_at"`
}
