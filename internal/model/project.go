package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// 会话类型：0 为纯聊天，1 为已生成项目。
const (
	TypeChat    = 0
	TypeProject = 1
)

// 可见性取值。
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// 聊天角色取值。
const (
	ChatRoleUser  = "user"
	ChatRoleModel = "model"
)

// OwnerGuest 是未登录流程使用的哨兵所有者。
const OwnerGuest = "guest"

// DefaultThumbnail 是新项目的默认缩略图。
const DefaultThumbnail = "https://cdn-icons-png.flaticon.com/512/1420/1420337.png"

// ChatMessage 代表会话历史中的单条消息。
type ChatMessage struct {
	Role      string    `json:"role"` // "user" 或 "model"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ProjectFile 描述生成项目中的单个文件的元信息。
type ProjectFile struct {
	Path        string   `json:"path"`
	Description string   `json:"description,omitempty"`
	Features    []string `json:"features,omitempty"`
}

// CodeFile 是生成项目的完整文件内容快照条目。
// 增量编辑时整文件替换，从不做差量合并。
type CodeFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Project 对应于数据库中的 'projects' 表。
// 一条记录既承载纯聊天会话（type=0）也承载生成项目（type=1），
// 以调用方提供的 conversation id 作为全局唯一键。
type Project struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	Owner               string         `gorm:"type:varchar(64);not null;default:guest;index" json:"owner"`
	ConversationID      string         `gorm:"type:varchar(128);uniqueIndex;not null" json:"conversationId"`
	Type                int            `gorm:"not null;default:0" json:"type"`
	Title               string         `gorm:"type:varchar(255)" json:"title"`
	Description         string         `gorm:"type:text" json:"description"`
	Features            datatypes.JSON `json:"features"`
	Files               datatypes.JSON `json:"files"`
	MainColorTheme      string         `gorm:"type:varchar(20)" json:"mainColorTheme"`
	SecondaryColorTheme string         `gorm:"type:varchar(20)" json:"secondaryColorTheme"`
	ChatHistory         datatypes.JSON `json:"chatHistory"`
	Code                datatypes.JSON `json:"code"`
	Thumbnail           string         `gorm:"type:varchar(512)" json:"thumbnail"`
	ChaiCount           int            `gorm:"not null;default:0" json:"chaiCount"`
	Visibility          string         `gorm:"type:varchar(20);not null;default:public" json:"visibility"`
	CreatedAt           time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Project) TableName() string {
	return "projects"
}

// IsEmpty 判断一个项目是否缺失核心字段。
// 空项目在下一条建站意图消息到来时会重新触发生成。
func (p *Project) IsEmpty() bool {
	return p.Title == "" || len(p.FileList()) == 0 || len(p.FeatureList()) == 0
}

// History 解码会话历史。损坏的 JSON 按空历史处理。
func (p *Project) History() []ChatMessage {
	var msgs []ChatMessage
	applyJSON(p.ChatHistory, &msgs)
	if msgs == nil {
		msgs = []ChatMessage{}
	}
	return msgs
}

// SetHistory 将会话历史写回 JSON 列。
func (p *Project) SetHistory(msgs []ChatMessage) {
	p.ChatHistory = mustJSON(msgs)
}

// FeatureList 解码功能列表。
func (p *Project) FeatureList() []string {
	var features []string
	applyJSON(p.Features, &features)
	if features == nil {
		features = []string{}
	}
	return features
}

// SetFeatureList 将功能列表写回 JSON 列。
func (p *Project) SetFeatureList(features []string) {
	p.Features = mustJSON(features)
}

// FileList 解码文件元信息列表。
func (p *Project) FileList() []ProjectFile {
	var files []ProjectFile
	applyJSON(p.Files, &files)
	if files == nil {
		files = []ProjectFile{}
	}
	return files
}

// SetFileList 将文件元信息列表写回 JSON 列。
func (p *Project) SetFileList(files []ProjectFile) {
	p.Files = mustJSON(files)
}

// CodeFiles 解码完整代码快照。
func (p *Project) CodeFiles() []CodeFile {
	var code []CodeFile
	applyJSON(p.Code, &code)
	if code == nil {
		code = []CodeFile{}
	}
	return code
}

// SetCodeFiles 将完整代码快照写回 JSON 列。
func (p *Project) SetCodeFiles(code []CodeFile) {
	p.Code = mustJSON(code)
}

// FilePaths 返回当前快照中所有文件的逻辑路径。
func (p *Project) FilePaths() []string {
	files := p.FileList()
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	return paths
}

// applyJSON 将 JSON 列解码到目标结构，损坏的数据静默忽略。
func applyJSON(value datatypes.JSON, target interface{}) {
	if len(value) == 0 {
		return
	}
	_ = json.Unmarshal(value, target)
}

// mustJSON 将任意值编码为 JSON 列，编码失败时退化为空数组。
func mustJSON(v interface{}) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(b)
}
