// Package model 包含了应用的数据模型定义。
package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// 用户角色与订阅状态的取值。
const (
	RoleNormal  = "normal"
	RolePremium = "premium"

	SubscriptionFree = "free"
	SubscriptionPaid = "paid"
)

// DefaultProfilePicture 是注册时未提供头像的兜底地址。
const DefaultProfilePicture = "https://cdn-icons-png.flaticon.com/512/149/149071.png"

// ProjectRef 是用户文档上冗余的项目投影条目，用于项目列表页的快速展示。
type ProjectRef struct {
	ConversationID string    `json:"conversationId"`
	Title          string    `json:"title"`
	CreatedAt      time.Time `json:"createdAt"`
}

// User 对应于数据库中的 'users' 表。
type User struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	Name                string         `gorm:"type:varchar(100);not null" json:"name"`
	Email               string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Password            string         `gorm:"type:varchar(255)" json:"-"` // 联邦登录的用户没有密码
	GoogleID            *string        `gorm:"type:varchar(255);uniqueIndex" json:"-"`
	ProfilePicture      string         `gorm:"type:varchar(512)" json:"profilePicture"`
	Role                string         `gorm:"type:varchar(20);not null;default:normal" json:"role"`
	SubscriptionStatus  string         `gorm:"type:varchar(20);not null;default:free" json:"subscriptionStatus"`
	SubscriptionEndDate *time.Time     `json:"subscriptionEndDate"`
	LastLogin           *time.Time     `json:"lastLogin"`
	Tokens              int            `gorm:"not null;default:100" json:"tokens"`
	LastTokenGrantDate  *time.Time     `json:"lastTokenGrantDate"`
	Projects            datatypes.JSON `json:"projects"`
	CreatedAt           time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (User) TableName() string {
	return "users"
}

// IsPaid 判断用户当前是否为付费订阅用户。
func (u *User) IsPaid() bool {
	return u.SubscriptionStatus == SubscriptionPaid
}

// ProjectRefs 解码用户的项目投影列表。损坏的 JSON 按空列表处理。
func (u *User) ProjectRefs() []ProjectRef {
	if len(u.Projects) == 0 {
		return []ProjectRef{}
	}
	var refs []ProjectRef
	if err := json.Unmarshal(u.Projects, &refs); err != nil {
		return []ProjectRef{}
	}
	return refs
}

// UpsertProjectRef 把一个项目投影条目写入用户文档。
// 同一会话只保留一条，已存在时只刷新标题。
func (u *User) UpsertProjectRef(ref ProjectRef) {
	refs := u.ProjectRefs()
	found := false
	for i := range refs {
		if refs[i].ConversationID == ref.ConversationID {
			refs[i].Title = ref.Title
			found = true
			break
		}
	}
	if !found {
		refs = append(refs, ref)
	}
	b, err := json.Marshal(refs)
	if err != nil {
		return
	}
	u.Projects = datatypes.JSON(b)
}
