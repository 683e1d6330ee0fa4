package repository

import (
	"context"
	"fmt"

	"chai-builder-go/internal/model"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// ProjectRepository 接口定义了会话/项目数据的持久化操作。
type ProjectRepository interface {
	Create(project *model.Project) error
	FindByConversationID(conversationID string) (*model.Project, error)
	Update(project *model.Project) error
	// FindPublic 返回所有公开的生成项目，按创建时间倒序。
	FindPublic() ([]model.Project, error)
	// IncrementChai 原子地增加点赞计数并返回最新值。
	IncrementChai(conversationID string) (int, error)
	// MarkUpvoted 记录一次用户点赞，返回是否为该用户的首次点赞。
	MarkUpvoted(ctx context.Context, conversationID string, userID uint) (bool, error)
}

// projectRepository 是 ProjectRepository 接口的实现。
// 项目文档存 MySQL，点赞去重集合存 Redis。
type projectRepository struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewProjectRepository 创建一个新的 ProjectRepository 实例。
func NewProjectRepository(db *gorm.DB, rdb *redis.Client) ProjectRepository {
	return &projectRepository{db: db, rdb: rdb}
}

// Create 在数据库中创建一个新的项目记录。
func (r *projectRepository) Create(project *model.Project) error {
	return r.db.Create(project).Error
}

// FindByConversationID 根据会话 ID 查找项目。
func (r *projectRepository) FindByConversationID(conversationID string) (*model.Project, error) {
	var project model.Project
	err := r.db.Where("conversation_id = ?", conversationID).First(&project).Error
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// Update 更新数据库中一个已存在的项目记录。
func (r *projectRepository) Update(project *model.Project) error {
	return r.db.Save(project).Error
}

// FindPublic 返回所有公开的生成项目，按创建时间倒序。
func (r *projectRepository) FindPublic() ([]model.Project, error) {
	var projects []model.Project
	err := r.db.
		Where("type = ? AND visibility = ?", model.TypeProject, model.VisibilityPublic).
		Order("created_at DESC").
		Find(&projects).Error
	return projects, err
}

// IncrementChai 以单条 UPDATE 增加计数后重新读取，并发点赞不会丢失计数。
func (r *projectRepository) IncrementChai(conversationID string) (int, error) {
	res := r.db.Model(&model.Project{}).
		Where("conversation_id = ?", conversationID).
		UpdateColumn("chai_count", gorm.Expr("chai_count + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}

	project, err := r.FindByConversationID(conversationID)
	if err != nil {
		return 0, err
	}
	return project.ChaiCount, nil
}

// MarkUpvoted 通过 Redis 集合对点赞去重。未配置 Redis 时不做去重。
func (r *projectRepository) MarkUpvoted(ctx context.Context, conversationID string, userID uint) (bool, error) {
	if r.rdb == nil {
		return true, nil
	}
	key := fmt.Sprintf("project:%s:upvoters", conversationID)
	added, err := r.rdb.SAdd(ctx, key, userID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record upvote: %w", err)
	}
	return added > 0, nil
}
