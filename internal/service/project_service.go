package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"chai-builder-go/internal/config"
	"chai-builder-go/internal/model"
	"chai-builder-go/internal/repository"
	"chai-builder-go/pkg/es"
	"chai-builder-go/pkg/log"
	"chai-builder-go/pkg/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 项目相关的业务错误。
var (
	ErrProjectNotFound = errors.New("project not found")
	ErrNotOwner        = errors.New("not authorized to modify this project")
	ErrPremiumRequired = errors.New("premium subscription required")
	ErrBadVisibility   = errors.New("invalid visibility value")
)

// IndexNotifier 在项目状态变化后发布索引任务，由搜索管线异步消费。
type IndexNotifier interface {
	ProjectChanged(conversationID string)
}

// PublicProject 是公开项目列表/搜索的返回条目。
type PublicProject struct {
	ConversationID      string    `json:"conversationId"`
	Title               string    `json:"title"`
	Description         string    `json:"description"`
	Features            []string  `json:"features"`
	MainColorTheme      string    `json:"mainColorTheme"`
	SecondaryColorTheme string    `json:"secondaryColorTheme"`
	Thumbnail           string    `json:"thumbnail"`
	ChaiCount           int       `json:"chaiCount"`
	CreatedAt           time.Time `json:"createdAt"`
}

// MetadataUpdate 是项目元数据更新的入参，nil 字段保持不变。
type MetadataUpdate struct {
	Title               *string
	Description         *string
	Thumbnail           *string
	MainColorTheme      *string
	SecondaryColorTheme *string
}

// ProjectService 接口定义了项目浏览与管理的业务操作。
type ProjectService interface {
	GetByConversationID(conversationID string) (*model.Project, error)
	ListPublic(ctx context.Context, query string) ([]PublicProject, error)
	UpdateMetadata(user *model.User, conversationID string, updates MetadataUpdate) (*model.Project, error)
	ChangeVisibility(user *model.User, conversationID, visibility string) (*model.Project, error)
	// Upvote 返回最新计数以及本次是否实际计入。
	Upvote(ctx context.Context, user *model.User, conversationID string) (int, bool, error)
	SaveThumbnail(ctx context.Context, user *model.User, conversationID, filename string,
		reader io.Reader, size int64, contentType string) (*model.Project, error)
}

type projectService struct {
	projectRepo repository.ProjectRepository
	notifier    IndexNotifier
	esCfg       config.ElasticsearchConfig
	minioCfg    config.MinIOConfig
}

// NewProjectService 创建一个新的 ProjectService 实例。
func NewProjectService(projectRepo repository.ProjectRepository, notifier IndexNotifier,
	esCfg config.ElasticsearchConfig, minioCfg config.MinIOConfig) ProjectService {
	return &projectService{
		projectRepo: projectRepo,
		notifier:    notifier,
		esCfg:       esCfg,
		minioCfg:    minioCfg,
	}
}

// notifyChanged 发布索引任务。发布失败只记日志，不影响主流程。
func (s *projectService) notifyChanged(conversationID string) {
	if s.notifier == nil {
		return
	}
	s.notifier.ProjectChanged(conversationID)
}

// canModify 判断用户是否有权修改项目。guest 项目任何登录用户都可以认领修改。
func canModify(user *model.User, project *model.Project) bool {
	if project.Owner == model.OwnerGuest {
		return true
	}
	return user != nil && project.Owner == fmt.Sprint(user.ID)
}

// GetByConversationID 根据会话 ID 获取项目详情。
func (s *projectService) GetByConversationID(conversationID string) (*model.Project, error) {
	project, err := s.projectRepo.FindByConversationID(conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return project, nil
}

// ListPublic 返回公开项目列表。带查询词时走 Elasticsearch 全文检索，
// 否则直接从数据库按创建时间倒序读取。
func (s *projectService) ListPublic(ctx context.Context, query string) ([]PublicProject, error) {
	query = strings.TrimSpace(query)
	if query != "" && es.ESClient != nil {
		docs, err := es.SearchProjects(ctx, s.esCfg.IndexName, query, 50)
		if err != nil {
			// 搜索后端异常时退回数据库全量列表
			log.Errorf("搜索公开项目失败, 回退数据库列表: %v", err)
		} else {
			results := make([]PublicProject, 0, len(docs))
			for _, doc := range docs {
				results = append(results, PublicProject{
					ConversationID:      doc.ConversationID,
					Title:               doc.Title,
					Description:         doc.Description,
					Features:            doc.Features,
					MainColorTheme:      doc.MainColorTheme,
					SecondaryColorTheme: doc.SecondaryColorTheme,
					Thumbnail:           doc.Thumbnail,
					ChaiCount:           doc.ChaiCount,
					CreatedAt:           doc.CreatedAt,
				})
			}
			return results, nil
		}
	}

	projects, err := s.projectRepo.FindPublic()
	if err != nil {
		return nil, err
	}
	results := make([]PublicProject, 0, len(projects))
	for i := range projects {
		p := &projects[i]
		results = append(results, PublicProject{
			ConversationID:      p.ConversationID,
			Title:               p.Title,
			Description:         p.Description,
			Features:            p.FeatureList(),
			MainColorTheme:      p.MainColorTheme,
			SecondaryColorTheme: p.SecondaryColorTheme,
			Thumbnail:           p.Thumbnail,
			ChaiCount:           p.ChaiCount,
			CreatedAt:           p.CreatedAt,
		})
	}
	return results, nil
}

// UpdateMetadata 更新项目的展示元数据。只有所有者可以修改。
// 点赞计数由专门的点赞操作维护，不在可更新字段之列。
func (s *projectService) UpdateMetadata(user *model.User, conversationID string, updates MetadataUpdate) (*model.Project, error) {
	project, err := s.GetByConversationID(conversationID)
	if err != nil {
		return nil, err
	}
	if !canModify(user, project) {
		return nil, ErrNotOwner
	}

	if updates.Title != nil {
		project.Title = *updates.Title
	}
	if updates.Description != nil {
		project.Description = *updates.Description
	}
	if updates.Thumbnail != nil {
		project.Thumbnail = *updates.Thumbnail
	}
	if updates.MainColorTheme != nil {
		project.MainColorTheme = *updates.MainColorTheme
	}
	if updates.SecondaryColorTheme != nil {
		project.SecondaryColorTheme = *updates.SecondaryColorTheme
	}

	if err := s.projectRepo.Update(project); err != nil {
		return nil, err
	}
	s.notifyChanged(conversationID)
	return project, nil
}

// ChangeVisibility 切换项目可见性。设为私有需要付费的 premium 用户。
func (s *projectService) ChangeVisibility(user *model.User, conversationID, visibility string) (*model.Project, error) {
	if visibility != model.VisibilityPublic && visibility != model.VisibilityPrivate {
		return nil, ErrBadVisibility
	}

	project, err := s.GetByConversationID(conversationID)
	if err != nil {
		return nil, err
	}
	if !canModify(user, project) {
		return nil, ErrNotOwner
	}

	if visibility == model.VisibilityPrivate {
		if user == nil || user.Role != model.RolePremium || !user.IsPaid() {
			return nil, ErrPremiumRequired
		}
	}

	project.Visibility = visibility
	if err := s.projectRepo.Update(project); err != nil {
		return nil, err
	}
	s.notifyChanged(conversationID)
	return project, nil
}

// Upvote 为项目点赞。同一用户重复点赞不再计数，返回当前计数。
func (s *projectService) Upvote(ctx context.Context, user *model.User, conversationID string) (int, bool, error) {
	project, err := s.GetByConversationID(conversationID)
	if err != nil {
		return 0, false, err
	}

	first, err := s.projectRepo.MarkUpvoted(ctx, conversationID, user.ID)
	if err != nil {
		return 0, false, err
	}
	if !first {
		return project.ChaiCount, false, nil
	}

	count, err := s.projectRepo.IncrementChai(conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, ErrProjectNotFound
		}
		return 0, false, err
	}
	s.notifyChanged(conversationID)
	return count, true, nil
}

// SaveThumbnail 上传项目缩略图到对象存储并更新项目记录。
func (s *projectService) SaveThumbnail(ctx context.Context, user *model.User, conversationID, filename string,
	reader io.Reader, size int64, contentType string) (*model.Project, error) {
	project, err := s.GetByConversationID(conversationID)
	if err != nil {
		return nil, err
	}
	if !canModify(user, project) {
		return nil, ErrNotOwner
	}

	ext := filepath.Ext(filename)
	objectName := fmt.Sprintf("%s-%s%s", conversationID, uuid.New().String()[:8], ext)
	url, err := storage.UploadObject(ctx, s.minioCfg, objectName, reader, size, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to upload thumbnail: %w", err)
	}

	project.Thumbnail = url
	if err := s.projectRepo.Update(project); err != nil {
		return nil, err
	}
	s.notifyChanged(conversationID)
	return project, nil
}
