// Package pipeline 实现了公开项目的异步索引管线。
// 项目在写路径上只发一条极简的任务消息，真正的文档组装和
// 索引写入由这里的消费端处理，保证接口响应不被搜索后端拖慢。
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"chai-builder-go/internal/config"
	"chai-builder-go/internal/model"
	"chai-builder-go/internal/repository"
	"chai-builder-go/pkg/es"
	"chai-builder-go/pkg/log"
	"chai-builder-go/pkg/tasks"

	"gorm.io/gorm"
)

// ProjectIndexer 抽象索引后端的写入与删除。
type ProjectIndexer interface {
	Index(ctx context.Context, doc model.ProjectDoc) error
	Delete(ctx context.Context, conversationID string) error
}

// esIndexer 是基于 Elasticsearch 的 ProjectIndexer 实现。
type esIndexer struct {
	indexName string
}

// NewESIndexer 创建一个写入 Elasticsearch 的索引器。
func NewESIndexer(cfg config.ElasticsearchConfig) ProjectIndexer {
	return &esIndexer{indexName: cfg.IndexName}
}

func (e *esIndexer) Index(ctx context.Context, doc model.ProjectDoc) error {
	return es.IndexProject(ctx, e.indexName, doc)
}

func (e *esIndexer) Delete(ctx context.Context, conversationID string) error {
	return es.DeleteProject(ctx, e.indexName, conversationID)
}

// Processor 消费项目索引任务：公开的生成项目写入索引，其余从索引删除。
type Processor struct {
	projectRepo repository.ProjectRepository
	indexer     ProjectIndexer
}

// NewProcessor 创建一个新的索引任务处理器。
func NewProcessor(projectRepo repository.ProjectRepository, indexer ProjectIndexer) *Processor {
	return &Processor{projectRepo: projectRepo, indexer: indexer}
}

// Process 处理单条索引任务。任务只携带会话 ID，
// 以数据库中的当前状态为准决定写入还是删除，天然幂等。
func (p *Processor) Process(ctx context.Context, task tasks.ProjectIndexTask) error {
	project, err := p.projectRepo.FindByConversationID(task.ConversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 项目已不存在，确保索引里也没有残留
			return p.indexer.Delete(ctx, task.ConversationID)
		}
		return fmt.Errorf("failed to load project for indexing: %w", err)
	}

	if project.Type != model.TypeProject || project.Visibility != model.VisibilityPublic {
		log.Infof("项目不满足索引条件, 从索引中移除: conversationId=%s", task.ConversationID)
		return p.indexer.Delete(ctx, task.ConversationID)
	}

	doc := model.ProjectDoc{
		ConversationID:      project.ConversationID,
		Title:               project.Title,
		Description:         project.Description,
		Features:            project.FeatureList(),
		MainColorTheme:      project.MainColorTheme,
		SecondaryColorTheme: project.SecondaryColorTheme,
		Thumbnail:           project.Thumbnail,
		ChaiCount:           project.ChaiCount,
		CreatedAt:           project.CreatedAt,
	}
	if err := p.indexer.Index(ctx, doc); err != nil {
		return fmt.Errorf("failed to index project: %w", err)
	}
	log.Infof("项目已写入搜索索引: conversationId=%s, title=%s", project.ConversationID, project.Title)
	return nil
}
