package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"chai-builder-go/internal/config"
	"chai-builder-go/internal/model"
	"chai-builder-go/internal/repository"
	"chai-builder-go/pkg/llm"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.Project{}, &model.Payment{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testLedger() config.LedgerConfig {
	return config.LedgerConfig{CostPerCall: 20, DailyGrant: 50, SignupGrant: 100, GoogleSignupGrant: 150}
}

// scriptedLLM 按调用类型返回预置回复：意图识别走 intent，项目生成走 project，对话走 chatReply。
type scriptedLLM struct {
	intent    string
	project   string
	chatReply string
	chatErr   error
	chatCalls int
}

func (s *scriptedLLM) GenerateContent(_ context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "web app creation intent") {
		return s.intent, nil
	}
	return s.project, nil
}

func (s *scriptedLLM) Chat(_ context.Context, _ []llm.Message, _ string) (string, error) {
	s.chatCalls++
	return s.chatReply, s.chatErr
}

func newAITestEnv(t *testing.T, fake *scriptedLLM) (AIService, repository.UserRepository, repository.ProjectRepository) {
	t.Helper()
	db := openTestDB(t)
	userRepo := repository.NewUserRepository(db)
	projectRepo := repository.NewProjectRepository(db, nil)
	svc := NewAIService(projectRepo, userRepo, fake, nil, testLedger())
	return svc, userRepo, projectRepo
}

func seedUser(t *testing.T, repo repository.UserRepository, tokens int, subscription string) *model.User {
	t.Helper()
	user := &model.User{
		Name:               "tea lover",
		Email:              "tea@example.com",
		Tokens:             tokens,
		SubscriptionStatus: subscription,
		Role:               model.RoleNormal,
	}
	require.NoError(t, repo.Create(user))
	return user
}

const todoEnvelope = "```json\n" + `{
  "title": "Todo App",
  "description": "A simple todo application",
  "features": ["Add tasks", "Complete tasks"],
  "files": [
    {"path": "App.js", "description": "entry", "code": "// app", "features": ["layout"]},
    {"path": "styles.css", "description": "styles", "code": "/* css */", "features": ["styles"]}
  ],
  "mainColorTheme": "#112233",
  "secondaryColorTheme": "#445566",
  "chatSummary": "Created a todo app"
}` + "\n```"

func TestChat_BuildIntentCreatesProject(t *testing.T) {
	fake := &scriptedLLM{intent: "1", project: todoEnvelope}
	svc, userRepo, projectRepo := newAITestEnv(t, fake)
	user := seedUser(t, userRepo, 100, model.SubscriptionFree)

	result, err := svc.Chat(context.Background(), user, "conv-1", []ChatTurn{
		{Role: "user", Content: "Build me a todo app"},
	})
	require.NoError(t, err)

	assert.Equal(t, model.TypeProject, result.Type)
	assert.Equal(t, "Created a todo app", result.Response)
	require.NotNil(t, result.ProjectDetails)
	assert.Equal(t, "Todo App", result.ProjectDetails.Title)
	assert.Equal(t, []string{"App.js", "styles.css"}, result.ProjectDetails.FilePaths)
	// Code 未给出时从文件清单推导
	require.Len(t, result.ProjectDetails.Code, 2)
	assert.Equal(t, "// app", result.ProjectDetails.Code[0].Content)

	// 项目落库
	project, err := projectRepo.FindByConversationID("conv-1")
	require.NoError(t, err)
	assert.Equal(t, model.TypeProject, project.Type)
	assert.Equal(t, "Todo App", project.Title)
	assert.False(t, project.IsEmpty())
	assert.Equal(t, model.VisibilityPublic, project.Visibility)
	assert.Equal(t, model.DefaultThumbnail, project.Thumbnail)

	// 扣费 20
	reloaded, err := userRepo.FindByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 80, reloaded.Tokens)

	// 用户投影里有这个项目
	refs := reloaded.ProjectRefs()
	require.Len(t, refs, 1)
	assert.Equal(t, "conv-1", refs[0].ConversationID)
	assert.Equal(t, "Todo App", refs[0].Title)
}

func TestChat_RebuildKeepsSingleProjectRef(t *testing.T) {
	fake := &scriptedLLM{intent: "1", project: "not json at all"}
	svc, userRepo, _ := newAITestEnv(t, fake)
	user := seedUser(t, userRepo, 100, model.SubscriptionFree)

	// 第一次生成失败落了占位项目，重试成功后投影不能出现重复条目
	_, err := svc.Chat(context.Background(), user, "conv-1", []ChatTurn{
		{Role: "user", Content: "Build me a todo app"},
	})
	require.NoError(t, err)

	fake.project = todoEnvelope
	user, err = userRepo.FindByID(user.ID)
	require.NoError(t, err)
	_, err = svc.Chat(context.Background(), user, "conv-1", []ChatTurn{
		{Role: "user", Content: "Build me a todo app"},
	})
	require.NoError(t, err)

	reloaded, err := userRepo.FindByID(user.ID)
	require.NoError(t, err)
	refs := reloaded.ProjectRefs()
	require.Len(t, refs, 1)
	assert.Equal(t, "conv-1", refs[0].ConversationID)
	assert.Equal(t, "Todo App", refs[0].Title)
}

func TestChat_TokenOver(t *testing.T) {
	fake := &scriptedLLM{intent: "1", project: todoEnvelope}
	svc, userRepo, _ := newAITestEnv(t, fake)
	user := seedUser(t, userRepo, 10, model.SubscriptionFree)

	_, err := svc.Chat(context.Background(), user, "conv-1", []ChatTurn{
		{Role: "user", Content: "build me a site"},
	})
	require.ErrorIs(t, err, ErrTokenOver)

	// 余额保持不变
	reloaded, err := userRepo.FindByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, reloaded.Tokens)
}

func TestChat_PaidUserSkipsCharge(t *testing.T) {
	fake := &scriptedLLM{intent: "0", chatReply: "hello!"}
	svc, userRepo, _ := newAITestEnv(t, fake)
	user := seedUser(t, userRepo, 5, model.SubscriptionPaid)

	result, err := svc.Chat(context.Background(), user, "conv-1", []ChatTurn{
		{Role: "user", Content: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.TypeChat, result.Type)

	reloaded, err := userRepo.FindByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, reloaded.Tokens)
}

func TestChat_MalformedSynthesisPersistsDefaultProject(t *testing.T) {
	fake := &scriptedLLM{intent: "1", project: "sorry, I cannot answer that"}
	svc, userRepo, projectRepo := newAITestEnv(t, fake)
	user := seedUser(t, userRepo, 100, model.SubscriptionFree)

	result, err := svc.Chat(context.Background(), user, "conv-1", []ChatTurn{
		{Role: "user", Content: "build a portfolio"},
	})
	require.NoError(t, err)

	assert.Equal(t, model.TypeProject, result.Type)
	assert.Equal(t, "React Project", result.ProjectDetails.Title)
	assert.Equal(t, "Created React Project with React", result.Response)

	// 占位项目同样落库
	project, err := projectRepo.FindByConversationID("conv-1")
	require.NoError(t, err)
	assert.Equal(t, "React Project", project.Title)
	assert.Equal(t, "#ffffff", project.MainColorTheme)
	assert.True(t, project.IsEmpty())
}

func TestChat_NewConversationWithoutBuildIntent(t *testing.T) {
	fake := &scriptedLLM{intent: "0", chatReply: "chai is a spiced tea"}
	svc, userRepo, projectRepo := newAITestEnv(t, fake)
	user := seedUser(t, userRepo, 100, model.SubscriptionFree)

	result, err := svc.Chat(context.Background(), user, "conv-1", []ChatTurn{
		{Role: "user", Content: "what is chai?"},
	})
	require.NoError(t, err)

	assert.Equal(t, model.TypeChat, result.Type)
	assert.Equal(t, "chai is a spiced tea", result.Response)
	assert.Nil(t, result.ProjectDetails)
	require.Len(t, result.ChatHistory, 2)
	assert.Equal(t, model.ChatRoleModel, result.ChatHistory[1].Role)

	project, err := projectRepo.FindByConversationID("conv-1")
	require.NoError(t, err)
	assert.Equal(t, model.TypeChat, project.Type)

	reloaded, err := userRepo.FindByID(user.ID)
	require.NoError(t, err)
	refs := reloaded.ProjectRefs()
	require.Len(t, refs, 1)
	assert.Equal(t, "New Chat", refs[0].Title)
}

func seedProject(t *testing.T, repo repository.ProjectRepository, convID string) *model.Project {
	t.Helper()
	project := &model.Project{
		ConversationID: convID,
		Type:           model.TypeProject,
		Owner:          "1",
		Title:          "Todo App",
		Visibility:     model.VisibilityPublic,
	}
	project.SetFeatureList([]string{"Add tasks"})
	project.SetFileList([]model.ProjectFile{{Path: "App.js"}})
	project.SetCodeFiles([]model.CodeFile{{Name: "App.js", Content: "// old"}})
	project.SetHistory([]model.ChatMessage{
		{Role: model.ChatRoleUser, Content: "build me a todo app", Timestamp: time.Now()},
		{Role: model.ChatRoleModel, Content: "Created a todo app", Timestamp: time.Now()},
	})
	require.NoError(t, repo.Create(project))
	return project
}

func TestChat_EditReplacesFileAndExtendsHistory(t *testing.T) {
	editReply := "```json\n" + `{"message": "Made the header blue", "code": [{"name": "App.js", "content": "// new"}, {"name": "Header.js", "content": "// header"}]}` + "\n```"
	// 已有非空项目的会话一律走编辑路径，即使意图识别给出 1
	fake := &scriptedLLM{intent: "1", chatReply: editReply}
	svc, userRepo, projectRepo := newAITestEnv(t, fake)
	user := seedUser(t, userRepo, 100, model.SubscriptionFree)
	seedProject(t, projectRepo, "conv-1")

	result, err := svc.Chat(context.Background(), user, "conv-1", []ChatTurn{
		{Role: "user", Content: "build me a todo app"},
		{Role: "assistant", Content: "Created a todo app"},
		{Role: "user", Content: "make the header blue"},
	})
	require.NoError(t, err)

	assert.Equal(t, model.TypeChat, result.Type)
	assert.Equal(t, "Made the header blue", result.Response)

	project, err := projectRepo.FindByConversationID("conv-1")
	require.NoError(t, err)
	code := project.CodeFiles()
	require.Len(t, code, 2)
	assert.Equal(t, "// new", code[0].Content)
	assert.Equal(t, "Header.js", code[1].Name)
	// 文件清单跟随代码快照
	assert.Equal(t, []string{"App.js", "Header.js"}, project.FilePaths())
	// 历史 +2
	assert.Len(t, project.History(), 4)
}

func TestChat_EditMalformedReplyFails(t *testing.T) {
	fake := &scriptedLLM{intent: "0", chatReply: "here is the code: <html>"}
	svc, userRepo, projectRepo := newAITestEnv(t, fake)
	user := seedUser(t, userRepo, 100, model.SubscriptionFree)
	seedProject(t, projectRepo, "conv-1")

	_, err := svc.Chat(context.Background(), user, "conv-1", []ChatTurn{
		{Role: "user", Content: "change the title"},
	})
	require.ErrorIs(t, err, ErrBadAIResponse)

	// 失败的编辑不修改项目
	project, err := projectRepo.FindByConversationID("conv-1")
	require.NoError(t, err)
	assert.Equal(t, "// old", project.CodeFiles()[0].Content)
	assert.Len(t, project.History(), 2)
}

func TestChat_ModifyFollowUpDeclined(t *testing.T) {
	fake := &scriptedLLM{intent: "0", chatReply: "should not be called"}
	svc, userRepo, projectRepo := newAITestEnv(t, fake)
	user := seedUser(t, userRepo, 100, model.SubscriptionFree)

	project := seedProject(t, projectRepo, "conv-1")
	history := project.History()
	history = append(history, model.ChatMessage{Role: model.ChatRoleModel, Content: "All done. Would you like to modify it?", Timestamp: time.Now()})
	project.SetHistory(history)
	require.NoError(t, projectRepo.Update(project))

	result, err := svc.Chat(context.Background(), user, "conv-1", []ChatTurn{
		{Role: "user", Content: "no thanks"},
	})
	require.NoError(t, err)

	assert.Equal(t, modifyAckResponse, result.Response)
	assert.Zero(t, fake.chatCalls)

	reloaded, err := projectRepo.FindByConversationID("conv-1")
	require.NoError(t, err)
	assert.Len(t, reloaded.History(), 5)
}

func TestChat_NoUserMessage(t *testing.T) {
	fake := &scriptedLLM{}
	svc, userRepo, _ := newAITestEnv(t, fake)
	user := seedUser(t, userRepo, 100, model.SubscriptionFree)

	_, err := svc.Chat(context.Background(), user, "conv-1", []ChatTurn{
		{Role: "assistant", Content: "hello"},
	})
	require.ErrorIs(t, err, ErrNoUserMessage)
}

func TestDecideRoute(t *testing.T) {
	cases := []struct {
		name                       string
		exists, intent, emptyState bool
		want                       chatRoute
	}{
		{"new conversation with build intent", false, true, false, routeNewBuild},
		{"new conversation without build intent", false, false, false, routeNewChat},
		{"existing empty project with build intent", true, true, true, routeExistingEmptyBuild},
		{"existing full project with build intent", true, true, false, routeExistingEdit},
		{"existing project without build intent", true, false, false, routeExistingEdit},
		{"existing empty project without build intent", true, false, true, routeExistingEdit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, decideRoute(tc.exists, tc.intent, tc.emptyState))
		})
	}
}

func TestMergeCode(t *testing.T) {
	current := []model.CodeFile{{Name: "App.js", Content: "a"}, {Name: "styles.css", Content: "b"}}
	changes := []model.CodeFile{{Name: "App.js", Content: "a2"}, {Name: "Footer.js", Content: "c"}}

	merged := mergeCode(current, changes)
	require.Len(t, merged, 3)
	assert.Equal(t, "a2", merged[0].Content)
	assert.Equal(t, "b", merged[1].Content)
	assert.Equal(t, "Footer.js", merged[2].Name)

	// 重复应用同一批变更结果不变
	again := mergeCode(merged, changes)
	assert.Equal(t, merged, again)

	// 原切片不被修改
	assert.Equal(t, "a", current[0].Content)
}

func TestParseProjectEnvelope_Fallback(t *testing.T) {
	env, ok := parseProjectEnvelope("definitely not json")
	assert.False(t, ok)
	assert.Equal(t, "React Project", env.Title)
	assert.Equal(t, "#ffffff", env.MainColorTheme)
	assert.Empty(t, env.Files)
}
