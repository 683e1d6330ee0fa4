package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"chai-builder-go/internal/config"
	"chai-builder-go/internal/model"
	"chai-builder-go/internal/repository"
	"chai-builder-go/pkg/llm"
	"chai-builder-go/pkg/log"

	"gorm.io/gorm"
)

// AI 对话相关的业务错误。
var (
	// ErrTokenOver 表示免费用户余额不足，调用方应返回 token_over 哨兵。
	ErrTokenOver = errors.New("token_over")
	// ErrNoUserMessage 表示消息列表中找不到用户消息。
	ErrNoUserMessage = errors.New("no user message found")
	// ErrBadAIResponse 表示编辑回复不是合法的 JSON 信封。
	ErrBadAIResponse = errors.New("ai response format error")
)

// modifyFollowUpMarker 是生成完成后追问语的标记，命中则进入 yes/no 分支。
const modifyFollowUpMarker = "Would you like to modify it?"

// modifyAckResponse 是用户拒绝修改时的固定应答。
const modifyAckResponse = "Okay, let me know if you want to discuss anything else about your project."

// ChatTurn 是对话请求中的单条消息，assistant 角色会被归一化为 model。
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ProjectDetails 是返回给前端的项目详情快照。
type ProjectDetails struct {
	Title               string           `json:"title"`
	Description         string           `json:"description"`
	Features            []string         `json:"features"`
	FilePaths           []string         `json:"filePaths"`
	MainColorTheme      string           `json:"mainColorTheme"`
	SecondaryColorTheme string           `json:"secondaryColorTheme"`
	Code                []model.CodeFile `json:"Code"`
}

// ChatResult 是一次 AI 对话调用的完整结果。
type ChatResult struct {
	Type           int                 `json:"type"`
	Response       string              `json:"response"`
	ChatHistory    []model.ChatMessage `json:"chatHistory"`
	ProjectDetails *ProjectDetails     `json:"projectDetails,omitempty"`
}

// AIService 接口定义了 AI 对话分发的业务操作。
type AIService interface {
	Chat(ctx context.Context, user *model.User, conversationID string, turns []ChatTurn) (*ChatResult, error)
}

// chatRoute 是分发器的显式路由结果。
type chatRoute int

const (
	routeNewChat chatRoute = iota
	routeNewBuild
	routeExistingEmptyBuild
	routeExistingEdit
)

// decideRoute 根据会话是否存在、建站意图和项目是否为空决定处理路径。
// 已有非空项目的会话一律走编辑路径，即使消息带有建站意图。
func decideRoute(projectExists, buildIntent, projectEmpty bool) chatRoute {
	switch {
	case !projectExists && buildIntent:
		return routeNewBuild
	case !projectExists:
		return routeNewChat
	case buildIntent && projectEmpty:
		return routeExistingEmptyBuild
	default:
		return routeExistingEdit
	}
}

type aiService struct {
	projectRepo repository.ProjectRepository
	userRepo    repository.UserRepository
	llmClient   llm.Client
	notifier    IndexNotifier
	ledger      config.LedgerConfig
	now         func() time.Time
}

// NewAIService 创建一个新的 AIService 实例。
func NewAIService(projectRepo repository.ProjectRepository, userRepo repository.UserRepository,
	llmClient llm.Client, notifier IndexNotifier, ledger config.LedgerConfig) AIService {
	return &aiService{
		projectRepo: projectRepo,
		userRepo:    userRepo,
		llmClient:   llmClient,
		notifier:    notifier,
		ledger:      ledger,
		now:         time.Now,
	}
}

func (s *aiService) notifyChanged(conversationID string) {
	if s.notifier != nil {
		s.notifier.ProjectChanged(conversationID)
	}
}

// lastUserUtterance 取最后一条用户消息，小写并去除首尾空白。
func lastUserUtterance(turns []ChatTurn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == model.ChatRoleUser {
			return strings.ToLower(strings.TrimSpace(turns[i].Content))
		}
	}
	return ""
}

// normalizeTurns 把请求消息归一化为存储格式，assistant 映射为 model。
func (s *aiService) normalizeTurns(turns []ChatTurn) []model.ChatMessage {
	now := s.now()
	msgs := make([]model.ChatMessage, 0, len(turns))
	for _, t := range turns {
		role := model.ChatRoleUser
		if t.Role == "assistant" || t.Role == model.ChatRoleModel {
			role = model.ChatRoleModel
		}
		msgs = append(msgs, model.ChatMessage{Role: role, Content: t.Content, Timestamp: now})
	}
	return msgs
}

// toLLMHistory 把存储格式的历史转成 LLM 客户端的消息格式。
func toLLMHistory(msgs []model.ChatMessage) []llm.Message {
	history := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}
	return history
}

// Chat 是 AI 对话的统一入口：扣费、识别意图、路由到具体处理函数。
func (s *aiService) Chat(ctx context.Context, user *model.User, conversationID string, turns []ChatTurn) (*ChatResult, error) {
	utterance := lastUserUtterance(turns)
	if utterance == "" {
		return nil, ErrNoUserMessage
	}

	// 免费用户先扣费。条件更新保证并发请求不会把余额扣成负数。
	if !user.IsPaid() {
		ok, err := s.userRepo.ChargeTokens(user.ID, s.ledger.CostPerCall)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrTokenOver
		}
		log.Infof("用户 %d 扣除 %d tokens", user.ID, s.ledger.CostPerCall)
	}

	project, err := s.projectRepo.FindByConversationID(conversationID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	buildIntent, err := s.classifyIntent(ctx, utterance)
	if err != nil {
		return nil, err
	}

	route := decideRoute(project != nil, buildIntent, project != nil && project.IsEmpty())
	switch route {
	case routeNewBuild:
		return s.handleSynthesis(ctx, user, conversationID, turns, nil, utterance)
	case routeExistingEmptyBuild:
		return s.handleSynthesis(ctx, user, conversationID, turns, project, utterance)
	case routeExistingEdit:
		return s.handleEdit(ctx, project, turns, utterance)
	default:
		return s.handleNewChat(ctx, user, conversationID, turns, utterance)
	}
}

// classifyIntent 用一次 LLM 调用判断消息是否为建站意图。
// 只接受字面量 "1"，模型答非所问时按普通聊天处理。
func (s *aiService) classifyIntent(ctx context.Context, utterance string) (bool, error) {
	prompt := fmt.Sprintf(`Analyze this message for web app creation intent. Respond ONLY with "1" (create app) or "0" (general chat): "%s"`, utterance)
	reply, err := s.llmClient.GenerateContent(ctx, prompt)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(reply) == "1", nil
}

// projectEnvelope 是项目生成回复的 JSON 信封。
type projectEnvelope struct {
	Title               string           `json:"title"`
	Description         string           `json:"description"`
	Features            []string         `json:"features"`
	Files               []fileEnvelope   `json:"files"`
	MainColorTheme      string           `json:"mainColorTheme"`
	SecondaryColorTheme string           `json:"secondaryColorTheme"`
	ChatSummary         string           `json:"chatSummary"`
	Code                []model.CodeFile `json:"Code"`
}

type fileEnvelope struct {
	Path        string   `json:"path"`
	Description string   `json:"description"`
	Code        string   `json:"code"`
	Features    []string `json:"features"`
}

// defaultEnvelope 是解析失败时落库的占位项目。
func defaultEnvelope() projectEnvelope {
	return projectEnvelope{
		Title:               "React Project",
		Description:         "A new React application",
		Features:            []string{},
		Files:               []fileEnvelope{},
		MainColorTheme:      "#ffffff",
		SecondaryColorTheme: "#000000",
		Code:                []model.CodeFile{},
	}
}

// parseProjectEnvelope 解析生成回复。失败时返回占位项目，不报错。
func parseProjectEnvelope(raw string) (projectEnvelope, bool) {
	cleaned := llm.ExtractJSONBlock(raw)
	var env projectEnvelope
	if err := json.Unmarshal([]byte(cleaned), &env); err != nil {
		log.Warnf("项目生成回复解析失败, 使用占位项目: %v", err)
		return defaultEnvelope(), false
	}
	if env.Features == nil {
		env.Features = []string{}
	}
	return env, true
}

// buildProjectPrompt 构造项目生成提示词。
func buildProjectPrompt(message string) string {
	return fmt.Sprintf(`Create a single-page React web app based on the idea: "%s"

Requirements:
- Use React (JSX + a single global styles.css file, no Tailwind)
- Use lucide-react icons where appropriate
- All code should be organized:
  - Pages in /src/pages
  - Components in /src/components
  - All styles in one single file: styles.css
- Common layout:
  - App.js includes a shared Navbar and Footer component across all pages
  - The entire app is rendered on a single page (Home.js)
  - Navbar should be a responsive hamburger menu with a logo on the right
  - Footer should be simple and clean

Do NOT use Tailwind utilities, even if Tailwind is installed.

Output the final project as JSON in the format below:

{
  "title": "Project title",
  "description": "Brief description of what this project is and does",
  "features": ["Feature 1", "Feature 2", "..."],
  "files": [
    { "path": "App.js", "description": "Combines Navbar, Footer and Home page", "code": "// Full code of App.js", "features": ["Shared layout"] },
    { "path": "styles.css", "description": "All global styles in one file", "code": "/* All styles here */", "features": ["Single CSS file"] },
    { "path": "/src/pages/Home.js", "description": "Single-page layout for the web app", "code": "// Full code of Home.js", "features": ["Single page app"] },
    { "path": "/src/components/Navbar.js", "description": "Responsive navbar with hamburger menu", "code": "// Full code of Navbar", "features": ["Responsive navbar"] },
    { "path": "/src/components/Footer.js", "description": "Simple footer component", "code": "// Full code of Footer", "features": ["Sticky footer"] }
  ],
  "mainColorTheme": "#hex",
  "secondaryColorTheme": "#hex",
  "chatSummary": "Short summary of the entire project",
  "Code": [
    { "name": "App.js", "content": "// Full code of App.js" },
    { "name": "styles.css", "content": "/* All styles here */" },
    { "name": "/src/pages/Home.js", "content": "// Full code of Home.js" },
    { "name": "/src/components/Navbar.js", "content": "// Full code of Navbar" },
    { "name": "/src/components/Footer.js", "content": "// Full code of Footer" }
  ]
}

Make the code modern, not basic, and use sample data to showcase. Don't use any kind of icons, use emojis only. All designs should be beautiful and production worthy. Use stock photos from unsplash where appropriate, only valid URLs you know exist, linked in image tags. For placeholder images use https://archive.org/download/placeholder-image/placeholder-image.jpg`, message)
}

// handleSynthesis 处理项目生成：新会话的建站意图，或空项目的重新生成。
func (s *aiService) handleSynthesis(ctx context.Context, user *model.User, conversationID string,
	turns []ChatTurn, existing *model.Project, utterance string) (*ChatResult, error) {
	raw, err := s.llmClient.GenerateContent(ctx, buildProjectPrompt(utterance))
	if err != nil {
		return nil, err
	}

	env, parsed := parseProjectEnvelope(raw)
	if !parsed {
		log.Warnf("会话 %s 的项目生成结果不可解析, 已落库占位项目", conversationID)
	}

	chatSummary := env.ChatSummary
	if chatSummary == "" {
		chatSummary = fmt.Sprintf("Created %s with React", env.Title)
	}

	// 模型没给完整代码时从文件清单推导
	if len(env.Code) == 0 {
		for _, f := range env.Files {
			env.Code = append(env.Code, model.CodeFile{Name: f.Path, Content: f.Code})
		}
	}

	project := existing
	if project == nil {
		project = &model.Project{ConversationID: conversationID}
	}

	files := make([]model.ProjectFile, 0, len(env.Files))
	for _, f := range env.Files {
		files = append(files, model.ProjectFile{Path: f.Path, Description: f.Description, Features: f.Features})
	}

	project.Type = model.TypeProject
	project.Owner = fmt.Sprint(user.ID)
	project.Title = env.Title
	project.Description = env.Description
	project.MainColorTheme = env.MainColorTheme
	project.SecondaryColorTheme = env.SecondaryColorTheme
	project.SetFeatureList(env.Features)
	project.SetFileList(files)
	project.SetCodeFiles(env.Code)
	if project.Thumbnail == "" {
		project.Thumbnail = model.DefaultThumbnail
	}
	if project.Visibility == "" {
		project.Visibility = model.VisibilityPublic
	}

	var history []model.ChatMessage
	if existing != nil {
		history = existing.History()
	} else {
		history = s.normalizeTurns(turns)
	}
	history = append(history, model.ChatMessage{Role: model.ChatRoleModel, Content: chatSummary, Timestamp: s.now()})
	project.SetHistory(history)

	if existing != nil {
		err = s.projectRepo.Update(project)
	} else {
		err = s.projectRepo.Create(project)
	}
	if err != nil {
		return nil, err
	}

	s.appendProjectRef(user, project, project.Title)
	s.notifyChanged(conversationID)

	filePaths := make([]string, 0, len(env.Files))
	for _, f := range env.Files {
		filePaths = append(filePaths, f.Path)
	}

	return &ChatResult{
		Type:        model.TypeProject,
		Response:    chatSummary,
		ChatHistory: history,
		ProjectDetails: &ProjectDetails{
			Title:               env.Title,
			Description:         env.Description,
			Features:            env.Features,
			FilePaths:           filePaths,
			MainColorTheme:      env.MainColorTheme,
			SecondaryColorTheme: env.SecondaryColorTheme,
			Code:                env.Code,
		},
	}, nil
}

// editEnvelope 是增量编辑回复的 JSON 信封，code 可省略表示纯聊天。
type editEnvelope struct {
	Message string           `json:"message"`
	Code    []model.CodeFile `json:"code"`
}

// mergeCode 按文件名合并变更：同名替换，新名追加。重复应用同一批变更结果不变。
func mergeCode(current, changes []model.CodeFile) []model.CodeFile {
	merged := make([]model.CodeFile, len(current))
	copy(merged, current)
	for _, change := range changes {
		found := false
		for i := range merged {
			if merged[i].Name == change.Name {
				merged[i].Content = change.Content
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, change)
		}
	}
	return merged
}

// buildEditPrompt 构造增量编辑提示词，附带项目上下文。
func buildEditPrompt(project *model.Project, newMessage string) string {
	instruction := `You are an AI assistant helping users build and modify web development projects.
Always respond in JSON format:
- If no code change is needed: { "message": "..." }
- Every time provide full code, not partial code, without any comments
- Don't use any kind of icons, use emojis only
- If code changes are needed:
  {
    "message": "Explain what's changed in short, response less than 15 lines, use Markdown format",
    "code": [ { "name": "file", "content": "full content" }, ... ]
  }
Do not include code samples outside JSON. Keep messages concise (max 15 lines).`

	contextDetails := `NOTE: If you change any file, include it in the "code" array with full content.
Only include changed files. Do not mix code and commentary.`

	return fmt.Sprintf("%s\n\nUser says: %q\n\nCurrent Project: %s\nFeatures: %s\nFiles: %s\n\n%s",
		instruction, newMessage, project.Title,
		strings.Join(project.FeatureList(), ", "),
		strings.Join(project.FilePaths(), ", "),
		contextDetails)
}

// handleEdit 处理已有项目上的增量编辑或普通讨论。
func (s *aiService) handleEdit(ctx context.Context, project *model.Project, turns []ChatTurn, newMessage string) (*ChatResult, error) {
	// 生成完成后的追问分支：yes 转为修改请求，否则固定应答
	stored := project.History()
	lastModel := ""
	for i := len(stored) - 1; i >= 0; i-- {
		if stored[i].Role == model.ChatRoleModel {
			lastModel = stored[i].Content
			break
		}
	}
	if strings.Contains(lastModel, modifyFollowUpMarker) {
		if newMessage == "yes" || newMessage == "y" {
			newMessage = "please help me modify this project"
		} else {
			history := append(stored,
				model.ChatMessage{Role: model.ChatRoleUser, Content: newMessage, Timestamp: s.now()},
				model.ChatMessage{Role: model.ChatRoleModel, Content: modifyAckResponse, Timestamp: s.now()})
			project.SetHistory(history)
			if err := s.projectRepo.Update(project); err != nil {
				return nil, err
			}
			return &ChatResult{
				Type:           model.TypeChat,
				Response:       modifyAckResponse,
				ChatHistory:    history,
				ProjectDetails: s.detailsFromProject(project, project.CodeFiles()),
			}, nil
		}
	}

	// 请求里除最后一条之外的消息作为 LLM 上下文
	llmContext := toLLMHistory(s.normalizeTurns(turns))
	if len(llmContext) > 0 {
		llmContext = llmContext[:len(llmContext)-1]
	}

	raw, err := s.llmClient.Chat(ctx, llmContext, buildEditPrompt(project, newMessage))
	if err != nil {
		return nil, err
	}

	cleaned := llm.ExtractJSONBlock(raw)
	var env editEnvelope
	if err := json.Unmarshal([]byte(cleaned), &env); err != nil {
		log.Errorf("编辑回复解析失败: %v", err)
		return nil, ErrBadAIResponse
	}

	updatedCode := mergeCode(project.CodeFiles(), env.Code)

	history := append(project.History(),
		model.ChatMessage{Role: model.ChatRoleUser, Content: newMessage, Timestamp: s.now()},
		model.ChatMessage{Role: model.ChatRoleModel, Content: env.Message, Timestamp: s.now()})

	// 文件清单跟随代码快照重建
	files := make([]model.ProjectFile, 0, len(updatedCode))
	for _, f := range updatedCode {
		files = append(files, model.ProjectFile{Path: f.Name})
	}

	project.SetCodeFiles(updatedCode)
	project.SetFileList(files)
	project.SetHistory(history)
	if err := s.projectRepo.Update(project); err != nil {
		return nil, err
	}
	s.notifyChanged(project.ConversationID)

	return &ChatResult{
		Type:           model.TypeChat,
		Response:       env.Message,
		ChatHistory:    history,
		ProjectDetails: s.detailsFromProject(project, updatedCode),
	}, nil
}

// detailsFromProject 用项目的当前状态组装详情快照，主题色缺省时兜底。
func (s *aiService) detailsFromProject(project *model.Project, code []model.CodeFile) *ProjectDetails {
	mainTheme := project.MainColorTheme
	if mainTheme == "" {
		mainTheme = "#ffffff"
	}
	secondaryTheme := project.SecondaryColorTheme
	if secondaryTheme == "" {
		secondaryTheme = "#000000"
	}
	paths := make([]string, 0, len(code))
	for _, f := range code {
		paths = append(paths, f.Name)
	}
	return &ProjectDetails{
		Title:               project.Title,
		Description:         project.Description,
		Features:            project.FeatureList(),
		FilePaths:           paths,
		MainColorTheme:      mainTheme,
		SecondaryColorTheme: secondaryTheme,
		Code:                code,
	}
}

// handleNewChat 处理没有建站意图的新会话，落库为纯聊天项目。
func (s *aiService) handleNewChat(ctx context.Context, user *model.User, conversationID string,
	turns []ChatTurn, utterance string) (*ChatResult, error) {
	history := s.normalizeTurns(turns)

	llmContext := toLLMHistory(history)
	if len(llmContext) > 0 {
		llmContext = llmContext[:len(llmContext)-1]
	}
	reply, err := s.llmClient.Chat(ctx, llmContext, utterance)
	if err != nil {
		return nil, err
	}

	history = append(history, model.ChatMessage{Role: model.ChatRoleModel, Content: reply, Timestamp: s.now()})

	project := &model.Project{
		ConversationID: conversationID,
		Type:           model.TypeChat,
		Owner:          fmt.Sprint(user.ID),
	}
	project.SetHistory(history)
	if err := s.projectRepo.Create(project); err != nil {
		return nil, err
	}

	s.appendProjectRef(user, project, "New Chat")

	return &ChatResult{
		Type:        model.TypeChat,
		Response:    reply,
		ChatHistory: history,
	}, nil
}

// appendProjectRef 把项目投影写入用户文档并只落盘投影列。
// 投影只是列表页的加速结构，失败不阻断主流程。
func (s *aiService) appendProjectRef(user *model.User, project *model.Project, title string) {
	createdAt := project.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	user.UpsertProjectRef(model.ProjectRef{
		ConversationID: project.ConversationID,
		Title:          title,
		CreatedAt:      createdAt,
	})
	if err := s.userRepo.UpdateProjects(user.ID, user.Projects); err != nil {
		log.Errorf("更新用户项目投影失败: %v", err)
	}
}
