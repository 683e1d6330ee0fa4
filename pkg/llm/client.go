// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"chai-builder-go/internal/config"
)

// Message 表示一条角色消息。role 取值为 "user" 或 "model"。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client defines the interface for an LLM client.
type Client interface {
	// GenerateContent 以单条 prompt 调用生成接口，返回完整文本。
	GenerateContent(ctx context.Context, prompt string) (string, error)
	// Chat 携带多轮历史消息调用生成接口，prompt 作为最后一条 user 消息。
	Chat(ctx context.Context, history []Message, prompt string) (string, error)
}

type geminiClient struct {
	cfg    config.GeminiConfig
	client *http.Client
}

// NewClient creates a new Gemini client from the config.
func NewClient(cfg config.GeminiConfig) Client {
	return &geminiClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

// geminiPart / geminiContent 对应 Gemini generateContent 接口的请求结构。
type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type generateRequest struct {
	Contents []geminiContent `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateContent 以单条 user 消息调用生成接口。
func (c *geminiClient) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return c.Chat(ctx, nil, prompt)
}

// Chat 将历史消息与最新的 prompt 组装为 contents 后调用 generateContent。
func (c *geminiClient) Chat(ctx context.Context, history []Message, prompt string) (string, error) {
	contents := make([]geminiContent, 0, len(history)+1)
	for _, m := range history {
		role := m.Role
		// Gemini 只接受 user / model 两种角色
		if role != "user" && role != "model" {
			role = "user"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}
	contents = append(contents, geminiContent{
		Role:  "user",
		Parts: []geminiPart{{Text: prompt}},
	})

	reqBytes, err := json.Marshal(generateRequest{Contents: contents})
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.cfg.BaseURL, c.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create generate request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call gemini api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gemini api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode gemini response: %w", err)
	}

	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini response contained no candidates")
	}

	// 多个 part 依序拼接为完整文本
	var text bytes.Buffer
	for _, p := range out.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	return text.String(), nil
}
