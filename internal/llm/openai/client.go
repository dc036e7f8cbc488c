package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"AgentPlane/internal/llm"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModelName = "gpt-4o-mini"
	defaultTimeout   = 60 * time.Second
)

// Config 描述了调用 OpenAI Chat Completions API 所需的信息。
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client 通过 HTTP 调用 OpenAI 提供的大模型能力。
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient 根据配置创建 OpenAI 客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 OpenAI API Key")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Interpret 调用 OpenAI 按 schema 抽取并规整数据。
func (c *Client) Interpret(ctx context.Context, req llm.Request) (*llm.Outcome, error) {
	payload, err := c.buildPayload(req)
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("构建 OpenAI 请求失败: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("请求 OpenAI 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("OpenAI 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析 OpenAI 响应失败: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, errors.New("OpenAI 响应中没有有效的 choices")
	}

	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return nil, errors.New("OpenAI 响应内容为空")
	}
	return parseOutcome(content)
}

var fencePattern = regexp.MustCompile("```(?:json)?\\n([\\s\\S]*?)\\n```")

// parseOutcome 解析模型输出。优先把全文当作 JSON，失败时从
// markdown 代码块里提取。
func parseOutcome(content string) (*llm.Outcome, error) {
	var structured struct {
		NormalizedData map[string]any     `json:"normalized_data"`
		Confidence     map[string]float64 `json:"confidence"`
		MissingFields  []string           `json:"missing_fields"`
		Notes          string             `json:"notes"`
	}
	raw := content
	if err := json.Unmarshal([]byte(raw), &structured); err != nil {
		match := fencePattern.FindStringSubmatch(content)
		if match == nil {
			return nil, fmt.Errorf("模型输出无法解析为 JSON: %s", truncate(content))
		}
		raw = match[1]
		if err := json.Unmarshal([]byte(raw), &structured); err != nil {
			return nil, fmt.Errorf("代码块内容无法解析为 JSON: %w", err)
		}
	}
	return &llm.Outcome{
		NormalizedData: structured.NormalizedData,
		Confidence:     structured.Confidence,
		MissingFields:  structured.MissingFields,
		Notes:          structured.Notes,
	}, nil
}

func (c *Client) buildPayload(req llm.Request) ([]byte, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	messages := []message{
		{
			Role:    "system",
			Content: systemPrompt,
		},
		{
			Role:    "user",
			Content: buildUserPrompt(req),
		},
	}

	body := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": 0,
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("序列化 OpenAI 请求失败: %w", err)
	}
	return encoded, nil
}

const systemPrompt = "" +
	"You are a data normalization assistant. Extract and normalize data according to the provided schema. " +
	"Return ONLY a JSON object: {\"normalized_data\": object, \"confidence\": {field: score_0_to_1}, " +
	"\"missing_fields\": [string], \"notes\": string}. " +
	"Match field names exactly as specified in the schema. Infer missing values intelligently when possible. " +
	"Confidence: 1.0 = certain, 0.5 = educated guess, 0.0 = couldn't extract. " +
	"If a field can't be extracted at all, put null and list it in missing_fields. " +
	"Be conservative with confidence scores."

func buildUserPrompt(req llm.Request) string {
	var builder strings.Builder
	builder.WriteString("## INPUT DATA\n")
	switch data := req.Data.(type) {
	case string:
		builder.WriteString(data)
	default:
		encoded, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			builder.WriteString(fmt.Sprintf("%v", data))
		} else {
			builder.Write(encoded)
		}
	}
	builder.WriteString("\n\n## EXPECTED SCHEMA\n")
	if encoded, err := json.MarshalIndent(req.Schema, "", "  "); err == nil {
		builder.Write(encoded)
	}
	if context := strings.TrimSpace(req.Context); context != "" {
		builder.WriteString("\n\n## ADDITIONAL CONTEXT\n")
		builder.WriteString(context)
	}
	return builder.String()
}

func truncate(text string) string {
	text = strings.TrimSpace(text)
	if len([]rune(text)) > 80 {
		return string([]rune(text)[:80]) + "..."
	}
	return text
}
