package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookClient 封装向告警 Webhook 发送 JSON 请求的通用逻辑。
type WebhookClient struct {
	URL        string
	HTTPClient *http.Client
}

func (c *WebhookClient) post(ctx context.Context, payload any) error {
	if c == nil || c.URL == "" {
		return fmt.Errorf("webhook 地址为空")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("编码 webhook 请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("构造 webhook 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("发送 webhook 请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook 返回异常状态码: %d", resp.StatusCode)
	}
	return nil
}

// DingTalkWebhook 通过钉钉机器人 Webhook 发送文本消息。
type DingTalkWebhook struct {
	WebhookClient
}

// NewDingTalkWebhook 创建钉钉 Webhook 发送器。
func NewDingTalkWebhook(url string) *DingTalkWebhook {
	return &DingTalkWebhook{WebhookClient{URL: url}}
}

// Send 发送钉钉文本消息。
func (w *DingTalkWebhook) Send(ctx context.Context, content string) error {
	return w.post(ctx, map[string]any{
		"msgtype": "text",
		"text":    map[string]string{"content": content},
	})
}

// SlackWebhook 通过 Slack Incoming Webhook 发送消息。
type SlackWebhook struct {
	WebhookClient
}

// NewSlackWebhook 创建 Slack Webhook 发送器。
func NewSlackWebhook(url string) *SlackWebhook {
	return &SlackWebhook{WebhookClient{URL: url}}
}

// Send 发送 Slack 消息。channel 为空时使用 Webhook 绑定的默认频道。
func (w *SlackWebhook) Send(ctx context.Context, channel, content string) error {
	payload := map[string]any{"text": content}
	if channel != "" {
		payload["channel"] = channel
	}
	return w.post(ctx, payload)
}
