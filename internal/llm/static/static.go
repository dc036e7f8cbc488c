// Package static 提供一个不依赖外部服务的启发式规整器，
// 用于本地开发与测试环境。
package static

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"AgentPlane/internal/llm"
)

// Client 按简单规则抽取字段：结构化输入直接取同名键，文本输入
// 按 "key: value" 行匹配。取到的字段给高置信度，取不到的列入
// missing_fields。
type Client struct{}

// NewClient 构造启发式规整器。
func NewClient() *Client {
	return &Client{}
}

func (c *Client) Interpret(_ context.Context, req llm.Request) (*llm.Outcome, error) {
	outcome := &llm.Outcome{
		NormalizedData: make(map[string]any, len(req.Schema)),
		Confidence:     make(map[string]float64, len(req.Schema)),
	}

	fields := make([]string, 0, len(req.Schema))
	for field := range req.Schema {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	structured, _ := req.Data.(map[string]any)
	text, _ := req.Data.(string)
	lines := parseKeyValueLines(text)

	for _, field := range fields {
		if structured != nil {
			if value, ok := structured[field]; ok {
				outcome.NormalizedData[field] = value
				outcome.Confidence[field] = 0.9
				continue
			}
		}
		if value, ok := lines[strings.ToLower(field)]; ok {
			outcome.NormalizedData[field] = value
			outcome.Confidence[field] = 0.7
			continue
		}
		outcome.NormalizedData[field] = nil
		outcome.Confidence[field] = 0
		outcome.MissingFields = append(outcome.MissingFields, field)
	}
	if len(outcome.MissingFields) > 0 {
		outcome.Notes = fmt.Sprintf("static extractor could not resolve %d field(s)", len(outcome.MissingFields))
	}
	return outcome, nil
}

func parseKeyValueLines(text string) map[string]string {
	values := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key != "" && value != "" {
			values[key] = value
		}
	}
	return values
}
