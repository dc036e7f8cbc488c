package llm

import "context"

// Request 描述一次数据规整任务：把杂乱输入按期望的字段结构抽取。
type Request struct {
	Data    any
	Schema  map[string]any
	Context string
}

// Outcome 是大模型抽取得到的结构化输出。Confidence 按字段给出
// 0 到 1 的置信度，抽取不到的字段列入 MissingFields。
type Outcome struct {
	NormalizedData map[string]any
	Confidence     map[string]float64
	MissingFields  []string
	Notes          string
}

// Client 定义了调用大模型做数据规整的统一接口。
type Client interface {
	Interpret(ctx context.Context, req Request) (*Outcome, error)
}
