package interpret

import "fmt"

// Decision 是置信度闸门的判定结果。
type Decision struct {
	OverallConfidence float64 `json:"overall_confidence"`
	ShouldEscalate    bool    `json:"should_escalate"`
	EscalationReason  string  `json:"escalation_reason,omitempty"`
}

// Evaluate 计算整体置信度并判定是否需要升级人工处理。整体置信度
// 是各字段置信度的算术平均，没有任何字段时记为 0。只要整体置信度
// 严格低于阈值，或存在抽取失败的字段，就判定升级。
func Evaluate(confidence map[string]float64, missingFields []string, threshold float64) Decision {
	var overall float64
	if len(confidence) > 0 {
		var sum float64
		for _, score := range confidence {
			sum += score
		}
		overall = sum / float64(len(confidence))
	}

	decision := Decision{OverallConfidence: overall}
	if overall < threshold || len(missingFields) > 0 {
		decision.ShouldEscalate = true
		decision.EscalationReason = fmt.Sprintf("Low confidence (%.2f) or missing fields", overall)
	}
	return decision
}
