package lifecycle

import (
	"fmt"
	"strings"

	xerrors "AgentPlane/internal/errors"
)

// Status 表示某条记录在状态机中的当前状态。
type Status string

// Table 描述一个受保护的状态机：每个状态对应一组可达的下一状态。
// 终止状态在表中没有任何出边，一旦进入便不可再转移。
type Table struct {
	name        string
	initial     Status
	transitions map[Status][]Status
}

// New 基于转移表构造状态机定义。
func New(name string, initial Status, transitions map[Status][]Status) *Table {
	cloned := make(map[Status][]Status, len(transitions))
	for from, next := range transitions {
		cloned[from] = append([]Status(nil), next...)
	}
	return &Table{name: name, initial: initial, transitions: cloned}
}

// Name 返回状态机名称，用于错误信息与审计事件。
func (t *Table) Name() string {
	return t.name
}

// Initial 返回初始状态。
func (t *Table) Initial() Status {
	return t.initial
}

// Valid 判断给定状态是否属于本状态机。
func (t *Table) Valid(status Status) bool {
	if status == t.initial {
		return true
	}
	if _, ok := t.transitions[status]; ok {
		return true
	}
	for _, targets := range t.transitions {
		for _, target := range targets {
			if target == status {
				return true
			}
		}
	}
	return false
}

// Terminal 判断状态是否为终止状态（无任何出边）。
func (t *Table) Terminal(status Status) bool {
	return t.Valid(status) && len(t.transitions[status]) == 0
}

// CanTransition 判断 from → to 是否为合法转移。
func (t *Table) CanTransition(from, to Status) bool {
	for _, target := range t.transitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Guard 校验一次转移请求。目标状态不属于本状态机时返回
// INVALID_ARGUMENT；不可达时返回 INVALID_TRANSITION，错误元数据
// 中带上当前状态允许的全部去向。内存存储在锁内用 Guard 做守卫，
// MySQL 存储则由 Sources 生成的 CAS 条件落盘。
func (t *Table) Guard(from, to Status) error {
	if !t.Valid(to) {
		return xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("%s 不存在状态 %q", t.name, to))
	}
	if !t.CanTransition(from, to) {
		meta := map[string]any{"from": string(from), "to": string(to)}
		if allowed := t.Allowed(from); len(allowed) > 0 {
			meta["allowed"] = joinStatuses(allowed)
		}
		return xerrors.New(xerrors.CodeInvalidTransition,
			fmt.Sprintf("%s 不允许 %q → %q", t.name, from, to),
			xerrors.WithMetadata(meta))
	}
	return nil
}

func joinStatuses(statuses []Status) string {
	parts := make([]string, len(statuses))
	for i, status := range statuses {
		parts[i] = string(status)
	}
	return strings.Join(parts, ",")
}

// Allowed 返回某状态的全部可达状态，供存储层拼接 CAS 条件使用。
func (t *Table) Allowed(from Status) []Status {
	return append([]Status(nil), t.transitions[from]...)
}

// Sources 返回所有能到达 to 的前置状态。MySQL 存储用它生成
// "UPDATE ... WHERE status IN (...)" 的守卫条件。
func (t *Table) Sources(to Status) []Status {
	var sources []Status
	for from, targets := range t.transitions {
		for _, target := range targets {
			if target == to {
				sources = append(sources, from)
				break
			}
		}
	}
	return sources
}
