package delta

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindRetain Kind = "retain"
	KindInsert Kind = "insert"
	KindDelete Kind = "delete"
)

// ErrUnknownKind 未识别的操作类型：可恢复，文档保持不变
var ErrUnknownKind = errors.New("unknown operation kind")

// Operation 线上传输的最小编辑单元
// position 是发送方最后观察到的文档中的字符（rune）偏移
type Operation struct {
	Kind     Kind   `json:"type"`
	Position int    `json:"position"`
	Length   int    `json:"length,omitempty"`  // delete 的长度；insert 时为插入文本长度
	Content  string `json:"content,omitempty"` // insert 的文本；delete 时为被删除的文本
	ClientID string `json:"client_id"`
	// 毫秒时间戳
	Timestamp int64 `json:"timestamp"`
}

func (op Operation) String() string {
	switch op.Kind {
	case KindInsert:
		return fmt.Sprintf("insert@%d %q", op.Position, op.Content)
	case KindDelete:
		return fmt.Sprintf("delete@%d len=%d", op.Position, op.Length)
	default:
		return fmt.Sprintf("%s@%d", op.Kind, op.Position)
	}
}

// Delta 按发出顺序排列的一组操作，必须按顺序应用
type Delta []Operation

// Apply 把单个操作应用到 doc 上，纯函数。
// 越界的位置和长度会被截断到文档范围内，不会 panic。
// 未知类型返回原文档和 ErrUnknownKind。
func Apply(doc string, op Operation) (string, error) {
	switch op.Kind {
	case KindRetain:
		return doc, nil

	case KindInsert:
		if op.Content == "" {
			return doc, nil
		}
		runes := []rune(doc)
		pos := clamp(op.Position, 0, len(runes))
		out := make([]rune, 0, len(runes)+len([]rune(op.Content)))
		out = append(out, runes[:pos]...)
		out = append(out, []rune(op.Content)...)
		out = append(out, runes[pos:]...)
		return string(out), nil

	case KindDelete:
		// length 缺省或为 0 时视为空操作
		if op.Length <= 0 {
			return doc, nil
		}
		runes := []rune(doc)
		pos := clamp(op.Position, 0, len(runes))
		end := clamp(pos+op.Length, pos, len(runes))
		return string(runes[:pos]) + string(runes[end:]), nil

	default:
		return doc, fmt.Errorf("%w: %q", ErrUnknownKind, op.Kind)
	}
}

// ApplyAll 依次应用 d 中的每个操作，遇到未知类型时跳过该操作并返回第一个错误
func ApplyAll(doc string, d Delta) (string, error) {
	var firstErr error
	for _, op := range d {
		next, err := Apply(doc, op)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		doc = next
	}
	return doc, firstErr
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
