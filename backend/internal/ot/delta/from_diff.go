package delta

import (
	"time"

	"collabClient/backend/internal/ot/diff"
)

// ToOperations 把 oldText -> newText 的本地编辑翻译成操作序列
func ToOperations(oldText, newText, clientID string) Delta {
	return FromSpans(diff.Diff(oldText, newText), clientID, time.Now().UnixMilli())
}

// FromSpans 从左到右遍历 span，维护当前文档中的游标：
// equal 只推进游标；delete 在游标处发出删除，游标不动；insert 在游标处插入后推进游标。
func FromSpans(spans []diff.Span, clientID string, ts int64) Delta {
	var out Delta
	cursor := 0
	for _, s := range spans {
		n := s.Len()
		switch s.Kind {
		case diff.Equal:
			cursor += n
		case diff.Delete:
			out = append(out, Operation{
				Kind:      KindDelete,
				Position:  cursor,
				Length:    n,
				Content:   s.Text,
				ClientID:  clientID,
				Timestamp: ts,
			})
		case diff.Insert:
			out = append(out, Operation{
				Kind:      KindInsert,
				Position:  cursor,
				Length:    n,
				Content:   s.Text,
				ClientID:  clientID,
				Timestamp: ts,
			})
			cursor += n
		}
	}
	return out
}
