package collab

import (
	"fmt"
	"strings"

	"collabClient/backend/internal/ot/delta"
)

type bufferKind int

const (
	//iota：bufOriginal = 0, bufAdd = 1
	bufOriginal bufferKind = iota
	bufAdd
)

type piece struct {
	// 指向 original 还是 add
	buf    bufferKind
	offset int
	length int
}

type PieceTable struct {
	original []rune
	add      []rune
	pieces   []piece
}

var _ Buffer = (*PieceTable)(nil)

func NewPieceTable(initial string) *PieceTable {
	pt := &PieceTable{}
	pt.Reset(initial)
	return pt
}

func (pt *PieceTable) Reset(content string) {
	pt.original = []rune(content)
	pt.add = pt.add[:0]
	pt.pieces = pt.pieces[:0]
	if len(pt.original) > 0 {
		pt.pieces = append(pt.pieces, piece{buf: bufOriginal, offset: 0, length: len(pt.original)})
	}
}

func (pt *PieceTable) Len() int {
	n := 0
	for _, p := range pt.pieces {
		n += p.length
	}
	return n
}

func (pt *PieceTable) String() string {
	var sb strings.Builder
	for _, p := range pt.pieces {
		sb.WriteString(string(pt.slice(p)))
	}
	return sb.String()
}

func (pt *PieceTable) slice(p piece) []rune {
	if p.buf == bufAdd {
		return pt.add[p.offset : p.offset+p.length]
	}
	return pt.original[p.offset : p.offset+p.length]
}

func (pt *PieceTable) Apply(op delta.Operation) error {
	total := pt.Len()
	pos := max(0, min(op.Position, total))

	switch op.Kind {
	case delta.KindRetain:
		return nil

	case delta.KindInsert:
		text := []rune(op.Content)
		if len(text) == 0 {
			return nil
		}
		start := len(pt.add)
		pt.add = append(pt.add, text...)
		newPiece := piece{buf: bufAdd, offset: start, length: len(text)}

		idx, offset := pt.locate(pos)
		if idx >= len(pt.pieces) {
			pt.pieces = append(pt.pieces, newPiece)
			return nil
		}
		cur := pt.pieces[idx]
		left := piece{buf: cur.buf, offset: cur.offset, length: offset}
		right := piece{buf: cur.buf, offset: cur.offset + offset, length: cur.length - offset}

		newPieces := make([]piece, 0, len(pt.pieces)+2)
		newPieces = append(newPieces, pt.pieces[:idx]...)
		if left.length > 0 {
			newPieces = append(newPieces, left)
		}
		newPieces = append(newPieces, newPiece)
		if right.length > 0 {
			newPieces = append(newPieces, right)
		}
		newPieces = append(newPieces, pt.pieces[idx+1:]...)
		pt.pieces = newPieces
		return nil

	case delta.KindDelete:
		// 超出剩余文本的部分直接截断
		remain := min(op.Length, total-pos)
		idx, offset := pt.locate(pos)

		for remain > 0 && idx < len(pt.pieces) {
			cur := pt.pieces[idx]
			can := cur.length - offset
			if can <= 0 {
				idx++
				offset = 0
				continue
			}
			take := min(remain, can)

			if offset == 0 && take == cur.length {
				// 整个 piece 删掉，idx 不动
				pt.pieces = append(pt.pieces[:idx], pt.pieces[idx+1:]...)
			} else {
				leftLen := offset
				rightLen := cur.length - offset - take

				newPieces := make([]piece, 0, len(pt.pieces)+1)
				newPieces = append(newPieces, pt.pieces[:idx]...)
				if leftLen > 0 {
					newPieces = append(newPieces, piece{buf: cur.buf, offset: cur.offset, length: leftLen})
				}
				if rightLen > 0 {
					newPieces = append(newPieces, piece{buf: cur.buf, offset: cur.offset + offset + take, length: rightLen})
				}
				newPieces = append(newPieces, pt.pieces[idx+1:]...)
				pt.pieces = newPieces

				// 下一轮从右半段开头继续
				if leftLen > 0 {
					idx++
				}
				offset = 0
			}
			remain -= take
		}
		return nil

	default:
		return fmt.Errorf("%w: %q", delta.ErrUnknownKind, op.Kind)
	}
}

// 根据逻辑位置 pos，找到对应的 piece 下标 idx 和在该 piece 内的偏移 offset
func (pt *PieceTable) locate(pos int) (idx int, offset int) {
	cur := 0
	for i, p := range pt.pieces {
		if pos < cur+p.length {
			return i, pos - cur
		}
		cur += p.length
	}
	return len(pt.pieces), 0
}
