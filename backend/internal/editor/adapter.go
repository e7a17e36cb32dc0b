// Package editor 是同步核心和文本编辑器之间的边界。
// 核心只通过 Adapter 和编辑器交互，不关心它的内部实现。
package editor

import "collabClient/backend/internal/presence"

// Adapter 编辑器需要提供的能力
type Adapter interface {
	// SetContent 远端修改或快照后，把整篇文本写回编辑器
	SetContent(text string)
	SetLanguage(lang string)
	// CursorPosition 当前光标，编辑器没有焦点时返回 false
	CursorPosition() (presence.Cursor, bool)
	// RenderDecorations 整体替换远端光标标记
	RenderDecorations(decs []presence.Decoration)
	// Format 返回格式化后的文本，由调用方当作一次本地修改发送
	Format(text string) (string, error)
}

type Language struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

var Languages = []Language{
	{ID: "javascript", Label: "JavaScript"},
	{ID: "typescript", Label: "TypeScript"},
	{ID: "json", Label: "JSON"},
	{ID: "python", Label: "Python"},
}

const DefaultLanguage = "javascript"

func KnownLanguage(id string) bool {
	for _, l := range Languages {
		if l.ID == id {
			return true
		}
	}
	return false
}
