package editor

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"collabClient/backend/internal/presence"
)

// Headless 没有界面的编辑器：状态保存在内存里，
// 由本地 HTTP 桥接或测试驱动
type Headless struct {
	mu          sync.Mutex
	content     string
	language    string
	cursor      *presence.Cursor
	decorations []presence.Decoration
	formats     int
}

var _ Adapter = (*Headless)(nil)

func NewHeadless() *Headless {
	return &Headless{language: DefaultLanguage}
}

func (h *Headless) SetContent(text string) {
	h.mu.Lock()
	h.content = text
	h.mu.Unlock()
}

func (h *Headless) Content() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.content
}

func (h *Headless) SetLanguage(lang string) {
	h.mu.Lock()
	h.language = lang
	h.mu.Unlock()
}

func (h *Headless) Language() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.language
}

// MoveCursor 模拟用户移动光标
func (h *Headless) MoveCursor(c presence.Cursor) {
	h.mu.Lock()
	h.cursor = &c
	h.mu.Unlock()
}

func (h *Headless) CursorPosition() (presence.Cursor, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cursor == nil {
		return presence.Cursor{}, false
	}
	return *h.cursor, true
}

func (h *Headless) RenderDecorations(decs []presence.Decoration) {
	h.mu.Lock()
	h.decorations = append([]presence.Decoration(nil), decs...)
	h.mu.Unlock()
}

func (h *Headless) Decorations() []presence.Decoration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]presence.Decoration(nil), h.decorations...)
}

// Format json 文档重新缩进，其他语言只去掉行尾空白
func (h *Headless) Format(text string) (string, error) {
	h.mu.Lock()
	h.formats++
	lang := h.language
	h.mu.Unlock()

	if lang == "json" && strings.TrimSpace(text) != "" {
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(text), "", "  "); err != nil {
			return text, err
		}
		return buf.String() + "\n", nil
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.Join(lines, "\n"), nil
}

func (h *Headless) FormatCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.formats
}
