package collab

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"collabClient/backend/internal/editor"
	"collabClient/backend/internal/ot/delta"
	"collabClient/backend/internal/presence"
	"collabClient/backend/internal/scheduler"
	"collabClient/backend/internal/ws"

	"github.com/google/uuid"
)

// Transport 会话用到的连接能力，*ws.Client 满足它
type Transport interface {
	// SetHandlers 返回的令牌用于 ReleaseHandlers
	SetHandlers(h ws.Handlers) uint64
	ReleaseHandlers(token uint64) bool
	Connect(ctx context.Context)
	Disconnect()
	Send(m ws.Message) bool
	State() ws.State
}

var _ Transport = (*ws.Client)(nil)

// 快照存储接口，实现在 store 和 cache 中
type SnapshotSink interface {
	SaveDocumentSnapshot(ctx context.Context, docID string, version uint64, content string) error
}

type SessionConfig struct {
	DocID         string
	ParticipantID string
	Username      string
	// ClientID 写进每个操作的 client_id，默认等于 ParticipantID
	ClientID  string
	Scheduler scheduler.Config
	// SinkTimeout 每次写快照存储的超时
	SinkTimeout time.Duration
}

type SessionOption func(*Session)

func WithJournal(j Journal) SessionOption {
	return func(s *Session) { s.journal = j }
}

func WithSinks(sinks ...SnapshotSink) SessionOption {
	return func(s *Session) { s.sinks = append(s.sinks, sinks...) }
}

func WithReconciler(r Reconciler) SessionOption {
	return func(s *Session) { s.reconciler = r }
}

// WithCloseHook 连接断开时回调，由调用方决定是否重连
func WithCloseHook(fn func(err error)) SessionOption {
	return func(s *Session) { s.onClose = fn }
}

// WithOpenHook 连接建立（init 已入队）时回调
func WithOpenHook(fn func()) SessionOption {
	return func(s *Session) { s.onOpen = fn }
}

var ErrDetached = errors.New("session detached")

// Session 一个参与者在一个文档上的同步会话。
// 所有状态修改都在 mu 下串行执行：编辑器调用、连接回调和定时器回调是唯一的入口。
type Session struct {
	cfg        SessionConfig
	transport  Transport
	editor     editor.Adapter
	reconciler Reconciler
	journal    Journal
	sinks      []SnapshotSink
	onClose    func(err error)
	onOpen     func()
	sched      *scheduler.Scheduler

	mu           sync.Mutex
	attached     bool
	handlerToken uint64
	buf          Buffer
	title        string
	language     string
	version      uint64
	seq          uint64
	roster       *presence.Roster
}

func NewSession(cfg SessionConfig, transport Transport, ed editor.Adapter, opts ...SessionOption) *Session {
	if cfg.ClientID == "" {
		cfg.ClientID = cfg.ParticipantID
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 2 * time.Second
	}
	s := &Session{
		cfg:        cfg,
		transport:  transport,
		editor:     ed,
		reconciler: SpliceReconciler{},
		journal:    NopJournal{},
		buf:        NewPieceTable(""),
		language:   editor.DefaultLanguage,
		roster:     presence.NewRoster(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sched = scheduler.New(cfg.Scheduler, scheduler.Tasks{
		Snapshot: s.flushSnapshot,
		Metadata: s.flushMetadata,
		Format:   s.runFormat,
	})
	return s
}

func (s *Session) DocID() string { return s.cfg.DocID }

func (s *Session) ParticipantID() string { return s.cfg.ParticipantID }

// Bootstrap 用文档存储返回的内容初始化，发生在 Attach 之前。
// version 是存储里的版本，之后的快照版本从它往上走
func (s *Session) Bootstrap(title, content, language string, version uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Reset(content)
	s.version = version
	s.title = title
	if language != "" {
		s.language = language
	}
	s.editor.SetContent(content)
	s.editor.SetLanguage(s.language)
}

// RestoreDraft 文档存储不可达时用本地草稿填充；已有内容时不覆盖
func (s *Session) RestoreDraft(content string, version uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf.Len() > 0 || content == "" {
		return false
	}
	s.buf.Reset(content)
	if version > s.version {
		s.version = version
	}
	s.editor.SetContent(content)
	return true
}

// Attach 注册回调、启动定时器并发起连接。重复调用无效果
func (s *Session) Attach(ctx context.Context) {
	s.mu.Lock()
	if s.attached {
		s.mu.Unlock()
		return
	}
	s.attached = true
	// 新的一组回调整体替换掉旧的
	s.handlerToken = s.transport.SetHandlers(ws.Handlers{
		OnMessage: s.handleMessage,
		OnOpen:    s.handleOpen,
		OnClose:   s.handleClose,
		OnError:   s.handleError,
	})
	s.mu.Unlock()

	s.sched.Start()
	s.transport.Connect(ctx)
}

// Reconnect 只在已 Attach 时重新发起连接
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	attached := s.attached
	s.mu.Unlock()
	if !attached {
		return ErrDetached
	}
	s.transport.Connect(ctx)
	return nil
}

// Detach 先停定时器、清回调，再关闭连接。
// 连接已被别的使用者重新接管时只停自己的定时器，回调和连接留给对方
func (s *Session) Detach() {
	s.mu.Lock()
	if !s.attached {
		s.mu.Unlock()
		return
	}
	s.attached = false
	token := s.handlerToken
	s.handlerToken = 0
	s.mu.Unlock()

	s.sched.Stop()
	if !s.transport.ReleaseHandlers(token) {
		log.Printf("detach doc=%s: transport taken over by another consumer, leaving it open", s.cfg.DocID)
		return
	}
	s.transport.Disconnect()
}

// LocalChange 编辑器里的文本变成了 newText：diff 出操作，应用到本地缓冲并立即发送
func (s *Session) LocalChange(newText string) delta.Delta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localChangeLocked(newText)
}

func (s *Session) localChangeLocked(newText string) delta.Delta {
	old := s.buf.String()
	if old == newText {
		return nil
	}
	ops := delta.ToOperations(old, newText, s.cfg.ClientID)
	for _, op := range ops {
		if err := s.reconciler.Reconcile(s.buf, op); err != nil {
			log.Printf("apply local op error (doc=%s op=%s): %v", s.cfg.DocID, op, err)
			continue
		}
		s.version++
		s.seq++
		sent := s.transport.Send(ws.OperationMessage{ID: s.cfg.DocID, Operation: op})
		s.journal.Record(OpEvent{
			EventType:     EventLocalOp,
			DocID:         s.cfg.DocID,
			OperationID:   uuid.NewString(),
			ParticipantID: s.cfg.ParticipantID,
			ClientID:      s.cfg.ClientID,
			Seq:           s.seq,
			Version:       s.version,
			Sent:          sent,
			Op:            op,
			CreatedAt:     time.Now(),
		})
	}
	return ops
}

func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	s.title = title
	s.mu.Unlock()
	s.sched.MetadataChanged()
}

func (s *Session) SetLanguage(lang string) {
	s.mu.Lock()
	s.language = lang
	s.editor.SetLanguage(lang)
	s.mu.Unlock()
	if !editor.KnownLanguage(lang) {
		log.Printf("unknown language %q (doc=%s), sending anyway", lang, s.cfg.DocID)
	}
	s.sched.MetadataChanged()
}

// CursorMoved 读取编辑器当前光标，更新自己的名单条目并立即广播
func (s *Session) CursorMoved() bool {
	c, ok := s.editor.CursorPosition()
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	color := presence.ColorFor(s.cfg.ParticipantID)
	s.roster.Upsert(presence.User{ID: s.cfg.ParticipantID, Username: s.cfg.Username, Color: color, Cursor: &c})
	line, col := c.Line, c.Column
	return s.transport.Send(ws.PresenceUser{
		ID:         s.cfg.ParticipantID,
		Username:   s.cfg.Username,
		Color:      color,
		LineNumber: &line,
		Column:     &col,
	})
}

// RequestFormat 防抖后由编辑器格式化，结果当作本地修改发送
func (s *Session) RequestFormat() {
	s.sched.FormatRequested()
}

func (s *Session) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

func (s *Session) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

func (s *Session) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *Session) Roster() []presence.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.List()
}

func (s *Session) Decorations() []presence.Decoration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.Decorations(s.cfg.ParticipantID)
}

func (s *Session) ConnectionState() ws.State { return s.transport.State() }

// flushMetadata 定时器到期时读取最新的标题和语言
func (s *Session) flushMetadata() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached {
		return
	}
	s.transport.Send(ws.DocumentUpdate{ID: s.cfg.DocID, Title: s.title, Language: s.language})
}

// flushSnapshot 周期快照：不论内容是否变化都发送，并写入本地快照存储
func (s *Session) flushSnapshot() {
	s.mu.Lock()
	if !s.attached {
		s.mu.Unlock()
		return
	}
	snap := ws.Snapshot{
		ID:       s.cfg.DocID,
		Content:  s.buf.String(),
		Title:    s.title,
		Language: s.language,
		Users:    s.roster.Members(),
	}
	version := s.version
	s.transport.Send(snap)
	s.mu.Unlock()

	s.saveSnapshot(version, snap.Content)
}

func (s *Session) saveSnapshot(version uint64, content string) {
	for _, sink := range s.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SinkTimeout)
		if err := sink.SaveDocumentSnapshot(ctx, s.cfg.DocID, version, content); err != nil {
			log.Printf("save snapshot error (doc=%s version=%d): %v", s.cfg.DocID, version, err)
		}
		cancel()
	}
}

func (s *Session) runFormat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached {
		return
	}
	text := s.buf.String()
	formatted, err := s.editor.Format(text)
	if err != nil {
		log.Printf("format error (doc=%s lang=%s): %v", s.cfg.DocID, s.language, err)
		return
	}
	if formatted == text {
		return
	}
	s.editor.SetContent(formatted)
	s.localChangeLocked(formatted)
}

func (s *Session) handleOpen() {
	log.Printf("ws open (doc=%s participant=%s)", s.cfg.DocID, s.cfg.ParticipantID)
	if s.onOpen != nil {
		s.onOpen()
	}
}

func (s *Session) handleClose(err error) {
	s.mu.Lock()
	attached := s.attached
	s.mu.Unlock()
	if attached && s.onClose != nil {
		s.onClose(err)
	}
}

func (s *Session) handleError(err error) {
	log.Printf("ws error (doc=%s): %v", s.cfg.DocID, err)
}

// handleMessage 按消息类型分发，收到的消息按到达顺序应用
func (s *Session) handleMessage(m ws.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached {
		return
	}
	switch msg := m.(type) {
	case ws.Snapshot:
		if !s.forThisDoc(msg.ID, msg.MessageType()) {
			return
		}
		s.buf.Reset(msg.Content)
		s.version++
		s.editor.SetContent(msg.Content)
		if msg.Title != "" {
			s.title = msg.Title
		}
		if msg.Language != "" {
			s.language = msg.Language
			s.editor.SetLanguage(msg.Language)
		}
		// 没有 users 字段时名单不动
		if msg.Users != nil {
			s.roster.ReconcileSnapshot(msg.Users)
		}
		s.renderLocked()

	case ws.OperationMessage:
		if !s.forThisDoc(msg.ID, msg.MessageType()) {
			return
		}
		if msg.Operation.ClientID == s.cfg.ClientID {
			// 自己的操作被转发回来
			return
		}
		if err := s.reconciler.Reconcile(s.buf, msg.Operation); err != nil {
			log.Printf("apply remote op error (doc=%s op=%s): %v", s.cfg.DocID, msg.Operation, err)
			return
		}
		s.version++
		s.editor.SetContent(s.buf.String())

	case ws.DocumentUpdate:
		if !s.forThisDoc(msg.ID, msg.MessageType()) {
			return
		}
		if msg.Title != "" {
			s.title = msg.Title
		}
		if msg.Language != "" {
			s.language = msg.Language
			s.editor.SetLanguage(msg.Language)
		}

	case ws.PresenceUser:
		s.roster.Upsert(presence.User{ID: msg.ID, Username: msg.Username, Color: msg.Color, Cursor: msg.Cursor()})
		s.renderLocked()

	case ws.InitOK:
		id := msg.ID
		if id == "" {
			id = s.cfg.ParticipantID
		}
		s.roster.Confirm(id, msg.Username)
		s.renderLocked()

	case ws.UserLeft:
		if s.roster.Remove(msg.ID) {
			s.renderLocked()
		}

	case ws.Unknown:
		log.Printf("ignored message type %q (doc=%s)", msg.Type, s.cfg.DocID)

	default:
		log.Printf("unexpected inbound %s (doc=%s)", m.MessageType(), s.cfg.DocID)
	}
}

func (s *Session) forThisDoc(id, typ string) bool {
	if id == "" || id == s.cfg.DocID {
		return true
	}
	log.Printf("dropped %s for doc=%s (session doc=%s)", typ, id, s.cfg.DocID)
	return false
}

func (s *Session) renderLocked() {
	s.editor.RenderDecorations(s.roster.Decorations(s.cfg.ParticipantID))
}
