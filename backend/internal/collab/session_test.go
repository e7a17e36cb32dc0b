package collab

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"collabClient/backend/internal/editor"
	"collabClient/backend/internal/ot/delta"
	"collabClient/backend/internal/presence"
	"collabClient/backend/internal/scheduler"
	"collabClient/backend/internal/ws"
)

// fakeTransport 记录发送的消息，由测试直接投递入站消息
type fakeTransport struct {
	mu          sync.Mutex
	handlers    ws.Handlers
	state       ws.State
	sent        []ws.Message
	connects    int
	disconnects int
	gen         uint64
	// Disconnect 时回调是否已被清空
	clearedFirst bool
}

func (f *fakeTransport) SetHandlers(h ws.Handlers) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = h
	f.gen++
	return f.gen
}

func (f *fakeTransport) ReleaseHandlers(token uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token == 0 || token != f.gen {
		return false
	}
	f.handlers = ws.Handlers{}
	f.gen++
	return true
}

func (f *fakeTransport) Connect(context.Context) {
	f.mu.Lock()
	f.connects++
	f.state = ws.StateReady
	f.mu.Unlock()
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	f.disconnects++
	f.clearedFirst = f.handlers.OnMessage == nil && f.handlers.OnClose == nil
	f.state = ws.StateIdle
	f.mu.Unlock()
}

func (f *fakeTransport) Send(m ws.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != ws.StateOpen && f.state != ws.StateReady {
		return false
	}
	f.sent = append(f.sent, m)
	return true
}

func (f *fakeTransport) State() ws.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) deliver(m ws.Message) {
	f.mu.Lock()
	h := f.handlers.OnMessage
	f.mu.Unlock()
	if h != nil {
		h(m)
	}
}

func (f *fakeTransport) messages() []ws.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ws.Message(nil), f.sent...)
}

func (f *fakeTransport) ofType(typ string) []ws.Message {
	var out []ws.Message
	for _, m := range f.messages() {
		if m.MessageType() == typ {
			out = append(out, m)
		}
	}
	return out
}

type memJournal struct {
	mu     sync.Mutex
	events []OpEvent
}

func (j *memJournal) Record(evt OpEvent) bool {
	j.mu.Lock()
	j.events = append(j.events, evt)
	j.mu.Unlock()
	return true
}

func (j *memJournal) Close() error { return nil }

type memSink struct {
	mu       sync.Mutex
	saves    map[string]string
	versions []uint64
}

func (m *memSink) SaveDocumentSnapshot(_ context.Context, docID string, version uint64, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saves == nil {
		m.saves = make(map[string]string)
	}
	m.saves[docID] = content
	m.versions = append(m.versions, version)
	return nil
}

func (m *memSink) savedVersions() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint64(nil), m.versions...)
}

func (m *memSink) get(docID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.saves[docID]
	return c, ok
}

// 定时器默认设得很长，需要的测试再单独调短
func newTestSession(t *testing.T, sc scheduler.Config, opts ...SessionOption) (*Session, *fakeTransport, *editor.Headless) {
	t.Helper()
	if sc.SnapshotInterval == 0 {
		sc.SnapshotInterval = time.Hour
	}
	if sc.MetadataDebounce == 0 {
		sc.MetadataDebounce = time.Hour
	}
	if sc.FormatDebounce == 0 {
		sc.FormatDebounce = time.Hour
	}
	tr := &fakeTransport{}
	ed := editor.NewHeadless()
	s := NewSession(SessionConfig{DocID: "doc1", ParticipantID: "me", Username: "Me", Scheduler: sc}, tr, ed, opts...)
	t.Cleanup(s.Detach)
	return s, tr, ed
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSession_LocalInsertSendsOperation(t *testing.T) {
	j := &memJournal{}
	s, tr, _ := newTestSession(t, scheduler.Config{}, WithJournal(j))
	s.Bootstrap("t", "helloworld", "javascript", 0)
	s.Attach(context.Background())

	ops := s.LocalChange("hello world")
	if len(ops) != 1 {
		t.Fatalf("ops = %v, want one insert", ops)
	}
	sent := tr.ofType(ws.TypeOperation)
	if len(sent) != 1 {
		t.Fatalf("sent %d operations, want 1", len(sent))
	}
	op := sent[0].(ws.OperationMessage)
	if op.ID != "doc1" || op.Operation.Kind != delta.KindInsert || op.Operation.Position != 5 || op.Operation.Content != " " || op.Operation.ClientID != "me" {
		t.Fatalf("operation = %+v", op)
	}
	if s.Content() != "hello world" {
		t.Fatalf("Content() = %q", s.Content())
	}
	if len(j.events) != 1 || !j.events[0].Sent || j.events[0].OperationID == "" || j.events[0].Seq != 1 {
		t.Fatalf("journal = %+v", j.events)
	}
}

func TestSession_LocalDeleteSendsOperation(t *testing.T) {
	s, tr, _ := newTestSession(t, scheduler.Config{})
	s.Bootstrap("", "function foo() {}", "", 0)
	s.Attach(context.Background())

	s.LocalChange("function() {}")
	sent := tr.ofType(ws.TypeOperation)
	if len(sent) != 1 {
		t.Fatalf("sent = %+v", sent)
	}
	op := sent[0].(ws.OperationMessage).Operation
	if op.Kind != delta.KindDelete || op.Position != 8 || op.Length != 4 {
		t.Fatalf("operation = %+v, want delete@8 len=4", op)
	}
}

func TestSession_LocalChangeWhileDisconnected(t *testing.T) {
	j := &memJournal{}
	s, tr, _ := newTestSession(t, scheduler.Config{}, WithJournal(j))
	s.Bootstrap("", "ab", "", 0)

	s.LocalChange("abc")
	if s.Content() != "abc" {
		t.Fatalf("Content() = %q", s.Content())
	}
	if len(tr.messages()) != 0 {
		t.Fatalf("sent while idle: %+v", tr.messages())
	}
	if len(j.events) != 1 || j.events[0].Sent {
		t.Fatalf("journal = %+v, want one unsent event", j.events)
	}
}

func TestSession_RemoteOperationApplied(t *testing.T) {
	s, tr, ed := newTestSession(t, scheduler.Config{})
	s.Bootstrap("", "helloworld", "", 0)
	s.Attach(context.Background())

	before := s.Version()
	tr.deliver(ws.OperationMessage{ID: "doc1", Operation: delta.Operation{Kind: delta.KindInsert, Position: 5, Content: " ", ClientID: "other"}})
	if s.Content() != "hello world" || ed.Content() != "hello world" {
		t.Fatalf("content = %q, editor = %q", s.Content(), ed.Content())
	}
	if s.Version() != before+1 {
		t.Fatalf("Version() = %d, want %d", s.Version(), before+1)
	}
}

func TestSession_IgnoresEchoAndOtherDocs(t *testing.T) {
	s, tr, _ := newTestSession(t, scheduler.Config{})
	s.Bootstrap("", "abc", "", 0)
	s.Attach(context.Background())

	tr.deliver(ws.OperationMessage{ID: "doc1", Operation: delta.Operation{Kind: delta.KindInsert, Position: 0, Content: "X", ClientID: "me"}})
	tr.deliver(ws.OperationMessage{ID: "doc2", Operation: delta.Operation{Kind: delta.KindInsert, Position: 0, Content: "Y", ClientID: "other"}})
	if s.Content() != "abc" {
		t.Fatalf("Content() = %q, want unchanged", s.Content())
	}
}

func TestSession_UnknownOperationKindIsIdentity(t *testing.T) {
	s, tr, _ := newTestSession(t, scheduler.Config{})
	s.Bootstrap("", "abc", "", 0)
	s.Attach(context.Background())

	tr.deliver(ws.OperationMessage{ID: "doc1", Operation: delta.Operation{Kind: "bold", Position: 0, Length: 2, ClientID: "other"}})
	tr.deliver(ws.Unknown{Type: "cursor_blink"})
	if s.Content() != "abc" {
		t.Fatalf("Content() = %q", s.Content())
	}
}

func TestSession_SnapshotReplacesStateAndKeepsPresence(t *testing.T) {
	s, tr, ed := newTestSession(t, scheduler.Config{})
	s.Attach(context.Background())

	line, col := 3, 1
	tr.deliver(ws.PresenceUser{ID: "u1", Username: "Ann", Color: "hsl(10 70% 50%)", LineNumber: &line, Column: &col})
	tr.deliver(ws.Snapshot{ID: "doc1", Content: "fresh", Title: "Notes", Language: "python", Users: []presence.Member{{ID: "u1", Username: "Ann"}}})

	if s.Content() != "fresh" || ed.Content() != "fresh" {
		t.Fatalf("content = %q / %q", s.Content(), ed.Content())
	}
	if s.Title() != "Notes" || s.Language() != "python" || ed.Language() != "python" {
		t.Fatalf("title=%q language=%q editor=%q", s.Title(), s.Language(), ed.Language())
	}
	roster := s.Roster()
	if len(roster) != 1 || roster[0].Color != "hsl(10 70% 50%)" || roster[0].Cursor == nil || *roster[0].Cursor != (presence.Cursor{Line: 3, Column: 1}) {
		t.Fatalf("roster = %+v", roster)
	}
}

func TestSession_SnapshotWithoutUsersKeepsRoster(t *testing.T) {
	s, tr, _ := newTestSession(t, scheduler.Config{})
	s.Attach(context.Background())
	tr.deliver(ws.PresenceUser{ID: "u1", Username: "Ann"})
	tr.deliver(ws.Snapshot{ID: "doc1", Content: "x"})
	if len(s.Roster()) != 1 {
		t.Fatalf("roster = %+v, want untouched", s.Roster())
	}
	tr.deliver(ws.Snapshot{ID: "doc1", Content: "x", Users: []presence.Member{}})
	if len(s.Roster()) != 0 {
		t.Fatalf("roster = %+v, want empty after authoritative list", s.Roster())
	}
}

func TestSession_PresenceDecorations(t *testing.T) {
	s, tr, ed := newTestSession(t, scheduler.Config{})
	s.Attach(context.Background())

	tr.deliver(ws.InitOK{ID: "me", Username: "Me"})
	line, col := 2, 4
	tr.deliver(ws.PresenceUser{ID: "me", Username: "Me", LineNumber: &line, Column: &col})
	tr.deliver(ws.PresenceUser{ID: "u2", Username: "Bob", LineNumber: &line, Column: &col})

	decs := ed.Decorations()
	if len(decs) != 1 || decs[0].UserID != "u2" || decs[0].Color != presence.ColorFor("u2") {
		t.Fatalf("decorations = %+v", decs)
	}

	tr.deliver(ws.UserLeft{ID: "nobody"})
	if len(s.Roster()) != 2 {
		t.Fatalf("roster changed on unknown user_left: %+v", s.Roster())
	}
	tr.deliver(ws.UserLeft{ID: "u2"})
	if len(ed.Decorations()) != 0 {
		t.Fatalf("decoration kept after user_left: %+v", ed.Decorations())
	}
}

func TestSession_CursorMovedBroadcasts(t *testing.T) {
	s, tr, ed := newTestSession(t, scheduler.Config{})
	s.Attach(context.Background())
	if s.CursorMoved() {
		t.Fatalf("CursorMoved() = true without a cursor")
	}
	ed.MoveCursor(presence.Cursor{Line: 5, Column: 7})
	if !s.CursorMoved() {
		t.Fatalf("CursorMoved() = false")
	}
	sent := tr.ofType(ws.TypePresenceUser)
	if len(sent) != 1 {
		t.Fatalf("sent = %+v", sent)
	}
	p := sent[0].(ws.PresenceUser)
	if p.ID != "me" || p.Color != presence.ColorFor("me") || *p.LineNumber != 5 || *p.Column != 7 {
		t.Fatalf("presence = %+v", p)
	}
	if len(s.Decorations()) != 0 {
		t.Fatalf("own cursor rendered as decoration")
	}
}

func TestSession_MetadataDebounced(t *testing.T) {
	s, tr, _ := newTestSession(t, scheduler.Config{MetadataDebounce: 30 * time.Millisecond})
	s.Attach(context.Background())

	s.SetTitle("N")
	s.SetTitle("No")
	s.SetLanguage("json")
	s.SetTitle("Notes")

	eventually(t, "document_update", func() bool { return len(tr.ofType(ws.TypeDocumentUpdate)) > 0 })
	time.Sleep(80 * time.Millisecond)
	updates := tr.ofType(ws.TypeDocumentUpdate)
	if len(updates) != 1 {
		t.Fatalf("updates = %+v, want exactly one", updates)
	}
	u := updates[0].(ws.DocumentUpdate)
	if u.Title != "Notes" || u.Language != "json" || u.ID != "doc1" {
		t.Fatalf("update = %+v", u)
	}
}

func TestSession_PeriodicSnapshotReadsLatest(t *testing.T) {
	sink := &memSink{}
	s, tr, _ := newTestSession(t, scheduler.Config{SnapshotInterval: 20 * time.Millisecond}, WithSinks(sink))
	s.Bootstrap("T", "v1", "", 0)
	s.Attach(context.Background())
	s.LocalChange("v2")

	eventually(t, "snapshot", func() bool {
		for _, m := range tr.ofType(ws.TypeSnapshot) {
			if m.(ws.Snapshot).Content == "v2" {
				return true
			}
		}
		return false
	})
	eventually(t, "sink write", func() bool {
		c, ok := sink.get("doc1")
		return ok && c == "v2"
	})
}

func TestSession_FormatBecomesLocalChange(t *testing.T) {
	s, tr, ed := newTestSession(t, scheduler.Config{FormatDebounce: 10 * time.Millisecond})
	s.Bootstrap("", "a  \nb", "", 0)
	s.Attach(context.Background())

	s.RequestFormat()
	s.RequestFormat()
	eventually(t, "format", func() bool { return s.Content() == "a\nb" })
	if ed.Content() != "a\nb" {
		t.Fatalf("editor = %q", ed.Content())
	}
	if ed.FormatCount() != 1 {
		t.Fatalf("FormatCount() = %d, want 1", ed.FormatCount())
	}
	ops := tr.ofType(ws.TypeOperation)
	if len(ops) != 1 || ops[0].(ws.OperationMessage).Operation.Kind != delta.KindDelete {
		t.Fatalf("ops = %+v", ops)
	}
}

func TestSession_DetachClearsHandlersFirst(t *testing.T) {
	s, tr, _ := newTestSession(t, scheduler.Config{SnapshotInterval: 10 * time.Millisecond})
	s.Bootstrap("", "abc", "", 0)
	s.Attach(context.Background())
	s.Attach(context.Background())
	if tr.connects != 1 {
		t.Fatalf("connects = %d, want 1", tr.connects)
	}

	s.Detach()
	s.Detach()
	if tr.disconnects != 1 || !tr.clearedFirst {
		t.Fatalf("disconnects=%d clearedFirst=%v", tr.disconnects, tr.clearedFirst)
	}
	n := len(tr.ofType(ws.TypeSnapshot))
	time.Sleep(50 * time.Millisecond)
	if got := len(tr.ofType(ws.TypeSnapshot)); got != n {
		t.Fatalf("snapshots after detach: %d -> %d", n, got)
	}
	if err := s.Reconnect(context.Background()); err != ErrDetached {
		t.Fatalf("Reconnect() error = %v, want ErrDetached", err)
	}
}

func TestSession_RestoreDraft(t *testing.T) {
	s, _, ed := newTestSession(t, scheduler.Config{})
	if !s.RestoreDraft("draft", 7) {
		t.Fatalf("RestoreDraft() on empty session = false")
	}
	if s.Content() != "draft" || ed.Content() != "draft" || s.Version() != 7 {
		t.Fatalf("content=%q version=%d", s.Content(), s.Version())
	}
	if s.RestoreDraft("other", 9) {
		t.Fatalf("RestoreDraft() overwrote existing content")
	}
}

func TestSession_ConnectionHooks(t *testing.T) {
	opened := 0
	var closedErr error
	s, tr, _ := newTestSession(t, scheduler.Config{},
		WithOpenHook(func() { opened++ }),
		WithCloseHook(func(err error) { closedErr = err }),
	)
	s.Attach(context.Background())

	tr.mu.Lock()
	h := tr.handlers
	tr.mu.Unlock()
	h.OnOpen()
	h.OnClose(errors.New("relay gone"))
	if opened != 1 || closedErr == nil {
		t.Fatalf("opened=%d closedErr=%v", opened, closedErr)
	}

	// Detach 之后不再通知
	s.Detach()
	closedErr = nil
	h.OnClose(errors.New("late"))
	if closedErr != nil {
		t.Fatalf("close hook fired after Detach: %v", closedErr)
	}
}

func TestSession_BootstrapVersionCarriesToSinks(t *testing.T) {
	sink := &memSink{}
	s, _, _ := newTestSession(t, scheduler.Config{SnapshotInterval: 20 * time.Millisecond}, WithSinks(sink))
	// 存储里已经是第 41 版，重启后的快照版本必须比它大
	s.Bootstrap("T", "stored", "", 41)
	if s.Version() != 41 {
		t.Fatalf("Version() after Bootstrap = %d, want 41", s.Version())
	}
	s.LocalChange("stored!")
	s.Attach(context.Background())

	eventually(t, "sink write", func() bool {
		c, ok := sink.get("doc1")
		return ok && c == "stored!"
	})
	for _, v := range sink.savedVersions() {
		if v <= 41 {
			t.Fatalf("sink versions = %v, want all > 41", sink.savedVersions())
		}
	}
}

func TestSession_DetachKeepsNewerConsumer(t *testing.T) {
	first, tr, _ := newTestSession(t, scheduler.Config{})
	first.Attach(context.Background())

	// 第二个会话接管同一个连接
	ed := editor.NewHeadless()
	second := NewSession(SessionConfig{DocID: "doc1", ParticipantID: "me2", Username: "Me2",
		Scheduler: scheduler.Config{SnapshotInterval: time.Hour, MetadataDebounce: time.Hour, FormatDebounce: time.Hour}}, tr, ed)
	t.Cleanup(second.Detach)
	second.Attach(context.Background())

	first.Detach()
	tr.mu.Lock()
	disconnects := tr.disconnects
	tr.mu.Unlock()
	if disconnects != 0 {
		t.Fatalf("disconnects = %d after detaching the replaced session, want 0", disconnects)
	}

	tr.deliver(ws.Snapshot{ID: "doc1", Content: "from relay"})
	if second.Content() != "from relay" {
		t.Fatalf("second session content = %q, handlers were cleared", second.Content())
	}

	second.Detach()
	if tr.disconnects != 1 || !tr.clearedFirst {
		t.Fatalf("disconnects=%d clearedFirst=%v after owner detached", tr.disconnects, tr.clearedFirst)
	}
}
