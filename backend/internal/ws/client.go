package ws

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"collabClient/backend/internal/ot/delta"

	"github.com/gorilla/websocket"
)

// State 连接状态机：IDLE -> CONNECTING -> OPEN -> READY，任意状态断开后为 CLOSED
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateReady:
		return "READY"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Params 握手时发送的身份
type Params struct {
	ParticipantID string
	Username      string
}

// Handlers 一组回调，SetHandlers 整体替换，不会叠加
type Handlers struct {
	OnMessage func(Message)
	OnOpen    func()
	OnClose   func(err error)
	OnError   func(err error)
}

// Dialer 与 *websocket.Dialer 的 DialContext 签名一致，测试里可以替换
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

const defaultSendQueue = 256

type Option func(*Client)

func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

func WithSendQueue(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// Client 每个 (url, participantID) 一条连接。
// 所有状态都在 mu 下修改；epoch 每次 Connect/Disconnect 自增，
// 旧连接的读循环看到 epoch 变化后不再回调。
type Client struct {
	url       string
	logURL    string
	params    Params
	dialer    Dialer
	queueSize int

	mu       sync.Mutex
	state    State
	epoch    uint64
	conn     *websocket.Conn
	send     chan []byte
	cancel   context.CancelFunc
	handlers Handlers
	// 每次替换回调自增
	handlerGen uint64
}

func NewClient(url string, params Params, opts ...Option) *Client {
	c := &Client{
		url:       url,
		logURL:    redactURL(url),
		params:    params,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		queueSize: defaultSendQueue,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) URL() string { return c.url }

func (c *Client) Params() Params { return c.params }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetHandlers 替换整组回调，返回这组回调的令牌，交给 ReleaseHandlers 使用
func (c *Client) SetHandlers(h Handlers) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = h
	c.handlerGen++
	return c.handlerGen
}

// ClearHandlers 无条件清空回调
func (c *Client) ClearHandlers() {
	c.SetHandlers(Handlers{})
}

// ReleaseHandlers 只有 token 对应的那组回调仍在使用时才清空，返回是否清空。
// 同一个 Client 被后来的使用者接管后，旧使用者释放不会影响新回调
func (c *Client) ReleaseHandlers(token uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token == 0 || token != c.handlerGen {
		return false
	}
	c.handlers = Handlers{}
	c.handlerGen++
	return true
}

// Connect 不阻塞：置为 CONNECTING 后在 goroutine 里拨号。
// 已经在 CONNECTING/OPEN/READY 时什么都不做，保证同一时刻最多一条传输。
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateOpen, StateReady:
		c.mu.Unlock()
		return
	}
	c.epoch++
	epoch := c.epoch
	c.state = StateConnecting
	dctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go c.dial(dctx, epoch)
}

func (c *Client) dial(ctx context.Context, epoch uint64) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)

	c.mu.Lock()
	if epoch != c.epoch {
		// 拨号期间已经 Disconnect
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if err != nil {
		c.state = StateClosed
		h := c.handlers
		c.mu.Unlock()
		log.Printf("ws dial %s error: %v", c.logURL, err)
		if h.OnError != nil {
			h.OnError(err)
		}
		if h.OnClose != nil {
			h.OnClose(err)
		}
		return
	}

	initFrame, encErr := Encode(Init{ID: c.params.ParticipantID, Username: c.params.Username})
	if encErr != nil {
		c.state = StateClosed
		h := c.handlers
		c.mu.Unlock()
		_ = conn.Close()
		if h.OnError != nil {
			h.OnError(encErr)
		}
		return
	}
	send := make(chan []byte, c.queueSize)
	// init 必须是连接上的第一帧
	send <- initFrame
	c.conn = conn
	c.send = send
	c.state = StateOpen
	h := c.handlers
	c.mu.Unlock()

	// 先启动写循环，再进入读循环
	go c.writeLoop(conn, send)
	go c.readLoop(conn, epoch)

	if h.OnOpen != nil {
		h.OnOpen()
	}
}

var (
	ErrNotConnected = errors.New("ws: not connected")
	ErrQueueFull    = errors.New("ws: send queue full")
)

// TrySend 与 Send 相同，但返回丢弃原因
func (c *Client) TrySend(m Message) error {
	frame, err := Encode(m)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen && c.state != StateReady {
		return ErrNotConnected
	}
	select {
	case c.send <- frame:
		return nil
	default:
		// 如果队列满了，则丢弃消息
		return ErrQueueFull
	}
}

// Send 发完即忘：非 OPEN/READY 或队列满时静默丢弃，返回是否入队
func (c *Client) Send(m Message) bool {
	err := c.TrySend(m)
	if err != nil && !errors.Is(err, ErrNotConnected) {
		log.Printf("ws send %s dropped (%s): %v", m.MessageType(), c.logURL, err)
	}
	return err == nil
}

func (c *Client) SendOperation(docID string, op delta.Operation) bool {
	return c.Send(OperationMessage{ID: docID, Operation: op})
}

func (c *Client) SendDocumentUpdate(docID, title, language string) bool {
	return c.Send(DocumentUpdate{ID: docID, Title: title, Language: language})
}

func (c *Client) SendSnapshot(s Snapshot) bool {
	return c.Send(s)
}

func (c *Client) SendPresence(p PresenceUser) bool {
	return c.Send(p)
}

// Disconnect 关闭传输并回到 IDLE，可重复调用
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	c.epoch++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	conn, send := c.conn, c.send
	c.conn, c.send = nil, nil
	c.state = StateIdle
	c.mu.Unlock()

	// Send 只在持锁时访问 c.send，这里关闭旧通道是安全的
	if send != nil {
		close(send)
	}
	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	}
}

func (c *Client) writeLoop(conn *websocket.Conn, send <-chan []byte) {
	// 持续消费通道中的帧
	for frame := range send {
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			log.Printf("ws write error (%s): %v", c.logURL, err)
			return
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn, epoch uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.closed(epoch, err)
			return
		}
		msg, err := Decode(data)
		if err != nil {
			// 坏帧只记日志，不影响连接
			log.Printf("ws malformed frame dropped (%s): %v", c.logURL, err)
			continue
		}

		c.mu.Lock()
		if epoch != c.epoch {
			c.mu.Unlock()
			return
		}
		if _, ok := msg.(InitOK); ok && c.state == StateOpen {
			c.state = StateReady
		}
		onMessage := c.handlers.OnMessage
		c.mu.Unlock()

		if onMessage != nil {
			onMessage(msg)
		}
	}
}

// closed 传输被对端或网络关闭
func (c *Client) closed(epoch uint64, err error) {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	conn, send := c.conn, c.send
	c.conn, c.send = nil, nil
	c.state = StateClosed
	h := c.handlers
	c.mu.Unlock()

	if send != nil {
		close(send)
	}
	if conn != nil {
		_ = conn.Close()
	}
	log.Printf("ws closed (%s): %v", c.logURL, err)
	if h.OnClose != nil {
		h.OnClose(err)
	}
}
