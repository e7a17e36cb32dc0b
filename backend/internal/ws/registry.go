package ws

import (
	"fmt"
	"net/url"
	"sync"
)

// Key 一个参与者对一个文档地址只保留一条连接
type Key struct {
	URL           string
	ParticipantID string
}

// Registry 显式传递的连接表，进程里通常只有一个
type Registry struct {
	mu      sync.Mutex
	clients map[Key]*Client
	opts    []Option
}

func NewRegistry(opts ...Option) *Registry {
	return &Registry{clients: make(map[Key]*Client), opts: opts}
}

// GetOrCreate 同一个 key 总是返回同一个 Client，不会建立连接
func (r *Registry) GetOrCreate(key Key, username string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[key]; ok {
		return c
	}
	c := NewClient(key.URL, Params{ParticipantID: key.ParticipantID, Username: username}, r.opts...)
	r.clients[key] = c
	return c
}

// Dispose 断开并移除；未知 key 为空操作
func (r *Registry) Dispose(key Key) {
	r.mu.Lock()
	c, ok := r.clients[key]
	delete(r.clients, key)
	r.mu.Unlock()
	if ok {
		c.ClearHandlers()
		c.Disconnect()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// DocumentURL 拼出 <base>/<docID>?token=<token>，token 为空时不带参数
func DocumentURL(base, docID, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("relay url scheme %q, want ws or wss", u.Scheme)
	}
	u = u.JoinPath(docID)
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// redactURL 日志用：隐藏 token 参数
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Get("token") == "" {
		return raw
	}
	q.Set("token", "***")
	u.RawQuery = q.Encode()
	return u.String()
}
