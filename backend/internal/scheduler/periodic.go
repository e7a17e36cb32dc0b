package scheduler

import (
	"sync"
	"time"
)

// Periodic 固定间隔执行 fn；fn 每次执行时自己去读当前状态
type Periodic struct {
	interval time.Duration
	fn       func()

	mu   sync.Mutex
	stop chan struct{}
}

func NewPeriodic(interval time.Duration, fn func()) *Periodic {
	return &Periodic{interval: interval, fn: fn}
}

// Start 重复调用不会启动第二个循环
func (p *Periodic) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return
	}
	p.stop = make(chan struct{})
	go p.loop(p.stop)
}

// Stop 不等待正在执行的 fn 返回，调用方持锁时也可以安全调用
func (p *Periodic) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop == nil {
		return
	}
	close(p.stop)
	p.stop = nil
}

func (p *Periodic) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stop != nil
}

func (p *Periodic) loop(stop <-chan struct{}) {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			// ticker 和 stop 同时就绪时 select 随机选，这里再确认一次
			select {
			case <-stop:
				return
			default:
			}
			p.fn()
		case <-stop:
			return
		}
	}
}
