// Package discovery 没有配置中继地址时，在局域网里用 mDNS 找中继
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
)

const (
	DefaultService = "_collabrelay._tcp"
	DefaultDomain  = "local."
)

var ErrNoRelay = errors.New("no relay found")

// Browser 与 *zeroconf.Resolver 的 Browse 一致
type Browser interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

type Relay struct {
	Instance string
	Host     string
	Port     int
	// Path 来自 TXT 记录 path=/ws，默认 /
	Path string
}

// URL 中继的 ws 基础地址，文档 id 由调用方追加
func (r Relay) URL() string {
	host := net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
	path := r.Path
	if path == "" {
		path = "/"
	}
	return "ws://" + host + path
}

func NewBrowser() (Browser, error) {
	return zeroconf.NewResolver(nil)
}

// FindRelay 返回第一个解析出地址的中继；ctx 到期仍没有时返回 ErrNoRelay
func FindRelay(ctx context.Context, b Browser, service string) (Relay, error) {
	if service == "" {
		service = DefaultService
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := b.Browse(ctx, service, DefaultDomain, entries); err != nil {
		return Relay{}, fmt.Errorf("browse %s: %w", service, err)
	}
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return Relay{}, ErrNoRelay
			}
			relay, ok := fromEntry(entry)
			if !ok {
				continue
			}
			log.Printf("mDNS discovered relay: %s at %s", relay.Instance, relay.URL())
			return relay, nil
		case <-ctx.Done():
			return Relay{}, ErrNoRelay
		}
	}
}

func fromEntry(e *zeroconf.ServiceEntry) (Relay, bool) {
	if e == nil || e.Port == 0 {
		return Relay{}, false
	}
	var host string
	switch {
	case len(e.AddrIPv4) > 0:
		host = e.AddrIPv4[0].String()
	case len(e.AddrIPv6) > 0:
		host = e.AddrIPv6[0].String()
	case e.HostName != "":
		host = strings.TrimSuffix(e.HostName, ".")
	default:
		return Relay{}, false
	}
	r := Relay{Instance: e.Instance, Host: host, Port: e.Port}
	for _, txt := range e.Text {
		if v, ok := strings.CutPrefix(txt, "path="); ok {
			r.Path = v
		}
	}
	return r, true
}
