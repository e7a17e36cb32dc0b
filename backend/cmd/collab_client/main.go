package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"collabClient/backend/config"
	"collabClient/backend/internal/cache"
	"collabClient/backend/internal/collab"
	"collabClient/backend/internal/discovery"
	"collabClient/backend/internal/editor"
	"collabClient/backend/internal/httpapi/handlers"
	"collabClient/backend/internal/identity"
	"collabClient/backend/internal/store"
	"collabClient/backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}
	log.Printf("config: %+v", cfg.Redacted())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	participantID := identity.NewParticipantID()
	username := identity.DisplayName(cfg.Participant.Username, cfg.Relay.Token, []byte(cfg.Auth.Secret))
	log.Printf("participant %s as %q", participantID, username)

	// === 本地草稿缓存 ===
	var drafts []cache.DraftCache
	var sinks []collab.SnapshotSink
	if cfg.Bolt.Path != "" {
		bolt, err := cache.OpenBoltDrafts(cfg.Bolt.Path)
		if err != nil {
			log.Fatalf("Failed to open bolt drafts: %v", err)
		}
		defer bolt.Close()
		drafts = append(drafts, bolt)
		sinks = append(sinks, bolt)
	}
	if len(cfg.Redis.Addrs) > 0 {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("redis unavailable, drafts stay local: %v", err)
		} else {
			rd := cache.NewRedisDrafts(rdb, cfg.Redis.DraftTTL)
			drafts = append(drafts, rd)
			sinks = append(sinks, rd)
		}
	}

	// === 文档存储 ===
	docs := []store.DocumentStore{
		store.NewHTTPDocumentStore(cfg.API.Base, &http.Client{Timeout: 5 * time.Second}),
	}
	if cfg.Mysql.DSN != "" {
		db, err := sql.Open("mysql", cfg.Mysql.DSN)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		snapshots := store.NewSnapshotStore(db)
		if err := snapshots.EnsureSchema(ctx); err != nil {
			log.Printf("snapshot schema error: %v", err)
		} else {
			sinks = append(sinks, snapshots)
		}

		gdb, err := store.InitMySQL(cfg.Mysql.DSN)
		if err != nil {
			log.Printf("gorm init failed, document mirror disabled: %v", err)
		} else {
			sqlDocs := store.NewSQLDocumentStore(gdb)
			if err := sqlDocs.Migrate(ctx); err != nil {
				log.Printf("document migrate error: %v", err)
			} else {
				docs = append(docs, sqlDocs)
				sinks = append(sinks, sqlDocs)
			}
		}
	}

	docID := cfg.Document.ID
	if docID == "" {
		created, err := docs[0].Create(ctx, store.CreateRequest{Title: "Untitled", Language: editor.DefaultLanguage})
		if err != nil {
			log.Fatalf("no document.id configured and create failed: %v", err)
		}
		docID = created.ID
		log.Printf("created document %s", docID)
	}

	// === 操作日志 ===
	var journal collab.Journal = collab.NopJournal{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := collab.NewProducer(cfg.Kafka.Brokers)
		if err != nil {
			log.Printf("Failed to connect kafka, journal disabled: %v", err)
		} else {
			defer producer.Close()
			dispatcher := collab.NewJournalDispatcher(producer, cfg.Kafka.Topic, collab.NewSemaphore(collab.DefaultSemaphore), collab.DefaultJournalOptions())
			defer dispatcher.Close()
			journal = dispatcher
		}
	}

	// === 中继连接 ===
	base, err := relayBase(ctx, cfg)
	if err != nil {
		log.Fatalf("no relay: %v", err)
	}
	url, err := ws.DocumentURL(base, docID, cfg.Relay.Token)
	if err != nil {
		log.Fatalf("bad relay url: %v", err)
	}
	registry := ws.NewRegistry(ws.WithSendQueue(cfg.Sync.SendQueue))
	key := ws.Key{URL: url, ParticipantID: participantID}
	client := registry.GetOrCreate(key, username)
	defer registry.Dispose(key)

	ed := editor.NewHeadless()
	rc := newReconnector(ctx)
	sess := collab.NewSession(collab.SessionConfig{
		DocID:         docID,
		ParticipantID: participantID,
		Username:      username,
		Scheduler:     cfg.Sync.Config,
	}, client, ed,
		collab.WithJournal(journal),
		collab.WithSinks(sinks...),
		collab.WithOpenHook(rc.connected),
		collab.WithCloseHook(rc.disconnected),
	)
	rc.sess = sess

	loadDocument(ctx, sess, docID, docs, drafts)
	sess.Attach(ctx)

	// === 本地 HTTP 桥 ===
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Bridge.Port),
		Handler: handlers.NewRouter(handlers.NewBridge(sess, ed)),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("bridge stopped: %v", err)
			stop()
		}
	}()
	log.Printf("bridge listening on %s (doc=%s)", srv.Addr, docID)

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	sess.Detach()
}

// relayBase 配置了 relay.url 就直接用，否则按需在局域网发现
func relayBase(ctx context.Context, cfg *config.Config) (string, error) {
	if cfg.Relay.URL != "" {
		return cfg.Relay.URL, nil
	}
	if !cfg.Relay.Discover {
		return "", errors.New("relay.url is empty and discovery is off")
	}
	b, err := discovery.NewBrowser()
	if err != nil {
		return "", err
	}
	dctx, cancel := context.WithTimeout(ctx, cfg.Relay.Timeout)
	defer cancel()
	relay, err := discovery.FindRelay(dctx, b, cfg.Relay.Service)
	if err != nil {
		return "", err
	}
	return relay.URL(), nil
}

// loadDocument 依次尝试各个文档存储，都失败时用最新的本地草稿
func loadDocument(ctx context.Context, sess *collab.Session, docID string, docs []store.DocumentStore, drafts []cache.DraftCache) {
	for _, ds := range docs {
		doc, err := ds.Get(ctx, docID)
		if err != nil {
			log.Printf("load document error (doc=%s): %v", docID, err)
			continue
		}
		sess.Bootstrap(doc.Title, doc.Content, doc.Language, doc.Version)
		return
	}
	d, err := cache.Newest(ctx, docID, drafts...)
	if err != nil {
		log.Printf("no draft for doc=%s, starting empty: %v", docID, err)
		return
	}
	if sess.RestoreDraft(d.Content, d.Version) {
		log.Printf("restored draft doc=%s version=%d saved=%s", docID, d.Version, d.SavedAt.Format(time.RFC3339))
	}
}

// reconnector 断线后按指数退避重连，连上后重置退避
type reconnector struct {
	ctx  context.Context
	sess *collab.Session

	mu    sync.Mutex
	b     *backoff.ExponentialBackOff
	timer *time.Timer
}

func newReconnector(ctx context.Context) *reconnector {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	// 一直重试，直到进程退出
	b.MaxElapsedTime = 0
	return &reconnector{ctx: ctx, b: b}
}

func (r *reconnector) connected() {
	r.mu.Lock()
	r.b.Reset()
	r.mu.Unlock()
}

func (r *reconnector) disconnected(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx.Err() != nil {
		return
	}
	wait := r.b.NextBackOff()
	if wait == backoff.Stop {
		log.Printf("reconnect gave up: %v", err)
		return
	}
	log.Printf("ws closed (%v), reconnect in %s", err, wait)
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(wait, func() {
		if err := r.sess.Reconnect(r.ctx); err != nil {
			log.Printf("reconnect skipped: %v", err)
		}
	})
}
