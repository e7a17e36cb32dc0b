package cache

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	DefaultDraftTTL = 24 * time.Hour
	// 过期时间加随机抖动，避免大量草稿同时过期
	draftJitter = 30 * time.Minute
)

// RedisDrafts 多台机器共享的草稿缓存，单机和集群客户端都可以
type RedisDrafts struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

var _ DraftCache = (*RedisDrafts)(nil)

func NewRedisDrafts(rdb redis.UniversalClient, ttl time.Duration) *RedisDrafts {
	if ttl <= 0 {
		ttl = DefaultDraftTTL
	}
	return &RedisDrafts{rdb: rdb, ttl: ttl}
}

func (r *RedisDrafts) SaveDocumentSnapshot(ctx context.Context, docID string, version uint64, content string) error {
	now := time.Now()
	data, err := json.Marshal(Draft{DocID: docID, Version: version, Content: content, SavedAt: now})
	if err != nil {
		return err
	}
	// 两个键不在同一个 slot，集群下不能用 TxPipeline
	tx := r.rdb.Pipeline()
	tx.Set(ctx, draftKey(docID), data, r.randomTTL())
	// ZSET score 使用保存时间（毫秒），用于按新旧排序
	tx.ZAdd(ctx, draftsKey(), redis.Z{Score: float64(now.UnixMilli()), Member: docID})
	_, err = tx.Exec(ctx)
	return err
}

// randomTTL 基础 ttl 加上不超过 draftJitter 的抖动
func (r *RedisDrafts) randomTTL() time.Duration {
	return r.ttl + time.Duration(rand.Int63n(int64(draftJitter)))
}

func (r *RedisDrafts) LoadDraft(ctx context.Context, docID string) (Draft, error) {
	data, err := r.rdb.Get(ctx, draftKey(docID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Draft{}, ErrDraftNotFound
		}
		return Draft{}, err
	}
	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return Draft{}, err
	}
	return d, nil
}

func (r *RedisDrafts) DeleteDraft(ctx context.Context, docID string) error {
	tx := r.rdb.Pipeline()
	tx.Del(ctx, draftKey(docID))
	tx.ZRem(ctx, draftsKey(), docID)
	_, err := tx.Exec(ctx)
	return err
}

// ListDrafts 索引里 TTL 已过期的条目会被顺带清理
func (r *RedisDrafts) ListDrafts(ctx context.Context) ([]string, error) {
	ids, err := r.rdb.ZRevRange(ctx, draftsKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	alive := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := r.rdb.Exists(ctx, draftKey(id)).Result()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			_ = r.rdb.ZRem(ctx, draftsKey(), id).Err()
			continue
		}
		alive = append(alive, id)
	}
	return alive, nil
}
