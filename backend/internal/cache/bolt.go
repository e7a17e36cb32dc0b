package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var draftsBucket = []byte("drafts")

// BoltDrafts 单文件的本地草稿缓存，进程重启后仍在
type BoltDrafts struct {
	db *bolt.DB
}

var _ DraftCache = (*BoltDrafts)(nil)

func OpenBoltDrafts(path string) (*BoltDrafts, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(draftsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltDrafts{db: db}, nil
}

func (b *BoltDrafts) Close() error { return b.db.Close() }

func (b *BoltDrafts) SaveDocumentSnapshot(ctx context.Context, docID string, version uint64, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(Draft{DocID: docID, Version: version, Content: content, SavedAt: time.Now()})
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(draftsBucket).Put([]byte(docID), data)
	})
}

func (b *BoltDrafts) LoadDraft(ctx context.Context, docID string) (Draft, error) {
	if err := ctx.Err(); err != nil {
		return Draft{}, err
	}
	var d Draft
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(draftsBucket).Get([]byte(docID))
		if v == nil {
			return ErrDraftNotFound
		}
		// v 只在事务内有效，Unmarshal 会复制
		return json.Unmarshal(v, &d)
	})
	return d, err
}

func (b *BoltDrafts) DeleteDraft(ctx context.Context, docID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(draftsBucket).Delete([]byte(docID))
	})
}

func (b *BoltDrafts) ListDrafts(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var drafts []Draft
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(draftsBucket).ForEach(func(_, v []byte) error {
			var d Draft
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			drafts = append(drafts, d)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(drafts, func(i, j int) bool { return drafts[i].SavedAt.After(drafts[j].SavedAt) })
	ids := make([]string, 0, len(drafts))
	for _, d := range drafts {
		ids = append(ids, d.DocID)
	}
	return ids, nil
}
