package cache

import (
	"context"
	"errors"
	"log"
	"time"
)

var ErrDraftNotFound = errors.New("draft not found")

// Draft 本地保存的文档快照，用于断网后恢复
type Draft struct {
	DocID   string    `json:"docId"`
	Version uint64    `json:"version"`
	Content string    `json:"content"`
	SavedAt time.Time `json:"savedAt"`
}

type DraftCache interface {
	SaveDocumentSnapshot(ctx context.Context, docID string, version uint64, content string) error
	LoadDraft(ctx context.Context, docID string) (Draft, error)
	DeleteDraft(ctx context.Context, docID string) error
	// ListDrafts 按保存时间从新到旧
	ListDrafts(ctx context.Context) ([]string, error)
}

// Newest 依次查询多个缓存，返回版本最高的草稿
func Newest(ctx context.Context, docID string, caches ...DraftCache) (Draft, error) {
	var best Draft
	var lastErr error
	found := false
	for _, c := range caches {
		d, err := c.LoadDraft(ctx, docID)
		if err != nil {
			if !errors.Is(err, ErrDraftNotFound) {
				// 一个缓存不可用时继续查其他的
				log.Printf("load draft error (doc=%s): %v", docID, err)
				lastErr = err
			}
			continue
		}
		if !found || d.Version > best.Version || (d.Version == best.Version && d.SavedAt.After(best.SavedAt)) {
			best = d
			found = true
		}
	}
	if !found {
		if lastErr != nil {
			return Draft{}, lastErr
		}
		return Draft{}, ErrDraftNotFound
	}
	return best, nil
}
