package store

import (
	"context"
	"errors"
	"time"
)

var ErrDocumentNotFound = errors.New("document not found")

// Document 文档存储返回的实体，会话从它启动
type Document struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Title     string    `json:"title" gorm:"type:varchar(255)"`
	Content   string    `json:"content" gorm:"type:longtext"`
	Language  string    `json:"language" gorm:"type:varchar(32)"`
	Version   uint64    `json:"version" gorm:"default:0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content,omitempty"`
	Language string `json:"language,omitempty"`
}

// 文档存储接口：HTTP 和 MySQL 两种实现
type DocumentStore interface {
	List(ctx context.Context) ([]Document, error)
	Create(ctx context.Context, req CreateRequest) (Document, error)
	Get(ctx context.Context, id string) (Document, error)
	Delete(ctx context.Context, id string) error
}
