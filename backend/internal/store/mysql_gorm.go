package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func InitMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// SQLDocumentStore 直接连 MySQL 的文档存储，同时可以作为快照存储写回正文
type SQLDocumentStore struct {
	db *gorm.DB
}

var _ DocumentStore = (*SQLDocumentStore)(nil)

func NewSQLDocumentStore(db *gorm.DB) *SQLDocumentStore {
	return &SQLDocumentStore{db: db}
}

func (s *SQLDocumentStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&Document{})
}

func (s *SQLDocumentStore) List(ctx context.Context) ([]Document, error) {
	var docs []Document
	err := s.db.WithContext(ctx).Order("updated_at DESC").Find(&docs).Error
	return docs, err
}

func (s *SQLDocumentStore) Create(ctx context.Context, req CreateRequest) (Document, error) {
	doc := Document{
		ID:       uuid.NewString(),
		Title:    req.Title,
		Content:  req.Content,
		Language: req.Language,
	}
	if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *SQLDocumentStore) Get(ctx context.Context, id string) (Document, error) {
	var doc Document
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Document{}, ErrDocumentNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

func (s *SQLDocumentStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Document{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// SaveDocumentSnapshot 只在版本前进时覆盖正文，文档不存在时新建。
// Assignments 按列名排序，content 先于 version 赋值，比较的是旧版本号。
func (s *SQLDocumentStore) SaveDocumentSnapshot(ctx context.Context, docID string, version uint64, content string) error {
	doc := Document{ID: docID, Content: content, Version: version, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"content":    gorm.Expr("IF(VALUES(version) > version, VALUES(content), content)"),
			"version":    gorm.Expr("GREATEST(version, VALUES(version))"),
			"updated_at": doc.UpdatedAt,
		}),
	}).Create(&doc).Error
}
