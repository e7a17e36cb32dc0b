package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// SnapshotStore 追加写 document_snapshots，(document_id, revision) 唯一
type SnapshotStore struct{ db *sql.DB }

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

const createSnapshotsTable = `CREATE TABLE IF NOT EXISTS document_snapshots (
	document_id VARCHAR(64) NOT NULL,
	revision BIGINT UNSIGNED NOT NULL,
	content LONGTEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (document_id, revision)
)`

func (s *SnapshotStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, createSnapshotsTable)
	return err
}

func (s *SnapshotStore) SaveDocumentSnapshot(ctx context.Context, docID string, rev uint64, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO document_snapshots (document_id, revision, content)
		VALUES (?, ?, ?)`,
		docID,
		rev,
		content,
	)
	if err != nil {
		// 同一版本的周期快照会重复写，忽略主键冲突
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return nil
		}
		return err
	}
	return nil
}

// LatestSnapshot 最近一次快照，没有时返回 ErrDocumentNotFound
func (s *SnapshotStore) LatestSnapshot(ctx context.Context, docID string) (uint64, string, error) {
	var rev uint64
	var content string
	err := s.db.QueryRowContext(ctx,
		`SELECT revision, content FROM document_snapshots
		WHERE document_id = ? ORDER BY revision DESC LIMIT 1`,
		docID,
	).Scan(&rev, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", ErrDocumentNotFound
	}
	return rev, content, err
}
