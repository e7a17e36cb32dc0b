package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestBolt(t *testing.T) *BoltDrafts {
	t.Helper()
	b, err := OpenBoltDrafts(filepath.Join(t.TempDir(), "drafts.db"))
	if err != nil {
		t.Fatalf("OpenBoltDrafts() error = %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBoltDrafts_SaveLoad(t *testing.T) {
	b := openTestBolt(t)
	ctx := context.Background()

	if _, err := b.LoadDraft(ctx, "doc1"); !errors.Is(err, ErrDraftNotFound) {
		t.Fatalf("LoadDraft(missing) error = %v, want ErrDraftNotFound", err)
	}
	if err := b.SaveDocumentSnapshot(ctx, "doc1", 3, "hello"); err != nil {
		t.Fatalf("Save error = %v", err)
	}
	if err := b.SaveDocumentSnapshot(ctx, "doc1", 4, "hello world"); err != nil {
		t.Fatalf("Save error = %v", err)
	}
	d, err := b.LoadDraft(ctx, "doc1")
	if err != nil {
		t.Fatalf("LoadDraft() error = %v", err)
	}
	if d.Content != "hello world" || d.Version != 4 || d.DocID != "doc1" {
		t.Fatalf("draft = %+v", d)
	}
}

func TestBoltDrafts_ListAndDelete(t *testing.T) {
	b := openTestBolt(t)
	ctx := context.Background()
	_ = b.SaveDocumentSnapshot(ctx, "old", 1, "a")
	time.Sleep(2 * time.Millisecond)
	_ = b.SaveDocumentSnapshot(ctx, "new", 1, "b")

	ids, err := b.ListDrafts(ctx)
	if err != nil {
		t.Fatalf("ListDrafts() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != "new" || ids[1] != "old" {
		t.Fatalf("ListDrafts() = %v, want [new old]", ids)
	}
	if err := b.DeleteDraft(ctx, "old"); err != nil {
		t.Fatalf("DeleteDraft() error = %v", err)
	}
	if _, err := b.LoadDraft(ctx, "old"); !errors.Is(err, ErrDraftNotFound) {
		t.Fatalf("LoadDraft(deleted) error = %v", err)
	}
}

func TestBoltDrafts_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drafts.db")
	b, err := OpenBoltDrafts(path)
	if err != nil {
		t.Fatalf("OpenBoltDrafts() error = %v", err)
	}
	_ = b.SaveDocumentSnapshot(context.Background(), "doc1", 9, "persisted")
	_ = b.Close()

	b, err = OpenBoltDrafts(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer b.Close()
	d, err := b.LoadDraft(context.Background(), "doc1")
	if err != nil || d.Content != "persisted" {
		t.Fatalf("LoadDraft() = %+v, %v", d, err)
	}
}

func TestBoltDrafts_CanceledContext(t *testing.T) {
	b := openTestBolt(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.SaveDocumentSnapshot(ctx, "doc1", 1, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Save error = %v, want context.Canceled", err)
	}
}

func TestNewest_PicksHighestVersion(t *testing.T) {
	a, b := openTestBolt(t), openTestBolt(t)
	ctx := context.Background()
	_ = a.SaveDocumentSnapshot(ctx, "doc1", 2, "older")
	_ = b.SaveDocumentSnapshot(ctx, "doc1", 5, "newer")

	d, err := Newest(ctx, "doc1", a, b)
	if err != nil {
		t.Fatalf("Newest() error = %v", err)
	}
	if d.Content != "newer" {
		t.Fatalf("Newest() = %+v", d)
	}
	if _, err := Newest(ctx, "missing", a, b); !errors.Is(err, ErrDraftNotFound) {
		t.Fatalf("Newest(missing) error = %v", err)
	}
}
