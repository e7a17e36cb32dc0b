package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// HTTPDocumentStore 访问 <base>/api/documents
type HTTPDocumentStore struct {
	base   string
	client *http.Client
	// 同一文档的并发 Get 只发一次请求
	sf singleflight.Group
}

var _ DocumentStore = (*HTTPDocumentStore)(nil)

func NewHTTPDocumentStore(base string, client *http.Client) *HTTPDocumentStore {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPDocumentStore{base: strings.TrimRight(base, "/") + "/api", client: client}
}

func (s *HTTPDocumentStore) documentsURL(id string) string {
	if id == "" {
		return s.base + "/documents"
	}
	return s.base + "/documents/" + url.PathEscape(id)
}

func (s *HTTPDocumentStore) List(ctx context.Context) ([]Document, error) {
	var docs []Document
	if err := s.do(ctx, http.MethodGet, s.documentsURL(""), nil, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *HTTPDocumentStore) Create(ctx context.Context, req CreateRequest) (Document, error) {
	var doc Document
	err := s.do(ctx, http.MethodPost, s.documentsURL(""), req, &doc)
	return doc, err
}

func (s *HTTPDocumentStore) Get(ctx context.Context, id string) (Document, error) {
	v, err, _ := s.sf.Do(id, func() (any, error) {
		var doc Document
		if err := s.do(ctx, http.MethodGet, s.documentsURL(id), nil, &doc); err != nil {
			return Document{}, err
		}
		return doc, nil
	})
	if err != nil {
		return Document{}, err
	}
	return v.(Document), nil
}

func (s *HTTPDocumentStore) Delete(ctx context.Context, id string) error {
	return s.do(ctx, http.MethodDelete, s.documentsURL(id), nil, nil)
}

func (s *HTTPDocumentStore) do(ctx context.Context, method, u string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrDocumentNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, u, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode %s %s: %w", method, u, err)
	}
	return nil
}
