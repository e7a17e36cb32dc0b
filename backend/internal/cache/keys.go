package cache

import "fmt"

// 键语义：
// - draftKey(docID):  某文档最近一次本地快照（String，JSON 编码的 Draft，带 TTL）
// - draftsKey():      草稿索引（ZSet<docID, savedAtUnixMilli>）

const (
	keyDraftFmt  = "collab:draft:{docID:%s}" // String
	keyDraftsSet = "collab:drafts"           // ZSet<docID>
)

func draftKey(docID string) string { return fmt.Sprintf(keyDraftFmt, docID) }
func draftsKey() string            { return keyDraftsSet }
