package collab

import (
	"collabClient/backend/internal/ot/delta"
)

// Reconciler 决定收到的远端操作如何落到本地缓冲区上。
// 目前只有 SpliceReconciler：不带版本向量、不做变换，按接收顺序原样拼接。
// 两端并发编辑不同区域时可能失去同步；将来的 OT/CRDT 实现替换这里即可。
type Reconciler interface {
	Reconcile(buf Buffer, op delta.Operation) error
}

type SpliceReconciler struct{}

func (SpliceReconciler) Reconcile(buf Buffer, op delta.Operation) error {
	return buf.Apply(op)
}
