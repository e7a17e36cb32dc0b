package collab

import (
	"time"

	"collabClient/backend/internal/ot/delta"
)

const EventLocalOp = "LOCAL_OP"

// OpEvent 本地产生并已发出的一个操作，写入操作日志
type OpEvent struct {
	EventType     string          `json:"eventType"` // 固定 "LOCAL_OP"
	DocID         string          `json:"docId"`
	OperationID   string          `json:"operationId"`
	ParticipantID string          `json:"participantId"`
	ClientID      string          `json:"clientId"`
	Seq           uint64          `json:"seq"`     // 本会话内递增
	Version       uint64          `json:"version"` // 应用后本地文档版本
	Sent          bool            `json:"sent"`    // 是否真的入了发送队列
	Op            delta.Operation `json:"op"`
	CreatedAt     time.Time       `json:"createdAt"`
}
