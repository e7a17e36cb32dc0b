package ws

import (
	"encoding/json"
	"fmt"

	"collabClient/backend/internal/ot/delta"
	"collabClient/backend/internal/presence"
)

const (
	TypeInit           = "init"
	TypeInitOK         = "init_ok"
	TypeOperation      = "operation"
	TypeDocumentUpdate = "document_update"
	TypeSnapshot       = "snapshot"
	TypePresenceUser   = "presence_user"
	TypeUserLeft       = "user_left"
)

// 所有线上消息（一帧一个 JSON 对象，以 type 区分）
type Message interface {
	MessageType() string
}

// 出站：握手
type Init struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Username string `json:"username"`
}

// 入站：服务端确认的身份
type InitOK struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Username string `json:"username"`
}

// 双向：单个编辑操作，ID 是文档 id
type OperationMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Operation delta.Operation `json:"operation"`
}

// 出站：标题/语言元数据
type DocumentUpdate struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	Language string `json:"language,omitempty"`
}

// 双向：完整内容 + 完整名单
// Users 为 nil 时编码为 null，对端视为没有名单；空切片编码为 []，表示名单为空
type Snapshot struct {
	Type     string            `json:"type"`
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Title    string            `json:"title,omitempty"`
	Language string            `json:"language,omitempty"`
	Users    []presence.Member `json:"users"`
}

// 双向：某个参与者的光标，ID 是参与者 id
type PresenceUser struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Username   string `json:"username"`
	Color      string `json:"color,omitempty"`
	LineNumber *int   `json:"lineNumber,omitempty"`
	Column     *int   `json:"column,omitempty"`
}

// 入站：参与者离开
type UserLeft struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// 客户端还不认识的消息类型，原样保留
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (m Init) MessageType() string             { return TypeInit }
func (m InitOK) MessageType() string           { return TypeInitOK }
func (m OperationMessage) MessageType() string { return TypeOperation }
func (m DocumentUpdate) MessageType() string   { return TypeDocumentUpdate }
func (m Snapshot) MessageType() string         { return TypeSnapshot }
func (m PresenceUser) MessageType() string     { return TypePresenceUser }
func (m UserLeft) MessageType() string         { return TypeUserLeft }
func (m Unknown) MessageType() string          { return m.Type }

// Cursor 把可选的行列转成 presence.Cursor，缺任一项时返回 nil
func (m PresenceUser) Cursor() *presence.Cursor {
	if m.LineNumber == nil || m.Column == nil {
		return nil
	}
	return &presence.Cursor{Line: *m.LineNumber, Column: *m.Column}
}

// Encode 序列化消息，type 字段由消息类型决定
func Encode(m Message) ([]byte, error) {
	switch v := m.(type) {
	case Init:
		v.Type = TypeInit
		return json.Marshal(v)
	case InitOK:
		v.Type = TypeInitOK
		return json.Marshal(v)
	case OperationMessage:
		v.Type = TypeOperation
		return json.Marshal(v)
	case DocumentUpdate:
		v.Type = TypeDocumentUpdate
		return json.Marshal(v)
	case Snapshot:
		v.Type = TypeSnapshot
		return json.Marshal(v)
	case PresenceUser:
		v.Type = TypePresenceUser
		return json.Marshal(v)
	case UserLeft:
		v.Type = TypeUserLeft
		return json.Marshal(v)
	case Unknown:
		return v.Raw, nil
	default:
		return nil, fmt.Errorf("encode: unsupported message %T", m)
	}
}

// 只用来先读出 type
type msgType struct {
	Type string `json:"type"`
}

// Decode 先读 type 再解析成具体类型；未知 type 返回 Unknown，解析失败返回 error
func Decode(data []byte) (Message, error) {
	var mt msgType
	if err := json.Unmarshal(data, &mt); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch mt.Type {
	case TypeInit:
		return decodeAs[Init](data)
	case TypeInitOK:
		return decodeAs[InitOK](data)
	case TypeOperation:
		return decodeAs[OperationMessage](data)
	case TypeDocumentUpdate:
		return decodeAs[DocumentUpdate](data)
	case TypeSnapshot:
		return decodeAs[Snapshot](data)
	case TypePresenceUser:
		return decodeAs[PresenceUser](data)
	case TypeUserLeft:
		return decodeAs[UserLeft](data)
	case "":
		return nil, fmt.Errorf("decode: missing type")
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return Unknown{Type: mt.Type, Raw: raw}, nil
	}
}

func decodeAs[T Message](data []byte) (Message, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", v.MessageType(), err)
	}
	return v, nil
}
