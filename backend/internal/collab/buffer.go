package collab

import (
	"collabClient/backend/internal/ot/delta"
)

// 文档内容缓冲区接口
// Apply 按单个操作的绝对位置修改内容，越界时截断，不返回越界错误
type Buffer interface {
	Len() int
	Apply(op delta.Operation) error
	Reset(content string)
	String() string
}

/*
结构示例

初始文档内容 `"Hello world"`：

- original buffer 内容：`"Hello world"`
- add buffer 为空
- piece 表：

[ (orig, offset=0, length=11) ]

收到 {type: insert, position: 5, content: " collaborative"}：
- add buffer 追加 `" collaborative"`
- piece 表拆成三条：

[
  (orig, offset=0, length=5),   // "Hello"
  (add,  offset=0, length=14),  // " collaborative"
  (orig, offset=5, length=6),   // " world"
]

收到 snapshot 时 Reset 整体替换 original，清空 add 和 piece 表。
*/
