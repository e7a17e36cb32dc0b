package presence

// Cursor 光标位置，行列均从 1 开始（与编辑器一致）
type Cursor struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type User struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Color    string  `json:"color"`
	Cursor   *Cursor `json:"cursor,omitempty"`
}

// Member 快照里携带的名单条目
type Member struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Decoration 编辑器需要渲染的远端光标
type Decoration struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Color    string `json:"color"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

// Roster 当前文档会话的参与者名单，id 唯一，保持首次出现的顺序。
// 非并发安全，由 Session 串行访问。
type Roster struct {
	users map[string]*User
	order []string
}

func NewRoster() *Roster {
	return &Roster{users: make(map[string]*User)}
}

func (r *Roster) Len() int { return len(r.order) }

func (r *Roster) Get(id string) (User, bool) {
	u, ok := r.users[id]
	if !ok {
		return User{}, false
	}
	return copyUser(u), true
}

// List 返回名单副本
func (r *Roster) List() []User {
	out := make([]User, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, copyUser(r.users[id]))
	}
	return out
}

// Members 快照发送用的精简名单
func (r *Roster) Members() []Member {
	out := make([]Member, 0, len(r.order))
	for _, id := range r.order {
		u := r.users[id]
		out = append(out, Member{ID: u.ID, Username: u.Username})
	}
	return out
}

// ReconcileSnapshot 用快照名单整体对齐：
// 已存在的 id 保留颜色和光标、只更新用户名；新 id 填默认值；
// 空 id 或空用户名的条目丢弃；快照里没有的条目被移除。
func (r *Roster) ReconcileSnapshot(members []Member) {
	users := make(map[string]*User, len(members))
	order := make([]string, 0, len(members))
	for _, m := range members {
		if m.ID == "" || m.Username == "" {
			continue
		}
		if _, dup := users[m.ID]; dup {
			continue
		}
		u, ok := r.users[m.ID]
		if ok {
			u.Username = m.Username
		} else {
			u = &User{ID: m.ID, Username: m.Username, Color: ColorFor(m.ID)}
		}
		users[m.ID] = u
		order = append(order, m.ID)
	}
	r.users = users
	r.order = order
}

// Upsert 处理单条 presence_user：按 id 插入或整体替换颜色和光标。
// 没给颜色时按 id 推导。
func (r *Roster) Upsert(u User) bool {
	if u.ID == "" {
		return false
	}
	if u.Color == "" {
		u.Color = ColorFor(u.ID)
	}
	existing, ok := r.users[u.ID]
	if !ok {
		if u.Username == "" {
			return false
		}
		nu := copyUser(&u)
		r.users[u.ID] = &nu
		r.order = append(r.order, u.ID)
		return true
	}
	if u.Username != "" {
		existing.Username = u.Username
	}
	existing.Color = u.Color
	existing.Cursor = copyCursor(u.Cursor)
	return true
}

// Confirm 写入服务端确认的身份，保留已知的颜色和光标
func (r *Roster) Confirm(id, username string) bool {
	if id == "" || username == "" {
		return false
	}
	if u, ok := r.users[id]; ok {
		u.Username = username
		return true
	}
	r.users[id] = &User{ID: id, Username: username, Color: ColorFor(id)}
	r.order = append(r.order, id)
	return true
}

// SetCursor 只更新光标，id 不存在时返回 false
func (r *Roster) SetCursor(id string, c Cursor) bool {
	u, ok := r.users[id]
	if !ok {
		return false
	}
	u.Cursor = &c
	return true
}

// Remove 按 id 删除，未知 id 为空操作
func (r *Roster) Remove(id string) bool {
	if _, ok := r.users[id]; !ok {
		return false
	}
	delete(r.users, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Decorations 返回除本地参与者外、有光标的成员
func (r *Roster) Decorations(localID string) []Decoration {
	var out []Decoration
	for _, id := range r.order {
		u := r.users[id]
		if id == localID || u.Cursor == nil {
			continue
		}
		out = append(out, Decoration{
			UserID:   u.ID,
			Username: u.Username,
			Color:    u.Color,
			Line:     u.Cursor.Line,
			Column:   u.Cursor.Column,
		})
	}
	return out
}

func copyUser(u *User) User {
	c := *u
	c.Cursor = copyCursor(u.Cursor)
	return c
}

func copyCursor(c *Cursor) *Cursor {
	if c == nil {
		return nil
	}
	cc := *c
	return &cc
}
