// Package scheduler 同步节奏：
// 操作立即发送（不经过这里）；快照周期发送；标题/语言防抖发送；格式化防抖执行。
package scheduler

import "time"

const (
	DefaultSnapshotInterval = 5 * time.Second
	DefaultMetadataDebounce = 300 * time.Millisecond
	DefaultFormatDebounce   = time.Second
)

type Config struct {
	SnapshotInterval time.Duration `mapstructure:"snapshotInterval"`
	MetadataDebounce time.Duration `mapstructure:"metadataDebounce"`
	FormatDebounce   time.Duration `mapstructure:"formatDebounce"`
}

// withDefaults 把零值替换为默认间隔
func (c Config) withDefaults() Config {
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = DefaultSnapshotInterval
	}
	if c.MetadataDebounce <= 0 {
		c.MetadataDebounce = DefaultMetadataDebounce
	}
	if c.FormatDebounce <= 0 {
		c.FormatDebounce = DefaultFormatDebounce
	}
	return c
}

// Tasks 各个定时器到期时调用的函数，执行时读取最新状态
type Tasks struct {
	Snapshot func()
	Metadata func()
	Format   func()
}

type Scheduler struct {
	cfg      Config
	tasks    Tasks
	snapshot *Periodic
	metadata *Debouncer
	format   *Debouncer
}

func New(cfg Config, tasks Tasks) *Scheduler {
	cfg = cfg.withDefaults()
	noop := func() {}
	if tasks.Snapshot == nil {
		tasks.Snapshot = noop
	}
	if tasks.Metadata == nil {
		tasks.Metadata = noop
	}
	if tasks.Format == nil {
		tasks.Format = noop
	}
	return &Scheduler{
		cfg:      cfg,
		tasks:    tasks,
		snapshot: NewPeriodic(cfg.SnapshotInterval, tasks.Snapshot),
		metadata: NewDebouncer(cfg.MetadataDebounce),
		format:   NewDebouncer(cfg.FormatDebounce),
	}
}

func (s *Scheduler) Config() Config { return s.cfg }

// Start 开始周期快照
func (s *Scheduler) Start() { s.snapshot.Start() }

// MetadataChanged 标题或语言变了，300ms 内的多次修改合并为一次发送
func (s *Scheduler) MetadataChanged() { s.metadata.Trigger(s.tasks.Metadata) }

// FormatRequested 与 MetadataChanged 相互独立
func (s *Scheduler) FormatRequested() { s.format.Trigger(s.tasks.Format) }

// Stop 停止所有定时器，未到期的触发全部丢弃
func (s *Scheduler) Stop() {
	s.snapshot.Stop()
	s.metadata.Stop()
	s.format.Stop()
}
