package collab

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

// Journal 本地操作日志。Record 不能阻塞会话
type Journal interface {
	Record(evt OpEvent) bool
	Close() error
}

// NopJournal 没有配置 Kafka 时使用
type NopJournal struct{}

func (NopJournal) Record(OpEvent) bool { return true }
func (NopJournal) Close() error        { return nil }

// JournalDispatcher：本地有界队列 + worker 异步发送 + 有限重试。
// 队列满时直接丢弃，编辑流程不等 Kafka。
type JournalDispatcher struct {
	producer sarama.SyncProducer
	topic    string

	queue chan OpEvent
	sem   *Semaphore
	wg    sync.WaitGroup

	closeOnce sync.Once

	workers     int
	maxRetry    int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

type JournalOptions struct {
	QueueSize   int
	Workers     int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultJournalOptions() JournalOptions {
	return JournalOptions{
		//  Go 允许在数字里用下划线做分隔符，方便阅读
		QueueSize:   10_000,
		Workers:     2,
		MaxRetry:    3,
		BaseBackoff: 50 * time.Millisecond,
		MaxBackoff:  time.Second,
	}
}

var _ Journal = (*JournalDispatcher)(nil)

func NewJournalDispatcher(producer sarama.SyncProducer, topic string, sem *Semaphore, opt JournalOptions) *JournalDispatcher {
	if opt.QueueSize <= 0 {
		opt.QueueSize = 1
	}
	if opt.Workers <= 0 {
		opt.Workers = 1
	}
	d := &JournalDispatcher{
		producer:    producer,
		topic:       topic,
		queue:       make(chan OpEvent, opt.QueueSize),
		sem:         sem,
		workers:     opt.Workers,
		maxRetry:    opt.MaxRetry,
		baseBackoff: opt.BaseBackoff,
		maxBackoff:  opt.MaxBackoff,
	}
	d.start()
	return d
}

// NewProducer 按 collab 服务的参数创建同步 producer
func NewProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	// SyncProducer 必须开启 Return.Successes
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	return sarama.NewSyncProducer(brokers, cfg)
}

// Record 入队，队列满返回 false
func (d *JournalDispatcher) Record(evt OpEvent) bool {
	select {
	case d.queue <- evt:
		return true
	default:
		log.Printf("journal queue full, drop event doc=%s op=%s", evt.DocID, evt.OperationID)
		return false
	}
}

// Close 停止接收并等待队列里的事件发完。Close 之后不能再 Record
func (d *JournalDispatcher) Close() error {
	d.closeOnce.Do(func() {
		close(d.queue)
		d.wg.Wait()
	})
	return nil
}

func (d *JournalDispatcher) start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.workerLoop(i)
	}
}

func (d *JournalDispatcher) workerLoop(workerID int) {
	defer d.wg.Done()
	for evt := range d.queue {
		d.sendWithRetry(workerID, evt)
	}
}

func (d *JournalDispatcher) sendWithRetry(workerID int, evt OpEvent) {
	for attempt := 0; attempt <= d.maxRetry; attempt++ {
		if d.sem != nil {
			_ = d.sem.Acquire(context.Background())
		}
		err := d.sendOnce(evt)
		if d.sem != nil {
			_ = d.sem.Release()
		}
		if err == nil {
			return
		}
		if attempt == d.maxRetry {
			log.Printf("journal send failed, drop event doc=%s op=%s seq=%d worker=%d err=%v",
				evt.DocID, evt.OperationID, evt.Seq, workerID, err)
			return
		}
		time.Sleep(d.backoff(attempt))
	}
}

// backoff 每次翻倍，不超过 maxBackoff
func (d *JournalDispatcher) backoff(attempt int) time.Duration {
	b := d.baseBackoff * time.Duration(1<<attempt)
	if b > d.maxBackoff {
		b = d.maxBackoff
	}
	return b
}

func (d *JournalDispatcher) sendOnce(evt OpEvent) error {
	if d.producer == nil || d.topic == "" {
		return nil
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.StringEncoder(evt.DocID),
		Value: sarama.ByteEncoder(b),
	}
	_, _, err = d.producer.SendMessage(msg)
	return err
}
