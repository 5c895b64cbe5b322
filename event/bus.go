// Package event 运行事件总线，向订阅方广播分析运行的生命周期事件。
package event

import (
	"sync"
	"time"

	"edgerisk/logger"
)

// EventType 事件类型
type EventType string

const (
	EventTypeRunStarted  EventType = "run_started"
	EventTypeRunFinished EventType = "run_finished"
	EventTypeSystemStart EventType = "system_start"
	EventTypeSystemStop  EventType = "system_stop"
)

// Event 分析运行事件
type Event struct {
	Type           EventType `json:"type"`
	RunID          string    `json:"run_id,omitempty"`
	Query          string    `json:"query,omitempty"`
	Template       string    `json:"template,omitempty"`
	Status         string    `json:"status,omitempty"`
	Error          string    `json:"error,omitempty"`
	DurationMs     int64     `json:"duration_ms,omitempty"`
	ChartPath      string    `json:"chart_path,omitempty"`
	CSVPath        string    `json:"csv_path,omitempty"`
	TranscriptPath string    `json:"transcript_path,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Bus 事件总线，支持多订阅方；发布永不阻塞
type Bus struct {
	mu          sync.RWMutex
	subscribers map[chan *Event]bool
	bufferSize  int
	closed      bool
}

// NewBus 创建事件总线
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{
		subscribers: make(map[chan *Event]bool),
		bufferSize:  bufferSize,
	}
}

// Subscribe 注册订阅方，返回接收事件的 channel
func (b *Bus) Subscribe() chan *Event {
	ch := make(chan *Event, b.bufferSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers[ch] = true
	return ch
}

// Unsubscribe 注销订阅方并关闭其 channel
func (b *Bus) Unsubscribe(ch chan *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers[ch] {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Publish 向所有订阅方广播事件（非阻塞，队列满时丢弃）
func (b *Bus) Publish(event *Event) {
	if event == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			logger.Warn("⚠️ 事件队列已满，丢弃事件: %s", event.Type)
		}
	}
}

// Close 关闭事件总线及所有订阅 channel
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
}
