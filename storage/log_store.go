// Package storage 基于 SQLite 的运行日志存储。
// 写入走异步批量通道，查询与清理直接访问数据库。
package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"edgerisk/utils"
)

// LogStore 日志存储
type LogStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	logCh  chan *logEntry
	closed bool

	subMu       sync.RWMutex
	subscribers []chan *LogRecord
}

type logEntry struct {
	level     string
	message   string
	timestamp time.Time
}

// LogRecord 一条持久化的日志
type LogRecord struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// LogQuery 日志查询条件
type LogQuery struct {
	StartTime time.Time
	EndTime   time.Time
	Level     string
	Keyword   string
	Limit     int
	Offset    int
}

// NewLogStore 打开日志数据库，WAL 模式
func NewLogStore(path string) (*LogStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("打开日志数据库失败: %w", err)
	}
	// SQLite 单写者
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ls := &LogStore{
		db:    db,
		logCh: make(chan *logEntry, 500),
	}
	if err := ls.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("创建日志表失败: %w", err)
	}

	go ls.processLogs()
	return ls, nil
}

func (ls *LogStore) createTable() error {
	ddl := `
	CREATE TABLE IF NOT EXISTS logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_logs_level ON logs(level);
	`
	_, err := ls.db.Exec(ddl)
	return err
}

// WriteLog 异步写入一条日志，队列满时丢弃
func (ls *LogStore) WriteLog(level, message string) {
	if ls.closed {
		return
	}
	entry := &logEntry{level: level, message: message, timestamp: utils.NowUTC()}
	select {
	case ls.logCh <- entry:
	default:
	}
}

// processLogs 独立协程中批量落盘，每秒或满100条刷新
func (ls *LogStore) processLogs() {
	buffer := make([]*logEntry, 0, 100)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		ls.mu.Lock()
		// 写入失败时静默丢弃，日志存储不能反过来影响主流程
		_ = ls.batchInsert(buffer)
		ls.mu.Unlock()
		buffer = buffer[:0]
	}

	for {
		select {
		case entry, ok := <-ls.logCh:
			if !ok {
				flush()
				return
			}
			buffer = append(buffer, entry)
			if len(buffer) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (ls *LogStore) batchInsert(entries []*logEntry) error {
	tx, err := ls.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO logs (timestamp, level, message) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	inserted := make([]*LogRecord, 0, len(entries))
	for _, entry := range entries {
		result, err := stmt.Exec(entry.timestamp, entry.level, entry.message)
		if err != nil {
			return err
		}
		id, _ := result.LastInsertId()
		inserted = append(inserted, &LogRecord{
			ID: id, Timestamp: entry.timestamp,
			Level: entry.level, Message: entry.message,
		})
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	ls.notifySubscribers(inserted)
	return nil
}

// Subscribe 订阅新写入的日志，用于前端实时推送
func (ls *LogStore) Subscribe() chan *LogRecord {
	ls.subMu.Lock()
	defer ls.subMu.Unlock()
	ch := make(chan *LogRecord, 100)
	ls.subscribers = append(ls.subscribers, ch)
	return ch
}

// Unsubscribe 取消订阅并关闭 channel
func (ls *LogStore) Unsubscribe(ch chan *LogRecord) {
	ls.subMu.Lock()
	defer ls.subMu.Unlock()
	for i, sub := range ls.subscribers {
		if sub == ch {
			ls.subscribers = append(ls.subscribers[:i], ls.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

func (ls *LogStore) notifySubscribers(logs []*LogRecord) {
	ls.subMu.RLock()
	subscribers := make([]chan *LogRecord, len(ls.subscribers))
	copy(subscribers, ls.subscribers)
	ls.subMu.RUnlock()

	go func() {
		for _, record := range logs {
			for _, sub := range subscribers {
				select {
				case sub <- record:
				default:
				}
			}
		}
	}()
}

// QueryLogs 按条件分页查询，返回记录与总数
func (ls *LogStore) QueryLogs(q LogQuery) ([]*LogRecord, int, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	where := []string{"1=1"}
	args := []interface{}{}
	if !q.StartTime.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, q.StartTime)
	}
	if !q.EndTime.IsZero() {
		where = append(where, "timestamp <= ?")
		args = append(args, q.EndTime)
	}
	if q.Level != "" {
		where = append(where, "level = ?")
		args = append(args, q.Level)
	}
	if q.Keyword != "" {
		where = append(where, "message LIKE ?")
		args = append(args, "%"+q.Keyword+"%")
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	if err := ls.db.QueryRow("SELECT COUNT(*) FROM logs WHERE "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("查询日志总数失败: %w", err)
	}

	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 1000 {
		q.Limit = 1000
	}
	args = append(args, q.Limit, q.Offset)

	rows, err := ls.db.Query(
		"SELECT id, timestamp, level, message FROM logs WHERE "+whereClause+
			" ORDER BY timestamp DESC LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, 0, fmt.Errorf("查询日志失败: %w", err)
	}
	defer rows.Close()

	var records []*LogRecord
	for rows.Next() {
		var r LogRecord
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Level, &r.Message); err != nil {
			continue
		}
		records = append(records, &r)
	}
	return records, total, nil
}

// CleanOldLogs 删除超过保留天数的日志
func (ls *LogStore) CleanOldLogs(days int) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	cutoff := time.Now().AddDate(0, 0, -days)
	_, err := ls.db.Exec("DELETE FROM logs WHERE timestamp < ?", cutoff)
	return err
}

// Vacuum 回收数据库空间
func (ls *LogStore) Vacuum() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	_, err := ls.db.Exec("VACUUM")
	return err
}

// Close 关闭存储，等待写入协程刷新剩余日志
func (ls *LogStore) Close() error {
	ls.mu.Lock()
	if ls.closed {
		ls.mu.Unlock()
		return nil
	}
	ls.closed = true
	close(ls.logCh)
	ls.mu.Unlock()

	ls.subMu.Lock()
	for _, sub := range ls.subscribers {
		close(sub)
	}
	ls.subscribers = nil
	ls.subMu.Unlock()

	time.Sleep(100 * time.Millisecond)
	return ls.db.Close()
}
