package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func TestWriteAndQueryLogs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.db")
	ls, err := NewLogStore(path)
	if err != nil {
		t.Fatalf("创建日志存储失败: %v", err)
	}

	ls.WriteLog("INFO", "系统启动")
	ls.WriteLog("ERROR", "分析运行失败")
	// Close 会刷新缓冲区
	if err := ls.Close(); err != nil {
		t.Fatalf("关闭日志存储失败: %v", err)
	}

	ls, err = NewLogStore(path)
	if err != nil {
		t.Fatalf("重新打开日志存储失败: %v", err)
	}
	defer ls.Close()

	records, total, err := ls.QueryLogs(LogQuery{})
	if err != nil {
		t.Fatalf("查询日志失败: %v", err)
	}
	if total != 2 || len(records) != 2 {
		t.Fatalf("期望2条日志, 实际 total=%d len=%d", total, len(records))
	}

	records, total, err = ls.QueryLogs(LogQuery{Level: "ERROR"})
	if err != nil {
		t.Fatalf("按级别查询失败: %v", err)
	}
	if total != 1 || records[0].Message != "分析运行失败" {
		t.Errorf("按级别查询结果不符: total=%d records=%+v", total, records)
	}

	_, total, err = ls.QueryLogs(LogQuery{Keyword: "启动"})
	if err != nil {
		t.Fatalf("按关键字查询失败: %v", err)
	}
	if total != 1 {
		t.Errorf("期望关键字命中1条, 实际 %d", total)
	}
}

func TestSubscribeReceivesNewLogs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.db")
	ls, err := NewLogStore(path)
	if err != nil {
		t.Fatalf("创建日志存储失败: %v", err)
	}
	defer ls.Close()

	ch := ls.Subscribe()
	ls.WriteLog("WARN", "事件队列已满")

	select {
	case record := <-ch:
		if record.Level != "WARN" {
			t.Errorf("订阅收到的日志级别不符: %s", record.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("订阅方未在批量刷新后收到日志")
	}
}

func TestCleanOldLogs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.db")
	ls, err := NewLogStore(path)
	if err != nil {
		t.Fatalf("创建日志存储失败: %v", err)
	}
	defer ls.Close()

	// 直接写入一条过期日志
	old := time.Now().AddDate(0, 0, -40)
	if _, err := ls.db.Exec(
		"INSERT INTO logs (timestamp, level, message) VALUES (?, ?, ?)",
		old, "INFO", "过期日志"); err != nil {
		t.Fatalf("插入过期日志失败: %v", err)
	}

	if err := ls.CleanOldLogs(30); err != nil {
		t.Fatalf("清理过期日志失败: %v", err)
	}
	_, total, err := ls.QueryLogs(LogQuery{})
	if err != nil {
		t.Fatalf("查询日志失败: %v", err)
	}
	if total != 0 {
		t.Errorf("过期日志应被清理, 实际剩余 %d", total)
	}
}
