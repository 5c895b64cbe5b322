package database

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) Database {
	t.Helper()
	db, err := NewDatabase(&Config{
		Type: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("创建数据库失败: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveAndGetRun(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	run := &RunRecord{
		RunID:          "20250115_103000_a1b2c3d4",
		Query:          "统计各分行的逾期客户数量",
		Template:       "branch_overdue_customers",
		Status:         "success",
		DurationMs:     120,
		ChartPath:      "/static/chart_20250115_103000_a1b2c3d4.png",
		CSVPath:        "/static/data_20250115_103000_a1b2c3d4.csv",
		TranscriptPath: "/transcripts/analysis_20250115_103000_a1b2c3d4.json",
	}
	if err := db.SaveRun(ctx, run); err != nil {
		t.Fatalf("保存运行记录失败: %v", err)
	}

	got, err := db.GetRun(ctx, run.RunID)
	if err != nil {
		t.Fatalf("查询运行记录失败: %v", err)
	}
	if got == nil || got.Template != run.Template || got.Status != run.Status {
		t.Errorf("运行记录不符: %+v", got)
	}
}

func TestGetRunNotFound(t *testing.T) {
	db := newTestDB(t)
	got, err := db.GetRun(context.Background(), "不存在")
	if err != nil {
		t.Fatalf("查询不应报错: %v", err)
	}
	if got != nil {
		t.Errorf("未找到时应返回 nil, 实际 %+v", got)
	}
}

func TestGetRunsFilterAndCount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	records := []*RunRecord{
		{RunID: "r1", Template: "branch_overdue_customers", Status: "success"},
		{RunID: "r2", Template: "branch_overdue_customers", Status: "failed"},
		{RunID: "r3", Template: "default_preview", Status: "success"},
	}
	for _, r := range records {
		if err := db.SaveRun(ctx, r); err != nil {
			t.Fatalf("保存运行记录失败: %v", err)
		}
	}

	runs, err := db.GetRuns(ctx, &RunFilter{Template: "branch_overdue_customers"})
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("期望2条记录, 实际 %d", len(runs))
	}

	count, err := db.CountRuns(ctx, &RunFilter{Status: "success"})
	if err != nil {
		t.Fatalf("统计失败: %v", err)
	}
	if count != 2 {
		t.Errorf("期望 success 记录2条, 实际 %d", count)
	}

	runs, err = db.GetRuns(ctx, &RunFilter{Limit: 1})
	if err != nil {
		t.Fatalf("分页查询失败: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("期望分页返回1条, 实际 %d", len(runs))
	}
}

func TestUnsupportedDatabaseType(t *testing.T) {
	if _, err := NewDatabase(&Config{Type: "oracle"}); err == nil {
		t.Error("不支持的数据库类型应返回错误")
	}
}
