// Package database 分析运行记录的持久化层。
package database

import (
	"context"
	"time"
)

// Database 数据库接口
type Database interface {
	// 运行记录
	SaveRun(ctx context.Context, run *RunRecord) error
	GetRun(ctx context.Context, runID string) (*RunRecord, error)
	GetRuns(ctx context.Context, filter *RunFilter) ([]*RunRecord, error)
	CountRuns(ctx context.Context, filter *RunFilter) (int64, error)

	// 健康检查
	Ping(ctx context.Context) error

	// 关闭连接
	Close() error
}

// RunRecord 一次分析运行的持久化记录
type RunRecord struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID          string    `gorm:"uniqueIndex;size:40" json:"run_id"`
	Query          string    `gorm:"size:500" json:"query"`
	Template       string    `gorm:"index;size:64" json:"template"`
	Status         string    `gorm:"index;size:16" json:"status"`
	Error          string    `gorm:"size:1000" json:"error,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
	ChartPath      string    `gorm:"size:255" json:"chart_path"`
	CSVPath        string    `gorm:"size:255" json:"csv_path"`
	TranscriptPath string    `gorm:"size:255" json:"transcript_path"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

// TableName 指定表名
func (RunRecord) TableName() string {
	return "analysis_runs"
}

// RunFilter 运行记录查询条件
type RunFilter struct {
	Template  string
	Status    string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}
