package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"edgerisk/analyst"
	"edgerisk/database"
	"edgerisk/ledger"
	"edgerisk/logger"
	"edgerisk/metrics"
	"edgerisk/riskstats"
	"edgerisk/sandbox"
	"edgerisk/storage"
	"edgerisk/utils"
)

// 全局依赖（由 main.go 注入）
var (
	globalLedger   *ledger.Ledger
	globalExecutor *sandbox.Executor
	globalDB       database.Database
	globalLogStore *storage.LogStore

	appName    string
	appVersion string
	startTime  = time.Now()
)

// SetLedger 注入台账
func SetLedger(l *ledger.Ledger) {
	globalLedger = l
}

// SetExecutor 注入脚本执行器
func SetExecutor(e *sandbox.Executor) {
	globalExecutor = e
}

// SetDatabase 注入运行记录数据库
func SetDatabase(db database.Database) {
	globalDB = db
}

// SetLogStore 注入日志存储
func SetLogStore(ls *storage.LogStore) {
	globalLogStore = ls
}

// SetAppInfo 注入应用名称与版本
func SetAppInfo(name, version string) {
	appName = name
	appVersion = version
}

// respondError 按请求语言返回错误
func respondError(c *gin.Context, status int, messageKey string, data ...interface{}) {
	c.JSON(status, gin.H{"error": T(c, messageKey, data...)})
}

// getAppInfo 根路径应用信息
func getAppInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    appName,
		"version": appVersion,
		"status":  "running",
	})
}

// getVersion 版本号
// GET /api/version
func getVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": appVersion})
}

// AnalyzeRequest 分析请求
type AnalyzeRequest struct {
	Query string `json:"query" binding:"required"`
}

// AnalyzeResponse 分析响应，路径为空表示对应产物未产出
type AnalyzeResponse struct {
	RunID        string `json:"run_id"`
	Template     string `json:"template"`
	Status       string `json:"status"`
	Analysis     string `json:"analysis"`
	ImagePath    string `json:"image_path,omitempty"`
	DownloadPath string `json:"download_path,omitempty"`
	NotebookPath string `json:"notebook_path,omitempty"`
	Error        string `json:"error,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
}

// analyzeHandler 接收自然语言查询，选择模版并在沙箱中执行
// POST /api/analyze
func analyzeHandler(c *gin.Context) {
	if globalExecutor == nil {
		respondError(c, http.StatusServiceUnavailable, "error.analyze_failed")
		return
	}

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "error.invalid_request")
		return
	}
	if len([]rune(req.Query)) == 0 || len(req.Query) > 500 {
		respondError(c, http.StatusBadRequest, "error.empty_query")
		return
	}

	template, program := analyst.SelectTemplate(req.Query)
	result, err := globalExecutor.Execute(c.Request.Context(), req.Query, template, program)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "error.analyze_failed")
		return
	}

	saveRunRecord(result)

	// 执行失败映射为 500，失败前的部分输出随响应体一并返回
	status := http.StatusOK
	if result.Status == sandbox.StatusFailed {
		status = http.StatusInternalServerError
	}
	c.JSON(status, AnalyzeResponse{
		RunID:        result.RunID,
		Template:     result.Template,
		Status:       result.Status,
		Analysis:     result.TextOutput,
		ImagePath:    result.ChartPath,
		DownloadPath: result.CSVPath,
		NotebookPath: result.TranscriptPath,
		Error:        result.Error,
		DurationMs:   result.DurationMs,
	})
}

// saveRunRecord 运行记录落库，失败只告警不影响响应
func saveRunRecord(result *sandbox.Result) {
	if globalDB == nil {
		return
	}
	record := &database.RunRecord{
		RunID:          result.RunID,
		Query:          result.Query,
		Template:       result.Template,
		Status:         result.Status,
		Error:          result.Error,
		DurationMs:     result.DurationMs,
		ChartPath:      result.ChartPath,
		CSVPath:        result.CSVPath,
		TranscriptPath: result.TranscriptPath,
		CreatedAt:      utils.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := globalDB.SaveRun(ctx, record); err != nil {
			logger.Warn("⚠️ 运行记录落库失败 [%s]: %v", record.RunID, err)
		}
	}()
}

// dashboardHandler 风险看板聚合
// GET /api/dashboard
func dashboardHandler(c *gin.Context) {
	if globalLedger == nil {
		respondError(c, http.StatusServiceUnavailable, "error.dashboard_failed")
		return
	}
	metrics.GetPrometheusMetrics().RecordDashboardRequest()
	c.JSON(http.StatusOK, riskstats.Compute(globalLedger, utils.Now()))
}

// runsHandler 运行记录分页查询
// GET /api/runs
func runsHandler(c *gin.Context) {
	if globalDB == nil {
		respondError(c, http.StatusServiceUnavailable, "error.runs_query_failed")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	filter := &database.RunFilter{
		Template: c.Query("template"),
		Status:   c.Query("status"),
		Limit:    limit,
		Offset:   offset,
	}

	ctx := c.Request.Context()
	runs, err := globalDB.GetRuns(ctx, filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "error.runs_query_failed")
		return
	}
	total, err := globalDB.CountRuns(ctx, filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "error.runs_query_failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs, "total": total})
}

// runDetailHandler 单条运行记录
// GET /api/runs/:run_id
func runDetailHandler(c *gin.Context) {
	if globalDB == nil {
		respondError(c, http.StatusServiceUnavailable, "error.runs_query_failed")
		return
	}
	run, err := globalDB.GetRun(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "error.runs_query_failed")
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// systemStatusHandler 系统状态
// GET /api/system/status
func systemStatusHandler(c *gin.Context) {
	status := gin.H{
		"name":    appName,
		"version": appVersion,
		"uptime":  int64(time.Since(startTime).Seconds()),
	}
	if globalLedger != nil {
		status["ledger_rows"] = globalLedger.Len()
		status["ledger_path"] = globalLedger.Path()
	}
	if globalDB != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		status["database_ok"] = globalDB.Ping(ctx) == nil
	}
	if sm, err := metrics.CollectSystemMetrics(); err == nil {
		status["system"] = sm
	}
	c.JSON(http.StatusOK, status)
}

// getLogsHandler 日志查询
// GET /api/logs
func getLogsHandler(c *gin.Context) {
	if globalLogStore == nil {
		c.JSON(http.StatusOK, gin.H{"logs": []interface{}{}, "total": 0})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	query := storage.LogQuery{
		Level:   c.Query("level"),
		Keyword: c.Query("keyword"),
		Limit:   limit,
		Offset:  offset,
	}
	if v := c.Query("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			query.StartTime = t
		}
	}
	if v := c.Query("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			query.EndTime = t
		}
	}

	logs, total, err := globalLogStore.QueryLogs(query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "total": total})
}

// cleanLogsHandler 清理过期日志
// POST /api/logs/clean
func cleanLogsHandler(c *gin.Context) {
	if globalLogStore == nil {
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days <= 0 {
		days = 30
	}
	if err := globalLogStore.CleanOldLogs(days); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// vacuumLogsHandler 回收日志数据库空间
// POST /api/logs/vacuum
func vacuumLogsHandler(c *gin.Context) {
	if globalLogStore == nil {
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}
	if err := globalLogStore.Vacuum(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
