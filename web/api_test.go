package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"edgerisk/config"
	"edgerisk/database"
	"edgerisk/i18n"
	"edgerisk/ledger"
	"edgerisk/sandbox"
)

func testRows() []ledger.Row {
	birth := time.Date(1985, 3, 1, 0, 0, 0, 0, time.UTC)
	return []ledger.Row{
		{Branch: "北京分行", SubBranch: "海淀支行", Class: "次级", CustomerID: "C001", Product: "个人经营贷", OverdueDays: 95, Balance: 500000, BirthDate: birth},
		{Branch: "上海分行", SubBranch: "浦东支行", Class: "正常", CustomerID: "C002", Product: "个人消费贷", OverdueDays: 0, Balance: 300000, BirthDate: birth},
	}
}

// newTestRouter 组装带真实依赖的路由
func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if err := i18n.Init("zh-CN"); err != nil {
		t.Fatalf("初始化 i18n 失败: %v", err)
	}

	l := ledger.New(testRows())
	SetLedger(l)

	exec, err := sandbox.NewExecutor(sandbox.Options{
		OutputDir:     filepath.Join(t.TempDir(), "static"),
		TranscriptDir: filepath.Join(t.TempDir(), "transcripts"),
		Timeout:       30 * time.Second,
		MaxConcurrent: 4,
	}, l, nil)
	if err != nil {
		t.Fatalf("创建执行器失败: %v", err)
	}
	SetExecutor(exec)

	db, err := database.NewDatabase(&database.Config{
		Type: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "runs.db"),
	})
	if err != nil {
		t.Fatalf("创建数据库失败: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	SetDatabase(db)
	SetAppInfo("EdgeRisk Insight", "test")

	cfg := &config.Config{}
	cfg.Web.Enabled = true
	cfg.Web.AuthEnabled = false
	cfg.Sandbox.OutputDir = t.TempDir()
	cfg.Sandbox.TranscriptDir = t.TempDir()

	r := gin.New()
	r.Use(I18nMiddleware())
	setupRoutes(r, cfg)
	return r
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAnalyzeEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := doRequest(r, http.MethodPost, "/api/analyze", `{"query":"统计各分行的逾期客户数量"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d: %s", w.Code, w.Body.String())
	}

	var resp AnalyzeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("响应不是合法 JSON: %v", err)
	}
	if resp.Template != "branch_overdue_customers" {
		t.Errorf("模版不符: %s", resp.Template)
	}
	if resp.Status != "success" {
		t.Errorf("期望执行成功, 实际 %s, 错误 %s", resp.Status, resp.Error)
	}
	if !strings.Contains(resp.Analysis, "北京分行") {
		t.Errorf("分析文本不符:\n%s", resp.Analysis)
	}
	if resp.ImagePath == "" || resp.DownloadPath == "" || resp.NotebookPath == "" {
		t.Errorf("产物路径不完整: %+v", resp)
	}
}

func TestAnalyzeFailureMapsTo500(t *testing.T) {
	r := newTestRouter(t)

	// 产物目录被普通文件占据后图表无法落盘，运行以 failed 结束
	outDir := filepath.Join(t.TempDir(), "static")
	exec, err := sandbox.NewExecutor(sandbox.Options{
		OutputDir:     outDir,
		TranscriptDir: filepath.Join(t.TempDir(), "transcripts"),
		Timeout:       30 * time.Second,
	}, ledger.New(testRows()), nil)
	if err != nil {
		t.Fatalf("创建执行器失败: %v", err)
	}
	if err := os.RemoveAll(outDir); err != nil {
		t.Fatalf("清理产物目录失败: %v", err)
	}
	if err := os.WriteFile(outDir, []byte("occupied"), 0644); err != nil {
		t.Fatalf("占用产物目录失败: %v", err)
	}
	SetExecutor(exec)

	w := doRequest(r, http.MethodPost, "/api/analyze", `{"query":"统计各分行的逾期客户数量"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("失败运行应返回 500, 实际 %d: %s", w.Code, w.Body.String())
	}

	var resp AnalyzeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("响应不是合法 JSON: %v", err)
	}
	if resp.Status != "failed" || resp.Error == "" {
		t.Errorf("失败状态未随响应返回: %+v", resp)
	}
	// 失败前的部分输出与执行记录路径要保留在响应体中
	if !strings.Contains(resp.Analysis, "北京分行") || !strings.Contains(resp.Analysis, "ERROR:") {
		t.Errorf("部分输出未保留:\n%s", resp.Analysis)
	}
	if resp.NotebookPath == "" {
		t.Error("失败运行也应返回执行记录路径")
	}
}

func TestAnalyzeRejectsEmptyQuery(t *testing.T) {
	r := newTestRouter(t)
	w := doRequest(r, http.MethodPost, "/api/analyze", `{"query":""}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("空查询应返回 400, 实际 %d", w.Code)
	}
}

func TestDashboardEndpoint(t *testing.T) {
	r := newTestRouter(t)
	w := doRequest(r, http.MethodGet, "/api/dashboard", "")
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d", w.Code)
	}

	var stats map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("响应不是合法 JSON: %v", err)
	}
	for _, key := range []string{
		"summary", "branch_npl_rank", "asset_quality_distribution",
		"product_npl_rank", "product_overdue_balance",
		"overdue_day_distribution", "age_risk_performance",
	} {
		if _, ok := stats[key]; !ok {
			t.Errorf("看板响应缺少字段 %s", key)
		}
	}
}

func TestExportReportEndpoint(t *testing.T) {
	r := newTestRouter(t)
	w := doRequest(r, http.MethodGet, "/api/report/export", "")
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d", w.Code)
	}

	var resp struct {
		Content  string `json:"content"`
		Filename string `json:"filename"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("响应不是合法 JSON: %v", err)
	}
	if !strings.Contains(resp.Content, "全行风控分析报告") {
		t.Errorf("报告内容不符:\n%s", resp.Content)
	}
	if !strings.HasPrefix(resp.Filename, "EdgeRisk_Report_") || !strings.HasSuffix(resp.Filename, ".md") {
		t.Errorf("报告文件名不符: %s", resp.Filename)
	}
}

func TestRunsEndpointAfterAnalyze(t *testing.T) {
	r := newTestRouter(t)

	w := doRequest(r, http.MethodPost, "/api/analyze", `{"query":"看看各产品的贷款金额"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("分析请求失败: %d", w.Code)
	}
	// 运行记录异步落库
	time.Sleep(200 * time.Millisecond)

	w = doRequest(r, http.MethodGet, "/api/runs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d", w.Code)
	}
	var resp struct {
		Runs  []database.RunRecord `json:"runs"`
		Total int64                `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("响应不是合法 JSON: %v", err)
	}
	if resp.Total != 1 || len(resp.Runs) != 1 {
		t.Fatalf("期望1条运行记录, 实际 total=%d len=%d", resp.Total, len(resp.Runs))
	}
	if resp.Runs[0].Template != "product_balance" {
		t.Errorf("运行记录模版不符: %s", resp.Runs[0].Template)
	}
}

func TestSystemStatusEndpoint(t *testing.T) {
	r := newTestRouter(t)
	w := doRequest(r, http.MethodGet, "/api/system/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d", w.Code)
	}
	var status map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("响应不是合法 JSON: %v", err)
	}
	if status["ledger_rows"].(float64) != 2 {
		t.Errorf("台账行数不符: %v", status["ledger_rows"])
	}
}

func TestAuthGuardBlocksWhenEnabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	if err := i18n.Init("zh-CN"); err != nil {
		t.Fatalf("初始化 i18n 失败: %v", err)
	}

	cfg := &config.Config{}
	cfg.Web.AuthEnabled = true
	cfg.Sandbox.OutputDir = t.TempDir()
	cfg.Sandbox.TranscriptDir = t.TempDir()

	r := gin.New()
	r.Use(I18nMiddleware())
	setupRoutes(r, cfg)

	w := doRequest(r, http.MethodGet, "/api/dashboard", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("开启认证后未登录应返回 401, 实际 %d", w.Code)
	}
}

func TestParseAcceptLanguage(t *testing.T) {
	cases := map[string]string{
		"zh-CN,zh;q=0.9,en;q=0.8": "zh-CN",
		"en-US,en;q=0.9":          "en-US",
		"en":                      "en-US",
		"":                        i18n.GetSystemLanguage(),
		"fr-FR":                   i18n.GetSystemLanguage(),
	}
	for input, want := range cases {
		if got := parseAcceptLanguage(input); got != want {
			t.Errorf("parseAcceptLanguage(%q) = %q, 期望 %q", input, got, want)
		}
	}
}
