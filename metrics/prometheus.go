package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 分析运行指标
	analyzeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgerisk_analyze_total",
			Help: "Total number of analysis runs",
		},
		[]string{"template", "status"},
	)

	analyzeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edgerisk_analyze_duration_seconds",
			Help:    "Analysis run duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0, 120.0, 600.0},
		},
		[]string{"template"},
	)

	analyzeRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edgerisk_analyze_running",
			Help: "Number of analysis runs currently executing",
		},
	)

	// 看板指标
	dashboardRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edgerisk_dashboard_requests_total",
			Help: "Total number of dashboard aggregation requests",
		},
	)

	// 台账指标
	ledgerRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edgerisk_ledger_rows",
			Help: "Number of loan records in the loaded ledger",
		},
	)

	// 系统指标
	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edgerisk_goroutine_count",
			Help: "Number of goroutines",
		},
	)

	memoryAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edgerisk_memory_alloc_bytes",
			Help: "Bytes of allocated heap objects",
		},
	)

	gcPauseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "edgerisk_gc_pause_duration_seconds",
			Help:    "GC pause duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)

	processCPUPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edgerisk_process_cpu_percent",
			Help: "Process CPU usage percentage",
		},
	)

	processMemoryPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edgerisk_process_memory_percent",
			Help: "Process memory usage as percentage of system memory",
		},
	)
)

// PrometheusMetrics Prometheus 指标收集器
type PrometheusMetrics struct{}

// RecordAnalyze 记录一次分析运行
func (pm *PrometheusMetrics) RecordAnalyze(template, status string, duration time.Duration) {
	analyzeTotal.WithLabelValues(template, status).Inc()
	analyzeDuration.WithLabelValues(template).Observe(duration.Seconds())
}

// IncAnalyzeRunning 分析运行开始
func (pm *PrometheusMetrics) IncAnalyzeRunning() {
	analyzeRunning.Inc()
}

// DecAnalyzeRunning 分析运行结束
func (pm *PrometheusMetrics) DecAnalyzeRunning() {
	analyzeRunning.Dec()
}

// RecordDashboardRequest 记录看板聚合请求
func (pm *PrometheusMetrics) RecordDashboardRequest() {
	dashboardRequestsTotal.Inc()
}

// SetLedgerRows 设置台账记录数
func (pm *PrometheusMetrics) SetLedgerRows(count int) {
	ledgerRows.Set(float64(count))
}

// SetGoroutineCount 设置 Goroutine 数量
func (pm *PrometheusMetrics) SetGoroutineCount(count int) {
	goroutineCount.Set(float64(count))
}

// SetMemoryAlloc 设置堆内存占用
func (pm *PrometheusMetrics) SetMemoryAlloc(bytes uint64) {
	memoryAllocBytes.Set(float64(bytes))
}

// RecordGCPause 记录 GC 停顿
func (pm *PrometheusMetrics) RecordGCPause(duration time.Duration) {
	gcPauseDuration.Observe(duration.Seconds())
}

// SetProcessUsage 设置进程 CPU 与内存占用
func (pm *PrometheusMetrics) SetProcessUsage(cpuPercent, memoryPercent float64) {
	processCPUPercent.Set(cpuPercent)
	processMemoryPercent.Set(memoryPercent)
}

var (
	instance *PrometheusMetrics
	once     sync.Once
)

// GetPrometheusMetrics 获取全局指标收集器
func GetPrometheusMetrics() *PrometheusMetrics {
	once.Do(func() {
		instance = &PrometheusMetrics{}
	})
	return instance
}
