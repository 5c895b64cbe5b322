package sandbox

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"edgerisk/event"
	"edgerisk/ledger"
	"edgerisk/logger"
	"edgerisk/metrics"
	"edgerisk/utils"
)

// nowFunc 当前时间来源，测试时可替换
var nowFunc = utils.Now

// 运行状态
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Result 一次分析运行的结果
type Result struct {
	RunID          string `json:"run_id"`
	Query          string `json:"query"`
	Template       string `json:"template"`
	Status         string `json:"status"`
	TextOutput     string `json:"text_output"`
	ChartPath      string `json:"chart_path"`      // 为空表示本次运行未产出图表
	CSVPath        string `json:"csv_path"`        // 为空表示本次运行未产出明细
	TranscriptPath string `json:"transcript_path"` // 执行记录，任何运行都会产出
	Error          string `json:"error,omitempty"`
	StartedAt      string `json:"started_at"`
	DurationMs     int64  `json:"duration_ms"`
}

// TranscriptStep 单条语句及其捕获输出
type TranscriptStep struct {
	Line   int    `json:"line"`
	Source string `json:"source"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Transcript 落盘的执行记录：拼装后的脚本全文、逐条输出与运行结果
type Transcript struct {
	Program string           `json:"program"`
	Steps   []TranscriptStep `json:"steps"`
	Result  *Result          `json:"result"`
}

// Options 执行器配置
type Options struct {
	OutputDir     string // 图表与明细产物目录
	TranscriptDir string // 执行记录目录
	Timeout       time.Duration
	MaxConcurrent int
}

// Executor 在受控环境中执行分析脚本并落盘产物
type Executor struct {
	outputDir     string
	transcriptDir string
	timeout       time.Duration
	sem           chan struct{}
	snapshot      func() []ledger.Row
	bus           *event.Bus
}

// NewExecutor 创建执行器
func NewExecutor(opts Options, l *ledger.Ledger, bus *event.Bus) (*Executor, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 600 * time.Second
	}
	for _, dir := range []string{opts.OutputDir, opts.TranscriptDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建产物目录失败: %w", err)
		}
	}
	// max_concurrent 为 0 时不限并发
	var sem chan struct{}
	if opts.MaxConcurrent > 0 {
		sem = make(chan struct{}, opts.MaxConcurrent)
	}
	return &Executor{
		outputDir:     opts.OutputDir,
		transcriptDir: opts.TranscriptDir,
		timeout:       opts.Timeout,
		sem:           sem,
		snapshot:      l.Snapshot,
		bus:           bus,
	}, nil
}

// Execute 执行一段分析脚本。
// 脚本自身的失败不作为 error 返回，而是体现在 Result.Status 与执行记录中；
// error 仅在运行环境不可用（排队被取消、记录无法落盘）时返回。
func (e *Executor) Execute(ctx context.Context, query, template, program string) (*Result, error) {
	if e.sem != nil {
		select {
		case e.sem <- struct{}{}:
			defer func() { <-e.sem }()
		case <-ctx.Done():
			return nil, fmt.Errorf("等待执行资源时被取消: %w", ctx.Err())
		}
	}

	pm := metrics.GetPrometheusMetrics()
	pm.IncAnalyzeRunning()
	defer pm.DecAnalyzeRunning()

	runID := newRunID()
	start := nowFunc()
	chartFile := "chart_" + runID + ".png"
	csvFile := "data_" + runID + ".csv"

	logger.Info("🚀 开始分析运行 [%s] 模版=%s 查询=%q", runID, template, query)
	e.publish(&event.Event{
		Type: event.EventTypeRunStarted, RunID: runID,
		Query: query, Template: template,
	})

	// 绑定输出槽位后执行
	bound := fmt.Sprintf("set output_chart %s\nset output_csv %s\n%s", chartFile, csvFile, program)
	output, steps, runErr := e.runScript(ctx, bound)

	result := &Result{
		RunID:      runID,
		Query:      query,
		Template:   template,
		Status:     StatusSuccess,
		TextOutput: output,
		StartedAt:  start.Format("2006-01-02 15:04:05"),
		DurationMs: nowFunc().Sub(start).Milliseconds(),
	}
	if runErr != nil {
		result.Status = StatusFailed
		result.Error = runErr.Error()
		result.TextOutput = strings.TrimRight(output, "\n") + "\nERROR: " + runErr.Error() + "\n"
		logger.Error("❌ 分析运行失败 [%s]: %v", runID, runErr)
	}

	// 产物以实际落盘为准，脚本未写入某个槽位不算错误
	if fileExists(filepath.Join(e.outputDir, chartFile)) {
		result.ChartPath = "/static/" + chartFile
	}
	if fileExists(filepath.Join(e.outputDir, csvFile)) {
		result.CSVPath = "/static/" + csvFile
	}

	transcriptFile := "analysis_" + runID + ".json"
	if err := e.writeTranscript(transcriptFile, &Transcript{Program: bound, Steps: steps, Result: result}); err != nil {
		return nil, err
	}
	result.TranscriptPath = "/transcripts/" + transcriptFile

	pm.RecordAnalyze(template, result.Status, time.Duration(result.DurationMs)*time.Millisecond)
	e.publish(&event.Event{
		Type: event.EventTypeRunFinished, RunID: runID,
		Query: query, Template: template,
		Status: result.Status, Error: result.Error,
		DurationMs: result.DurationMs,
		ChartPath:  result.ChartPath, CSVPath: result.CSVPath,
		TranscriptPath: result.TranscriptPath,
	})
	if runErr == nil {
		logger.Info("✅ 分析运行完成 [%s] 耗时 %dms", runID, result.DurationMs)
	}
	return result, nil
}

// scriptRecorder 记录脚本的全文输出与逐条结果。
// 执行 goroutine 写入、超时路径读取，因此加锁，保证超时也能拿到已产生的部分输出。
type scriptRecorder struct {
	mu    sync.Mutex
	text  strings.Builder
	steps []TranscriptStep
}

func (r *scriptRecorder) record(lineNo int, source, output string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text.WriteString(output)
	step := TranscriptStep{Line: lineNo, Source: source, Output: output}
	if err != nil {
		step.Error = err.Error()
	}
	r.steps = append(r.steps, step)
}

func (r *scriptRecorder) snapshot() (string, []TranscriptStep) {
	r.mu.Lock()
	defer r.mu.Unlock()
	steps := make([]TranscriptStep, len(r.steps))
	copy(steps, r.steps)
	return r.text.String(), steps
}

// runScript 在独立 goroutine 中逐条执行语句，捕获 panic 并在语句间响应取消
func (e *Executor) runScript(ctx context.Context, program string) (string, []TranscriptStep, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rec := &scriptRecorder{}
	done := make(chan error, 1)

	go func() {
		env := newEnvironment(e.snapshot, e.outputDir)

		scanner := bufio.NewScanner(strings.NewReader(program))
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if err := ctx.Err(); err != nil {
				done <- fmt.Errorf("执行被中止: %w", err)
				return
			}
			line := scanner.Text()
			trimmed := strings.TrimSpace(line)

			var stepOut strings.Builder
			err := execGuarded(env, line, &stepOut)
			// 空行与注释不执行任何语句，不计入逐条记录
			if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
				rec.record(lineNo, trimmed, stepOut.String(), err)
			}
			if err != nil {
				done <- fmt.Errorf("第%d行执行失败: %w", lineNo, err)
				return
			}
		}
		done <- nil
	}()

	select {
	case err := <-done:
		text, steps := rec.snapshot()
		return text, steps, err
	case <-ctx.Done():
		text, steps := rec.snapshot()
		return text, steps, fmt.Errorf("执行超时或被取消: %w", ctx.Err())
	}
}

// execGuarded 执行单条语句，panic 转为错误
func execGuarded(env *environment, line string, out *strings.Builder) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("语句异常: %v", r)
		}
	}()
	return env.execStatement(line, out)
}

// writeTranscript 执行记录落盘，成功失败都会写
func (e *Executor) writeTranscript(name string, doc *Transcript) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化执行记录失败: %w", err)
	}
	path := filepath.Join(e.transcriptDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("写入执行记录失败: %w", err)
	}
	return nil
}

func (e *Executor) publish(ev *event.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

// newRunID 时间戳加随机后缀，同秒并发也不会相撞
func newRunID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand 不可用时退回纳秒
		return nowFunc().Format("20060102_150405") + fmt.Sprintf("_%08x", nowFunc().UnixNano()&0xffffffff)
	}
	return nowFunc().Format("20060102_150405") + "_" + hex.EncodeToString(buf)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
