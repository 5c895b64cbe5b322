// Package sandbox 在隔离的解释环境中执行分析脚本。
//
// 脚本是行式语句序列（模版由 analyst 包生成），逐条解释执行；
// 每条语句的文本输出按序捕获，语句抛出的任何错误（含 panic）都被
// 截获为执行失败，不会冲击宿主进程。脚本只操作台账快照，正本不可达。
package sandbox

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"edgerisk/ledger"
)

// environment 单次执行的解释环境
type environment struct {
	snapshot  func() []ledger.Row // 台账快照提供者，每次 load 取全新副本
	outputDir string

	rows   []ledger.Row      // 当前工作集
	loaded bool              //
	ages   []int             // derive age 之后与 rows 对齐
	vars   map[string]string // 输出槽位等变量
	result *resultSet        // 最近一次分组结果
}

// resultSet 分组聚合结果
type resultSet struct {
	keyName   string
	valueName string
	rows      []resultRow
	integer   bool // 计数类结果按整数展示
}

type resultRow struct {
	key   string
	value float64
}

// 可用作分组键的字符串列
var stringCols = map[string]func(*ledger.Row) string{
	ledger.ColInstitution: func(r *ledger.Row) string { return r.Institution },
	ledger.ColBranch:      func(r *ledger.Row) string { return r.Branch },
	ledger.ColSubBranch:   func(r *ledger.Row) string { return r.SubBranch },
	ledger.ColClass:       func(r *ledger.Row) string { return r.Class },
	ledger.ColCustomer:    func(r *ledger.Row) string { return r.Customer },
	ledger.ColCustomerID:  func(r *ledger.Row) string { return r.CustomerID },
	ledger.ColProduct:     func(r *ledger.Row) string { return r.Product },
}

// 可用作聚合度量的数值列
var floatCols = map[string]func(*ledger.Row) float64{
	ledger.ColBalance:     func(r *ledger.Row) float64 { return r.Balance },
	ledger.ColOverdueDays: func(r *ledger.Row) float64 { return float64(r.OverdueDays) },
	ledger.ColTermMonths:  func(r *ledger.Row) float64 { return float64(r.TermMonths) },
	ledger.ColRate:        func(r *ledger.Row) float64 { return r.Rate },
}

// colAge 派生列：年龄
const colAge = "年龄"

func newEnvironment(snapshot func() []ledger.Row, outputDir string) *environment {
	return &environment{
		snapshot:  snapshot,
		outputDir: outputDir,
		vars:      make(map[string]string),
	}
}

// execStatement 执行单条语句，文本输出写入 out
func (env *environment) execStatement(line string, out *strings.Builder) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "set":
		return env.execSet(args)
	case "load":
		return env.execLoad(args)
	case "filter":
		return env.execFilter(args)
	case "derive":
		return env.execDerive(args)
	case "group":
		return env.execGroup(args)
	case "scale":
		return env.execScale(args)
	case "sort":
		return env.execSort(args)
	case "head":
		return env.execHead(args)
	case "print":
		out.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "print")))
		out.WriteString("\n")
		return nil
	case "show":
		return env.execShow(args, out)
	case "describe":
		return env.execDescribe(args, out)
	case "chart":
		return env.execChart(args)
	case "save":
		return env.execSave(args)
	default:
		return fmt.Errorf("无法识别的语句: %q", line)
	}
}

func (env *environment) execSet(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("set 需要变量名和取值")
	}
	env.vars[args[0]] = strings.Join(args[1:], " ")
	return nil
}

func (env *environment) execLoad(args []string) error {
	if len(args) != 1 || args[0] != "ledger" {
		return fmt.Errorf("load 仅支持 ledger")
	}
	env.rows = env.snapshot()
	env.ages = nil
	env.loaded = true
	return nil
}

func (env *environment) requireLoaded() error {
	if !env.loaded {
		return fmt.Errorf("台账尚未加载，请先执行 load ledger")
	}
	return nil
}

func (env *environment) execFilter(args []string) error {
	if err := env.requireLoaded(); err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("filter 需要一个过滤条件")
	}

	var keep func(*ledger.Row) bool
	switch args[0] {
	case "overdue":
		keep = (*ledger.Row).IsOverdue
	case "npl":
		keep = (*ledger.Row).IsNPL
	default:
		return fmt.Errorf("不支持的过滤条件: %s", args[0])
	}

	filtered := env.rows[:0:0]
	for i := range env.rows {
		if keep(&env.rows[i]) {
			filtered = append(filtered, env.rows[i])
		}
	}
	env.rows = filtered
	env.ages = nil
	return nil
}

func (env *environment) execDerive(args []string) error {
	if err := env.requireLoaded(); err != nil {
		return err
	}
	if len(args) != 1 || args[0] != "age" {
		return fmt.Errorf("derive 仅支持 age")
	}

	now := nowFunc()
	env.ages = make([]int, len(env.rows))
	for i := range env.rows {
		env.ages[i] = env.rows[i].Age(now)
	}
	return nil
}

// execGroup 形如 `group <分组列> nunique|sum <度量列>`
func (env *environment) execGroup(args []string) error {
	if err := env.requireLoaded(); err != nil {
		return err
	}
	if len(args) != 3 {
		return fmt.Errorf("group 需要 <分组列> <聚合方式> <度量列>")
	}
	groupCol, agg, valueCol := args[0], args[1], args[2]

	keyOf, ok := stringCols[groupCol]
	if !ok {
		return fmt.Errorf("不支持的分组列: %s", groupCol)
	}

	rs := &resultSet{keyName: groupCol, valueName: valueCol}

	switch agg {
	case "nunique":
		idOf, ok := stringCols[valueCol]
		if !ok {
			return fmt.Errorf("nunique 不支持列: %s", valueCol)
		}
		seen := make(map[string]map[string]bool)
		for i := range env.rows {
			key := keyOf(&env.rows[i])
			if seen[key] == nil {
				seen[key] = make(map[string]bool)
			}
			seen[key][idOf(&env.rows[i])] = true
		}
		for _, key := range sortedGroupKeys(seen) {
			rs.rows = append(rs.rows, resultRow{key: key, value: float64(len(seen[key]))})
		}
		rs.integer = true

	case "sum":
		valOf, ok := floatCols[valueCol]
		if !ok {
			return fmt.Errorf("sum 不支持列: %s", valueCol)
		}
		sums := make(map[string]float64)
		for i := range env.rows {
			sums[keyOf(&env.rows[i])] += valOf(&env.rows[i])
		}
		keys := make([]string, 0, len(sums))
		for k := range sums {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			rs.rows = append(rs.rows, resultRow{key: key, value: sums[key]})
		}

	default:
		return fmt.Errorf("不支持的聚合方式: %s", agg)
	}

	env.result = rs
	return nil
}

func (env *environment) requireResult() error {
	if env.result == nil {
		return fmt.Errorf("没有可用的结果集，请先执行 group")
	}
	return nil
}

func (env *environment) execScale(args []string) error {
	if err := env.requireResult(); err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("scale 需要一个除数")
	}
	divisor, err := strconv.ParseFloat(args[0], 64)
	if err != nil || divisor == 0 {
		return fmt.Errorf("非法的除数: %s", args[0])
	}
	for i := range env.result.rows {
		env.result.rows[i].value /= divisor
	}
	env.result.integer = false
	return nil
}

func (env *environment) execSort(args []string) error {
	if err := env.requireResult(); err != nil {
		return err
	}
	if len(args) != 1 || (args[0] != "desc" && args[0] != "asc") {
		return fmt.Errorf("sort 仅支持 desc/asc")
	}
	desc := args[0] == "desc"
	sort.SliceStable(env.result.rows, func(i, j int) bool {
		if desc {
			return env.result.rows[i].value > env.result.rows[j].value
		}
		return env.result.rows[i].value < env.result.rows[j].value
	})
	return nil
}

func (env *environment) execHead(args []string) error {
	if err := env.requireResult(); err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("head 需要行数")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return fmt.Errorf("非法的行数: %s", args[0])
	}
	if n < len(env.result.rows) {
		env.result.rows = env.result.rows[:n]
	}
	return nil
}

func (env *environment) execShow(args []string, out *strings.Builder) error {
	if len(args) == 0 {
		return fmt.Errorf("show 需要 result 或 preview")
	}
	switch args[0] {
	case "result":
		if err := env.requireResult(); err != nil {
			return err
		}
		env.writeResultTable(out)
		return nil
	case "preview":
		if err := env.requireLoaded(); err != nil {
			return err
		}
		n := 5
		if len(args) > 1 {
			parsed, err := strconv.Atoi(args[1])
			if err != nil || parsed <= 0 {
				return fmt.Errorf("非法的预览行数: %s", args[1])
			}
			n = parsed
		}
		env.writePreviewTable(n, out)
		return nil
	default:
		return fmt.Errorf("不支持的 show 目标: %s", args[0])
	}
}

func (env *environment) execDescribe(args []string, out *strings.Builder) error {
	if len(args) != 1 {
		return fmt.Errorf("describe 需要一个列名")
	}
	values, err := env.numericColumn(args[0])
	if err != nil {
		return err
	}

	stats := describe(values)
	out.WriteString(fmt.Sprintf("| 指标 | %s |\n|---|---|\n", args[0]))
	for _, s := range stats {
		out.WriteString(fmt.Sprintf("| %s | %s |\n", s.name, s.value))
	}
	return nil
}

// numericColumn 取数值列的全部取值；年龄为派生列，需先 derive age
func (env *environment) numericColumn(col string) ([]float64, error) {
	if err := env.requireLoaded(); err != nil {
		return nil, err
	}
	if col == colAge {
		if env.ages == nil {
			return nil, fmt.Errorf("年龄列尚未派生，请先执行 derive age")
		}
		values := make([]float64, len(env.ages))
		for i, a := range env.ages {
			values[i] = float64(a)
		}
		return values, nil
	}
	valOf, ok := floatCols[col]
	if !ok {
		return nil, fmt.Errorf("不支持的数值列: %s", col)
	}
	values := make([]float64, len(env.rows))
	for i := range env.rows {
		values[i] = valOf(&env.rows[i])
	}
	return values, nil
}

// writeResultTable 渲染结果集为 markdown 表格
func (env *environment) writeResultTable(out *strings.Builder) {
	rs := env.result
	out.WriteString(fmt.Sprintf("| %s | %s |\n|---|---|\n", rs.keyName, rs.valueName))
	for _, row := range rs.rows {
		out.WriteString(fmt.Sprintf("| %s | %s |\n", row.key, rs.format(row.value)))
	}
}

func (rs *resultSet) format(v float64) string {
	if rs.integer {
		return strconv.Itoa(int(v))
	}
	return strconv.FormatFloat(round2(v), 'f', 2, 64)
}

// previewCols 预览表格展示的列
var previewCols = []string{
	ledger.ColBranch, ledger.ColSubBranch, ledger.ColClass,
	ledger.ColCustomerID, ledger.ColProduct, ledger.ColBalance, ledger.ColOverdueDays,
}

// writePreviewTable 渲染前 n 行预览
func (env *environment) writePreviewTable(n int, out *strings.Builder) {
	out.WriteString("| " + strings.Join(previewCols, " | ") + " |\n")
	out.WriteString("|" + strings.Repeat("---|", len(previewCols)) + "\n")

	if n > len(env.rows) {
		n = len(env.rows)
	}
	for i := 0; i < n; i++ {
		r := &env.rows[i]
		cells := make([]string, 0, len(previewCols))
		for _, col := range previewCols {
			if get, ok := stringCols[col]; ok {
				cells = append(cells, get(r))
			} else if get, ok := floatCols[col]; ok {
				cells = append(cells, strconv.FormatFloat(get(r), 'f', -1, 64))
			}
		}
		out.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
}

// describeStat 单项描述性统计
type describeStat struct {
	name  string
	value string
}

// describe 计算 count/mean/std/min/50%/max
func describe(values []float64) []describeStat {
	n := len(values)
	if n == 0 {
		return []describeStat{{"count", "0"}}
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	std := 0.0
	if n > 1 {
		// 样本标准差（与 pandas describe 口径一致）
		std = math.Sqrt(variance / float64(n-1))
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	f := func(v float64) string { return strconv.FormatFloat(round2(v), 'f', 2, 64) }
	return []describeStat{
		{"count", strconv.Itoa(n)},
		{"mean", f(mean)},
		{"std", f(std)},
		{"min", f(sorted[0])},
		{"50%", f(median)},
		{"max", f(sorted[n-1])},
	}
}

func sortedGroupKeys(m map[string]map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
