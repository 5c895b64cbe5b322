package sandbox

import (
	"strings"
	"testing"
	"time"

	"edgerisk/ledger"
)

func sampleRows() []ledger.Row {
	birth := func(year int) time.Time {
		return time.Date(year, 6, 1, 0, 0, 0, 0, time.UTC)
	}
	return []ledger.Row{
		{Branch: "北京分行", SubBranch: "海淀支行", Class: "次级", CustomerID: "C001", Product: "个人经营贷", OverdueDays: 95, Balance: 500000, BirthDate: birth(1980)},
		{Branch: "北京分行", SubBranch: "朝阳支行", Class: "关注一", CustomerID: "C002", Product: "个人消费贷", OverdueDays: 10, Balance: 200000, BirthDate: birth(1990)},
		{Branch: "上海分行", SubBranch: "浦东支行", Class: "正常", CustomerID: "C003", Product: "个人经营贷", OverdueDays: 0, Balance: 300000, BirthDate: birth(2000)},
		{Branch: "北京分行", SubBranch: "海淀支行", Class: "可疑", CustomerID: "C001", Product: "个人经营贷", OverdueDays: 400, Balance: 100000, BirthDate: birth(1980)},
	}
}

func newTestEnv(t *testing.T) *environment {
	t.Helper()
	rows := sampleRows()
	env := newEnvironment(func() []ledger.Row {
		snapshot := make([]ledger.Row, len(rows))
		copy(snapshot, rows)
		return snapshot
	}, t.TempDir())
	return env
}

func runLines(t *testing.T, env *environment, lines ...string) string {
	t.Helper()
	var out strings.Builder
	for _, line := range lines {
		if err := env.execStatement(line, &out); err != nil {
			t.Fatalf("语句 %q 执行失败: %v", line, err)
		}
	}
	return out.String()
}

func TestGroupNunique(t *testing.T) {
	env := newTestEnv(t)
	out := runLines(t, env,
		"load ledger",
		"filter overdue",
		"group 信贷分行名称 nunique 客户编号",
		"sort desc",
		"show result",
	)

	// 北京分行有 C001(两笔)、C002 两个逾期客户，上海分行无逾期
	if !strings.Contains(out, "| 北京分行 | 2 |") {
		t.Errorf("期望北京分行逾期客户数为2, 实际输出:\n%s", out)
	}
	if strings.Contains(out, "上海分行") {
		t.Errorf("上海分行无逾期客户, 不应出现在结果中:\n%s", out)
	}
}

func TestGroupSumScale(t *testing.T) {
	env := newTestEnv(t)
	out := runLines(t, env,
		"load ledger",
		"group 信贷产品名称（三级） sum 贷款余额",
		"scale 10000",
		"sort desc",
		"show result",
	)

	// 个人经营贷 500000+300000+100000 = 900000 元 = 90 万元
	if !strings.Contains(out, "| 个人经营贷 | 90.00 |") {
		t.Errorf("期望个人经营贷余额为90.00万元, 实际输出:\n%s", out)
	}
	if !strings.Contains(out, "| 个人消费贷 | 20.00 |") {
		t.Errorf("期望个人消费贷余额为20.00万元, 实际输出:\n%s", out)
	}
}

func TestSortDescOrder(t *testing.T) {
	env := newTestEnv(t)
	out := runLines(t, env,
		"load ledger",
		"group 信贷产品名称（三级） sum 贷款余额",
		"sort desc",
		"show result",
	)

	first := strings.Index(out, "个人经营贷")
	second := strings.Index(out, "个人消费贷")
	if first < 0 || second < 0 || first > second {
		t.Errorf("降序排序后个人经营贷应在前, 实际输出:\n%s", out)
	}
}

func TestHeadTruncates(t *testing.T) {
	env := newTestEnv(t)
	out := runLines(t, env,
		"load ledger",
		"group 信贷分行名称 nunique 客户编号",
		"head 1",
		"show result",
	)

	// 表头占2行，数据仅1行
	lines := strings.Count(strings.TrimSpace(out), "\n") + 1
	if lines != 3 {
		t.Errorf("期望表格共3行, 实际 %d 行:\n%s", lines, out)
	}
}

func TestDeriveAgeAndDescribe(t *testing.T) {
	saved := nowFunc
	nowFunc = func() time.Time { return time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC) }
	defer func() { nowFunc = saved }()

	env := newTestEnv(t)
	out := runLines(t, env,
		"load ledger",
		"derive age",
		"describe 年龄",
	)

	// 年龄 45/35/25/45, count=4, mean=37.50, min=25, max=45
	if !strings.Contains(out, "| count | 4 |") {
		t.Errorf("期望 count 为4, 实际输出:\n%s", out)
	}
	if !strings.Contains(out, "| mean | 37.50 |") {
		t.Errorf("期望 mean 为37.50, 实际输出:\n%s", out)
	}
	if !strings.Contains(out, "| min | 25.00 |") || !strings.Contains(out, "| max | 45.00 |") {
		t.Errorf("期望 min/max 为25.00/45.00, 实际输出:\n%s", out)
	}
}

func TestShowPreview(t *testing.T) {
	env := newTestEnv(t)
	out := runLines(t, env,
		"load ledger",
		"show preview 2",
	)

	if !strings.Contains(out, "C001") || !strings.Contains(out, "C002") {
		t.Errorf("预览应包含前两行客户, 实际输出:\n%s", out)
	}
	if strings.Contains(out, "C003") {
		t.Errorf("预览2行不应包含第三行客户:\n%s", out)
	}
}

func TestPrintEchoesText(t *testing.T) {
	env := newTestEnv(t)
	out := runLines(t, env, "print 各分行逾期客户数量统计如下：")
	if out != "各分行逾期客户数量统计如下：\n" {
		t.Errorf("print 输出不符: %q", out)
	}
}

func TestCommentAndBlankIgnored(t *testing.T) {
	env := newTestEnv(t)
	out := runLines(t, env, "# 注释", "", "   ")
	if out != "" {
		t.Errorf("注释与空行不应产生输出: %q", out)
	}
}

func TestUnknownStatement(t *testing.T) {
	env := newTestEnv(t)
	var out strings.Builder
	if err := env.execStatement("drop table", &out); err == nil {
		t.Error("未知语句应返回错误")
	}
}

func TestFilterBeforeLoad(t *testing.T) {
	env := newTestEnv(t)
	var out strings.Builder
	if err := env.execStatement("filter overdue", &out); err == nil {
		t.Error("未加载台账时 filter 应返回错误")
	}
}

func TestScaleWithoutResult(t *testing.T) {
	env := newTestEnv(t)
	var out strings.Builder
	if err := env.execStatement("scale 10000", &out); err == nil {
		t.Error("没有结果集时 scale 应返回错误")
	}
}

func TestDescribeStats(t *testing.T) {
	stats := describe([]float64{10, 20, 30, 40})
	byName := make(map[string]string)
	for _, s := range stats {
		byName[s.name] = s.value
	}
	if byName["count"] != "4" {
		t.Errorf("期望 count=4, 实际 %s", byName["count"])
	}
	if byName["mean"] != "25.00" {
		t.Errorf("期望 mean=25.00, 实际 %s", byName["mean"])
	}
	if byName["50%"] != "25.00" {
		t.Errorf("期望中位数=25.00, 实际 %s", byName["50%"])
	}
	if byName["std"] != "12.91" {
		t.Errorf("期望 std=12.91, 实际 %s", byName["std"])
	}
}

func TestHistogramBuckets(t *testing.T) {
	bins := histogram([]float64{1, 1, 2, 10}, 3)
	if len(bins) != 3 {
		t.Fatalf("期望3个分桶, 实际 %d", len(bins))
	}
	var total float64
	for _, b := range bins {
		total += b
	}
	if total != 4 {
		t.Errorf("分桶计数总和应为4, 实际 %v", total)
	}
	if bins[2] != 1 {
		t.Errorf("最大值应落入末桶, 实际 %v", bins)
	}
}
