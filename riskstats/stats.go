package riskstats

import (
	"math"
	"sort"
	"time"

	"edgerisk/ledger"
)

// Summary 全局风险概览
type Summary struct {
	TotalLoanBalanceWan    float64 `json:"total_loan_balance_wan"`
	TotalOverdueBalanceWan float64 `json:"total_overdue_balance_wan"`
	OverallNPLRatio        float64 `json:"overall_npl_ratio"`
	TotalOverdueCustomers  int     `json:"total_overdue_customers"`
	TotalNPLBalanceWan     float64 `json:"total_npl_balance_wan"`
	TotalNPLCustomers      int     `json:"total_npl_customers"`
}

// BranchNPL 分行不良率
type BranchNPL struct {
	BranchName string  `json:"branch_name"`
	NPLRatio   float64 `json:"npl_ratio"`
}

// ProductNPL 产品不良率
type ProductNPL struct {
	ProductName string  `json:"product_name"`
	NPLRatio    float64 `json:"npl_ratio"`
}

// ProductOverdue 产品逾期余额（万元）
type ProductOverdue struct {
	ProductName       string  `json:"product_name"`
	OverdueBalanceWan float64 `json:"overdue_balance_wan"`
}

// AssetQuality 资产质量分布（按七级分类）
type AssetQuality struct {
	Category   string  `json:"category"`
	Value      float64 `json:"value"`
	ValueWan   float64 `json:"value_wan"`
	Percentage float64 `json:"percentage"`
}

// OverdueBucket 逾期天数分桶
type OverdueBucket struct {
	Bucket            string  `json:"bucket"`
	OverdueBalanceWan float64 `json:"overdue_balance_wan"`
	CustomerCount     int     `json:"customer_count"`
}

// AgeRisk 年龄段风险表现
type AgeRisk struct {
	AgeSegment   string  `json:"age_segment"`
	NPLRatio     float64 `json:"npl_ratio"`
	OverdueRatio float64 `json:"overdue_ratio"`
}

// DashboardStats 风控看板统计，全部为衍生值，每次请求重新计算
type DashboardStats struct {
	Summary                  Summary          `json:"summary"`
	BranchNPLRank            []BranchNPL      `json:"branch_npl_rank"`
	AssetQualityDistribution []AssetQuality   `json:"asset_quality_distribution"`
	ProductNPLRank           []ProductNPL     `json:"product_npl_rank"`
	ProductOverdueBalance    []ProductOverdue `json:"product_overdue_balance"`
	OverdueDayDistribution   []OverdueBucket  `json:"overdue_day_distribution"`
	AgeRiskPerformance       []AgeRisk        `json:"age_risk_performance"`
}

// 逾期天数分桶边界：左开右闭 (0,30] (30,60] (60,90] (90,180] (180,360] (360,∞)
var overdueBuckets = []struct {
	label string
	min   int // 不含
	max   int // 含；-1 表示无上界
}{
	{"1-30天", 0, 30},
	{"31-60天", 30, 60},
	{"61-90天", 60, 90},
	{"91-180天", 90, 180},
	{"181-360天", 180, 360},
	{"360天以上", 360, -1},
}

// 年龄分段边界：左开右闭 (0,25] (25,35] (35,45] (45,55] (55,∞)
var ageSegments = []struct {
	label string
	min   int
	max   int
}{
	{"25岁以下", 0, 25},
	{"26-35岁", 25, 35},
	{"36-45岁", 35, 45},
	{"46-55岁", 45, 55},
	{"55岁以上", 55, -1},
}

// Compute 基于台账快照计算看板统计。台账不可变，结果对同一台账幂等。
func Compute(l *ledger.Ledger, now time.Time) *DashboardStats {
	rows := l.Rows()
	stats := &DashboardStats{}

	var totalBalance, overdueBalance, nplBalance float64
	overdueCustomers := make(map[string]bool)
	nplCustomers := make(map[string]bool)

	for i := range rows {
		r := &rows[i]
		totalBalance += r.Balance
		if r.IsOverdue() {
			overdueBalance += r.Balance
			overdueCustomers[r.CustomerID] = true
		}
		if r.IsNPL() {
			nplBalance += r.Balance
			nplCustomers[r.CustomerID] = true
		}
	}

	stats.Summary = Summary{
		TotalLoanBalanceWan:    round2(totalBalance / 10000),
		TotalOverdueBalanceWan: round2(overdueBalance / 10000),
		OverallNPLRatio:        round2(ratio(nplBalance, totalBalance)),
		TotalOverdueCustomers:  len(overdueCustomers),
		TotalNPLBalanceWan:     round2(nplBalance / 10000),
		TotalNPLCustomers:      len(nplCustomers),
	}

	stats.BranchNPLRank = branchNPLRank(rows)
	stats.AssetQualityDistribution = assetQualityDistribution(rows, totalBalance)
	stats.ProductNPLRank = productNPLRank(rows)
	stats.ProductOverdueBalance = productOverdueBalance(rows)
	stats.OverdueDayDistribution = overdueDayDistribution(rows)
	stats.AgeRiskPerformance = ageRiskPerformance(rows, now)

	return stats
}

// branchNPLRank 各分行不良率 = 该分行不良余额 / 该分行总余额 × 100
func branchNPLRank(rows []ledger.Row) []BranchNPL {
	total := make(map[string]float64)
	npl := make(map[string]float64)
	for i := range rows {
		r := &rows[i]
		total[r.Branch] += r.Balance
		if r.IsNPL() {
			npl[r.Branch] += r.Balance
		}
	}

	result := make([]BranchNPL, 0, len(total))
	for _, branch := range sortedKeys(total) {
		result = append(result, BranchNPL{
			BranchName: branch,
			NPLRatio:   round2(ratio(npl[branch], total[branch])),
		})
	}
	return result
}

// productNPLRank 各产品不良率
func productNPLRank(rows []ledger.Row) []ProductNPL {
	total := make(map[string]float64)
	npl := make(map[string]float64)
	for i := range rows {
		r := &rows[i]
		total[r.Product] += r.Balance
		if r.IsNPL() {
			npl[r.Product] += r.Balance
		}
	}

	result := make([]ProductNPL, 0, len(total))
	for _, product := range sortedKeys(total) {
		result = append(result, ProductNPL{
			ProductName: product,
			NPLRatio:    round2(ratio(npl[product], total[product])),
		})
	}
	return result
}

// productOverdueBalance 各产品逾期余额（万元），仅统计出现过逾期的产品
func productOverdueBalance(rows []ledger.Row) []ProductOverdue {
	overdue := make(map[string]float64)
	for i := range rows {
		r := &rows[i]
		if r.IsOverdue() {
			overdue[r.Product] += r.Balance
		}
	}

	result := make([]ProductOverdue, 0, len(overdue))
	for _, product := range sortedKeys(overdue) {
		result = append(result, ProductOverdue{
			ProductName:       product,
			OverdueBalanceWan: round2(overdue[product] / 10000),
		})
	}
	return result
}

// assetQualityDistribution 按七级分类统计余额及占比
func assetQualityDistribution(rows []ledger.Row, totalBalance float64) []AssetQuality {
	byClass := make(map[string]float64)
	for i := range rows {
		byClass[rows[i].Class] += rows[i].Balance
	}

	result := make([]AssetQuality, 0, len(byClass))
	// 按七级分类的固定顺序输出
	for _, class := range ledger.Classifications {
		value, ok := byClass[class]
		if !ok {
			continue
		}
		result = append(result, AssetQuality{
			Category:   class,
			Value:      value,
			ValueWan:   round2(value / 10000),
			Percentage: round2(ratio(value, totalBalance)),
		})
	}
	return result
}

// overdueDayDistribution 逾期记录按天数分桶：余额（万元）与去重客户数
func overdueDayDistribution(rows []ledger.Row) []OverdueBucket {
	balances := make([]float64, len(overdueBuckets))
	customers := make([]map[string]bool, len(overdueBuckets))
	for i := range customers {
		customers[i] = make(map[string]bool)
	}

	for i := range rows {
		r := &rows[i]
		if !r.IsOverdue() {
			continue
		}
		idx := overdueBucketIndex(r.OverdueDays)
		if idx < 0 {
			continue
		}
		balances[idx] += r.Balance
		customers[idx][r.CustomerID] = true
	}

	result := make([]OverdueBucket, len(overdueBuckets))
	for i, b := range overdueBuckets {
		result[i] = OverdueBucket{
			Bucket:            b.label,
			OverdueBalanceWan: round2(balances[i] / 10000),
			CustomerCount:     len(customers[i]),
		}
	}
	return result
}

// overdueBucketIndex 返回逾期天数所属桶的下标，天数≤0 返回 -1
func overdueBucketIndex(days int) int {
	for i, b := range overdueBuckets {
		if days > b.min && (b.max < 0 || days <= b.max) {
			return i
		}
	}
	return -1
}

// ageRiskPerformance 各年龄段的不良率与逾期率（口径与全局一致，限定在该年龄段内）
func ageRiskPerformance(rows []ledger.Row, now time.Time) []AgeRisk {
	totals := make([]float64, len(ageSegments))
	npls := make([]float64, len(ageSegments))
	overdues := make([]float64, len(ageSegments))

	for i := range rows {
		r := &rows[i]
		idx := ageSegmentIndex(r.Age(now))
		if idx < 0 {
			continue
		}
		totals[idx] += r.Balance
		if r.IsNPL() {
			npls[idx] += r.Balance
		}
		if r.IsOverdue() {
			overdues[idx] += r.Balance
		}
	}

	result := make([]AgeRisk, len(ageSegments))
	for i, seg := range ageSegments {
		result[i] = AgeRisk{
			AgeSegment:   seg.label,
			NPLRatio:     round2(ratio(npls[i], totals[i])),
			OverdueRatio: round2(ratio(overdues[i], totals[i])),
		}
	}
	return result
}

func ageSegmentIndex(age int) int {
	for i, seg := range ageSegments {
		if age > seg.min && (seg.max < 0 || age <= seg.max) {
			return i
		}
	}
	return -1
}

// ratio 百分比，分母为0时返回0而不是除零
func ratio(part, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return part / total * 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
