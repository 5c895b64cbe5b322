package riskstats

import (
	"reflect"
	"testing"
	"time"

	"edgerisk/ledger"
)

var testNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func birth(year int) time.Time {
	return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestComputeEndToEnd(t *testing.T) {
	// 固定两行数据的端到端校验
	l := ledger.New([]ledger.Row{
		{CustomerID: "A", Branch: "X分行", Product: "个人住房贷款", Class: "正常", Balance: 1000, OverdueDays: 0, BirthDate: birth(1980)},
		{CustomerID: "B", Branch: "X分行", Product: "个人消费贷款", Class: "次级", Balance: 500, OverdueDays: 95, BirthDate: birth(1990)},
	})

	stats := Compute(l, testNow)

	if stats.Summary.TotalLoanBalanceWan != 0.15 {
		t.Errorf("总余额(万元)错误: 期望 0.15, 得到 %v", stats.Summary.TotalLoanBalanceWan)
	}
	if stats.Summary.TotalNPLBalanceWan != 0.05 {
		t.Errorf("不良余额(万元)错误: 期望 0.05, 得到 %v", stats.Summary.TotalNPLBalanceWan)
	}
	if stats.Summary.OverallNPLRatio != 33.33 {
		t.Errorf("全局不良率错误: 期望 33.33, 得到 %v", stats.Summary.OverallNPLRatio)
	}
	if stats.Summary.TotalOverdueCustomers != 1 {
		t.Errorf("逾期客户数错误: 期望 1, 得到 %d", stats.Summary.TotalOverdueCustomers)
	}

	// 逾期95天应落入 91-180天 桶
	for _, b := range stats.OverdueDayDistribution {
		if b.Bucket == "91-180天" {
			if b.CustomerCount != 1 || b.OverdueBalanceWan != 0.05 {
				t.Errorf("91-180天桶统计错误: %+v", b)
			}
		} else if b.CustomerCount != 0 {
			t.Errorf("桶 %s 不应有客户", b.Bucket)
		}
	}
}

func TestComputeIdempotent(t *testing.T) {
	l := ledger.New([]ledger.Row{
		{CustomerID: "A", Branch: "西安分行", Product: "信用贷", Class: "可疑", Balance: 120000, OverdueDays: 400, BirthDate: birth(1970)},
		{CustomerID: "B", Branch: "宝鸡分行", Product: "装修贷", Class: "正常", Balance: 80000, OverdueDays: 0, BirthDate: birth(1995)},
		{CustomerID: "A", Branch: "西安分行", Product: "信用贷", Class: "关注二", Balance: 50000, OverdueDays: 45, BirthDate: birth(1970)},
	})

	first := Compute(l, testNow)
	second := Compute(l, testNow)
	if !reflect.DeepEqual(first, second) {
		t.Error("同一台账两次计算结果应完全一致")
	}
}

func TestComputeEmptyLedger(t *testing.T) {
	stats := Compute(ledger.New(nil), testNow)

	if stats.Summary.OverallNPLRatio != 0 {
		t.Errorf("空台账不良率应为0, 得到 %v", stats.Summary.OverallNPLRatio)
	}
	if len(stats.BranchNPLRank) != 0 {
		t.Error("空台账分行排名应为空")
	}
	if len(stats.AssetQualityDistribution) != 0 {
		t.Error("空台账资产质量分布应为空")
	}
}

func TestZeroBalanceRatio(t *testing.T) {
	l := ledger.New([]ledger.Row{
		{CustomerID: "A", Branch: "西安分行", Product: "信用贷", Class: "损失", Balance: 0, OverdueDays: 500, BirthDate: birth(1980)},
	})

	stats := Compute(l, testNow)
	if stats.Summary.OverallNPLRatio != 0 {
		t.Errorf("总余额为0时不良率应为0, 得到 %v", stats.Summary.OverallNPLRatio)
	}
	for _, b := range stats.BranchNPLRank {
		if b.NPLRatio != 0 {
			t.Errorf("零余额分组不良率应为0: %+v", b)
		}
	}
}

func TestOverdueBucketBoundaries(t *testing.T) {
	// 左开右闭：30 落入 1-30天，31 落入 31-60天
	cases := []struct {
		days   int
		bucket string
	}{
		{1, "1-30天"},
		{30, "1-30天"},
		{31, "31-60天"},
		{60, "31-60天"},
		{90, "61-90天"},
		{180, "91-180天"},
		{360, "181-360天"},
		{361, "360天以上"},
		{9999, "360天以上"},
	}

	for _, tc := range cases {
		idx := overdueBucketIndex(tc.days)
		if idx < 0 || overdueBuckets[idx].label != tc.bucket {
			t.Errorf("逾期%d天分桶错误: 期望 %s", tc.days, tc.bucket)
		}
	}

	if overdueBucketIndex(0) != -1 {
		t.Error("逾期0天不应落入任何桶")
	}
}

func TestAgeSegmentBoundaries(t *testing.T) {
	cases := []struct {
		age     int
		segment string
	}{
		{20, "25岁以下"},
		{25, "25岁以下"},
		{26, "26-35岁"},
		{35, "26-35岁"},
		{45, "36-45岁"},
		{55, "46-55岁"},
		{56, "55岁以上"},
	}

	for _, tc := range cases {
		idx := ageSegmentIndex(tc.age)
		if idx < 0 || ageSegments[idx].label != tc.segment {
			t.Errorf("年龄%d分段错误: 期望 %s", tc.age, tc.segment)
		}
	}
}

func TestGroupNPLRatioBounds(t *testing.T) {
	l := ledger.New([]ledger.Row{
		{CustomerID: "A", Branch: "西安分行", Product: "个人住房贷款", Class: "次级", Balance: 300000, OverdueDays: 100, BirthDate: birth(1982)},
		{CustomerID: "B", Branch: "西安分行", Product: "个人住房贷款", Class: "正常", Balance: 700000, OverdueDays: 0, BirthDate: birth(1988)},
		{CustomerID: "C", Branch: "汉中分行", Product: "信用贷", Class: "损失", Balance: 50000, OverdueDays: 720, BirthDate: birth(1960)},
	})

	stats := Compute(l, testNow)

	for _, b := range stats.BranchNPLRank {
		if b.NPLRatio < 0 || b.NPLRatio > 100 {
			t.Errorf("分行不良率超出 [0,100]: %+v", b)
		}
	}
	for _, p := range stats.ProductNPLRank {
		if p.NPLRatio < 0 || p.NPLRatio > 100 {
			t.Errorf("产品不良率超出 [0,100]: %+v", p)
		}
	}

	// 西安分行: 300000/1000000 = 30%
	for _, b := range stats.BranchNPLRank {
		if b.BranchName == "西安分行" && b.NPLRatio != 30 {
			t.Errorf("西安分行不良率错误: 期望 30, 得到 %v", b.NPLRatio)
		}
		if b.BranchName == "汉中分行" && b.NPLRatio != 100 {
			t.Errorf("汉中分行不良率错误: 期望 100, 得到 %v", b.NPLRatio)
		}
	}
}

func TestAssetQualityPercentage(t *testing.T) {
	l := ledger.New([]ledger.Row{
		{CustomerID: "A", Branch: "西安分行", Product: "信用贷", Class: "正常", Balance: 900000, BirthDate: birth(1985)},
		{CustomerID: "B", Branch: "西安分行", Product: "信用贷", Class: "损失", Balance: 100000, OverdueDays: 400, BirthDate: birth(1985)},
	})

	stats := Compute(l, testNow)
	if len(stats.AssetQualityDistribution) != 2 {
		t.Fatalf("期望2个分类, 得到 %d", len(stats.AssetQualityDistribution))
	}
	// 固定顺序：正常在前
	if stats.AssetQualityDistribution[0].Category != "正常" || stats.AssetQualityDistribution[0].Percentage != 90 {
		t.Errorf("正常分类统计错误: %+v", stats.AssetQualityDistribution[0])
	}
	if stats.AssetQualityDistribution[1].Category != "损失" || stats.AssetQualityDistribution[1].Percentage != 10 {
		t.Errorf("损失分类统计错误: %+v", stats.AssetQualityDistribution[1])
	}
}
