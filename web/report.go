package web

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"edgerisk/riskstats"
	"edgerisk/utils"
)

// exportReportHandler 生成全行风控分析报告（Markdown）
// GET /api/report/export
func exportReportHandler(c *gin.Context) {
	if globalLedger == nil {
		respondError(c, http.StatusServiceUnavailable, "error.report_failed")
		return
	}

	now := utils.Now()
	stats := riskstats.Compute(globalLedger, now)
	s := stats.Summary

	content := fmt.Sprintf(`# %s - 全行风控分析报告
生成时间: %s

## 1. 资产概览
- **信贷总余额**: %.2f 万元
- **逾期余额**: %.2f 万元
- **不良余额**: %.2f 万元
- **不良率 (NPL Ratio)**: %.2f%%
- **逾期客户数**: %d 人
- **不良客户数**: %d 人

## 2. 分行不良率排名
%s
## 3. 风险提示
全行资产质量整体可控。建议重点关注逾期余额集中的产品线与长账龄客户的回收风险。
`,
		appName,
		now.Format("2006-01-02 15:04:05"),
		s.TotalLoanBalanceWan,
		s.TotalOverdueBalanceWan,
		s.TotalNPLBalanceWan,
		s.OverallNPLRatio,
		s.TotalOverdueCustomers,
		s.TotalNPLCustomers,
		branchRankSection(stats.BranchNPLRank),
	)

	c.JSON(http.StatusOK, gin.H{
		"content":  content,
		"filename": fmt.Sprintf("EdgeRisk_Report_%s.md", now.Format("20060102")),
	})
}

func branchRankSection(ranks []riskstats.BranchNPL) string {
	if len(ranks) == 0 {
		return "- 暂无数据\n"
	}
	var section string
	for i, r := range ranks {
		section += fmt.Sprintf("%d. %s: %.2f%%\n", i+1, r.BranchName, r.NPLRatio)
	}
	return section
}
