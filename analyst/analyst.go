// Package analyst 将自然语言查询映射为预置的分析脚本模版。
//
// 模版匹配是一组有序的关键词合取谓词，自上而下求值、首个命中生效；
// 没有命中时返回兜底模版，因此分发本身永远不会失败。谓词顺序是行为
// 的一部分：更具体的谓词必须排在更宽泛的谓词之前。
package analyst

import (
	"strings"

	"edgerisk/logger"
)

// rule 一条分发规则：谓词 + 模版
type rule struct {
	name  string
	match func(query string) bool
	body  string
}

// rules 有序规则表，首个命中生效
var rules = []rule{
	{
		name: "branch_overdue_customers",
		match: func(q string) bool {
			return strings.Contains(q, "分行") && (strings.Contains(q, "逾期") || strings.Contains(q, "不良"))
		},
		body: branchOverdueBody,
	},
	{
		name: "product_balance",
		match: func(q string) bool {
			return strings.Contains(q, "产品") && strings.Contains(q, "金额")
		},
		body: productBalanceBody,
	},
	{
		name: "age_distribution",
		match: func(q string) bool {
			return strings.Contains(q, "年龄")
		},
		body: ageDistributionBody,
	},
}

// fallbackName 兜底模版名称
const fallbackName = "default_preview"

// SelectTemplate 根据查询串选择分析模版，返回模版名与完整脚本文本。
// 查询在匹配前统一转为小写；任何查询都会得到一个可执行脚本。
func SelectTemplate(query string) (string, string) {
	q := strings.ToLower(strings.TrimSpace(query))

	for _, r := range rules {
		if r.match(q) {
			logger.Debug("查询命中模版 %s: %q", r.name, query)
			return r.name, preamble + r.body
		}
	}

	logger.Debug("查询未命中任何模版，使用兜底模版: %q", query)
	return fallbackName, preamble + fallbackBody
}

// TemplateNames 返回全部模版名（含兜底），顺序与匹配顺序一致
func TemplateNames() []string {
	names := make([]string, 0, len(rules)+1)
	for _, r := range rules {
		names = append(names, r.name)
	}
	return append(names, fallbackName)
}
