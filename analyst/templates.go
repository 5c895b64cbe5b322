package analyst

// preamble 所有模版共用的脚本前导。
// 输出槽位 output_chart / output_csv 由执行器在脚本最前面注入 set 语句绑定；
// 模版体按约定在结束前向这两个槽位写入产物，缺省写入则对应产物为空。
const preamble = `# EdgeRisk 分析脚本
# 输出槽位: output_chart(图表) / output_csv(数据明细)
load ledger
`

// branchOverdueBody 各分行逾期客户数量（去重客户编号）
const branchOverdueBody = `filter overdue
group 信贷分行名称 nunique 客户编号
sort desc
print 各分行逾期客户数量统计如下：
show result
chart bar 各分行逾期客户数量
save result
`

// productBalanceBody 各产品类型贷款余额（万元）
const productBalanceBody = `group 信贷产品名称（三级） sum 贷款余额
scale 10000
sort desc
print 各产品类型贷款余额（万元）：
show result
chart bar 各产品类型贷款余额 (万元)
save result
`

// ageDistributionBody 客户年龄分布（年龄 = 当前年份 - 出生年份）
const ageDistributionBody = `derive age
print 客户年龄统计描述：
describe 年龄
chart hist 年龄 客户年龄分布
save cols 客户编号 年龄 head 20
`

// fallbackBody 兜底模版：前5行概览 + 描述性统计明细 + 占位图表
const fallbackBody = `print 为您展示数据的前5行概览：
show preview 5
save describe
chart placeholder 未匹配到特定分析模版
`
