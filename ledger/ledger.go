package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 台账列名（与数据源 CSV 表头一致）
const (
	ColInstitution = "信贷机构编号"
	ColBranch      = "信贷分行名称"
	ColSubBranch   = "信贷支行名称"
	ColClass       = "七级分类"
	ColCustomer    = "客户名称"
	ColCustomerID  = "客户编号"
	ColProduct     = "信贷产品名称（三级）"
	ColStartDate   = "贷款起始日"
	ColEndDate     = "贷款终止日"
	ColOverdueDays = "本金逾期天数"
	ColBirthDate   = "出生年月"
	ColBalance     = "贷款余额"
	ColTermMonths  = "贷款期限"
	ColRate        = "利率"
)

// requiredColumns 加载时必须存在的列，缺失任何一列视为数据契约被破坏
var requiredColumns = []string{
	ColBranch, ColSubBranch, ColClass, ColCustomerID, ColProduct,
	ColOverdueDays, ColBirthDate, ColBalance,
}

// Classifications 七级分类的全部取值
var Classifications = []string{"正常", "关注一", "关注二", "关注三", "次级", "可疑", "损失"}

// nplClasses 不良贷款对应的三个最差分类
var nplClasses = map[string]bool{"次级": true, "可疑": true, "损失": true}

// Row 一条贷款台账记录
type Row struct {
	Institution string    // 信贷机构编号
	Branch      string    // 信贷分行名称
	SubBranch   string    // 信贷支行名称
	Class       string    // 七级分类
	Customer    string    // 客户名称
	CustomerID  string    // 客户编号（同一客户可对应多条记录）
	Product     string    // 信贷产品名称（三级）
	StartDate   time.Time // 贷款起始日
	EndDate     time.Time // 贷款终止日
	OverdueDays int       // 本金逾期天数
	BirthDate   time.Time // 出生年月
	Balance     float64   // 贷款余额（元）
	TermMonths  int       // 贷款期限（月）
	Rate        float64   // 利率（%）
}

// IsOverdue 是否逾期（本金逾期天数 > 0）
func (r *Row) IsOverdue() bool {
	return r.OverdueDays > 0
}

// IsNPL 是否不良贷款（七级分类属于 次级/可疑/损失）
func (r *Row) IsNPL() bool {
	return nplClasses[r.Class]
}

// Age 按年份差计算客户年龄
func (r *Row) Age(now time.Time) int {
	if r.BirthDate.IsZero() {
		return 0
	}
	return now.Year() - r.BirthDate.Year()
}

// Ledger 进程生命周期内不可变的台账数据
type Ledger struct {
	path string
	rows []Row
}

// Load 从 CSV 加载台账，启动时调用一次；任何模式错误都是致命的
func Load(path string) (*Ledger, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开台账文件失败: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("解析台账 CSV 失败: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("台账文件为空: %s", path)
	}

	// 表头校验
	header := records[0]
	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[strings.TrimSpace(name)] = i
	}
	for _, col := range requiredColumns {
		if _, ok := colIdx[col]; !ok {
			return nil, fmt.Errorf("台账缺少必需列: %s", col)
		}
	}

	validClass := make(map[string]bool, len(Classifications))
	for _, c := range Classifications {
		validClass[c] = true
	}

	rows := make([]Row, 0, len(records)-1)
	for lineNo, record := range records[1:] {
		get := func(col string) string {
			idx, ok := colIdx[col]
			if !ok || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		row := Row{
			Institution: get(ColInstitution),
			Branch:      get(ColBranch),
			SubBranch:   get(ColSubBranch),
			Class:       get(ColClass),
			Customer:    get(ColCustomer),
			CustomerID:  get(ColCustomerID),
			Product:     get(ColProduct),
		}

		if !validClass[row.Class] {
			return nil, fmt.Errorf("第%d行七级分类非法: %q", lineNo+2, row.Class)
		}

		row.OverdueDays, err = parseInt(get(ColOverdueDays))
		if err != nil {
			return nil, fmt.Errorf("第%d行本金逾期天数非法: %w", lineNo+2, err)
		}
		if row.OverdueDays < 0 {
			return nil, fmt.Errorf("第%d行本金逾期天数为负: %d", lineNo+2, row.OverdueDays)
		}

		row.Balance, err = parseFloat(get(ColBalance))
		if err != nil {
			return nil, fmt.Errorf("第%d行贷款余额非法: %w", lineNo+2, err)
		}
		if row.Balance < 0 {
			return nil, fmt.Errorf("第%d行贷款余额为负: %f", lineNo+2, row.Balance)
		}

		row.BirthDate, err = parseDate(get(ColBirthDate))
		if err != nil {
			return nil, fmt.Errorf("第%d行出生年月非法: %w", lineNo+2, err)
		}

		// 以下列非必需，解析失败时保持零值
		row.StartDate, _ = parseDate(get(ColStartDate))
		row.EndDate, _ = parseDate(get(ColEndDate))
		row.TermMonths, _ = parseInt(get(ColTermMonths))
		row.Rate, _ = parseFloat(get(ColRate))

		rows = append(rows, row)
	}

	return &Ledger{path: path, rows: rows}, nil
}

// New 从已有记录构造台账（测试用）
func New(rows []Row) *Ledger {
	copied := make([]Row, len(rows))
	copy(copied, rows)
	return &Ledger{rows: copied}
}

// Len 记录数
func (l *Ledger) Len() int {
	return len(l.rows)
}

// Path 数据源路径
func (l *Ledger) Path() string {
	return l.path
}

// Rows 返回只读视图；调用方不得修改返回的切片
func (l *Ledger) Rows() []Row {
	return l.rows
}

// Snapshot 返回台账的独立副本，沙箱执行基于副本，保证正本不被改写
func (l *Ledger) Snapshot() []Row {
	snapshot := make([]Row, len(l.rows))
	copy(snapshot, l.rows)
	return snapshot
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// parseDate 按常见格式解析日期（台账中日期与年月混用）
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	formats := []string{"2006-01-02", "2006/01/02", "2006-01", "2006/01"}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("无法识别的日期格式: %q", s)
}
