package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleCSV = `信贷机构编号,信贷分行名称,信贷支行名称,七级分类,客户名称,客户编号,信贷产品名称（三级）,贷款起始日,贷款终止日,本金逾期天数,出生年月,贷款余额,贷款期限,利率
ORG0001,西安分行,高新支行,正常,客户1,CUST00001,个人住房贷款,2020-03-15,2030-03-15,0,1985-06-01,500000,120,4.35
ORG0002,宝鸡分行,雁塔支行,次级,客户2,CUST00002,个人消费贷款,2021-07-01,2024-07-01,120,1990-01,80000,36,5.2
ORG0003,西安分行,碑林支行,关注一,客户1,CUST00001,信用贷,2022-01-10,2025-01-10,15,1985-06-01,30000,36,6.1
`

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loan_data.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入测试数据失败: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	l, err := Load(writeTempCSV(t, sampleCSV))
	if err != nil {
		t.Fatalf("加载台账失败: %v", err)
	}

	if l.Len() != 3 {
		t.Fatalf("期望3条记录, 得到 %d", l.Len())
	}

	rows := l.Rows()
	if rows[0].Branch != "西安分行" || rows[0].Balance != 500000 {
		t.Errorf("第一条记录解析错误: %+v", rows[0])
	}
	if !rows[1].IsOverdue() || !rows[1].IsNPL() {
		t.Errorf("第二条记录应同时为逾期和不良: %+v", rows[1])
	}
	if rows[0].IsNPL() {
		t.Error("正常分类不应判定为不良")
	}
	if rows[2].CustomerID != rows[0].CustomerID {
		t.Error("同一客户应共享客户编号")
	}

	// 出生年月支持 "2006-01" 格式
	if rows[1].BirthDate.Year() != 1990 {
		t.Errorf("出生年月解析错误: %v", rows[1].BirthDate)
	}

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if got := rows[0].Age(now); got != 40 {
		t.Errorf("年龄计算错误: 期望 40, 得到 %d", got)
	}
}

func TestLoadMissingColumn(t *testing.T) {
	csv := "信贷分行名称,客户编号\n西安分行,CUST00001\n"
	if _, err := Load(writeTempCSV(t, csv)); err == nil {
		t.Error("缺少必需列应该报错")
	}
}

func TestLoadInvalidClass(t *testing.T) {
	bad := `信贷机构编号,信贷分行名称,信贷支行名称,七级分类,客户名称,客户编号,信贷产品名称（三级）,贷款起始日,贷款终止日,本金逾期天数,出生年月,贷款余额,贷款期限,利率
ORG0001,西安分行,高新支行,八级,客户1,CUST00001,个人住房贷款,2020-03-15,2030-03-15,0,1985-06-01,500000,120,4.35
`
	if _, err := Load(writeTempCSV(t, bad)); err == nil {
		t.Error("非法七级分类应该报错")
	}
}

func TestLoadNegativeBalance(t *testing.T) {
	bad := `信贷机构编号,信贷分行名称,信贷支行名称,七级分类,客户名称,客户编号,信贷产品名称（三级）,贷款起始日,贷款终止日,本金逾期天数,出生年月,贷款余额,贷款期限,利率
ORG0001,西安分行,高新支行,正常,客户1,CUST00001,个人住房贷款,2020-03-15,2030-03-15,0,1985-06-01,-100,120,4.35
`
	if _, err := Load(writeTempCSV(t, bad)); err == nil {
		t.Error("负的贷款余额应该报错")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	l, err := Load(writeTempCSV(t, sampleCSV))
	if err != nil {
		t.Fatalf("加载台账失败: %v", err)
	}

	snap := l.Snapshot()
	snap[0].Balance = -1
	snap[0].Branch = "已篡改"

	if l.Rows()[0].Balance != 500000 || l.Rows()[0].Branch != "西安分行" {
		t.Error("修改快照不应影响台账正本")
	}
}
