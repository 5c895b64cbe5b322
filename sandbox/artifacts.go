package sandbox

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"edgerisk/ledger"
)

// describeCols 描述性统计覆盖的数值列
var describeCols = []string{
	ledger.ColOverdueDays, ledger.ColBalance, ledger.ColTermMonths, ledger.ColRate,
}

// execSave 形如 `save result` / `save describe` / `save cols <列...> head <n>`。
// 数据明细写入 output_csv 槽位指向的文件。
func (env *environment) execSave(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("save 需要保存目标")
	}
	slot := env.vars["output_csv"]
	if slot == "" {
		return fmt.Errorf("输出槽位 output_csv 未绑定")
	}
	path := filepath.Join(env.outputDir, slot)

	switch args[0] {
	case "result":
		if err := env.requireResult(); err != nil {
			return err
		}
		records := [][]string{{env.result.keyName, env.result.valueName}}
		for _, row := range env.result.rows {
			records = append(records, []string{row.key, env.result.format(row.value)})
		}
		return writeCSV(path, records)

	case "describe":
		return env.saveDescribe(path)

	case "cols":
		return env.saveCols(path, args[1:])

	default:
		return fmt.Errorf("不支持的保存目标: %s", args[0])
	}
}

// saveDescribe 按数值列生成描述性统计明细
func (env *environment) saveDescribe(path string) error {
	if err := env.requireLoaded(); err != nil {
		return err
	}

	type colStats struct {
		name  string
		stats []describeStat
	}
	all := make([]colStats, 0, len(describeCols))
	for _, col := range describeCols {
		values, err := env.numericColumn(col)
		if err != nil {
			return err
		}
		all = append(all, colStats{name: col, stats: describe(values)})
	}

	header := []string{"指标"}
	for _, cs := range all {
		header = append(header, cs.name)
	}
	records := [][]string{header}
	for i, stat := range all[0].stats {
		record := []string{stat.name}
		for _, cs := range all {
			record = append(record, cs.stats[i].value)
		}
		records = append(records, record)
	}
	return writeCSV(path, records)
}

// saveCols 导出指定列的前 n 行，列表以 head 关键字结束
func (env *environment) saveCols(path string, args []string) error {
	if err := env.requireLoaded(); err != nil {
		return err
	}

	var cols []string
	n := len(env.rows)
	for i := 0; i < len(args); i++ {
		if args[i] == "head" {
			if i+1 >= len(args) {
				return fmt.Errorf("head 需要行数")
			}
			parsed, err := strconv.Atoi(args[i+1])
			if err != nil || parsed < 0 {
				return fmt.Errorf("非法的行数: %s", args[i+1])
			}
			n = parsed
			break
		}
		cols = append(cols, args[i])
	}
	if len(cols) == 0 {
		return fmt.Errorf("save cols 需要至少一个列名")
	}
	if n > len(env.rows) {
		n = len(env.rows)
	}

	records := [][]string{cols}
	for i := 0; i < n; i++ {
		record := make([]string, 0, len(cols))
		for _, col := range cols {
			cell, err := env.cellValue(i, col)
			if err != nil {
				return err
			}
			record = append(record, cell)
		}
		records = append(records, record)
	}
	return writeCSV(path, records)
}

// cellValue 取第 i 行指定列的字符串表示
func (env *environment) cellValue(i int, col string) (string, error) {
	if col == colAge {
		if env.ages == nil {
			return "", fmt.Errorf("年龄列尚未派生，请先执行 derive age")
		}
		return strconv.Itoa(env.ages[i]), nil
	}
	if get, ok := stringCols[col]; ok {
		return get(&env.rows[i]), nil
	}
	if get, ok := floatCols[col]; ok {
		return strconv.FormatFloat(get(&env.rows[i]), 'f', -1, 64), nil
	}
	return "", fmt.Errorf("不支持的导出列: %s", col)
}

func writeCSV(path string, records [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建明细目录失败: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建明细文件失败: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("写入明细失败: %w", err)
	}
	return nil
}
