package sandbox

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
)

// 图表画布尺寸与边距
const (
	chartWidth  = 800
	chartHeight = 450
	chartMargin = 48
)

// palette 柱形配色，循环取用
var palette = []color.RGBA{
	{R: 0x41, G: 0x69, B: 0xe1, A: 0xff},
	{R: 0xe0, G: 0x6c, B: 0x3a, A: 0xff},
	{R: 0x2e, G: 0x8b, B: 0x57, A: 0xff},
	{R: 0xb2, G: 0x3a, B: 0x48, A: 0xff},
	{R: 0x8a, G: 0x63, B: 0xb8, A: 0xff},
	{R: 0x8c, G: 0x5a, B: 0x3c, A: 0xff},
	{R: 0xd4, G: 0x76, B: 0xa8, A: 0xff},
}

var (
	chartBg   = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	chartAxis = color.RGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff}
	chartGrid = color.RGBA{R: 0xe5, G: 0xe5, B: 0xe5, A: 0xff}
)

// execChart 形如 `chart bar <标题>` / `chart hist <列> <标题>` / `chart placeholder <文案>`。
// 图表写入 output_chart 槽位指向的文件。
func (env *environment) execChart(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("chart 需要图表类型")
	}
	slot := env.vars["output_chart"]
	if slot == "" {
		return fmt.Errorf("输出槽位 output_chart 未绑定")
	}
	path := filepath.Join(env.outputDir, slot)

	switch args[0] {
	case "bar":
		if err := env.requireResult(); err != nil {
			return err
		}
		values := make([]float64, len(env.result.rows))
		for i, row := range env.result.rows {
			values[i] = row.value
		}
		return renderBars(path, values)

	case "hist":
		if len(args) < 2 {
			return fmt.Errorf("chart hist 需要列名")
		}
		values, err := env.numericColumn(args[1])
		if err != nil {
			return err
		}
		return renderBars(path, histogram(values, 20))

	case "placeholder":
		return renderPlaceholder(path)

	default:
		return fmt.Errorf("不支持的图表类型: %s", args[0])
	}
}

// histogram 将取值分桶计数
func histogram(values []float64, bins int) []float64 {
	if len(values) == 0 || bins <= 0 {
		return nil
	}
	min, max := values[0], values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	counts := make([]float64, bins)
	if max == min {
		counts[0] = float64(len(values))
		return counts
	}
	width := (max - min) / float64(bins)
	for _, v := range values {
		idx := int((v - min) / width)
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
	}
	return counts
}

// renderBars 渲染柱状图并编码为 PNG
func renderBars(path string, values []float64) error {
	img := newCanvas()

	plotLeft, plotTop := chartMargin, chartMargin
	plotRight, plotBottom := chartWidth-chartMargin, chartHeight-chartMargin

	// 横向网格线
	for i := 1; i <= 4; i++ {
		y := plotTop + (plotBottom-plotTop)*i/5
		drawHLine(img, plotLeft, plotRight, y, chartGrid)
	}
	// 坐标轴
	drawHLine(img, plotLeft, plotRight, plotBottom, chartAxis)
	drawVLine(img, plotLeft, plotTop, plotBottom, chartAxis)

	if len(values) > 0 {
		maxVal := values[0]
		for _, v := range values {
			if v > maxVal {
				maxVal = v
			}
		}
		if maxVal <= 0 {
			maxVal = 1
		}

		plotWidth := plotRight - plotLeft
		slot := plotWidth / len(values)
		gap := slot / 5
		if gap < 1 {
			gap = 1
		}
		for i, v := range values {
			if v < 0 {
				v = 0
			}
			h := int(float64(plotBottom-plotTop) * v / maxVal)
			x0 := plotLeft + i*slot + gap/2
			x1 := plotLeft + (i+1)*slot - gap/2
			fillRect(img, x0, plotBottom-h, x1, plotBottom, palette[i%len(palette)])
		}
	}

	return writePNG(path, img)
}

// renderPlaceholder 渲染占位图（空画布加边框）
func renderPlaceholder(path string) error {
	img := newCanvas()
	border := color.RGBA{R: 0xbb, G: 0xbb, B: 0xbb, A: 0xff}
	drawHLine(img, 0, chartWidth-1, 0, border)
	drawHLine(img, 0, chartWidth-1, chartHeight-1, border)
	drawVLine(img, 0, 0, chartHeight-1, border)
	drawVLine(img, chartWidth-1, 0, chartHeight-1, border)
	fillRect(img, chartWidth/2-60, chartHeight/2-2, chartWidth/2+60, chartHeight/2+2, border)
	return writePNG(path, img)
}

func newCanvas() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, chartWidth, chartHeight))
	fillRect(img, 0, 0, chartWidth, chartHeight, chartBg)
	return img
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func drawHLine(img *image.RGBA, x0, x1, y int, c color.RGBA) {
	for x := x0; x <= x1; x++ {
		img.SetRGBA(x, y, c)
	}
}

func drawVLine(img *image.RGBA, x, y0, y1 int, c color.RGBA) {
	for y := y0; y <= y1; y++ {
		img.SetRGBA(x, y, c)
	}
}

func writePNG(path string, img *image.RGBA) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建图表目录失败: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建图表文件失败: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("编码图表失败: %w", err)
	}
	return nil
}
