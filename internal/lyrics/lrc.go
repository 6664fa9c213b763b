package lyrics

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// PlaceholderText 占位行使用的不可见文本（非换行空格），保证 UI 仍为其保留行高
const PlaceholderText = "\u00a0"

const (
	DefaultLeadingPlaceholders  = 15
	DefaultTrailingPlaceholders = 15
	DefaultTrailingStart        = 999.0
)

// 匹配 [mm:ss.xx] / [mm:ss.xxx]，分隔符也可以是 ':'
var timeTagRe = regexp.MustCompile(`\[(\d{2}):(\d{2})[.:](\d{2,3})\]`)

// Line 时间轴上的一行歌词
type Line struct {
	Time float64 `json:"time" yaml:"time"` // 秒，占位行可为负数
	Text string  `json:"text" yaml:"text"`
}

// IsPlaceholder 是否为首尾填充的占位行
func (l Line) IsPlaceholder() bool {
	return l.Text == PlaceholderText
}

// Options 控制首尾占位行的数量与结尾占位的起始时间
type Options struct {
	LeadingPlaceholders  int
	TrailingPlaceholders int
	TrailingStart        float64
}

func DefaultOptions() Options {
	return Options{
		LeadingPlaceholders:  DefaultLeadingPlaceholders,
		TrailingPlaceholders: DefaultTrailingPlaceholders,
		TrailingStart:        DefaultTrailingStart,
	}
}

// Parse 使用默认占位配置解析 LRC 文本
func Parse(lrc string) []Line {
	return ParseWithOptions(lrc, DefaultOptions())
}

// ParseWithOptions 把 LRC 文本解析为按时间排序的歌词行。
// 结果前后总是带有占位行，即使输入为空或没有任何时间标签。
// 没有时间标签的行（歌曲信息等）会被忽略；一行有多个标签时每个标签各生成一行。
func ParseWithOptions(lrc string, opts Options) []Line {
	leading := max(opts.LeadingPlaceholders, 0)
	trailing := max(opts.TrailingPlaceholders, 0)

	lines := make([]Line, 0, leading+trailing)
	for i := 0; i < leading; i++ {
		lines = append(lines, Line{Time: float64(i - leading), Text: PlaceholderText})
	}

	if lrc != "" {
		for _, raw := range strings.Split(lrc, "\n") {
			lines = append(lines, parseLine(raw)...)
		}
	}

	// 同一时间的行保持原始顺序
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Time < lines[j].Time })

	// 结尾占位在排序之后追加；极长的歌词会把起点推后，保持整体有序
	start := opts.TrailingStart
	if n := len(lines); n > 0 && lines[n-1].Time > start {
		start = math.Ceil(lines[n-1].Time)
	}
	for i := 0; i < trailing; i++ {
		lines = append(lines, Line{Time: start + float64(i), Text: PlaceholderText})
	}
	return lines
}

func parseLine(raw string) []Line {
	matches := timeTagRe.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return nil
	}

	text := strings.TrimSpace(timeTagRe.ReplaceAllString(raw, ""))
	result := make([]Line, 0, len(matches))
	for _, match := range matches {
		result = append(result, Line{Time: tagSeconds(match[1], match[2], match[3]), Text: text})
	}
	return result
}

// tagSeconds 三位小数按毫秒、两位按百分之一秒处理
func tagSeconds(minStr, secStr, fracStr string) float64 {
	min, _ := strconv.Atoi(minStr)
	sec, _ := strconv.Atoi(secStr)
	frac, _ := strconv.Atoi(fracStr)

	divisor := 100.0
	if len(fracStr) == 3 {
		divisor = 1000.0
	}
	return float64(min*60+sec) + float64(frac)/divisor
}

// IndexAt 返回时间 t 时应当高亮的行：最后一个 Time <= t 的下标。
// t 早于第一行或 lines 为空时返回 -1。
func IndexAt(lines []Line, t float64) int {
	if len(lines) == 0 || t < lines[0].Time {
		return -1
	}

	// 二分查找
	left, right := 0, len(lines)-1
	result := -1
	for left <= right {
		mid := (left + right) / 2
		if lines[mid].Time <= t {
			result = mid
			left = mid + 1
		} else {
			right = mid - 1
		}
	}
	return result
}

// RealLines 过滤掉占位行
func RealLines(lines []Line) []Line {
	var out []Line
	for _, l := range lines {
		if !l.IsPlaceholder() {
			out = append(out, l)
		}
	}
	return out
}
