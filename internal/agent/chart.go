package agent

import (
	"fmt"
	"math"
	"strings"

	"github.com/hypersignal/backend/internal/engine"
	"github.com/hypersignal/backend/internal/models"
)

// maxChartRows is the result size above which no chart is attempted.
const maxChartRows = 100

// chartKeywords maps user-message keywords to an explicit chart type,
// overriding the shape heuristic.
var chartKeywords = []struct {
	words []string
	typ   string
}{
	{[]string{"파이", "원형", "pie"}, "pie"},
	{[]string{"라인", "꺾은선", "선 그래프", "line"}, "line"},
	{[]string{"영역", "area"}, "area"},
	{[]string{"막대", "bar"}, "bar"},
}

// BuildChart derives a chart payload from a result's shape, or nil when
// the result is not chartable. Selection precedence: explicit user
// keyword, then pie for few non-negative categories of one series, then
// area or line for time-ordered series, then combo when series
// magnitudes differ by 10x or more, then bar.
func BuildChart(res *engine.Result, rec *models.FileRecord, userMessage string) *models.ChartPayload {
	if res == nil || res.TotalRows == 0 || res.TotalRows > maxChartRows {
		return nil
	}

	labelIdx, numericIdx := splitColumns(res, rec)
	if len(numericIdx) == 0 {
		return nil
	}

	labels := make([]string, len(res.Rows))
	for i, row := range res.Rows {
		if labelIdx >= 0 && row[labelIdx] != nil {
			labels[i] = fmt.Sprintf("%v", row[labelIdx])
		} else {
			labels[i] = fmt.Sprintf("%d", i+1)
		}
	}

	datasets := make([]models.ChartDataset, len(numericIdx))
	for d, ci := range numericIdx {
		data := make([]float64, len(res.Rows))
		for i, row := range res.Rows {
			data[i] = toFloat(row[ci])
		}
		datasets[d] = models.ChartDataset{Label: res.Columns[ci], Data: data}
	}

	temporal := labelIdx >= 0 && isTemporalLabel(res.Columns[labelIdx], rec, labels)

	chartType := pickChartType(userMessage, datasets, temporal, len(labels))
	if chartType == "combo" {
		markComboDatasets(datasets)
	}

	return &models.ChartPayload{
		ChartType: chartType,
		Labels:    labels,
		Datasets:  datasets,
	}
}

func pickChartType(userMessage string, datasets []models.ChartDataset, temporal bool, categories int) string {
	lower := strings.ToLower(userMessage)
	for _, kw := range chartKeywords {
		for _, w := range kw.words {
			if strings.Contains(lower, w) {
				return kw.typ
			}
		}
	}

	single := len(datasets) == 1
	switch {
	case single && !temporal && categories <= 10 && allNonNegative(datasets[0].Data):
		return "pie"
	case temporal && single:
		return "area"
	case temporal:
		return "line"
	case !single && magnitudeRatio(datasets) >= 10:
		return "combo"
	default:
		return "bar"
	}
}

// markComboDatasets renders the larger-magnitude series as bars and the
// rest as an overlaid line.
func markComboDatasets(datasets []models.ChartDataset) {
	maxIdx := 0
	maxMag := 0.0
	for i, ds := range datasets {
		if m := maxAbs(ds.Data); m > maxMag {
			maxMag = m
			maxIdx = i
		}
	}
	for i := range datasets {
		if i == maxIdx {
			datasets[i].Type = "bar"
		} else {
			datasets[i].Type = "line"
		}
	}
}

// splitColumns picks the label column (first non-numeric, preferring
// one known to be temporal) and the numeric series columns.
func splitColumns(res *engine.Result, rec *models.FileRecord) (labelIdx int, numericIdx []int) {
	labelIdx = -1
	for i, name := range res.Columns {
		if columnIsNumeric(res, i) {
			numericIdx = append(numericIdx, i)
			continue
		}
		if labelIdx < 0 {
			labelIdx = i
		} else if col, ok := rec.Column(name); ok && col.Type.IsTemporal() {
			labelIdx = i
		}
	}
	return labelIdx, numericIdx
}

// columnIsNumeric inspects the actual result values, since aggregates
// produce numeric columns that do not exist in the schema.
func columnIsNumeric(res *engine.Result, idx int) bool {
	sawNumber := false
	for _, row := range res.Rows {
		switch row[idx].(type) {
		case nil:
		case float64, float32, int64, int32, int16, int8, int, uint64, uint32:
			sawNumber = true
		default:
			return false
		}
	}
	return sawNumber
}

func isTemporalLabel(name string, rec *models.FileRecord, labels []string) bool {
	if col, ok := rec.Column(name); ok && col.Type.IsTemporal() {
		return true
	}
	// Aggregate aliases (month, date_trunc results) are not in the
	// schema, so fall back to probing the label values.
	probes := 0
	for _, l := range labels {
		if l == "" {
			continue
		}
		if !looksLikeDate(l) {
			return false
		}
		probes++
		if probes >= 3 {
			break
		}
	}
	return probes > 0
}

func looksLikeDate(s string) bool {
	if len(s) < 7 {
		return false
	}
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '-' || r == '/' || r == ':' || r == ' ' || r == 'T':
		default:
			return false
		}
		if i > 25 {
			return false
		}
	}
	return true
}

func allNonNegative(data []float64) bool {
	for _, v := range data {
		if v < 0 {
			return false
		}
	}
	return true
}

// magnitudeRatio returns max over pairs of series of the ratio between
// their peak absolute values.
func magnitudeRatio(datasets []models.ChartDataset) float64 {
	minMag := math.Inf(1)
	maxMag := 0.0
	for _, ds := range datasets {
		m := maxAbs(ds.Data)
		if m == 0 {
			continue
		}
		if m < minMag {
			minMag = m
		}
		if m > maxMag {
			maxMag = m
		}
	}
	if minMag == 0 || math.IsInf(minMag, 1) {
		return 0
	}
	return maxMag / minMag
}

func maxAbs(data []float64) float64 {
	m := 0.0
	for _, v := range data {
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	case int16:
		return float64(x)
	case int8:
		return float64(x)
	case int:
		return float64(x)
	case uint64:
		return float64(x)
	case uint32:
		return float64(x)
	default:
		return 0
	}
}
