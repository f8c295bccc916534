package chart

import (
	"math"
	"math/big"

	"github.com/olistqa/olistqa/internal/query"
)

const DefaultTitle = "Visualization"

// BarChart plots the first result column against the first numeric column.
type BarChart struct {
	Title  string    `json:"title"`
	X      string    `json:"x"`
	Y      string    `json:"y"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// Select picks the chart for result. It reports false when the result is
// empty or has no numeric column. Rows whose value is null, NaN or infinite
// are left out.
func Select(result query.Result) (*BarChart, bool) {
	if result.Empty() || len(result.Columns) == 0 {
		return nil, false
	}
	yIndex := firstNumericColumn(result)
	if yIndex < 0 {
		return nil, false
	}

	chart := &BarChart{
		Title:  DefaultTitle,
		X:      result.Columns[0],
		Y:      result.Columns[yIndex],
		Labels: make([]string, 0, len(result.Rows)),
		Values: make([]float64, 0, len(result.Rows)),
	}
	for _, row := range result.Rows {
		if yIndex >= len(row) {
			continue
		}
		value, ok := toFloat(row[yIndex])
		if !ok || !finite(value) {
			continue
		}
		var label any
		if len(row) > 0 {
			label = row[0]
		}
		chart.Labels = append(chart.Labels, query.FormatValue(label))
		chart.Values = append(chart.Values, value)
	}
	return chart, true
}

// A column is numeric when every non-null value is a number and at least one
// value is present.
func firstNumericColumn(result query.Result) int {
	for col := range result.Columns {
		seen := false
		numeric := true
		for _, row := range result.Rows {
			if col >= len(row) || row[col] == nil {
				continue
			}
			value, ok := toFloat(row[col])
			if !ok {
				numeric = false
				break
			}
			if finite(value) {
				seen = true
			}
		}
		if numeric && seen {
			return col
		}
	}
	return -1
}

func finite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}

func toFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case int:
		return float64(typed), true
	case int8:
		return float64(typed), true
	case int16:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case uint:
		return float64(typed), true
	case uint8:
		return float64(typed), true
	case uint16:
		return float64(typed), true
	case uint32:
		return float64(typed), true
	case uint64:
		return float64(typed), true
	case float32:
		return float64(typed), true
	case float64:
		return typed, true
	case *big.Int:
		f, _ := new(big.Float).SetInt(typed).Float64()
		return f, true
	default:
		return 0, false
	}
}
