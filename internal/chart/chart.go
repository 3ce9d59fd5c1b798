// Package chart renders the daily worked-time pie chart.
package chart

import (
	"bytes"
	"fmt"

	"github.com/ashureev/worklog/internal/domain"
	"github.com/ashureev/worklog/internal/stats"
	gochart "github.com/wcharczuk/go-chart/v2"
)

const defaultSize = 600

// Renderer draws DayChart values as PNG images.
type Renderer struct {
	Width  int
	Height int
}

// NewRenderer returns a Renderer with the default canvas size.
func NewRenderer() *Renderer {
	return &Renderer{Width: defaultSize, Height: defaultSize}
}

// RenderDay returns a PNG pie chart of worked against remaining hours.
func (r *Renderer) RenderDay(day stats.DayChart) ([]byte, error) {
	pie := gochart.PieChart{
		Title:  day.Date.Format(domain.WireDateLayout),
		Width:  r.Width,
		Height: r.Height,
		Values: []gochart.Value{
			{Value: day.WorkedHours, Label: fmt.Sprintf("Worked Time (%.1f hrs)", day.WorkedHours)},
			{Value: day.RemainingHours, Label: fmt.Sprintf("Remaining Time (%.1f hrs)", day.RemainingHours)},
		},
	}

	var buf bytes.Buffer
	if err := pie.Render(gochart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render day chart: %w", err)
	}
	return buf.Bytes(), nil
}
