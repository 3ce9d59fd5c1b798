package chart

import (
	"bytes"
	"testing"
	"time"

	"github.com/ashureev/worklog/internal/stats"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func TestRenderDayProducesPNG(t *testing.T) {
	t.Parallel()

	day := stats.NewDayChart(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 3000)
	img, err := NewRenderer().RenderDay(day)
	if err != nil {
		t.Fatalf("RenderDay failed: %v", err)
	}
	if !bytes.HasPrefix(img, pngMagic) {
		t.Fatalf("expected PNG output, got % x", img[:min(len(img), 8)])
	}
}

func TestRenderDayWithNoWorkedTime(t *testing.T) {
	t.Parallel()

	day := stats.NewDayChart(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 0)
	if _, err := NewRenderer().RenderDay(day); err != nil {
		t.Fatalf("RenderDay failed for an empty day: %v", err)
	}
}
