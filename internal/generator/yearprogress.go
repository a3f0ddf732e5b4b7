package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/DailyProgress/YearReel/internal/models"
)

// ContentTypeYearProgress tags content produced by the year-progress variant.
const ContentTypeYearProgress = "year_progress"

func init() {
	Register(ContentTypeYearProgress, newYearProgress)
}

// yearProgress posts the whole-number percentage of the calendar year elapsed.
// The identifier resets every January 1st, so it is year-scoped.
type yearProgress struct {
	cfg Config
}

func newYearProgress(cfg Config) (Generator, error) {
	if cfg.Renderer == nil {
		return nil, fmt.Errorf("year progress generator requires a renderer")
	}
	return &yearProgress{cfg: cfg}, nil
}

func (g *yearProgress) ContentType() string { return ContentTypeYearProgress }

func (g *yearProgress) CurrentValue() any {
	return percentOfYear(g.cfg.Now())
}

func (g *yearProgress) CurrentYear() *int {
	year := g.cfg.Now().Year()
	return &year
}

func (g *yearProgress) ShouldGenerate(last *models.StateRecord) bool {
	return shouldGenerate(last, g.ContentType(), g.CurrentValue(), g.CurrentYear())
}

func (g *yearProgress) Generate(ctx context.Context) (*Bundle, error) {
	now := g.cfg.Now()
	percent := percentOfYear(now)
	day := now.YearDay()

	caption := g.cfg.Templates.Caption(day, map[string]string{
		"percent":   strconv.Itoa(percent),
		"year":      strconv.Itoa(now.Year()),
		"dayOfYear": strconv.Itoa(day),
	})
	if g.cfg.Enhancer != nil {
		enhanced, err := g.cfg.Enhancer.EnhanceCaption(ctx, caption)
		if err != nil {
			slog.Warn("caption enhancement failed, using template caption", "error", err)
		} else {
			caption = enhanced
		}
	}

	result, err := g.cfg.Renderer.Render(ctx, caption, percent)
	if err != nil {
		return nil, fmt.Errorf("render year progress video: %w", err)
	}

	return &Bundle{
		VideoPath: result.VideoPath,
		Caption:   caption,
		Hashtags:  g.cfg.Templates.Hashtags,
		Metadata: map[string]any{
			"percent":    percent,
			"year":       now.Year(),
			"dayOfYear":  day,
			"leapYear":   isLeapYear(now.Year()),
			"background": result.Metadata.Background,
			"audio":      result.Metadata.Audio,
			"duration":   result.Metadata.Duration,
			"resolution": result.Metadata.Resolution,
		},
	}, nil
}

// percentOfYear returns the whole-number percentage of the calendar year
// elapsed at t, 0..100, floored.
func percentOfYear(t time.Time) int {
	start := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	end := time.Date(t.Year()+1, time.January, 1, 0, 0, 0, 0, t.Location())
	elapsed := t.Sub(start)
	total := end.Sub(start)
	return int(float64(elapsed) / float64(total) * 100)
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
