package generator

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/DailyProgress/YearReel/internal/models"
	"github.com/DailyProgress/YearReel/internal/render"
)

// stubRenderer records calls and returns a canned result.
type stubRenderer struct {
	calls   int
	caption string
	percent int
	err     error
}

func (r *stubRenderer) Render(ctx context.Context, caption string, percent int) (*render.Result, error) {
	r.calls++
	r.caption = caption
	r.percent = percent
	if r.err != nil {
		return nil, r.err
	}
	return &render.Result{
		VideoPath: "/tmp/out.mp4",
		Caption:   caption,
		Metadata:  render.Metadata{Background: "bg.png", Audio: "a.mp3", Duration: 6, Resolution: "1080x1920"},
	}, nil
}

type stubEnhancer struct {
	out string
	err error
}

func (e *stubEnhancer) EnhanceCaption(ctx context.Context, caption string) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return e.out, nil
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// Mid-year 2026: Aug 25 is day 237 of 365, 64.9..% elapsed at midnight.
var aug25 = time.Date(2026, time.August, 25, 0, 0, 0, 0, time.UTC)

func newYearGen(t *testing.T, cfg Config) Generator {
	t.Helper()
	if cfg.Renderer == nil {
		cfg.Renderer = &stubRenderer{}
	}
	g, err := New(ContentTypeYearProgress, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return g
}

func TestRegistry(t *testing.T) {
	if _, err := New("no-such-variant", Config{Renderer: &stubRenderer{}}); err == nil {
		t.Error("expected error for unknown content type")
	}
	found := false
	for _, tag := range Registered() {
		if tag == ContentTypeYearProgress {
			found = true
		}
	}
	if !found {
		t.Errorf("year progress variant not registered: %v", Registered())
	}
}

func TestPercentOfYear(t *testing.T) {
	cases := []struct {
		at   time.Time
		want int
	}{
		{time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), 0},
		{time.Date(2026, time.July, 2, 12, 0, 0, 0, time.UTC), 50},
		{time.Date(2026, time.December, 31, 23, 59, 0, 0, time.UTC), 99},
		{aug25, 64},
	}
	for _, c := range cases {
		if got := percentOfYear(c.at); got != c.want {
			t.Errorf("percentOfYear(%s) = %d, want %d", c.at, got, c.want)
		}
	}
}

func TestYearProgress_ShouldGenerate(t *testing.T) {
	g := newYearGen(t, Config{Now: fixedNow(aug25)})
	year := 2026
	lastYear := 2025

	cases := []struct {
		name string
		last *models.StateRecord
		want bool
	}{
		{"nil record", nil, true},
		{"different content type", &models.StateRecord{LastValue: float64(64), ContentType: "daily_topic", Year: &year}, true},
		{"year rollover", &models.StateRecord{LastValue: float64(99), ContentType: ContentTypeYearProgress, Year: &lastYear}, true},
		{"missing stored year", &models.StateRecord{LastValue: float64(64), ContentType: ContentTypeYearProgress}, true},
		{"value changed", &models.StateRecord{LastValue: float64(63), ContentType: ContentTypeYearProgress, Year: &year}, true},
		{"same value", &models.StateRecord{LastValue: float64(64), ContentType: ContentTypeYearProgress, Year: &year}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := g.ShouldGenerate(c.last); got != c.want {
				t.Errorf("ShouldGenerate = %v, want %v", got, c.want)
			}
		})
	}
}

// ShouldGenerate must be pure: repeated calls with the same inputs agree.
func TestYearProgress_ShouldGenerateIsPure(t *testing.T) {
	g := newYearGen(t, Config{Now: fixedNow(aug25)})
	year := 2026
	rec := &models.StateRecord{LastValue: float64(64), ContentType: ContentTypeYearProgress, Year: &year}
	for i := 0; i < 3; i++ {
		if g.ShouldGenerate(rec) {
			t.Fatalf("call %d: expected false", i)
		}
	}
}

func TestYearProgress_Generate(t *testing.T) {
	renderer := &stubRenderer{}
	g := newYearGen(t, Config{Renderer: renderer, Now: fixedNow(aug25)})

	bundle, err := g.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if renderer.calls != 1 {
		t.Errorf("expected 1 render call, got %d", renderer.calls)
	}
	if renderer.percent != 64 {
		t.Errorf("rendered percent = %d, want 64", renderer.percent)
	}
	if bundle.VideoPath != "/tmp/out.mp4" {
		t.Errorf("unexpected video path %q", bundle.VideoPath)
	}
	if !strings.Contains(bundle.Caption, "64") {
		t.Errorf("caption should contain percent: %q", bundle.Caption)
	}
	if len(bundle.Hashtags) == 0 {
		t.Error("expected hashtags from templates")
	}
	if bundle.Metadata["dayOfYear"] != 237 {
		t.Errorf("dayOfYear = %v, want 237", bundle.Metadata["dayOfYear"])
	}
	if bundle.Metadata["leapYear"] != false {
		t.Errorf("2026 is not a leap year, metadata says %v", bundle.Metadata["leapYear"])
	}
}

func TestYearProgress_GenerateRenderFailure(t *testing.T) {
	renderer := &stubRenderer{err: fmt.Errorf("encoder exploded")}
	g := newYearGen(t, Config{Renderer: renderer, Now: fixedNow(aug25)})
	if _, err := g.Generate(context.Background()); err == nil {
		t.Fatal("expected render failure to propagate")
	}
}

func TestYearProgress_CaptionEnhancement(t *testing.T) {
	t.Run("enhanced caption used", func(t *testing.T) {
		renderer := &stubRenderer{}
		g := newYearGen(t, Config{
			Renderer: renderer,
			Enhancer: &stubEnhancer{out: "64% down, the rest is yours."},
			Now:      fixedNow(aug25),
		})
		bundle, err := g.Generate(context.Background())
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if bundle.Caption != "64% down, the rest is yours." {
			t.Errorf("expected enhanced caption, got %q", bundle.Caption)
		}
	})

	t.Run("enhancement failure falls back", func(t *testing.T) {
		renderer := &stubRenderer{}
		g := newYearGen(t, Config{
			Renderer: renderer,
			Enhancer: &stubEnhancer{err: fmt.Errorf("api down")},
			Now:      fixedNow(aug25),
		})
		bundle, err := g.Generate(context.Background())
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if !strings.Contains(bundle.Caption, "64") {
			t.Errorf("expected template caption fallback, got %q", bundle.Caption)
		}
	})
}

func TestIsLeapYear(t *testing.T) {
	cases := map[int]bool{2024: true, 2026: false, 2000: true, 1900: false}
	for year, want := range cases {
		if got := isLeapYear(year); got != want {
			t.Errorf("isLeapYear(%d) = %v, want %v", year, got, want)
		}
	}
}
