// Package render produces the short vertical progress video.
//
// A Pipeline paints successive frames (background image, animated gradient
// progress bar, caption text) with fogleman/gg and hands them to an external
// ffmpeg binary for encoding. On success the returned path points to a fully
// written, closed file; on any failure no partial output file is left behind.
package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"

	"github.com/DailyProgress/YearReel/internal/util"
)

// Result is the contract consumed by the main flow: a finished video file plus
// the caption and the assets that went into it.
type Result struct {
	VideoPath string
	Caption   string
	Metadata  Metadata
}

// Metadata describes how the video was produced.
type Metadata struct {
	Background string  `json:"background"`
	Audio      string  `json:"audio"`
	Duration   float64 `json:"duration"`
	Resolution string  `json:"resolution"`
}

// Renderer is the boundary the generator and main flow depend on.
type Renderer interface {
	Render(ctx context.Context, caption string, percent int) (*Result, error)
}

// Opts holds render pipeline configuration.
type Opts struct {
	Width         int
	Height        int
	FPS           int
	Duration      float64
	FontPath      string
	FontSize      float64
	BackgroundDir string
	AudioDir      string
	OutputDir     string
	FFmpegPath    string
}

// Option configures the render pipeline.
type Option func(*Opts)

// WithResolution sets the output frame size.
func WithResolution(width, height int) Option {
	return func(o *Opts) { o.Width = width; o.Height = height }
}

// WithFPS sets the frame rate.
func WithFPS(fps int) Option {
	return func(o *Opts) { o.FPS = fps }
}

// WithDuration sets the clip length in seconds.
func WithDuration(seconds float64) Option {
	return func(o *Opts) { o.Duration = seconds }
}

// WithFont sets the caption font file and size. A non-positive size keeps the
// default.
func WithFont(path string, size float64) Option {
	return func(o *Opts) {
		o.FontPath = path
		if size > 0 {
			o.FontSize = size
		}
	}
}

// WithBackgroundDir sets the directory backgrounds are picked from.
func WithBackgroundDir(dir string) Option {
	return func(o *Opts) { o.BackgroundDir = dir }
}

// WithAudioDir sets the directory audio tracks are picked from.
func WithAudioDir(dir string) Option {
	return func(o *Opts) { o.AudioDir = dir }
}

// WithOutputDir sets where finished videos are written.
func WithOutputDir(dir string) Option {
	return func(o *Opts) { o.OutputDir = dir }
}

// WithFFmpegPath overrides the ffmpeg binary location.
func WithFFmpegPath(path string) Option {
	return func(o *Opts) { o.FFmpegPath = path }
}

// Pipeline renders progress videos. The caption font is loaded once at
// construction; a Pipeline value is the "renderer ready" handle.
type Pipeline struct {
	opts Opts
	face font.Face
}

// NewPipeline validates configuration and performs the one-time font load.
func NewPipeline(opts ...Option) (*Pipeline, error) {
	cfg := Opts{
		Width:      1080,
		Height:     1920,
		FPS:        30,
		Duration:   6.0,
		FontSize:   96,
		OutputDir:  os.TempDir(),
		FFmpegPath: "ffmpeg",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.FontPath == "" {
		return nil, fmt.Errorf("render font path must be provided")
	}
	face, err := gg.LoadFontFace(cfg.FontPath, cfg.FontSize)
	if err != nil {
		return nil, fmt.Errorf("load caption font %s: %w", cfg.FontPath, err)
	}
	slog.Debug("render pipeline ready",
		"resolution", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"fps", cfg.FPS, "duration", cfg.Duration, "font", cfg.FontPath)
	return &Pipeline{opts: cfg, face: face}, nil
}

// Render draws every frame and encodes them into an mp4. percent must be in
// 0..100; the progress bar animates from zero to percent over the clip.
func (p *Pipeline) Render(ctx context.Context, caption string, percent int) (*Result, error) {
	if percent < 0 || percent > 100 {
		return nil, fmt.Errorf("percent out of range: %d", percent)
	}

	background, err := pickAsset(p.opts.BackgroundDir, []string{".png", ".jpg", ".jpeg"})
	if err != nil {
		return nil, fmt.Errorf("select background: %w", err)
	}
	audio, err := pickAsset(p.opts.AudioDir, []string{".mp3", ".m4a", ".aac", ".wav"})
	if err != nil {
		return nil, fmt.Errorf("select audio: %w", err)
	}

	frameDir, err := os.MkdirTemp("", "yearreel-frames-")
	if err != nil {
		return nil, fmt.Errorf("create frame dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(frameDir); err != nil {
			slog.Warn("failed to remove frame dir", "dir", frameDir, "error", err)
		}
	}()

	bgImage, err := gg.LoadImage(background)
	if err != nil {
		return nil, fmt.Errorf("load background %s: %w", background, err)
	}

	frameCount := int(float64(p.opts.FPS) * p.opts.Duration)
	for i := 0; i < frameCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("render interrupted: %w", err)
		}
		// Ease the bar in over the first two thirds of the clip.
		progress := float64(i) / (float64(frameCount) * 2.0 / 3.0)
		if progress > 1 {
			progress = 1
		}
		framePath := filepath.Join(frameDir, fmt.Sprintf("frame-%05d.png", i))
		if err := p.drawFrame(framePath, bgImage, caption, float64(percent)*progress); err != nil {
			return nil, fmt.Errorf("draw frame %d: %w", i, err)
		}
	}

	outPath := filepath.Join(p.opts.OutputDir, fmt.Sprintf("yearreel-%s.mp4", util.GenerateRandomHex(12)))
	if err := p.encode(ctx, frameDir, audio, outPath); err != nil {
		return nil, err
	}

	slog.Info("video rendered", "path", outPath, "frames", frameCount, "background", background, "audio", audio)
	return &Result{
		VideoPath: outPath,
		Caption:   caption,
		Metadata: Metadata{
			Background: background,
			Audio:      audio,
			Duration:   p.opts.Duration,
			Resolution: fmt.Sprintf("%dx%d", p.opts.Width, p.opts.Height),
		},
	}, nil
}

// drawFrame paints one frame: background, caption, gradient bar, percent label.
func (p *Pipeline) drawFrame(path string, bg image.Image, caption string, shownPercent float64) error {
	dc := gg.NewContext(p.opts.Width, p.opts.Height)
	dc.DrawImage(bg, 0, 0)
	dc.SetFontFace(p.face)

	w := float64(p.opts.Width)
	h := float64(p.opts.Height)

	// Caption, centered in the upper third.
	dc.SetRGB(1, 1, 1)
	dc.DrawStringWrapped(caption, w/2, h/3, 0.5, 0.5, w*0.85, 1.4, gg.AlignCenter)

	// Progress bar track.
	barX, barY := w*0.1, h*0.55
	barW, barH := w*0.8, h*0.035
	dc.SetRGBA(1, 1, 1, 0.25)
	dc.DrawRoundedRectangle(barX, barY, barW, barH, barH/2)
	dc.Fill()

	// Filled portion with a horizontal gradient.
	fillW := barW * shownPercent / 100
	if fillW > 0 {
		grad := gg.NewLinearGradient(barX, 0, barX+barW, 0)
		grad.AddColorStop(0, color.RGBA{R: 0x00, G: 0xC6, B: 0xFF, A: 0xFF})
		grad.AddColorStop(1, color.RGBA{R: 0x00, G: 0x72, B: 0xFF, A: 0xFF})
		dc.SetFillStyle(grad)
		dc.DrawRoundedRectangle(barX, barY, fillW, barH, barH/2)
		dc.Fill()
	}

	// Percent label under the bar.
	dc.SetRGB(1, 1, 1)
	dc.DrawStringAnchored(fmt.Sprintf("%d%%", int(shownPercent)), w/2, barY+barH*3, 0.5, 0.5)

	return dc.SavePNG(path)
}

// encode invokes ffmpeg. Output goes to a temp name first and is renamed into
// place only on success so a failed encode leaves no partial file.
func (p *Pipeline) encode(ctx context.Context, frameDir, audio, outPath string) error {
	tmpPath := outPath + ".part"
	args := []string{
		"-y",
		"-framerate", fmt.Sprint(p.opts.FPS),
		"-i", filepath.Join(frameDir, "frame-%05d.png"),
		"-i", audio,
		"-t", fmt.Sprint(p.opts.Duration),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-shortest",
		"-movflags", "+faststart",
		"-f", "mp4",
		tmpPath,
	}
	cmd := exec.CommandContext(ctx, p.opts.FFmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if rmErr := os.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
			slog.Warn("failed to remove partial encode output", "path", tmpPath, "error", rmErr)
		}
		return fmt.Errorf("ffmpeg encode failed: %w: %s", err, truncate(string(output), 512))
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("finalize encoded video: %w", err)
	}
	return nil
}

// pickAsset returns a random file with one of the given extensions from dir.
func pickAsset(dir string, extensions []string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("asset directory not configured")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read asset dir %s: %w", dir, err)
	}
	var candidates []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		for _, want := range extensions {
			if ext == want {
				candidates = append(candidates, filepath.Join(dir, entry.Name()))
				break
			}
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no usable assets in %s", dir)
	}
	return candidates[rand.Intn(len(candidates))], nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
