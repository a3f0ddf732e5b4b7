// Package generator decides what to post and produces the content bundle.
//
// Generators are registered by content-type tag; the main flow looks one up by
// tag and never branches on concrete type. Each generator can report a stable
// identifier for "today's" content and decide, given the last stored state,
// whether a new post is needed at all.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/DailyProgress/YearReel/internal/models"
	"github.com/DailyProgress/YearReel/internal/render"
)

// Bundle is a ready-to-upload piece of content.
type Bundle struct {
	VideoPath string
	Caption   string
	Hashtags  []string
	Metadata  map[string]any
}

// CaptionEnhancer optionally rewrites a templated caption. Failures are
// non-fatal; the caller keeps the original caption.
type CaptionEnhancer interface {
	EnhanceCaption(ctx context.Context, caption string) (string, error)
}

// Generator is the capability set every content variant implements.
type Generator interface {
	// ContentType returns the tag stored in the state record.
	ContentType() string
	// CurrentValue returns the stable identifier for today's content.
	CurrentValue() any
	// CurrentYear returns the calendar year the identifier is scoped to, or
	// nil for identifiers that never reset.
	CurrentYear() *int
	// ShouldGenerate reports whether a new post is needed given the last
	// stored state. Pure: no I/O, no side effects.
	ShouldGenerate(last *models.StateRecord) bool
	// Generate renders the video and wraps it with caption and hashtags.
	Generate(ctx context.Context) (*Bundle, error)
}

// Config is handed to generator factories.
type Config struct {
	Renderer  render.Renderer
	Templates *Templates
	Enhancer  CaptionEnhancer
	Now       func() time.Time
}

// Factory builds a generator from shared configuration.
type Factory func(cfg Config) (Generator, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a generator factory under a content-type tag. Registering the
// same tag twice panics; that is a programming error.
func Register(tag string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[tag]; exists {
		panic(fmt.Sprintf("generator: duplicate registration for %q", tag))
	}
	registry[tag] = factory
}

// New looks up a registered factory by tag and builds the generator.
func New(tag string, cfg Config) (Generator, error) {
	registryMu.RLock()
	factory, ok := registry[tag]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown content type %q (registered: %v)", tag, Registered())
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Templates == nil {
		cfg.Templates = DefaultTemplates()
	}
	return factory(cfg)
}

// Registered returns the sorted list of known content-type tags.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	tags := make([]string, 0, len(registry))
	for tag := range registry {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// shouldGenerate is the shared duplicate-suppression rule: post when there is
// no prior record, when the record was produced by a different generator, when
// a year-scoped identifier rolled over, or when the value changed.
func shouldGenerate(last *models.StateRecord, contentType string, currentValue any, currentYear *int) bool {
	if last == nil {
		slog.Debug("no prior state, generating", "content_type", contentType)
		return true
	}
	if last.ContentType != contentType {
		slog.Debug("content type changed, generating", "stored", last.ContentType, "current", contentType)
		return true
	}
	if currentYear != nil && (last.Year == nil || *last.Year != *currentYear) {
		slog.Debug("year rolled over, generating", "current_year", *currentYear)
		return true
	}
	return !models.SameValue(last.LastValue, currentValue)
}
