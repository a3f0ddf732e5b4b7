// Package orchestrator fans one video out to every configured platform.
//
// Uploads are dispatched concurrently and all settle before the aggregate is
// computed; one platform's failure never cancels or blocks another's attempt.
// The aggregate succeeds when at least one platform succeeded.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/DailyProgress/YearReel/internal/models"
	"github.com/DailyProgress/YearReel/internal/uploader"
)

// Orchestrator holds an ordered set of uploaders keyed by platform tag.
type Orchestrator struct {
	mu        sync.RWMutex
	order     []models.Platform
	uploaders map[models.Platform]uploader.Uploader
}

// New builds an orchestrator over the given uploaders, preserving their order.
func New(uploaders ...uploader.Uploader) *Orchestrator {
	o := &Orchestrator{uploaders: make(map[models.Platform]uploader.Uploader)}
	for _, u := range uploaders {
		o.AddUploader(u)
	}
	return o
}

// AddUploader registers an uploader, replacing any existing one for the same
// platform without disturbing its position in the order.
func (o *Orchestrator) AddUploader(u uploader.Uploader) {
	o.mu.Lock()
	defer o.mu.Unlock()
	platform := u.Platform()
	if _, exists := o.uploaders[platform]; !exists {
		o.order = append(o.order, platform)
	}
	o.uploaders[platform] = u
}

// RemoveUploader drops the uploader for a platform tag, if present.
func (o *Orchestrator) RemoveUploader(platform models.Platform) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.uploaders[platform]; !exists {
		return
	}
	delete(o.uploaders, platform)
	for i, p := range o.order {
		if p == platform {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
}

// Platforms returns the registered platform tags in order.
func (o *Orchestrator) Platforms() []models.Platform {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]models.Platform, len(o.order))
	copy(out, o.order)
	return out
}

// VerifyCredentials runs the credential smoke test for one platform. Unknown
// platform tags report false.
func (o *Orchestrator) VerifyCredentials(ctx context.Context, platform models.Platform) bool {
	o.mu.RLock()
	u, ok := o.uploaders[platform]
	o.mu.RUnlock()
	if !ok {
		slog.Warn("no uploader registered for platform", "platform", platform)
		return false
	}
	return u.VerifyCredentials(ctx)
}

// UploadToAll publishes to every registered uploader concurrently.
func (o *Orchestrator) UploadToAll(ctx context.Context, videoPath, caption string, opts models.UploadOptions) models.MultiUploadResult {
	return o.upload(ctx, videoPath, caption, o.Platforms(), opts)
}

// UploadTo publishes to the named subset of platforms. Unknown tags are
// skipped; an empty intersection yields a failed aggregate with no network
// calls attempted.
func (o *Orchestrator) UploadTo(ctx context.Context, videoPath, caption string, platforms []models.Platform, opts models.UploadOptions) models.MultiUploadResult {
	o.mu.RLock()
	var selected []models.Platform
	for _, p := range o.order {
		for _, want := range platforms {
			if p == want {
				selected = append(selected, p)
				break
			}
		}
	}
	o.mu.RUnlock()
	return o.upload(ctx, videoPath, caption, selected, opts)
}

func (o *Orchestrator) upload(ctx context.Context, videoPath, caption string, platforms []models.Platform, opts models.UploadOptions) models.MultiUploadResult {
	if len(platforms) == 0 {
		slog.Warn("no uploaders selected, nothing to publish")
		return models.MultiUploadResult{
			Results: models.PartitionedUploads{Successful: []models.UploadResult{}, Failed: []models.UploadResult{}},
		}
	}

	slog.Info("dispatching upload to platforms", "platforms", platforms, "video", videoPath)

	results := make([]models.UploadResult, len(platforms))
	var wg sync.WaitGroup
	for idx, platform := range platforms {
		o.mu.RLock()
		u := o.uploaders[platform]
		o.mu.RUnlock()

		wg.Add(1)
		go func(idx int, platform models.Platform, u uploader.Uploader) {
			defer wg.Done()
			results[idx] = settle(ctx, u, platform, videoPath, caption, opts)
		}(idx, platform, u)
	}
	wg.Wait()

	aggregate := models.MultiUploadResult{
		Results: models.PartitionedUploads{Successful: []models.UploadResult{}, Failed: []models.UploadResult{}},
	}
	for _, r := range results {
		if r.Success {
			aggregate.Results.Successful = append(aggregate.Results.Successful, r)
		} else {
			aggregate.Results.Failed = append(aggregate.Results.Failed, r)
		}
	}
	aggregate.Success = len(aggregate.Results.Successful) > 0

	slog.Info("upload fan-out settled",
		"successful", len(aggregate.Results.Successful),
		"failed", len(aggregate.Results.Failed),
		"success", aggregate.Success)
	return aggregate
}

// settle runs one uploader and coerces panics into failed results so a buggy
// uploader can never crash the whole fan-out.
func settle(ctx context.Context, u uploader.Uploader, platform models.Platform, videoPath, caption string, opts models.UploadOptions) (result models.UploadResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("uploader panicked", "platform", platform, "panic", r)
			result = models.UploadResult{
				Success:  false,
				Platform: platform,
				Error:    fmt.Sprintf("uploader panicked: %v", r),
			}
		}
	}()
	return u.Upload(ctx, videoPath, caption, opts)
}
