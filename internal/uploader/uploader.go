// Package uploader drives the per-platform publish protocols.
//
// Each platform supplies only its publish sequence and credential check; the
// shared retrying publisher wraps the sequence with exponential backoff and
// converts exhaustion into a failed result instead of an error. A well-behaved
// uploader never leaks an error out of Upload for ordinary publish failures.
package uploader

import (
	"context"
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/DailyProgress/YearReel/internal/models"
)

// Retry defaults shared by all platform variants.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 1 * time.Second
)

// Uploader is the capability set every platform variant implements.
type Uploader interface {
	// Platform returns the tag used by the orchestrator and state record.
	Platform() models.Platform
	// Upload runs the platform's publish sequence with retry. It reports
	// failure through the result, never through a panic or leaked error.
	Upload(ctx context.Context, videoPath, caption string, opts models.UploadOptions) models.UploadResult
	// VerifyCredentials runs a lightweight read-only smoke test. It returns
	// false (never panics) on any failure, logging the cause.
	VerifyCredentials(ctx context.Context) bool
}

// PublishFunc is one platform's complete publish sequence. It is re-run from
// its first step on every retry attempt; there is no partial resumption.
type PublishFunc func(ctx context.Context, videoPath, caption string) (map[string]any, error)

// publishWithRetry is the generic retrying publisher. Backoff is pure
// exponential: baseDelay * 2^(attempt-1) before attempt N+1.
func publishWithRetry(ctx context.Context, platform models.Platform, publish PublishFunc, videoPath, caption string, opts models.UploadOptions) models.UploadResult {
	if opts.DryRun {
		slog.Info("dry run, skipping publish", "platform", platform, "video", videoPath)
		return models.UploadResult{
			Success:  true,
			Platform: platform,
			Result:   map[string]any{"dryRun": true},
		}
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	// Cap above the largest delay the attempt ceiling can produce so the
	// backoff stays purely exponential.
	maxDelay := baseDelay << uint(maxRetries)

	policy := retrypolicy.NewBuilder[map[string]any]().
		WithBackoff(baseDelay, maxDelay).
		WithMaxRetries(maxRetries - 1).
		Build()

	attempt := 0
	var lastErr error
	result, err := failsafe.With(policy).WithContext(ctx).Get(func() (map[string]any, error) {
		attempt++
		res, err := publish(ctx, videoPath, caption)
		if err != nil {
			lastErr = err
			slog.Warn("publish attempt failed",
				"platform", platform, "attempt", attempt, "max_attempts", maxRetries, "error", err)
			return nil, err
		}
		slog.Info("publish attempt succeeded", "platform", platform, "attempt", attempt)
		return res, nil
	})
	if err != nil {
		if lastErr != nil {
			err = lastErr
		}
		slog.Error("publish failed after all attempts",
			"platform", platform, "attempts", attempt, "error", err)
		return models.UploadResult{Success: false, Platform: platform, Error: err.Error()}
	}
	return models.UploadResult{Success: true, Platform: platform, Result: result}
}
