package uploader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DailyProgress/YearReel/internal/models"
)

// writeTestVideo creates a small fake video file and returns its path.
func writeTestVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("not really mpeg4 but close enough"), 0644); err != nil {
		t.Fatalf("write test video: %v", err)
	}
	return path
}

// flakySequence fails a fixed number of times before succeeding.
type flakySequence struct {
	failures int
	calls    int
}

func (s *flakySequence) publish(ctx context.Context, videoPath, caption string) (map[string]any, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, fmt.Errorf("transient failure %d", s.calls)
	}
	return map[string]any{"id": "ok"}, nil
}

// A sequence that fails twice then succeeds must be attempted exactly three
// times with backoff delays of baseDelay and 2*baseDelay in between.
func TestPublishWithRetry_BackoffTiming(t *testing.T) {
	seq := &flakySequence{failures: 2}
	start := time.Now()
	result := publishWithRetry(context.Background(), models.PlatformYouTube, seq.publish, "/tmp/v.mp4", "cap",
		models.UploadOptions{MaxRetries: 3, BaseDelay: 100 * time.Millisecond})
	elapsed := time.Since(start)

	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if seq.calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", seq.calls)
	}
	if elapsed < 300*time.Millisecond {
		t.Errorf("expected at least 300ms of backoff (100+200), elapsed %v", elapsed)
	}
}

func TestPublishWithRetry_Exhaustion(t *testing.T) {
	seq := &flakySequence{failures: 10}
	result := publishWithRetry(context.Background(), models.PlatformFacebook, seq.publish, "/tmp/v.mp4", "cap",
		models.UploadOptions{MaxRetries: 3, BaseDelay: time.Millisecond})

	if result.Success {
		t.Fatal("expected failure after exhausting retries")
	}
	if seq.calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", seq.calls)
	}
	if result.Platform != models.PlatformFacebook {
		t.Errorf("result platform = %q", result.Platform)
	}
	if result.Error != "transient failure 3" {
		t.Errorf("expected last attempt's error, got %q", result.Error)
	}
}

func TestPublishWithRetry_FirstAttemptSuccessIsImmediate(t *testing.T) {
	seq := &flakySequence{}
	start := time.Now()
	result := publishWithRetry(context.Background(), models.PlatformInstagram, seq.publish, "/tmp/v.mp4", "cap",
		models.UploadOptions{MaxRetries: 3, BaseDelay: time.Second})

	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if seq.calls != 1 {
		t.Errorf("expected 1 attempt, got %d", seq.calls)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("no backoff should apply on first success, elapsed %v", elapsed)
	}
}

func TestPublishWithRetry_DryRun(t *testing.T) {
	seq := &flakySequence{}
	result := publishWithRetry(context.Background(), models.PlatformYouTube, seq.publish, "/tmp/v.mp4", "cap",
		models.UploadOptions{DryRun: true})

	if !result.Success {
		t.Fatalf("dry run must succeed, got %q", result.Error)
	}
	if result.Result["dryRun"] != true {
		t.Errorf("expected dryRun marker, got %v", result.Result)
	}
	if seq.calls != 0 {
		t.Errorf("dry run must not invoke the publish sequence, got %d calls", seq.calls)
	}
}

func TestPublishWithRetry_DefaultsApplied(t *testing.T) {
	seq := &flakySequence{failures: 10}
	result := publishWithRetry(context.Background(), models.PlatformYouTube, seq.publish, "/tmp/v.mp4", "cap",
		models.UploadOptions{BaseDelay: time.Millisecond})

	if result.Success {
		t.Fatal("expected failure")
	}
	if seq.calls != DefaultMaxRetries {
		t.Errorf("expected default attempt ceiling %d, got %d", DefaultMaxRetries, seq.calls)
	}
}

// All three variants satisfy the Uploader interface.
func TestVariants_ImplementUploader(t *testing.T) {
	var _ Uploader = (*YouTube)(nil)
	var _ Uploader = (*Facebook)(nil)
	var _ Uploader = (*Instagram)(nil)
}
