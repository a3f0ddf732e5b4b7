package uploader

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DailyProgress/YearReel/internal/models"
)

// DefaultGraphBaseURL is the Facebook Graph API root shared by the Facebook
// and Instagram uploaders.
const DefaultGraphBaseURL = "https://graph.facebook.com/v19.0"

// FacebookOpts holds Facebook Reels uploader configuration.
type FacebookOpts struct {
	PageID       string
	AccessToken  string
	GraphBaseURL string
	Client       *http.Client
}

// FacebookOption configures the Facebook uploader.
type FacebookOption func(*FacebookOpts)

// WithFacebookPage sets the page id reels are published to.
func WithFacebookPage(pageID string) FacebookOption {
	return func(o *FacebookOpts) { o.PageID = pageID }
}

// WithFacebookToken sets the page access token.
func WithFacebookToken(token string) FacebookOption {
	return func(o *FacebookOpts) { o.AccessToken = token }
}

// WithFacebookBaseURL overrides the Graph API root (used by tests).
func WithFacebookBaseURL(base string) FacebookOption {
	return func(o *FacebookOpts) { o.GraphBaseURL = base }
}

// WithFacebookHTTPClient injects a custom HTTP client.
func WithFacebookHTTPClient(c *http.Client) FacebookOption {
	return func(o *FacebookOpts) { o.Client = c }
}

// Facebook publishes page reels through the three-phase chunked-session
// protocol: start (obtain video_id and upload_url), upload (raw bytes to the
// upload host under the OAuth header scheme), finish (commit and publish).
// A failure at any phase aborts the attempt; retries restart at start.
type Facebook struct {
	pageID       string
	accessToken  string
	graphBaseURL string
	http         *http.Client
}

// NewFacebook builds a Facebook Reels uploader. Page id and token are required.
func NewFacebook(opts ...FacebookOption) (*Facebook, error) {
	cfg := FacebookOpts{
		GraphBaseURL: DefaultGraphBaseURL,
		Client:       &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.PageID == "" {
		return nil, fmt.Errorf("facebook page id must be provided")
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("facebook access token must be provided")
	}
	return &Facebook{
		pageID:       cfg.PageID,
		accessToken:  cfg.AccessToken,
		graphBaseURL: cfg.GraphBaseURL,
		http:         cfg.Client,
	}, nil
}

// Platform implements Uploader.
func (f *Facebook) Platform() models.Platform { return models.PlatformFacebook }

// Upload implements Uploader.
func (f *Facebook) Upload(ctx context.Context, videoPath, caption string, opts models.UploadOptions) models.UploadResult {
	return publishWithRetry(ctx, f.Platform(), f.publish, videoPath, caption, opts)
}

// publish is the three-phase reel sequence.
func (f *Facebook) publish(ctx context.Context, videoPath, caption string) (map[string]any, error) {
	videoID, uploadURL, err := f.startPhase(ctx)
	if err != nil {
		return nil, err
	}
	slog.Debug("facebook reel session started", "video_id", videoID)

	if err := f.uploadPhase(ctx, uploadURL, videoPath); err != nil {
		return nil, err
	}
	slog.Debug("facebook reel bytes uploaded", "video_id", videoID)

	if err := f.finishPhase(ctx, videoID, caption); err != nil {
		return nil, err
	}
	slog.Debug("facebook reel published", "video_id", videoID)
	return map[string]any{"videoId": videoID}, nil
}

// startPhase requests a video id and an upload URL.
func (f *Facebook) startPhase(ctx context.Context) (videoID, uploadURL string, err error) {
	form := url.Values{
		"upload_phase": {"start"},
		"access_token": {f.accessToken},
	}
	resp, err := f.postForm(ctx, f.reelsEndpoint(), form)
	if err != nil {
		return "", "", fmt.Errorf("reel start phase: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", httpStatusError("reel start phase", resp)
	}

	var started struct {
		VideoID   string `json:"video_id"`
		UploadURL string `json:"upload_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		return "", "", fmt.Errorf("decode start phase response: %w", err)
	}
	if started.VideoID == "" || started.UploadURL == "" {
		return "", "", fmt.Errorf("start phase response missing video_id or upload_url")
	}
	return started.VideoID, started.UploadURL, nil
}

// uploadPhase streams the file's bytes to the upload host as a single chunk.
// The upload host uses the OAuth authorization scheme, not a bearer token.
func (f *Facebook) uploadPhase(ctx context.Context, uploadURL, videoPath string) error {
	info, err := os.Stat(videoPath)
	if err != nil {
		return fmt.Errorf("stat video file: %w", err)
	}
	file, err := os.Open(videoPath)
	if err != nil {
		return fmt.Errorf("open video file: %w", err)
	}
	defer file.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, file)
	if err != nil {
		return fmt.Errorf("build upload phase request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("Authorization", "OAuth "+f.accessToken)
	req.Header.Set("offset", "0")
	req.Header.Set("file_size", strconv.FormatInt(info.Size(), 10))

	resp, err := f.http.Do(req)
	if err != nil {
		return fmt.Errorf("reel upload phase: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return httpStatusError("reel upload phase", resp)
	}

	var uploaded struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return fmt.Errorf("decode upload phase response: %w", err)
	}
	if !uploaded.Success {
		return fmt.Errorf("upload phase reported failure")
	}
	return nil
}

// finishPhase commits the reel: same endpoint as start, now carrying the
// video id, the finish marker, the published state and the caption.
func (f *Facebook) finishPhase(ctx context.Context, videoID, caption string) error {
	form := url.Values{
		"upload_phase": {"finish"},
		"video_id":     {videoID},
		"video_state":  {"PUBLISHED"},
		"description":  {caption},
		"access_token": {f.accessToken},
	}
	resp, err := f.postForm(ctx, f.reelsEndpoint(), form)
	if err != nil {
		return fmt.Errorf("reel finish phase: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return httpStatusError("reel finish phase", resp)
	}

	var finished struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&finished); err != nil {
		return fmt.Errorf("decode finish phase response: %w", err)
	}
	if !finished.Success {
		return fmt.Errorf("finish phase reported failure")
	}
	return nil
}

// VerifyCredentials implements Uploader: fetches the page identity.
func (f *Facebook) VerifyCredentials(ctx context.Context) bool {
	endpoint := fmt.Sprintf("%s/%s?fields=id,name&access_token=%s",
		f.graphBaseURL, f.pageID, url.QueryEscape(f.accessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		slog.Error("facebook credential check failed", "error", err)
		return false
	}
	resp, err := f.http.Do(req)
	if err != nil {
		slog.Error("facebook credential check failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		slog.Error("facebook credential check rejected", "status", resp.StatusCode)
		return false
	}
	return true
}

func (f *Facebook) reelsEndpoint() string {
	return fmt.Sprintf("%s/%s/video_reels", f.graphBaseURL, f.pageID)
}

func (f *Facebook) postForm(ctx context.Context, endpoint string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.http.Do(req)
}
