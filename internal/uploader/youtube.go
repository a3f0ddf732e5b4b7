package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DailyProgress/YearReel/internal/models"
)

// Default YouTube Data API endpoints.
const (
	DefaultYouTubeUploadBaseURL = "https://www.googleapis.com/upload/youtube/v3"
	DefaultYouTubeAPIBaseURL    = "https://www.googleapis.com/youtube/v3"

	youtubeTitleLimit = 100
)

// YouTubeOpts holds YouTube uploader configuration.
type YouTubeOpts struct {
	AccessToken   string
	PrivacyStatus string
	CategoryID    string
	UploadBaseURL string
	APIBaseURL    string
	Client        *http.Client
}

// YouTubeOption configures the YouTube uploader.
type YouTubeOption func(*YouTubeOpts)

// WithYouTubeToken sets the OAuth bearer token.
func WithYouTubeToken(token string) YouTubeOption {
	return func(o *YouTubeOpts) { o.AccessToken = token }
}

// WithYouTubePrivacy sets the published video's privacy status.
func WithYouTubePrivacy(status string) YouTubeOption {
	return func(o *YouTubeOpts) { o.PrivacyStatus = status }
}

// WithYouTubeBaseURLs overrides the API endpoints (used by tests).
func WithYouTubeBaseURLs(uploadBase, apiBase string) YouTubeOption {
	return func(o *YouTubeOpts) { o.UploadBaseURL = uploadBase; o.APIBaseURL = apiBase }
}

// WithYouTubeHTTPClient injects a custom HTTP client.
func WithYouTubeHTTPClient(c *http.Client) YouTubeOption {
	return func(o *YouTubeOpts) { o.Client = c }
}

// YouTube publishes via the resumable upload protocol: one call to open an
// upload session, one call to transfer the body. The second response carries
// the published video id directly; there is no separate publish step.
type YouTube struct {
	token         string
	privacyStatus string
	categoryID    string
	uploadBaseURL string
	apiBaseURL    string
	http          *http.Client
}

// NewYouTube builds a YouTube uploader. The access token is required.
func NewYouTube(opts ...YouTubeOption) (*YouTube, error) {
	cfg := YouTubeOpts{
		PrivacyStatus: "public",
		CategoryID:    "22", // People & Blogs
		UploadBaseURL: DefaultYouTubeUploadBaseURL,
		APIBaseURL:    DefaultYouTubeAPIBaseURL,
		Client:        &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("youtube access token must be provided")
	}
	return &YouTube{
		token:         cfg.AccessToken,
		privacyStatus: cfg.PrivacyStatus,
		categoryID:    cfg.CategoryID,
		uploadBaseURL: cfg.UploadBaseURL,
		apiBaseURL:    cfg.APIBaseURL,
		http:          cfg.Client,
	}, nil
}

// Platform implements Uploader.
func (y *YouTube) Platform() models.Platform { return models.PlatformYouTube }

// Upload implements Uploader.
func (y *YouTube) Upload(ctx context.Context, videoPath, caption string, opts models.UploadOptions) models.UploadResult {
	return publishWithRetry(ctx, y.Platform(), y.publish, videoPath, caption, opts)
}

// publish is the two-step resumable sequence.
func (y *YouTube) publish(ctx context.Context, videoPath, caption string) (map[string]any, error) {
	info, err := os.Stat(videoPath)
	if err != nil {
		return nil, fmt.Errorf("stat video file: %w", err)
	}

	sessionURL, err := y.openSession(ctx, caption, info.Size())
	if err != nil {
		return nil, err
	}
	slog.Debug("youtube upload session opened", "size", info.Size())

	videoID, err := y.transferBody(ctx, sessionURL, videoPath, info.Size())
	if err != nil {
		return nil, err
	}
	slog.Debug("youtube upload finished", "video_id", videoID)
	return map[string]any{"videoId": videoID}, nil
}

// openSession declares metadata and size and returns the session upload URL.
func (y *YouTube) openSession(ctx context.Context, caption string, size int64) (string, error) {
	metadata := map[string]any{
		"snippet": map[string]any{
			"title":       youtubeTitle(caption),
			"description": caption,
			"categoryId":  y.categoryID,
		},
		"status": map[string]any{
			"privacyStatus": y.privacyStatus,
		},
	}
	body, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("encode video metadata: %w", err)
	}

	url := y.uploadBaseURL + "/videos?uploadType=resumable&part=snippet,status"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+y.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(size, 10))
	req.Header.Set("X-Upload-Content-Type", "video/mp4")

	resp, err := y.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("open upload session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", httpStatusError("open upload session", resp)
	}
	sessionURL := resp.Header.Get("Location")
	if sessionURL == "" {
		return "", fmt.Errorf("upload session response missing Location header")
	}
	return sessionURL, nil
}

// transferBody streams the full file to the session URL in one request.
func (y *YouTube) transferBody(ctx context.Context, sessionURL, videoPath string, size int64) (string, error) {
	file, err := os.Open(videoPath)
	if err != nil {
		return "", fmt.Errorf("open video file: %w", err)
	}
	defer file.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURL, file)
	if err != nil {
		return "", fmt.Errorf("build transfer request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Authorization", "Bearer "+y.token)
	req.Header.Set("Content-Type", "video/mp4")

	resp, err := y.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("transfer video body: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", httpStatusError("transfer video body", resp)
	}

	var uploaded struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if uploaded.ID == "" {
		return "", fmt.Errorf("upload response missing video id")
	}
	return uploaded.ID, nil
}

// VerifyCredentials implements Uploader: fetches the authenticated channel.
func (y *YouTube) VerifyCredentials(ctx context.Context) bool {
	url := y.apiBaseURL + "/channels?part=id&mine=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		slog.Error("youtube credential check failed", "error", err)
		return false
	}
	req.Header.Set("Authorization", "Bearer "+y.token)

	resp, err := y.http.Do(req)
	if err != nil {
		slog.Error("youtube credential check failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		slog.Error("youtube credential check rejected", "status", resp.StatusCode)
		return false
	}
	return true
}

// youtubeTitle derives a title from the caption, honoring the API title limit.
func youtubeTitle(caption string) string {
	title := caption
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = title[:idx]
	}
	if len(title) > youtubeTitleLimit {
		title = title[:youtubeTitleLimit-3] + "..."
	}
	return title
}

// httpStatusError builds an error with a snippet of the response body.
func httpStatusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s returned status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
}
