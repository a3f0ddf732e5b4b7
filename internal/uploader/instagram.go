package uploader

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DailyProgress/YearReel/internal/models"
)

// Container polling parameters. The Graph API processes a reel container
// asynchronously; publishing before it reports FINISHED is rejected.
const (
	DefaultPollInterval    = 2 * time.Second
	DefaultMaxPollAttempts = 30
)

// Container status codes reported by the Graph API.
const (
	containerStatusFinished = "FINISHED"
	containerStatusError    = "ERROR"
)

// PublicHost transfers a local video file to a public, unauthenticated URL.
// The Graph API fetches reel video bytes itself, so the file must be reachable
// without credentials before a container can be created.
type PublicHost interface {
	HostVideo(ctx context.Context, videoPath string) (publicURL string, err error)
}

// InstagramOpts holds Instagram Reels uploader configuration.
type InstagramOpts struct {
	UserID          string
	AccessToken     string
	GraphBaseURL    string
	Host            PublicHost
	Client          *http.Client
	PollInterval    time.Duration
	MaxPollAttempts int
}

// InstagramOption configures the Instagram uploader.
type InstagramOption func(*InstagramOpts)

// WithInstagramUser sets the Instagram business account id.
func WithInstagramUser(userID string) InstagramOption {
	return func(o *InstagramOpts) { o.UserID = userID }
}

// WithInstagramToken sets the access token.
func WithInstagramToken(token string) InstagramOption {
	return func(o *InstagramOpts) { o.AccessToken = token }
}

// WithInstagramBaseURL overrides the Graph API root (used by tests).
func WithInstagramBaseURL(base string) InstagramOption {
	return func(o *InstagramOpts) { o.GraphBaseURL = base }
}

// WithInstagramHost sets the public video host the container URL points at.
func WithInstagramHost(host PublicHost) InstagramOption {
	return func(o *InstagramOpts) { o.Host = host }
}

// WithInstagramHTTPClient injects a custom HTTP client.
func WithInstagramHTTPClient(c *http.Client) InstagramOption {
	return func(o *InstagramOpts) { o.Client = c }
}

// WithInstagramPolling overrides the container poll cadence (used by tests).
func WithInstagramPolling(interval time.Duration, maxAttempts int) InstagramOption {
	return func(o *InstagramOpts) { o.PollInterval = interval; o.MaxPollAttempts = maxAttempts }
}

// Instagram publishes reels through the container protocol: host the video
// publicly, create a media container referencing it, poll the container until
// it reaches a terminal state, then publish it. Polling blocks this uploader's
// attempt but not other uploaders.
type Instagram struct {
	userID          string
	accessToken     string
	graphBaseURL    string
	host            PublicHost
	http            *http.Client
	pollInterval    time.Duration
	maxPollAttempts int
}

// NewInstagram builds an Instagram Reels uploader. User id and token are
// required; the public host is checked at publish time, not here, so a
// misconfigured host surfaces as a failed upload rather than a missing
// uploader.
func NewInstagram(opts ...InstagramOption) (*Instagram, error) {
	cfg := InstagramOpts{
		GraphBaseURL:    DefaultGraphBaseURL,
		Client:          &http.Client{Timeout: 2 * time.Minute},
		PollInterval:    DefaultPollInterval,
		MaxPollAttempts: DefaultMaxPollAttempts,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.UserID == "" {
		return nil, fmt.Errorf("instagram user id must be provided")
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("instagram access token must be provided")
	}
	return &Instagram{
		userID:          cfg.UserID,
		accessToken:     cfg.AccessToken,
		graphBaseURL:    cfg.GraphBaseURL,
		host:            cfg.Host,
		http:            cfg.Client,
		pollInterval:    cfg.PollInterval,
		maxPollAttempts: cfg.MaxPollAttempts,
	}, nil
}

// Platform implements Uploader.
func (i *Instagram) Platform() models.Platform { return models.PlatformInstagram }

// Upload implements Uploader.
func (i *Instagram) Upload(ctx context.Context, videoPath, caption string, opts models.UploadOptions) models.UploadResult {
	return publishWithRetry(ctx, i.Platform(), i.publish, videoPath, caption, opts)
}

// publish is the container sequence. A missing public host is raised as an
// ordinary error here, so the retry wrapper treats it like a transient failure.
func (i *Instagram) publish(ctx context.Context, videoPath, caption string) (map[string]any, error) {
	if i.host == nil {
		return nil, fmt.Errorf("no public video host configured for instagram uploads")
	}
	publicURL, err := i.host.HostVideo(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("host video publicly: %w", err)
	}
	slog.Debug("instagram video hosted", "url", publicURL)

	containerID, err := i.createContainer(ctx, publicURL, caption)
	if err != nil {
		return nil, err
	}
	slog.Debug("instagram container created", "container_id", containerID)

	if err := i.waitForContainer(ctx, containerID); err != nil {
		return nil, err
	}

	mediaID, err := i.publishContainer(ctx, containerID)
	if err != nil {
		return nil, err
	}
	slog.Debug("instagram reel published", "media_id", mediaID)
	return map[string]any{"mediaId": mediaID, "containerId": containerID}, nil
}

// createContainer registers the public video URL and caption as a reel
// container and returns the container id.
func (i *Instagram) createContainer(ctx context.Context, videoURL, caption string) (string, error) {
	form := url.Values{
		"media_type":   {"REELS"},
		"video_url":    {videoURL},
		"caption":      {caption},
		"access_token": {i.accessToken},
	}
	endpoint := fmt.Sprintf("%s/%s/media", i.graphBaseURL, i.userID)
	resp, err := i.postForm(ctx, endpoint, form)
	if err != nil {
		return "", fmt.Errorf("create media container: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", httpStatusError("create media container", resp)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode container response: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("container response missing id")
	}
	return created.ID, nil
}

// waitForContainer polls the container status at a fixed interval until it is
// FINISHED, reports ERROR (fail immediately, no further polling), or the
// attempt cap is exceeded (timeout failure).
func (i *Instagram) waitForContainer(ctx context.Context, containerID string) error {
	for attempt := 1; attempt <= i.maxPollAttempts; attempt++ {
		status, err := i.containerStatus(ctx, containerID)
		if err != nil {
			return err
		}
		slog.Debug("instagram container status", "container_id", containerID, "status", status, "poll", attempt)
		switch status {
		case containerStatusFinished:
			return nil
		case containerStatusError:
			return fmt.Errorf("container %s reported error status", containerID)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("container wait interrupted: %w", ctx.Err())
		case <-time.After(i.pollInterval):
		}
	}
	return fmt.Errorf("timed out waiting for container %s after %d polls", containerID, i.maxPollAttempts)
}

func (i *Instagram) containerStatus(ctx context.Context, containerID string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s?fields=status_code&access_token=%s",
		i.graphBaseURL, containerID, url.QueryEscape(i.accessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build status request: %w", err)
	}
	resp, err := i.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("poll container status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", httpStatusError("poll container status", resp)
	}

	var status struct {
		StatusCode string `json:"status_code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return "", fmt.Errorf("decode status response: %w", err)
	}
	return status.StatusCode, nil
}

// publishContainer commits the finished container as a published reel.
func (i *Instagram) publishContainer(ctx context.Context, containerID string) (string, error) {
	form := url.Values{
		"creation_id":  {containerID},
		"access_token": {i.accessToken},
	}
	endpoint := fmt.Sprintf("%s/%s/media_publish", i.graphBaseURL, i.userID)
	resp, err := i.postForm(ctx, endpoint, form)
	if err != nil {
		return "", fmt.Errorf("publish container: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", httpStatusError("publish container", resp)
	}

	var published struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&published); err != nil {
		return "", fmt.Errorf("decode publish response: %w", err)
	}
	if published.ID == "" {
		return "", fmt.Errorf("publish response missing media id")
	}
	return published.ID, nil
}

// VerifyCredentials implements Uploader: fetches the account identity.
func (i *Instagram) VerifyCredentials(ctx context.Context) bool {
	endpoint := fmt.Sprintf("%s/%s?fields=id,username&access_token=%s",
		i.graphBaseURL, i.userID, url.QueryEscape(i.accessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		slog.Error("instagram credential check failed", "error", err)
		return false
	}
	resp, err := i.http.Do(req)
	if err != nil {
		slog.Error("instagram credential check failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		slog.Error("instagram credential check rejected", "status", resp.StatusCode)
		return false
	}
	return true
}

func (i *Instagram) postForm(ctx context.Context, endpoint string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return i.http.Do(req)
}
