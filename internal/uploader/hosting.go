package uploader

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// HTTPHost implements PublicHost against a plain HTTP file host: the video is
// PUT to the upload endpoint and served back from the public base URL under
// the same name. The host itself is provisioned out of band.
type HTTPHost struct {
	uploadBaseURL string
	publicBaseURL string
	token         string
	http          *http.Client
}

// HTTPHostOpts holds public host configuration.
type HTTPHostOpts struct {
	UploadBaseURL string
	PublicBaseURL string
	Token         string
	Client        *http.Client
}

// HTTPHostOption configures the public host client.
type HTTPHostOption func(*HTTPHostOpts)

// WithHostURLs sets the upload endpoint and the public base URL files are
// served from.
func WithHostURLs(uploadBase, publicBase string) HTTPHostOption {
	return func(o *HTTPHostOpts) { o.UploadBaseURL = uploadBase; o.PublicBaseURL = publicBase }
}

// WithHostToken sets an optional bearer credential for the upload endpoint.
func WithHostToken(token string) HTTPHostOption {
	return func(o *HTTPHostOpts) { o.Token = token }
}

// WithHostHTTPClient injects a custom HTTP client.
func WithHostHTTPClient(c *http.Client) HTTPHostOption {
	return func(o *HTTPHostOpts) { o.Client = c }
}

// NewHTTPHost builds a public host client. Both URLs are required.
func NewHTTPHost(opts ...HTTPHostOption) (*HTTPHost, error) {
	cfg := HTTPHostOpts{Client: &http.Client{Timeout: 5 * time.Minute}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.UploadBaseURL == "" || cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("public host upload and public base URLs must be provided")
	}
	return &HTTPHost{
		uploadBaseURL: strings.TrimRight(cfg.UploadBaseURL, "/"),
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		token:         cfg.Token,
		http:          cfg.Client,
	}, nil
}

// HostVideo implements PublicHost.
func (h *HTTPHost) HostVideo(ctx context.Context, videoPath string) (string, error) {
	info, err := os.Stat(videoPath)
	if err != nil {
		return "", fmt.Errorf("stat video file: %w", err)
	}
	file, err := os.Open(videoPath)
	if err != nil {
		return "", fmt.Errorf("open video file: %w", err)
	}
	defer file.Close()

	name := filepath.Base(videoPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, h.uploadBaseURL+"/"+url.PathEscape(name), file)
	if err != nil {
		return "", fmt.Errorf("build host upload request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", "video/mp4")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("host video upload failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return "", httpStatusError("host video upload", resp)
	}
	return h.publicBaseURL + "/" + url.PathEscape(name), nil
}
