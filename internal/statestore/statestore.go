// Package statestore reads and writes the durable cross-run state record.
//
// The record lives as a single JSON file inside a secret GitHub gist. Fetch
// fails soft (any error degrades to "no prior state") while Write fails hard,
// so an unreadable record never blocks a run but an unwritable one is surfaced
// before the next scheduled invocation can repost.
package statestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/DailyProgress/YearReel/internal/models"
)

// DefaultBaseURL is the GitHub REST API root.
const DefaultBaseURL = "https://api.github.com"

// Opts holds configuration for the state store client.
type Opts struct {
	GistID   string
	Token    string
	BaseURL  string
	FileName string
	Client   *http.Client
	Now      func() time.Time
}

// Option configures the state store client.
type Option func(*Opts)

// WithGistID sets the id of the gist holding the state record.
func WithGistID(id string) Option {
	return func(o *Opts) { o.GistID = id }
}

// WithToken sets the bearer credential used for gist API calls.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithBaseURL overrides the API root (used by tests).
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithFileName overrides the state file name inside the gist.
func WithFileName(name string) Option {
	return func(o *Opts) { o.FileName = name }
}

// WithHTTPClient injects a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.Client = c }
}

// WithNowFunc overrides the clock used to stamp lastDate (used by tests).
func WithNowFunc(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Client talks to the remote state document.
type Client struct {
	gistID   string
	token    string
	baseURL  string
	fileName string
	http     *http.Client
	now      func() time.Time
}

// NewClient builds a state store client. GistID and Token are required.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		BaseURL:  DefaultBaseURL,
		FileName: models.StateFileName,
		Client:   &http.Client{Timeout: 30 * time.Second},
		Now:      time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.GistID == "" {
		return nil, fmt.Errorf("state store gist id must be provided")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("state store token must be provided")
	}
	return &Client{
		gistID:   cfg.GistID,
		token:    cfg.Token,
		baseURL:  cfg.BaseURL,
		fileName: cfg.FileName,
		http:     cfg.Client,
		now:      cfg.Now,
	}, nil
}

// gistDocument mirrors the subset of the gist API payload we touch.
type gistDocument struct {
	Files map[string]gistFile `json:"files"`
}

type gistFile struct {
	Content string `json:"content"`
}

// Fetch returns the stored state record, or nil when no usable record exists.
// Transport errors, a missing state file, and malformed JSON all degrade to
// nil; callers must treat nil identically to "first run ever".
func (c *Client) Fetch(ctx context.Context) *models.StateRecord {
	rec, err := c.fetch(ctx)
	if err != nil {
		slog.Warn("state store fetch failed, treating as no prior state", "gist_id", c.gistID, "error", err)
		return nil
	}
	return rec
}

func (c *Client) fetch(ctx context.Context) (*models.StateRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.gistURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("build gist request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gist request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("gist fetch returned status %d: %s", resp.StatusCode, body)
	}

	var doc gistDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode gist payload: %w", err)
	}
	file, ok := doc.Files[c.fileName]
	if !ok {
		return nil, fmt.Errorf("gist has no file %q", c.fileName)
	}

	var rec models.StateRecord
	if err := json.Unmarshal([]byte(file.Content), &rec); err != nil {
		return nil, fmt.Errorf("parse state record: %w", err)
	}
	slog.Debug("state record fetched", "content_type", rec.ContentType, "last_value", rec.LastValue, "last_date", rec.LastDate)
	return &rec, nil
}

// Write overwrites the remote state record. The caller-supplied lastDate is
// ignored: the write time observed here is authoritative. Errors propagate.
func (c *Client) Write(ctx context.Context, rec models.StateRecord) (*models.StateRecord, error) {
	rec.LastDate = c.now().UTC().Format(time.RFC3339)

	content, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode state record: %w", err)
	}
	payload, err := json.Marshal(gistDocument{
		Files: map[string]gistFile{c.fileName: {Content: string(content)}},
	})
	if err != nil {
		return nil, fmt.Errorf("encode gist payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.gistURL(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build gist update request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gist update failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("gist update returned status %d: %s", resp.StatusCode, body)
	}

	slog.Info("state record written", "content_type", rec.ContentType, "last_value", rec.LastValue, "last_date", rec.LastDate)
	return &rec, nil
}

// ShouldPost fetches the current record and applies the duplicate-suppression
// rule: post when there is no record, when the content type changed, when the
// year-scoped identifier rolled over, or when the value itself changed.
func (c *Client) ShouldPost(ctx context.Context, currentValue any, contentType string, currentYear *int) bool {
	rec := c.Fetch(ctx)
	if rec == nil {
		return true
	}
	if rec.ContentType != contentType {
		return true
	}
	if currentYear != nil && (rec.Year == nil || *rec.Year != *currentYear) {
		return true
	}
	return !models.SameValue(rec.LastValue, currentValue)
}

// Reset overwrites the record with the sentinel that forces the next run to
// post unconditionally.
func (c *Client) Reset(ctx context.Context) error {
	_, err := c.Write(ctx, models.StateRecord{
		LastValue:   -1,
		ContentType: models.ResetContentType,
	})
	return err
}

func (c *Client) gistURL() string {
	return fmt.Sprintf("%s/gists/%s", c.baseURL, c.gistID)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
}
