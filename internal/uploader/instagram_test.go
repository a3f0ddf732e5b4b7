package uploader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DailyProgress/YearReel/internal/models"
)

// stubHost returns a canned public URL.
type stubHost struct {
	url   string
	err   error
	calls int
}

func (h *stubHost) HostVideo(ctx context.Context, videoPath string) (string, error) {
	h.calls++
	if h.err != nil {
		return "", h.err
	}
	return h.url, nil
}

// fakeGraphAPI drives the container protocol. statuses is the sequence of
// status_code values returned to successive polls; the last value repeats.
type fakeGraphAPI struct {
	statuses []string

	createCalls  atomic.Int32
	pollCalls    atomic.Int32
	publishCalls atomic.Int32

	lastVideoURL string
	lastCaption  string
}

func (g *fakeGraphAPI) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/media"):
			g.createCalls.Add(1)
			if err := r.ParseForm(); err != nil {
				t.Errorf("parse media form: %v", err)
			}
			if r.PostFormValue("media_type") != "REELS" {
				t.Errorf("media_type = %q", r.PostFormValue("media_type"))
			}
			g.lastVideoURL = r.PostFormValue("video_url")
			g.lastCaption = r.PostFormValue("caption")
			fmt.Fprint(w, `{"id":"container-7"}`)
		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "container-7"):
			n := int(g.pollCalls.Add(1))
			status := g.statuses[len(g.statuses)-1]
			if n <= len(g.statuses) {
				status = g.statuses[n-1]
			}
			if err := json.NewEncoder(w).Encode(map[string]string{"status_code": status}); err != nil {
				t.Errorf("encode status: %v", err)
			}
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/media_publish"):
			g.publishCalls.Add(1)
			if err := r.ParseForm(); err != nil {
				t.Errorf("parse publish form: %v", err)
			}
			if r.PostFormValue("creation_id") != "container-7" {
				t.Errorf("creation_id = %q", r.PostFormValue("creation_id"))
			}
			fmt.Fprint(w, `{"id":"media-42"}`)
		case r.Method == http.MethodGet:
			fmt.Fprint(w, `{"id":"ig-1","username":"yearprogress"}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestInstagram(t *testing.T, api *fakeGraphAPI, host PublicHost, extra ...InstagramOption) *Instagram {
	t.Helper()
	srv := api.server(t)
	opts := []InstagramOption{
		WithInstagramUser("ig-1"),
		WithInstagramToken("ig-token"),
		WithInstagramBaseURL(srv.URL),
		WithInstagramPolling(time.Millisecond, 5),
	}
	if host != nil {
		opts = append(opts, WithInstagramHost(host))
	}
	ig, err := NewInstagram(append(opts, extra...)...)
	if err != nil {
		t.Fatalf("NewInstagram failed: %v", err)
	}
	return ig
}

func TestNewInstagram_RequiresConfig(t *testing.T) {
	if _, err := NewInstagram(WithInstagramToken("t")); err == nil {
		t.Error("expected error when user id missing")
	}
	if _, err := NewInstagram(WithInstagramUser("u")); err == nil {
		t.Error("expected error when token missing")
	}
}

func TestInstagram_Upload(t *testing.T) {
	api := &fakeGraphAPI{statuses: []string{"IN_PROGRESS", "IN_PROGRESS", "FINISHED"}}
	host := &stubHost{url: "https://cdn.example.com/clip.mp4"}
	ig := newTestInstagram(t, api, host)

	result := ig.Upload(context.Background(), writeTestVideo(t), "64% done", models.UploadOptions{})
	if !result.Success {
		t.Fatalf("upload failed: %s", result.Error)
	}
	if result.Result["mediaId"] != "media-42" {
		t.Errorf("mediaId = %v", result.Result["mediaId"])
	}
	if result.Result["containerId"] != "container-7" {
		t.Errorf("containerId = %v", result.Result["containerId"])
	}
	if host.calls != 1 {
		t.Errorf("expected 1 hosting call, got %d", host.calls)
	}
	if api.lastVideoURL != "https://cdn.example.com/clip.mp4" {
		t.Errorf("container video_url = %q", api.lastVideoURL)
	}
	if api.lastCaption != "64% done" {
		t.Errorf("container caption = %q", api.lastCaption)
	}
	if api.pollCalls.Load() != 3 {
		t.Errorf("expected 3 polls before FINISHED, got %d", api.pollCalls.Load())
	}
	if api.publishCalls.Load() != 1 {
		t.Errorf("expected 1 publish call, got %d", api.publishCalls.Load())
	}
}

// An ERROR status fails the attempt immediately without further polling.
func TestInstagram_ContainerError(t *testing.T) {
	api := &fakeGraphAPI{statuses: []string{"ERROR"}}
	ig := newTestInstagram(t, api, &stubHost{url: "https://cdn.example.com/clip.mp4"})

	result := ig.Upload(context.Background(), writeTestVideo(t), "caption",
		models.UploadOptions{MaxRetries: 1, BaseDelay: 1})
	if result.Success {
		t.Fatal("expected failure for errored container")
	}
	if api.pollCalls.Load() != 1 {
		t.Errorf("ERROR must stop polling immediately, got %d polls", api.pollCalls.Load())
	}
	if api.publishCalls.Load() != 0 {
		t.Error("errored container must never be published")
	}
	if !strings.Contains(result.Error, "error status") {
		t.Errorf("error should indicate container error: %q", result.Error)
	}
}

// A container that never reaches a terminal state exhausts the poll cap and
// reports a timeout.
func TestInstagram_ContainerTimeout(t *testing.T) {
	api := &fakeGraphAPI{statuses: []string{"IN_PROGRESS"}}
	ig := newTestInstagram(t, api, &stubHost{url: "https://cdn.example.com/clip.mp4"})

	result := ig.Upload(context.Background(), writeTestVideo(t), "caption",
		models.UploadOptions{MaxRetries: 2, BaseDelay: 1})
	if result.Success {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(result.Error, "timed out") {
		t.Errorf("error should indicate timeout: %q", result.Error)
	}
	// 5 polls per attempt, 2 attempts.
	if api.pollCalls.Load() != 10 {
		t.Errorf("expected poll cap per attempt across retries, got %d polls", api.pollCalls.Load())
	}
	if api.publishCalls.Load() != 0 {
		t.Error("timed-out container must never be published")
	}
}

// A missing public host is raised inside the sequence and therefore retried
// like a transient failure before the failure is reported.
func TestInstagram_MissingHost(t *testing.T) {
	api := &fakeGraphAPI{statuses: []string{"FINISHED"}}
	ig := newTestInstagram(t, api, nil)

	result := ig.Upload(context.Background(), writeTestVideo(t), "caption",
		models.UploadOptions{MaxRetries: 3, BaseDelay: 1})
	if result.Success {
		t.Fatal("expected failure without a public host")
	}
	if !strings.Contains(result.Error, "no public video host configured") {
		t.Errorf("error should name the missing host: %q", result.Error)
	}
	if api.createCalls.Load() != 0 {
		t.Error("no container may be created without a public host")
	}
}

func TestInstagram_HostFailure(t *testing.T) {
	api := &fakeGraphAPI{statuses: []string{"FINISHED"}}
	host := &stubHost{err: fmt.Errorf("cdn unreachable")}
	ig := newTestInstagram(t, api, host)

	result := ig.Upload(context.Background(), writeTestVideo(t), "caption",
		models.UploadOptions{MaxRetries: 2, BaseDelay: 1})
	if result.Success {
		t.Fatal("expected failure when hosting fails")
	}
	if host.calls != 2 {
		t.Errorf("hosting failure should be retried, got %d calls", host.calls)
	}
}

func TestInstagram_UploadDryRun(t *testing.T) {
	api := &fakeGraphAPI{statuses: []string{"FINISHED"}}
	host := &stubHost{url: "https://cdn.example.com/clip.mp4"}
	ig := newTestInstagram(t, api, host)

	result := ig.Upload(context.Background(), writeTestVideo(t), "caption", models.UploadOptions{DryRun: true})
	if !result.Success || result.Result["dryRun"] != true {
		t.Fatalf("dry run result = %+v", result)
	}
	if host.calls != 0 || api.createCalls.Load() != 0 {
		t.Error("dry run must perform zero hosting or network calls")
	}
}

func TestInstagram_VerifyCredentials(t *testing.T) {
	api := &fakeGraphAPI{statuses: []string{"FINISHED"}}
	ig := newTestInstagram(t, api, nil)
	if !ig.VerifyCredentials(context.Background()) {
		t.Error("expected credential check to pass")
	}

	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(badSrv.Close)
	igBad, err := NewInstagram(WithInstagramUser("u"), WithInstagramToken("t"), WithInstagramBaseURL(badSrv.URL))
	if err != nil {
		t.Fatalf("NewInstagram failed: %v", err)
	}
	if igBad.VerifyCredentials(context.Background()) {
		t.Error("expected credential check to fail")
	}
}

func TestHTTPHost(t *testing.T) {
	var uploads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uploads.Add(1)
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer host-token" {
			t.Errorf("host auth header = %q", got)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)

	host, err := NewHTTPHost(
		WithHostURLs(srv.URL+"/files", "https://cdn.example.com/files"),
		WithHostToken("host-token"),
	)
	if err != nil {
		t.Fatalf("NewHTTPHost failed: %v", err)
	}

	video := writeTestVideo(t)
	url, err := host.HostVideo(context.Background(), video)
	if err != nil {
		t.Fatalf("HostVideo failed: %v", err)
	}
	if url != "https://cdn.example.com/files/clip.mp4" {
		t.Errorf("public url = %q", url)
	}
	if uploads.Load() != 1 {
		t.Errorf("expected 1 upload, got %d", uploads.Load())
	}
}

func TestNewHTTPHost_RequiresURLs(t *testing.T) {
	if _, err := NewHTTPHost(); err == nil {
		t.Error("expected error when URLs missing")
	}
}
