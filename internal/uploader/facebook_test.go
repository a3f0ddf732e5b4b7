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

	"github.com/DailyProgress/YearReel/internal/models"
)

// fakeReelsAPI drives the three-phase reel protocol. failUploadTimes makes the
// upload phase fail for the first N attempts.
type fakeReelsAPI struct {
	startCalls      atomic.Int32
	uploadCalls     atomic.Int32
	finishCalls     atomic.Int32
	failUploadTimes int32

	lastFinishForm map[string]string
}

func (f *fakeReelsAPI) server(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/video_reels"):
			if err := r.ParseForm(); err != nil {
				t.Errorf("parse reels form: %v", err)
			}
			switch r.PostFormValue("upload_phase") {
			case "start":
				f.startCalls.Add(1)
				if err := json.NewEncoder(w).Encode(map[string]string{
					"video_id":   "fbvid-9",
					"upload_url": srv.URL + "/rupload/fbvid-9",
				}); err != nil {
					t.Errorf("encode start response: %v", err)
				}
			case "finish":
				f.finishCalls.Add(1)
				f.lastFinishForm = map[string]string{
					"video_id":    r.PostFormValue("video_id"),
					"video_state": r.PostFormValue("video_state"),
					"description": r.PostFormValue("description"),
				}
				fmt.Fprint(w, `{"success":true}`)
			default:
				t.Errorf("unexpected upload_phase %q", r.PostFormValue("upload_phase"))
				w.WriteHeader(http.StatusBadRequest)
			}
		case strings.HasPrefix(r.URL.Path, "/rupload/"):
			n := f.uploadCalls.Add(1)
			if got := r.Header.Get("Authorization"); !strings.HasPrefix(got, "OAuth ") {
				t.Errorf("upload phase must use OAuth scheme, got %q", got)
			}
			if r.Header.Get("offset") != "0" {
				t.Errorf("upload offset = %q", r.Header.Get("offset"))
			}
			if r.Header.Get("file_size") == "" {
				t.Error("upload phase missing file_size header")
			}
			if n <= f.failUploadTimes {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, `{"success":true}`)
		case r.Method == http.MethodGet:
			fmt.Fprint(w, `{"id":"page-1","name":"Year Progress"}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestFacebook(t *testing.T, api *fakeReelsAPI) *Facebook {
	t.Helper()
	srv := api.server(t)
	fb, err := NewFacebook(
		WithFacebookPage("page-1"),
		WithFacebookToken("fb-token"),
		WithFacebookBaseURL(srv.URL),
	)
	if err != nil {
		t.Fatalf("NewFacebook failed: %v", err)
	}
	return fb
}

func TestNewFacebook_RequiresConfig(t *testing.T) {
	if _, err := NewFacebook(WithFacebookToken("t")); err == nil {
		t.Error("expected error when page id missing")
	}
	if _, err := NewFacebook(WithFacebookPage("p")); err == nil {
		t.Error("expected error when token missing")
	}
}

func TestFacebook_Upload(t *testing.T) {
	api := &fakeReelsAPI{}
	fb := newTestFacebook(t, api)

	result := fb.Upload(context.Background(), writeTestVideo(t), "64% done", models.UploadOptions{})
	if !result.Success {
		t.Fatalf("upload failed: %s", result.Error)
	}
	if result.Result["videoId"] != "fbvid-9" {
		t.Errorf("videoId = %v", result.Result["videoId"])
	}
	// Exactly three round trips, in order.
	if api.startCalls.Load() != 1 || api.uploadCalls.Load() != 1 || api.finishCalls.Load() != 1 {
		t.Errorf("call counts start/upload/finish = %d/%d/%d",
			api.startCalls.Load(), api.uploadCalls.Load(), api.finishCalls.Load())
	}
	if api.lastFinishForm["video_id"] != "fbvid-9" {
		t.Errorf("finish video_id = %q", api.lastFinishForm["video_id"])
	}
	if api.lastFinishForm["video_state"] != "PUBLISHED" {
		t.Errorf("finish video_state = %q", api.lastFinishForm["video_state"])
	}
	if api.lastFinishForm["description"] != "64% done" {
		t.Errorf("finish description = %q", api.lastFinishForm["description"])
	}
}

// A failure mid-sequence aborts the attempt; the next attempt restarts from
// the start phase rather than resuming at the failed step.
func TestFacebook_RetryRestartsFromStart(t *testing.T) {
	api := &fakeReelsAPI{failUploadTimes: 1}
	fb := newTestFacebook(t, api)

	result := fb.Upload(context.Background(), writeTestVideo(t), "caption",
		models.UploadOptions{MaxRetries: 2, BaseDelay: 1})
	if !result.Success {
		t.Fatalf("upload should succeed on second attempt: %s", result.Error)
	}
	if api.startCalls.Load() != 2 {
		t.Errorf("expected start phase re-run on retry, got %d start calls", api.startCalls.Load())
	}
	if api.uploadCalls.Load() != 2 {
		t.Errorf("expected 2 upload phase calls, got %d", api.uploadCalls.Load())
	}
	if api.finishCalls.Load() != 1 {
		t.Errorf("finish must only run after a successful upload phase, got %d", api.finishCalls.Load())
	}
}

func TestFacebook_UploadDryRun(t *testing.T) {
	api := &fakeReelsAPI{}
	fb := newTestFacebook(t, api)

	result := fb.Upload(context.Background(), writeTestVideo(t), "caption", models.UploadOptions{DryRun: true})
	if !result.Success || result.Result["dryRun"] != true {
		t.Fatalf("dry run result = %+v", result)
	}
	if api.startCalls.Load() != 0 || api.uploadCalls.Load() != 0 || api.finishCalls.Load() != 0 {
		t.Error("dry run must perform zero network calls")
	}
}

func TestFacebook_VerifyCredentials(t *testing.T) {
	fb := newTestFacebook(t, &fakeReelsAPI{})
	if !fb.VerifyCredentials(context.Background()) {
		t.Error("expected credential check to pass")
	}

	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(badSrv.Close)
	fbBad, err := NewFacebook(WithFacebookPage("p"), WithFacebookToken("t"), WithFacebookBaseURL(badSrv.URL))
	if err != nil {
		t.Fatalf("NewFacebook failed: %v", err)
	}
	if fbBad.VerifyCredentials(context.Background()) {
		t.Error("expected credential check to fail")
	}
}
