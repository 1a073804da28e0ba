package instagram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ovoronkov/reelcut/internal/ports"
)

func testAdapter(srv *httptest.Server) *Adapter {
	return &Adapter{
		baseURL:      srv.URL,
		client:       srv.Client(),
		pollInterval: time.Millisecond,
		maxPolls:     5,
	}
}

func TestPublish_TwoStepFlow(t *testing.T) {
	var createForm, publishForm map[string][]string
	statusCalls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/acct1/media":
			r.ParseForm()
			createForm = r.PostForm
			w.Write([]byte(`{"id":"container9"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/container9":
			statusCalls++
			if statusCalls < 3 {
				w.Write([]byte(`{"status_code":"IN_PROGRESS"}`))
				return
			}
			w.Write([]byte(`{"status_code":"FINISHED"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/acct1/media_publish":
			r.ParseForm()
			publishForm = r.PostForm
			w.Write([]byte(`{"id":"media42"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := testAdapter(srv)
	id, err := a.Publish(context.Background(), ports.PublishRequest{
		VideoURL:    "https://cdn.example/clip.mp4",
		Caption:     "big reveal #shorts",
		AccessToken: "tok-abc",
		AccountID:   "acct1",
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if id != "media42" {
		t.Errorf("media id = %q, want media42", id)
	}
	if statusCalls != 3 {
		t.Errorf("status polls = %d, want 3", statusCalls)
	}

	if got := createForm["media_type"]; len(got) != 1 || got[0] != "REELS" {
		t.Errorf("media_type = %v", got)
	}
	if got := createForm["video_url"]; len(got) != 1 || got[0] != "https://cdn.example/clip.mp4" {
		t.Errorf("video_url = %v", got)
	}
	if got := createForm["caption"]; len(got) != 1 || got[0] != "big reveal #shorts" {
		t.Errorf("caption = %v", got)
	}
	if got := publishForm["creation_id"]; len(got) != 1 || got[0] != "container9" {
		t.Errorf("creation_id = %v", got)
	}
}

func TestPublish_ContainerErrorStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/media"):
			w.Write([]byte(`{"id":"c1"}`))
		case r.URL.Path == "/c1":
			w.Write([]byte(`{"status_code":"ERROR"}`))
		default:
			t.Errorf("publish should not run, got %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	a := testAdapter(srv)
	_, err := a.Publish(context.Background(), ports.PublishRequest{
		VideoURL: "u", Caption: "c", AccessToken: "t", AccountID: "acct",
	})
	if err == nil {
		t.Fatal("expected error for ERROR container status")
	}
	if !strings.Contains(err.Error(), "ERROR") {
		t.Errorf("error = %v", err)
	}
}

func TestPublish_PollTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/media") {
			w.Write([]byte(`{"id":"c1"}`))
			return
		}
		w.Write([]byte(`{"status_code":"IN_PROGRESS"}`))
	}))
	defer srv.Close()

	a := testAdapter(srv)
	_, err := a.Publish(context.Background(), ports.PublishRequest{
		VideoURL: "u", Caption: "c", AccessToken: "t", AccountID: "acct",
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "not ready") {
		t.Errorf("error = %v", err)
	}
}

func TestPublish_RedactsTokenInErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad token tok-secret"}}`))
	}))
	defer srv.Close()

	a := testAdapter(srv)
	_, err := a.Publish(context.Background(), ports.PublishRequest{
		VideoURL: "u", Caption: "c", AccessToken: "tok-secret", AccountID: "acct",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "tok-secret") {
		t.Errorf("token leaked in error: %v", err)
	}
	if !strings.Contains(err.Error(), "[REDACTED]") {
		t.Errorf("expected redaction marker, got: %v", err)
	}
}

func TestPublish_RequiresCredentials(t *testing.T) {
	a := New("https://graph.example/v19.0")
	if _, err := a.Publish(context.Background(), ports.PublishRequest{VideoURL: "u", AccountID: "a"}); err == nil {
		t.Error("expected error without access token")
	}
	if _, err := a.Publish(context.Background(), ports.PublishRequest{VideoURL: "u", AccessToken: "t"}); err == nil {
		t.Error("expected error without account id")
	}
}
