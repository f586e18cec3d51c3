package request

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mizunashi-mana/mstdn-rss2bsky-post/internal/testutil"
)

func TestMake(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("got method %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("got Content-Type %q, want application/json", ct)
		}
		body := testutil.UnmarshalJSON[map[string]string](t, read(t, r))
		testutil.AssertEqual(t, body["ping"], "pong")
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	type response struct {
		OK bool `json:"ok"`
	}
	res, err := Make[response](context.Background(), Params{
		Method:     http.MethodPost,
		URL:        srv.URL,
		Body:       map[string]string{"ping": "pong"},
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, res.OK, true)
}

func TestMakeIgnoreResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("definitely not JSON"))
	}))
	defer srv.Close()

	if _, err := Make[IgnoreResponse](context.Background(), Params{
		Method:     http.MethodGet,
		URL:        srv.URL,
		HTTPClient: srv.Client(),
	}); err != nil {
		t.Fatal(err)
	}
}

func TestMakeStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := Make[IgnoreResponse](context.Background(), Params{
		Method:     http.MethodGet,
		URL:        srv.URL,
		HTTPClient: srv.Client(),
	})

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("want StatusError, got %v", err)
	}
	testutil.AssertEqual(t, se.StatusCode, http.StatusForbidden)
	mustContain(t, se.Error(), "want 200, got 403")
}

func TestMakeScrubsErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad password hunter2", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := Make[IgnoreResponse](context.Background(), Params{
		Method:     http.MethodGet,
		URL:        srv.URL,
		HTTPClient: srv.Client(),
		Scrubber:   strings.NewReplacer("hunter2", "[EXPUNGED]"),
	})
	if err == nil {
		t.Fatal("want error")
	}
	mustContain(t, err.Error(), "[EXPUNGED]")
	mustNotContain(t, err.Error(), "hunter2")
}

func mustContain(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Fatalf("%q must contain %q", s, substr)
	}
}

func mustNotContain(t *testing.T, s, substr string) {
	t.Helper()
	if strings.Contains(s, substr) {
		t.Fatalf("%q must not contain %q", s, substr)
	}
}

func read(t *testing.T, r *http.Request) []byte {
	t.Helper()
	b, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatal(err)
	}
	return b
}
