package restclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestGetJSONDecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/things" {
			t.Errorf("path = %q, want /api/v1/things", r.URL.Path)
		}
		if r.URL.Query().Get("limit") != "5" {
			t.Errorf("limit param = %q, want 5", r.URL.Query().Get("limit"))
		}
		w.Write([]byte(`{"count": 3}`))
	}))
	defer srv.Close()

	client, err := New(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out struct {
		Count int `json:"count"`
	}
	params := url.Values{}
	params.Set("limit", "5")
	if err := client.GetJSON(context.Background(), "/api/v1/things", params, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Count != 3 {
		t.Fatalf("count = %d, want 3", out.Count)
	}
}

func TestGetJSONNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, _ := New(srv.URL, time.Second)
	var out map[string]any
	err := client.GetJSON(context.Background(), "/x", nil, &out)

	var clientErr *Error
	if !errors.As(err, &clientErr) {
		t.Fatalf("expected *Error, got %T (%v)", err, err)
	}
	if clientErr.Reason != "unexpected status 500" {
		t.Errorf("reason = %q", clientErr.Reason)
	}
}

func TestGetJSONUndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	client, _ := New(srv.URL, time.Second)
	var out map[string]any
	err := client.GetJSON(context.Background(), "/x", nil, &out)

	var clientErr *Error
	if !errors.As(err, &clientErr) {
		t.Fatalf("expected *Error, got %T (%v)", err, err)
	}
	if clientErr.Reason != "unable to decode response" {
		t.Errorf("reason = %q", clientErr.Reason)
	}
}

func TestGetJSONUnreachable(t *testing.T) {
	client, _ := New("http://127.0.0.1:1", 200*time.Millisecond)
	var out map[string]any
	err := client.GetJSON(context.Background(), "/x", nil, &out)

	var clientErr *Error
	if !errors.As(err, &clientErr) {
		t.Fatalf("expected *Error, got %T (%v)", err, err)
	}
	if clientErr.Reason != "unable to fetch data" {
		t.Errorf("reason = %q", clientErr.Reason)
	}
}
