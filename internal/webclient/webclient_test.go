package webclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/raysh454/dorkrecon/internal/logging"
	"github.com/raysh454/dorkrecon/internal/webclient"
)

func TestNew_SelectsBackend(t *testing.T) {
	logger := logging.NewTestLogger(false)

	wc, err := webclient.New(webclient.Config{}, logger)
	if err != nil {
		t.Fatalf("New(default): %v", err)
	}
	if _, ok := wc.(*webclient.NetHTTPClient); !ok {
		t.Fatalf("default backend = %T, want NetHTTPClient", wc)
	}

	wc, err = webclient.New(webclient.Config{Backend: webclient.BackendChromedp}, logger)
	if err != nil {
		t.Fatalf("New(chromedp): %v", err)
	}
	if _, ok := wc.(*webclient.ChromedpClient); !ok {
		t.Fatalf("chromedp backend = %T", wc)
	}

	if _, err := webclient.New(webclient.Config{Backend: "ie6"}, logger); err == nil {
		t.Fatal("unknown backend accepted")
	}
}

func TestNetHTTPClient_Do(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))
	defer srv.Close()

	wc := webclient.NewNetHTTPClient(webclient.Config{Timeout: 5 * time.Second}, logging.NewTestLogger(false))

	headers := http.Header{}
	headers.Set("User-Agent", "dorkrecon-test")
	resp, err := wc.Do(context.Background(), &webclient.Request{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Headers: headers,
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != http.StatusTeapot {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if string(resp.Body) != "short and stout" {
		t.Fatalf("body = %q", resp.Body)
	}
	if gotUA != "dorkrecon-test" {
		t.Fatalf("user agent = %q", gotUA)
	}
	if resp.FetchedAt.IsZero() {
		t.Fatal("FetchedAt not stamped")
	}
}

func TestNetHTTPClient_NilRequest(t *testing.T) {
	wc := webclient.NewNetHTTPClient(webclient.DefaultConfig(), logging.NewTestLogger(false))
	if _, err := wc.Do(context.Background(), nil); err == nil {
		t.Fatal("nil request accepted")
	}
}

func TestNetHTTPClient_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	wc := webclient.NewNetHTTPClient(webclient.Config{Timeout: 10 * time.Second}, logging.NewTestLogger(false))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := wc.Do(ctx, &webclient.Request{URL: srv.URL}); err == nil {
		t.Fatal("expected context deadline error")
	}
}
