package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/qkbintel/registry/internal/config"
)

func testClient(baseURL string) *Client {
	cfg := config.DefaultScraper()
	cfg.BaseURL = baseURL
	cfg.RequestDelay = 0
	cfg.RetryDelay = 0
	cfg.RetryCount = 2
	return NewClient(cfg)
}

func TestCollectNIPTsDeduplicatesAcrossCategories(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/sq/company/"):
			w.Write([]byte(`{"data":[{"NIPT":"J61827501H"},{"NIPT":"K21836229J"}],"recordsTotal":2}`))
		case strings.HasPrefix(r.URL.Path, "/sq/banka/"):
			w.Write([]byte(`{"data":[{"NIPT":"<a href=\"/x\">J61827501H</a>"},{"NIPT":"not-valid"}],"recordsTotal":2}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := testClient(server.URL)
	nipts, err := client.CollectNIPTs(context.Background(), []string{"company", "banka"})
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if len(nipts) != 2 {
		t.Fatalf("expected 2 unique NIPTs, got %v", nipts)
	}
	if nipts[0] != "J61827501H" || nipts[1] != "K21836229J" {
		t.Errorf("expected sorted deduplicated set, got %v", nipts)
	}
}

func TestCollectNIPTsSkipsFailingCategory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/sq/company/") {
			w.Write([]byte(`{"data":[{"NIPT":"J61827501H"}],"recordsTotal":1}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := testClient(server.URL)
	nipts, err := client.CollectNIPTs(context.Background(), []string{"banka", "company"})
	if err != nil {
		t.Fatalf("one healthy category should be enough: %v", err)
	}
	if len(nipts) != 1 || nipts[0] != "J61827501H" {
		t.Errorf("expected [J61827501H], got %v", nipts)
	}
}

func TestCollectNIPTsFailsWhenAllCategoriesFail(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	client := testClient(server.URL)
	if _, err := client.CollectNIPTs(context.Background(), []string{"company", "banka"}); err == nil {
		t.Fatal("expected failure when no category can be enumerated")
	}
}

func TestGetRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("<html><title>OK</title></html>"))
	}))
	defer server.Close()

	client := testClient(server.URL)
	body, _, err := client.FetchDetail(context.Background(), "J61827501H")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if !strings.Contains(body, "OK") {
		t.Errorf("unexpected body: %q", body)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestGetDoesNotRetryPermanentFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, _, err := client.FetchDetail(context.Background(), "J61827501H")
	if err == nil {
		t.Fatal("expected not-found failure")
	}
	if !IsNotFound(err) {
		t.Errorf("expected a not-found fetch error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("permanent failure must not be retried, got %d attempts", calls.Load())
	}
}

func TestGetGivesUpAfterBoundedRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, _, err := client.FetchDetail(context.Background(), "J61827501H")
	if err == nil {
		t.Fatal("expected failure after retries exhausted")
	}
	var fe *FetchError
	if !errors.As(err, &fe) || !fe.Transient {
		t.Errorf("expected a transient fetch error, got %v", err)
	}
	// Initial attempt plus two retries.
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestFetchDetailSendsUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	cfg := config.DefaultScraper()
	cfg.BaseURL = server.URL
	cfg.UserAgent = "registry-test/1.0"
	cfg.RequestDelay = 0
	client := NewClient(cfg)

	if _, _, err := client.FetchDetail(context.Background(), "J61827501H"); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if gotUA != "registry-test/1.0" {
		t.Errorf("expected configured user agent, got %q", gotUA)
	}
}

func TestCleanNIPT(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"J61827501H", "J61827501H"},
		{" j61827501h ", "J61827501H"},
		{`<a href="/sq/nipt/J61827501H">J61827501H</a>`, "J61827501H"},
		{"&nbsp;J61827501H", "J61827501H"},
		{"not a nipt", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := CleanNIPT(tc.in); got != tc.want {
			t.Errorf("CleanNIPT(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
