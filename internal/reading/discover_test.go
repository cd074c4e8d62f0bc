package reading

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// allowGuard はテストサーバー（ループバック）への接続を許可するURLGuard。
type allowGuard struct {
	client *http.Client
	err    error
}

func (g allowGuard) ValidateURL(string) error { return g.err }

func (g allowGuard) NewSafeClient(time.Duration, int64) *http.Client { return g.client }

func newDiscoverServer(t *testing.T, contentType, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDiscoverer_Resolve(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		path        string
		want        string // 空の場合はサーバーURL+pathを期待
		wantErr     error
	}{
		{
			name:        "RSSはそのまま",
			contentType: "application/rss+xml; charset=utf-8",
			body:        `<?xml version="1.0"?><rss version="2.0"><channel></channel></rss>`,
			path:        "/rss.xml",
		},
		{
			name:        "text/xmlのAtom",
			contentType: "text/xml",
			body:        `<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom"></feed>`,
			path:        "/atom.xml",
		},
		{
			name:        "HTMLのlinkから同一ホストのAtomを選ぶ",
			contentType: "text/html",
			body: `<html><head>
				<link rel="alternate" type="application/rss+xml" href="https://other.example.com/rss">
				<link rel="alternate" type="application/rss+xml" href="/news/rss">
				<link rel="alternate" type="application/atom+xml" href="/news/atom">
				</head><body><link rel="alternate" type="application/atom+xml" href="/ignored"></body></html>`,
			path: "/news/",
			want: "/news/atom",
		},
		{
			name:        "フィードリンクの無いHTML",
			contentType: "text/html",
			body:        `<html><head><title>やさしいにほんご</title></head><body></body></html>`,
			path:        "/",
			wantErr:     ErrNoFeed,
		},
		{
			name:        "フィードでもHTMLでもない",
			contentType: "application/json",
			body:        `{}`,
			path:        "/api",
			wantErr:     ErrNoFeed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newDiscoverServer(t, tt.contentType, tt.body)
			d := NewDiscoverer(allowGuard{client: srv.Client()})

			got, err := d.Resolve(context.Background(), srv.URL+tt.path)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve returned error: %v", err)
			}
			want := srv.URL + tt.path
			if tt.want != "" {
				want = srv.URL + tt.want
			}
			if got != want {
				t.Errorf("Resolve = %q, want %q", got, want)
			}
		})
	}
}

func TestDiscoverer_Resolve_BlockedURL(t *testing.T) {
	d := NewDiscoverer(allowGuard{err: errors.New("blocked IP address")})

	if _, err := d.Resolve(context.Background(), "http://169.254.169.254/"); err == nil {
		t.Fatal("expected error for blocked URL")
	}
}

func TestDiscoverer_Resolve_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	d := NewDiscoverer(allowGuard{client: srv.Client()})
	if _, err := d.Resolve(context.Background(), srv.URL+"/missing"); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestPickFeed_PrefersFirstOnTie(t *testing.T) {
	links := []feedLink{
		{url: "https://example.com/a.rss"},
		{url: "https://example.com/b.rss"},
	}
	got, ok := pickFeed(links, "https://example.com/")
	if !ok || got != "https://example.com/a.rss" {
		t.Errorf("pickFeed = %q, %v", got, ok)
	}
	if _, ok := pickFeed(nil, "https://example.com/"); ok {
		t.Error("pickFeed(nil) should report no feed")
	}
}
