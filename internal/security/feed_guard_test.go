package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFeedGuard_ValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		config  FeedGuardConfig
		url     string
		wantErr bool
	}{
		{"公開URL", FeedGuardConfig{}, "https://www3.nhk.or.jp/rss/news/cat0.xml", false},
		{"http許可", FeedGuardConfig{}, "http://example.com/feed", false},
		{"空URL", FeedGuardConfig{}, "", true},
		{"ftpスキーム", FeedGuardConfig{}, "ftp://example.com/feed", true},
		{"ホスト無し", FeedGuardConfig{}, "https:///feed", true},
		{"プライベートIP", FeedGuardConfig{}, "http://192.168.1.10/feed", true},
		{"ループバック", FeedGuardConfig{}, "http://127.0.0.1:8080/feed", true},
		{"メタデータIP", FeedGuardConfig{}, "http://169.254.169.254/latest/meta-data/", true},
		{"IPv6ループバック", FeedGuardConfig{}, "http://[::1]/feed", true},
		{"localhost", FeedGuardConfig{}, "http://localhost/feed", true},
		{"httpsのみ", FeedGuardConfig{RequireHTTPS: true}, "http://example.com/feed", true},
		{"許可リスト内", FeedGuardConfig{AllowedHosts: []string{"nhk.or.jp"}}, "https://www3.nhk.or.jp/rss", false},
		{"許可リスト外", FeedGuardConfig{AllowedHosts: []string{"nhk.or.jp"}}, "https://example.com/rss", true},
		{"似た名前のホスト", FeedGuardConfig{AllowedHosts: []string{"nhk.or.jp"}}, "https://evilnhk.or.jp/rss", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewFeedGuard(tt.config).ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestFeedGuard_NewSafeClient(t *testing.T) {
	client := NewFeedGuard(FeedGuardConfig{}).NewSafeClient(5*time.Second, 1<<20)
	if client.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v", client.Timeout)
	}
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Error("expected a custom transport")
	}
}

// httptestサーバーは127.0.0.1で起動するため、接続時に拒否される。
func TestFeedGuard_SafeClientBlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewFeedGuard(FeedGuardConfig{}).NewSafeClient(5*time.Second, 1<<20)
	if _, err := client.Get(ts.URL); err == nil {
		t.Fatal("expected loopback request to be blocked")
	}
}
