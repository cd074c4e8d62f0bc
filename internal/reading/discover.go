package reading

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	discoverTimeout  = 10 * time.Second
	discoverMaxBytes = 2 << 20
	discoverAccept   = "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html;q=0.9, */*;q=0.5"
)

// ErrNoFeed はURLがフィードでなく、HTMLからもフィードリンクが見つからないことを表す。
var ErrNoFeed = errors.New("feed not found")

// URLGuard は取得先URLの検証と、安全なHTTPクライアントの生成を行う。
type URLGuard interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// feedLink はHTMLのlink要素から見つかったフィード候補。
type feedLink struct {
	url  string
	atom bool
}

// Discoverer は設定されたURLを実際のフィードURLに解決する。
// フィードそのもののURLはそのまま返し、サイトのページであれば
// <link rel="alternate"> からフィードを選ぶ。
type Discoverer struct {
	guard URLGuard
}

// NewDiscoverer はDiscovererを生成する。
func NewDiscoverer(guard URLGuard) *Discoverer {
	return &Discoverer{guard: guard}
}

// Resolve はrawURLのフィードURLを返す。
func (d *Discoverer) Resolve(ctx context.Context, rawURL string) (string, error) {
	if err := d.guard.ValidateURL(rawURL); err != nil {
		return "", fmt.Errorf("blocked url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	req.Header.Set("Accept", discoverAccept)

	resp, err := d.guard.NewSafeClient(discoverTimeout, discoverMaxBytes).Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, discoverMaxBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	mediaType := mediaTypeOf(resp.Header.Get("Content-Type"))
	if looksLikeFeed(mediaType, body) {
		return rawURL, nil
	}
	if !strings.Contains(mediaType, "html") {
		return "", ErrNoFeed
	}

	best, ok := pickFeed(feedLinks(body, rawURL), rawURL)
	if !ok {
		return "", ErrNoFeed
	}
	return best, nil
}

func mediaTypeOf(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	return strings.ToLower(mt)
}

// looksLikeFeed はContent-Typeと先頭4KBのルート要素からRSS/Atomかを判定する。
func looksLikeFeed(mediaType string, body []byte) bool {
	switch mediaType {
	case "application/rss+xml", "application/atom+xml":
		return true
	case "text/xml", "application/xml":
	default:
		return false
	}

	head := body
	if len(head) > 4096 {
		head = head[:4096]
	}
	prefix := strings.ToLower(string(head))
	if strings.Contains(prefix, "<rss") || strings.Contains(prefix, "<rdf:rdf") {
		return true
	}
	return strings.Contains(prefix, "<feed") && strings.Contains(prefix, "http://www.w3.org/2005/atom")
}

// feedLinks はhead内のフィードリンクを出現順に返す。相対URLはpageURL基準で解決する。
func feedLinks(body []byte, pageURL string) []feedLink {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var links []feedLink
	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return links
		case html.EndTagToken:
			if tn, _ := z.TagName(); string(tn) == "head" {
				return links
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := z.TagName()
			switch string(tn) {
			case "body":
				return links
			case "link":
				if !hasAttr {
					continue
				}
				if l, ok := parseFeedLink(z, base); ok {
					links = append(links, l)
				}
			}
		}
	}
}

func parseFeedLink(z *html.Tokenizer, base *url.URL) (feedLink, bool) {
	var rel, typ, href string
	for {
		key, val, more := z.TagAttr()
		switch strings.ToLower(string(key)) {
		case "rel":
			rel = strings.ToLower(string(val))
		case "type":
			typ = strings.ToLower(string(val))
		case "href":
			href = string(val)
		}
		if !more {
			break
		}
	}

	if rel != "alternate" || href == "" {
		return feedLink{}, false
	}
	if typ != "application/rss+xml" && typ != "application/atom+xml" {
		return feedLink{}, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return feedLink{}, false
	}
	return feedLink{url: base.ResolveReference(ref).String(), atom: typ == "application/atom+xml"}, true
}

// pickFeed は候補から1つ選ぶ。同一ホストを最優先し、次にAtom、同点なら先頭。
func pickFeed(links []feedLink, pageURL string) (string, bool) {
	if len(links) == 0 {
		return "", false
	}
	pageHost := hostOf(pageURL)
	best, bestScore := 0, -1
	for i, l := range links {
		score := 0
		if hostOf(l.url) == pageHost {
			score += 2
		}
		if l.atom {
			score++
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return links[best].url, true
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
