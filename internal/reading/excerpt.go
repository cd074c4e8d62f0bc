// Package reading は日本語読み物リストの抜粋生成と一覧取得を提供する。
// フィードの取得自体はworker/fetchが担当する。
package reading

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// DefaultExcerptLength は抜粋の既定の最大文字数（ルーン数）。
const DefaultExcerptLength = 160

// ellipsis は切り詰めた抜粋の末尾に付与する。
const ellipsis = "…"

// Excerpt はHTML断片からテキストのみを抽出し、空白を詰めてmaxRunes文字以内に切り詰める。
// script/style要素とルビ（rt/rp）の中身は含めない。maxRunesが0以下の場合はDefaultExcerptLengthを使用する。
func Excerpt(fragment string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = DefaultExcerptLength
	}

	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	skipDepth := 0

loop:
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			break loop
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if skippedTags[tag] {
				if tt == html.StartTagToken {
					skipDepth++
				} else if tt == html.EndTagToken && skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			// ブロック要素の境界は空白として扱う。インライン要素は連結する
			if blockTags[tag] {
				b.WriteByte(' ')
			}
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tokenizer.Text())
			}
		}
	}

	text := strings.Join(strings.Fields(b.String()), " ")
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}

	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxRunes])) + ellipsis
}

var skippedTags = map[string]bool{"script": true, "style": true, "rt": true, "rp": true}

var blockTags = map[string]bool{
	"p": true, "br": true, "div": true, "li": true, "ul": true, "ol": true,
	"blockquote": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "tr": true, "td": true, "hr": true,
}
