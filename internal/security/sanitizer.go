// Package security は学習コンテンツと外部フィードを扱う際の安全対策を提供する。
package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer はHTML断片を許可リストに基づいて無害化する。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// HTMLSanitizer はbluemondayのポリシーを保持するSanitizerの実装。
// ポリシーは生成後に変更しないため、複数のgoroutineから安全に使える。
type HTMLSanitizer struct {
	policy *bluemonday.Policy
}

// NewGrammarSanitizer は文法解説用のSanitizerを生成する。
// 強調と改行、ふりがな（ruby, rt, rp）のみを許可し、リンクや画像は除去する。
func NewGrammarSanitizer() *HTMLSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"br", "strong", "em", "b", "i", "u", "mark",
		"ruby", "rt", "rp",
		"ul", "ol", "li",
	)
	return &HTMLSanitizer{policy: p}
}

// NewSummarySanitizer は読み物フィードの要約用のSanitizerを生成する。
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, strong, em, ruby, rt, rp, img
//   - aタグ: 絶対URLのみ、target="_blank" と rel="noreferrer noopener" を付与
//   - imgのsrc: httpsのみ
func NewSummarySanitizer() *HTMLSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br", "ul", "ol", "li", "blockquote",
		"strong", "em",
		"ruby", "rt", "rp",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &HTMLSanitizer{policy: p}
}

// Sanitize はHTMLを無害化して返す。同じ入力には常に同じ出力を返す。
func (s *HTMLSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

var _ Sanitizer = (*HTMLSanitizer)(nil)
