package reading

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestExcerpt(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		max      int
		want     string
	}{
		{"プレーンテキスト", "今日は雨です。", 0, "今日は雨です。"},
		{"インライン要素は連結", "日本<b>語</b>の勉強", 0, "日本語の勉強"},
		{"ブロック境界は空白", "<p>一行目</p><p>二行目</p>", 0, "一行目 二行目"},
		{"ルビは本文のみ", "<ruby>漢字<rp>(</rp><rt>かんじ</rt><rp>)</rp></ruby>を読む", 0, "漢字を読む"},
		{"scriptを除外", "本文<script>alert(1)</script>です", 0, "本文です"},
		{"エンティティを復元", "A &amp; B", 0, "A & B"},
		{"空白を詰める", "  a \n\t b  ", 0, "a b"},
		{"切り詰め", "あいうえおかきくけこ", 5, "あいうえお…"},
		{"ちょうど上限", "あいうえお", 5, "あいうえお"},
		{"空文字列", "", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Excerpt(tt.fragment, tt.max); got != tt.want {
				t.Errorf("Excerpt(%q, %d) = %q, want %q", tt.fragment, tt.max, got, tt.want)
			}
		})
	}
}

func TestExcerpt_DefaultLength(t *testing.T) {
	got := Excerpt(strings.Repeat("語", DefaultExcerptLength+10), 0)
	if n := utf8.RuneCountInString(got); n != DefaultExcerptLength+1 {
		t.Errorf("rune count = %d, want %d", n, DefaultExcerptLength+1)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("excerpt %q should end with ellipsis", got)
	}
}
