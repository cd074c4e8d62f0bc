package model

import "time"

// Flashcard は語彙・漢字フラッシュカードの1枚を表す。
// termが表面（日本語）、definitionが裏面（ベトナム語）。
type Flashcard struct {
	Term       string  `json:"term"`
	Definition string  `json:"definition"`
	Image      *string `json:"image"`
}

// GrammarExample は文法パターンの例文を表す。
type GrammarExample struct {
	Index int    `json:"index"`
	JP    string `json:"jp"`
	VI    string `json:"vi"`
}

// GrammarPattern は1つの文法項目を表す。
// descriptionは限定的なHTMLを含むため、配信前にサニタイズする。
type GrammarPattern struct {
	ID          string           `json:"id"`
	Pattern     string           `json:"pattern"`
	Usage       string           `json:"usage"`
	Meaning     string           `json:"meaning"`
	Description string           `json:"description"`
	Examples    []GrammarExample `json:"examples"`
}

// GrammarLesson は課ごとの文法項目のまとまりを表す。
type GrammarLesson struct {
	Lesson  string           `json:"lesson"`
	Grammar []GrammarPattern `json:"grammar"`
}

// GrammarBook は文法データ全体を表す。
type GrammarBook struct {
	Series  string          `json:"series"`
	Lessons []GrammarLesson `json:"lessons"`
}

// Course はコース一覧に表示するコースを表す。
type Course struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Instructor  string `json:"instructor"`
	Duration    string `json:"duration"`
	Students    int    `json:"students"`
	Level       string `json:"level"`
	Image       string `json:"image"`
}

// ResourceCollection はリソース一覧に表示する教材セットを表す。
type ResourceCollection struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Category    string  `json:"category"`
	Type        string  `json:"type"`
	Size        string  `json:"size"`
	Downloads   int     `json:"downloads"`
	Rating      float64 `json:"rating"`
	Description string  `json:"description"`
	Link        string  `json:"link"`
}

// ResourceCategory は教材セット内のカテゴリ（語彙・文法・漢字）と項目数を表す。
type ResourceCategory struct {
	ID          int    `json:"id"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`    // 日本語
	Subtitle    string `json:"subtitle"` // ベトナム語
	Description string `json:"description"`
	Count       int    `json:"count"`
	Items       string `json:"items"` // 例: "120 từ vựng"
	Link        string `json:"link"`
}

// FetchStatus は読み物フィードの取得状態を表す。
type FetchStatus string

const (
	// FetchStatusActive は定期取得の対象。
	FetchStatusActive FetchStatus = "active"
	// FetchStatusStopped は404やSSRF検証失敗などで取得を停止した状態。
	FetchStatusStopped FetchStatus = "stopped"
)

// ReadingFeed は読み物リストの取得元フィードを表す。
type ReadingFeed struct {
	ID                string
	FeedURL           string
	Title             string
	ETag              string
	LastModified      string
	LastError         string
	FetchStatus       FetchStatus
	ConsecutiveErrors int
	NextFetchAt       time.Time
	FetchedAt         *time.Time
	CreatedAt         time.Time
}

// ReadingItem は読み物フィードから取得した1記事を表す。
type ReadingItem struct {
	ID          string
	FeedID      string
	GUID        string
	Title       string
	Link        string
	Summary     string // サニタイズ済みHTML
	Excerpt     string // プレーンテキスト抜粋
	PublishedAt *time.Time
	FetchedAt   time.Time
	CreatedAt   time.Time
}

// ParsedReadingItem はフィードパーサーから取得した未保存の記事データを表す。
type ParsedReadingItem struct {
	GUID        string
	Title       string
	Link        string
	Summary     string // 未サニタイズ
	PublishedAt *time.Time
}
