// Package content は静的JSONで管理する学習コンテンツ（語彙・漢字・文法・コース・リソース）を提供する。
// データはバイナリに埋め込み、起動時に一度だけ読み込む。
package content

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"

	"github.com/hitoshi/learnhub/internal/model"
)

//go:embed data/*.json
var embedded embed.FS

// フラッシュカードの種類
const (
	KindVocabulary = "vocabulary"
	KindKanji      = "kanji"
)

// JPD316Path は教材セットJPD316のパス。
const JPD316Path = "/resources/jpd316"

// Sanitizer は文法解説のHTMLを無害化する。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// Catalog は読み込み済みの学習コンテンツ。読み取り専用で、複数のgoroutineから共有できる。
type Catalog struct {
	vocabulary []model.Flashcard
	kanji      []model.Flashcard
	grammar    model.GrammarBook
	courses    []model.Course
	resources  []model.ResourceCollection
}

// Load は埋め込みデータからCatalogを生成する。
func Load(sanitizer Sanitizer) (*Catalog, error) {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded content: %w", err)
	}
	return LoadFS(sub, sanitizer)
}

// LoadFS はfsysの直下にあるJSONファイルからCatalogを生成する。
// 文法の解説と例文は読み込み時にsanitizerで無害化する。
func LoadFS(fsys fs.FS, sanitizer Sanitizer) (*Catalog, error) {
	c := &Catalog{}
	files := []struct {
		name string
		dst  any
	}{
		{"kotoba.json", &c.vocabulary},
		{"kanji.json", &c.kanji},
		{"grammar.json", &c.grammar},
		{"courses.json", &c.courses},
		{"resources.json", &c.resources},
	}
	for _, f := range files {
		if err := readJSON(fsys, f.name, f.dst); err != nil {
			return nil, err
		}
	}

	for i := range c.grammar.Lessons {
		patterns := c.grammar.Lessons[i].Grammar
		for j := range patterns {
			patterns[j].Description = sanitizer.Sanitize(patterns[j].Description)
			for k := range patterns[j].Examples {
				patterns[j].Examples[k].JP = sanitizer.Sanitize(patterns[j].Examples[k].JP)
				patterns[j].Examples[k].VI = sanitizer.Sanitize(patterns[j].Examples[k].VI)
			}
		}
	}
	return c, nil
}

func readJSON(fsys fs.FS, name string, dst any) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

// Courses はコース一覧を返す。
func (c *Catalog) Courses() []model.Course {
	return c.courses
}

// Resources は教材セットの一覧を返す。
func (c *Catalog) Resources() []model.ResourceCollection {
	return c.resources
}

// Grammar は文法データ全体を返す。
func (c *Catalog) Grammar() model.GrammarBook {
	return c.grammar
}

// GrammarLesson は指定番号（0始まり）の課を返す。範囲外の場合はRESOURCE_NOT_FOUND。
func (c *Catalog) GrammarLesson(index int) (*model.GrammarLesson, error) {
	if index < 0 || index >= len(c.grammar.Lessons) {
		return nil, model.NewResourceNotFoundError(fmt.Sprintf("lesson %d", index))
	}
	return &c.grammar.Lessons[index], nil
}

// GrammarCount は全課の文法項目数を返す。
func (c *Catalog) GrammarCount() int {
	n := 0
	for _, l := range c.grammar.Lessons {
		n += len(l.Grammar)
	}
	return n
}

// Flashcards は種類ごとのフラッシュカードを返す。未知の種類はRESOURCE_NOT_FOUND。
func (c *Catalog) Flashcards(kind string) ([]model.Flashcard, error) {
	switch kind {
	case KindVocabulary:
		return c.vocabulary, nil
	case KindKanji:
		return c.kanji, nil
	default:
		return nil, model.NewResourceNotFoundError(kind)
	}
}

// Categories はJPD316のカテゴリと項目数を返す。
func (c *Catalog) Categories() []model.ResourceCategory {
	return []model.ResourceCategory{
		{
			ID:          1,
			Slug:        KindVocabulary,
			Title:       "語彙",
			Subtitle:    "Từ Vựng",
			Description: "Tổng hợp từ vựng theo chủ đề và bài học",
			Count:       len(c.vocabulary),
			Items:       fmt.Sprintf("%d từ vựng", len(c.vocabulary)),
			Link:        JPD316Path + "/vocabulary",
		},
		{
			ID:          2,
			Slug:        "grammar",
			Title:       "文法",
			Subtitle:    "Ngữ Pháp",
			Description: "Các mẫu câu và cấu trúc ngữ pháp tiếng Nhật",
			Count:       c.GrammarCount(),
			Items:       fmt.Sprintf("%d mẫu ngữ pháp", c.GrammarCount()),
			Link:        JPD316Path + "/grammar",
		},
		{
			ID:          3,
			Slug:        KindKanji,
			Title:       "漢字",
			Subtitle:    "Chữ Hán",
			Description: "Học và luyện tập các chữ Kanji cơ bản",
			Count:       len(c.kanji),
			Items:       fmt.Sprintf("%d chữ Kanji", len(c.kanji)),
			Link:        JPD316Path + "/kanji",
		},
	}
}
