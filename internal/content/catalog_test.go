package content

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/hitoshi/learnhub/internal/model"
	"github.com/hitoshi/learnhub/internal/security"
)

func loadTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Load(security.NewGrammarSanitizer())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	return c
}

func TestLoad_EmbeddedData(t *testing.T) {
	c := loadTestCatalog(t)

	if len(c.Courses()) != 4 {
		t.Errorf("courses = %d, want 4", len(c.Courses()))
	}
	if len(c.Resources()) != 1 || c.Resources()[0].Link != JPD316Path {
		t.Errorf("resources = %+v", c.Resources())
	}
	vocab, err := c.Flashcards(KindVocabulary)
	if err != nil || len(vocab) == 0 {
		t.Fatalf("vocabulary = %d cards, err %v", len(vocab), err)
	}
	kanji, err := c.Flashcards(KindKanji)
	if err != nil || len(kanji) == 0 {
		t.Fatalf("kanji = %d cards, err %v", len(kanji), err)
	}
	if c.Grammar().Series != "JPD316" {
		t.Errorf("series = %q", c.Grammar().Series)
	}
}

func TestCatalog_Categories_CountsMatchData(t *testing.T) {
	c := loadTestCatalog(t)
	vocab, _ := c.Flashcards(KindVocabulary)
	kanji, _ := c.Flashcards(KindKanji)

	cats := c.Categories()
	if len(cats) != 3 {
		t.Fatalf("categories = %d, want 3", len(cats))
	}
	want := map[string]int{
		KindVocabulary: len(vocab),
		"grammar":      c.GrammarCount(),
		KindKanji:      len(kanji),
	}
	for _, cat := range cats {
		if cat.Count != want[cat.Slug] {
			t.Errorf("%s count = %d, want %d", cat.Slug, cat.Count, want[cat.Slug])
		}
		if !strings.HasPrefix(cat.Link, JPD316Path+"/") {
			t.Errorf("%s link = %q", cat.Slug, cat.Link)
		}
	}
	if cats[0].Items != "12 từ vựng" {
		t.Errorf("vocabulary items = %q", cats[0].Items)
	}
}

func TestCatalog_Flashcards_UnknownKind(t *testing.T) {
	c := loadTestCatalog(t)
	_, err := c.Flashcards("hiragana")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeResourceNotFound {
		t.Errorf("expected RESOURCE_NOT_FOUND, got %v", err)
	}
}

func TestCatalog_GrammarLesson(t *testing.T) {
	c := loadTestCatalog(t)

	lesson, err := c.GrammarLesson(0)
	if err != nil {
		t.Fatalf("GrammarLesson(0) returned error: %v", err)
	}
	if lesson.Lesson != "Bài 1" {
		t.Errorf("lesson = %q", lesson.Lesson)
	}
	if _, err := c.GrammarLesson(99); err == nil {
		t.Error("expected error for out-of-range lesson")
	}
	if _, err := c.GrammarLesson(-1); err == nil {
		t.Error("expected error for negative lesson")
	}
}

func TestLoadFS_SanitizesGrammar(t *testing.T) {
	fsys := fstest.MapFS{
		"kotoba.json":    {Data: []byte(`[]`)},
		"kanji.json":     {Data: []byte(`[]`)},
		"courses.json":   {Data: []byte(`[]`)},
		"resources.json": {Data: []byte(`[]`)},
		"grammar.json": {Data: []byte(`{"series":"T","lessons":[{"lesson":"L1","grammar":[
			{"id":"1","pattern":"p","description":"<strong>ok</strong><script>alert(1)</script>",
			 "examples":[{"index":1,"jp":"<ruby>漢<rt>かん</rt></ruby><img src=x onerror=alert(1)>","vi":"v"}]}]}]}`)},
	}

	c, err := LoadFS(fsys, security.NewGrammarSanitizer())
	if err != nil {
		t.Fatalf("LoadFS returned error: %v", err)
	}
	p := c.Grammar().Lessons[0].Grammar[0]
	if strings.Contains(p.Description, "script") || !strings.Contains(p.Description, "<strong>ok</strong>") {
		t.Errorf("description = %q", p.Description)
	}
	if strings.Contains(p.Examples[0].JP, "onerror") || !strings.Contains(p.Examples[0].JP, "<rt>かん</rt>") {
		t.Errorf("example = %q", p.Examples[0].JP)
	}
}

func TestLoadFS_Errors(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
		want string
	}{
		{
			name: "ファイル欠落",
			fsys: fstest.MapFS{"kotoba.json": {Data: []byte(`[]`)}},
			want: "kanji.json",
		},
		{
			name: "不正なJSON",
			fsys: fstest.MapFS{"kotoba.json": {Data: []byte(`{`)}},
			want: "failed to parse kotoba.json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFS(tt.fsys, security.NewGrammarSanitizer())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}
