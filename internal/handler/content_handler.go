package handler

import (
	"context"
	"math/rand/v2"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/learnhub/internal/content"
	"github.com/hitoshi/learnhub/internal/middleware"
	"github.com/hitoshi/learnhub/internal/model"
	"github.com/hitoshi/learnhub/internal/reading"
)

// ContentCatalog はコンテンツハンドラーが必要とする学習コンテンツの読み取り操作。
type ContentCatalog interface {
	Courses() []model.Course
	Resources() []model.ResourceCollection
	Categories() []model.ResourceCategory
	Flashcards(kind string) ([]model.Flashcard, error)
	Grammar() model.GrammarBook
	GrammarLesson(index int) (*model.GrammarLesson, error)
}

// ReadingLister は読み物一覧の取得操作。
type ReadingLister interface {
	ListRecent(ctx context.Context, limit int) ([]reading.Item, error)
}

// ContentHandler はコース、教材、フラッシュカード、文法、読み物のHTTPハンドラー。
type ContentHandler struct {
	catalog ContentCatalog
	reading ReadingLister
}

// NewContentHandler はContentHandlerを生成する。
func NewContentHandler(catalog ContentCatalog, lister ReadingLister) *ContentHandler {
	return &ContentHandler{
		catalog: catalog,
		reading: lister,
	}
}

// flashcardsResponse はフラッシュカード一覧と表示状態。
// シャッフル時はseedを返し、同じseedで再読み込みすると同じ順序になる。
type flashcardsResponse struct {
	Kind  string            `json:"kind"`
	Seed  *uint64           `json:"seed,omitempty"`
	Cards []model.Flashcard `json:"cards"`
	View  content.DeckView  `json:"view"`
}

type readingResponse struct {
	Items []reading.Item `json:"items"`
}

// ListCourses はコース一覧を返す。
// GET /api/courses
func (h *ContentHandler) ListCourses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Courses())
}

// ListResources は教材セットの一覧を返す。
// GET /api/resources
func (h *ContentHandler) ListResources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Resources())
}

// ListCategories はJPD316のカテゴリと項目数を返す。
// GET /api/resources/jpd316
func (h *ContentHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Categories())
}

// Flashcards は語彙または漢字のフラッシュカードを返す。
// index の位置に移動したあと action（next, previous, flip, reset）を1つ適用した表示状態を返す。
// GET /api/resources/jpd316/{kind}?shuffle=true&seed=42&index=0&action=next
func (h *ContentHandler) Flashcards(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	cards, err := h.catalog.Flashcards(kind)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	q := r.URL.Query()
	deck := content.NewDeck(cards)
	resp := flashcardsResponse{Kind: kind}

	if shuffle, _ := strconv.ParseBool(q.Get("shuffle")); shuffle {
		seed := rand.Uint64()
		if s := q.Get("seed"); s != "" {
			parsed, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				writeQueryError(w, "seed")
				return
			}
			seed = parsed
		}
		deck.ShuffleSeeded(seed)
		resp.Seed = &seed
	}

	if s := q.Get("index"); s != "" {
		index, err := strconv.Atoi(s)
		if err != nil || !deck.Seek(index) {
			writeQueryError(w, "index")
			return
		}
	}

	if !applyDeckAction(deck, q.Get("action")) {
		writeQueryError(w, "action")
		return
	}

	resp.Cards = deck.Cards()
	resp.View = deck.View()
	writeJSON(w, http.StatusOK, resp)
}

// Grammar は文法データを返す。lessonを指定した場合はその課（0始まり）のみ返す。
// GET /api/resources/jpd316/grammar?lesson=0
func (h *ContentHandler) Grammar(w http.ResponseWriter, r *http.Request) {
	s := r.URL.Query().Get("lesson")
	if s == "" {
		writeJSON(w, http.StatusOK, h.catalog.Grammar())
		return
	}

	index, err := strconv.Atoi(s)
	if err != nil {
		writeQueryError(w, "lesson")
		return
	}
	lesson, err := h.catalog.GrammarLesson(index)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lesson)
}

// ListReading は新しい順に読み物記事を返す。
// GET /api/resources/reading?limit=20
func (h *ContentHandler) ListReading(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil {
			writeQueryError(w, "limit")
			return
		}
		limit = parsed
	}

	items, err := h.reading.ListRecent(r.Context(), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, readingResponse{Items: items})
}

// writeQueryError は不正なクエリパラメータの検証エラーを書き込む。
// applyDeckAction はカード操作を適用する。先頭・末尾での前後移動は位置を変えない。
// 未知の操作の場合はfalseを返す。
func applyDeckAction(deck *content.Deck, action string) bool {
	switch action {
	case "":
	case "next":
		deck.Next()
	case "previous":
		deck.Previous()
	case "flip":
		deck.Flip()
	case "reset":
		deck.Reset()
	default:
		return false
	}
	return true
}

func writeQueryError(w http.ResponseWriter, param string) {
	msg := "Tham số không hợp lệ: " + param
	middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(msg, map[string]string{param: msg}))
}
