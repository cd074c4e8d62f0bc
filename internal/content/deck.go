package content

import (
	"math/rand/v2"

	"github.com/hitoshi/learnhub/internal/model"
)

// Deck はフラッシュカード画面の表示状態（現在位置、裏返し、シャッフル）を表す。
// 1つの画面の状態を表すため、goroutine間で共有しない。
type Deck struct {
	cards    []model.Flashcard
	index    int
	flipped  bool
	shuffled bool
}

// DeckView はDeckのある時点の状態。
type DeckView struct {
	Card     *model.Flashcard `json:"card"`
	Index    int              `json:"index"`
	Total    int              `json:"total"`
	Flipped  bool             `json:"flipped"`
	Shuffled bool             `json:"shuffled"`
	Progress float64          `json:"progress"` // パーセント
}

// NewDeck はcardsの複製からDeckを生成する。
func NewDeck(cards []model.Flashcard) *Deck {
	cp := make([]model.Flashcard, len(cards))
	copy(cp, cards)
	return &Deck{cards: cp}
}

// Len はカード枚数を返す。
func (d *Deck) Len() int {
	return len(d.cards)
}

// Cards は現在の並び順のカードを返す。
func (d *Deck) Cards() []model.Flashcard {
	return d.cards
}

// Current は現在のカードを返す。空のDeckではok=false。
func (d *Deck) Current() (model.Flashcard, bool) {
	if len(d.cards) == 0 {
		return model.Flashcard{}, false
	}
	return d.cards[d.index], true
}

// Flip はカードの表裏を切り替える。
func (d *Deck) Flip() {
	d.flipped = !d.flipped
}

// Next は次のカードへ進む。最後のカードでは何もせずfalseを返す。
func (d *Deck) Next() bool {
	if d.index >= len(d.cards)-1 {
		return false
	}
	d.index++
	d.flipped = false
	return true
}

// Previous は前のカードへ戻る。最初のカードでは何もせずfalseを返す。
func (d *Deck) Previous() bool {
	if d.index == 0 {
		return false
	}
	d.index--
	d.flipped = false
	return true
}

// Seek は指定位置へ移動する。範囲外の場合は何もせずfalseを返す。
func (d *Deck) Seek(index int) bool {
	if index < 0 || index >= len(d.cards) {
		return false
	}
	d.index = index
	d.flipped = false
	return true
}

// Reset は最初のカードの表面に戻す。並び順は変えない。
func (d *Deck) Reset() {
	d.index = 0
	d.flipped = false
}

// Shuffle はrで並び順を入れ替え、最初のカードの表面に戻す。
func (d *Deck) Shuffle(r *rand.Rand) {
	r.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
	d.index = 0
	d.flipped = false
	d.shuffled = true
}

// ShuffleSeeded はseedから決定的に並び順を入れ替える。
// 同じseedであれば再読み込み後も同じ順序になる。
func (d *Deck) ShuffleSeeded(seed uint64) {
	d.Shuffle(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// Progress は進捗率（パーセント）を返す。空のDeckでは0。
func (d *Deck) Progress() float64 {
	if len(d.cards) == 0 {
		return 0
	}
	return float64(d.index+1) / float64(len(d.cards)) * 100
}

// View は現在の状態を返す。
func (d *Deck) View() DeckView {
	v := DeckView{
		Index:    d.index,
		Total:    len(d.cards),
		Flipped:  d.flipped,
		Shuffled: d.shuffled,
		Progress: d.Progress(),
	}
	if card, ok := d.Current(); ok {
		v.Card = &card
	}
	return v
}
