package content

import (
	"testing"

	"github.com/hitoshi/learnhub/internal/model"
)

func testCards(n int) []model.Flashcard {
	cards := make([]model.Flashcard, n)
	for i := range cards {
		cards[i] = model.Flashcard{Term: string(rune('あ' + i)), Definition: "d"}
	}
	return cards
}

func TestDeck_Navigation(t *testing.T) {
	d := NewDeck(testCards(3))

	if d.Previous() {
		t.Error("Previous on first card should be a no-op")
	}
	d.Flip()
	if !d.View().Flipped {
		t.Error("Flip should turn the card over")
	}
	if !d.Next() {
		t.Fatal("Next should advance")
	}
	if d.View().Flipped {
		t.Error("moving should show the front side")
	}
	d.Next()
	if d.Next() {
		t.Error("Next on last card should be a no-op")
	}
	if got := d.View().Index; got != 2 {
		t.Errorf("index = %d, want 2", got)
	}
	if got := d.Progress(); got != 100 {
		t.Errorf("Progress = %v, want 100", got)
	}

	d.Reset()
	if v := d.View(); v.Index != 0 || v.Flipped {
		t.Errorf("after Reset: %+v", v)
	}
}

func TestDeck_Progress(t *testing.T) {
	d := NewDeck(testCards(4))
	if got := d.Progress(); got != 25 {
		t.Errorf("Progress = %v, want 25", got)
	}
	if got := NewDeck(nil).Progress(); got != 0 {
		t.Errorf("empty Progress = %v, want 0", got)
	}
}

func TestDeck_Seek(t *testing.T) {
	d := NewDeck(testCards(3))
	if !d.Seek(2) {
		t.Fatal("Seek(2) should succeed")
	}
	if d.Seek(3) || d.Seek(-1) {
		t.Error("out-of-range Seek should fail")
	}
	if d.View().Index != 2 {
		t.Errorf("index = %d, want 2", d.View().Index)
	}
}

func TestDeck_ShuffleSeeded_IsDeterministicAndDoesNotMutateSource(t *testing.T) {
	src := testCards(10)
	a := NewDeck(src)
	b := NewDeck(src)
	a.Next()
	a.ShuffleSeeded(42)
	b.ShuffleSeeded(42)

	for i := range a.Cards() {
		if a.Cards()[i] != b.Cards()[i] {
			t.Fatalf("same seed should give same order at %d", i)
		}
	}
	if a.View().Index != 0 || !a.View().Shuffled {
		t.Errorf("after shuffle: %+v", a.View())
	}
	if src[0].Term != "あ" {
		t.Error("source slice should not be reordered")
	}

	seen := make(map[string]bool)
	for _, c := range a.Cards() {
		seen[c.Term] = true
	}
	if len(seen) != 10 {
		t.Errorf("shuffle should keep all cards, got %d unique", len(seen))
	}
}

func TestDeck_EmptyView(t *testing.T) {
	v := NewDeck(nil).View()
	if v.Card != nil || v.Total != 0 {
		t.Errorf("empty view = %+v", v)
	}
}
