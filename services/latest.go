package services

import (
	"sync/atomic"

	"news-faces/models"
)

// LatestCards hält die Cards des letzten erfolgreichen Laufs. Ein Lauf ersetzt
// die Liste vollständig; Leser sehen nie einen Zwischenstand.
type LatestCards struct {
	cards atomic.Pointer[[]models.NewsCard]
}

func NewLatestCards() *LatestCards {
	l := &LatestCards{}
	empty := []models.NewsCard{}
	l.cards.Store(&empty)
	return l
}

// Replace tauscht die Liste atomar aus.
func (l *LatestCards) Replace(cards []models.NewsCard) {
	cp := make([]models.NewsCard, len(cards))
	copy(cp, cards)
	l.cards.Store(&cp)
}

// Snapshot gibt die aktuelle Liste zurück. Sie darf nicht verändert werden.
func (l *LatestCards) Snapshot() []models.NewsCard {
	return *l.cards.Load()
}

func (l *LatestCards) Len() int {
	return len(*l.cards.Load())
}
