package chat

import "sync"

// Binder tracks the citations of the most recent assistant answer and which
// one the user has clicked. Clicking records the raw source number without
// validating it against the current list; the panel simply shows no highlight
// for a number it does not know.
type Binder struct {
	mu        sync.RWMutex
	current   []Citation
	activeNum int
	hasActive bool
}

// NewBinder returns an empty citation binder.
func NewBinder() *Binder {
	return &Binder{}
}

// SetCurrent replaces the citation list for the latest answer and clears any
// active selection.
func (b *Binder) SetCurrent(citations []Citation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = append([]Citation(nil), citations...)
	b.activeNum = 0
	b.hasActive = false
}

// Click records the source number the user tapped in the rendered answer.
func (b *Binder) Click(sourceNumber int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.activeNum = sourceNumber
	b.hasActive = true
}

// Active reports the clicked source number, if any.
func (b *Binder) Active() (int, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.activeNum, b.hasActive
}

// Current returns a copy of the citation list for the latest answer.
func (b *Binder) Current() []Citation {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Citation, len(b.current))
	copy(out, b.current)
	return out
}

// Reset drops the citation list and the active selection.
func (b *Binder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = nil
	b.activeNum = 0
	b.hasActive = false
}
