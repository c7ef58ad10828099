package pipeline

import (
	"strings"
	"sync"
)

// textBuffer decouples response text production from consumption. The
// generation worker appends chunks as they stream in, the synthesis
// worker drains them through Chunks. Buffers are scoped to one turn and
// discarded with it.
type textBuffer struct {
	mu             sync.Mutex
	chunks         []string
	chunksConsumed int
	complete       bool
	cleared        bool
	updateSignal   chan struct{}
}

func newTextBuffer() *textBuffer {
	return &textBuffer{
		updateSignal: make(chan struct{}, 1),
	}
}

func (b *textBuffer) AddChunk(chunk string) {
	b.mu.Lock()
	b.chunks = append(b.chunks, chunk)
	b.mu.Unlock()
	b.signalUpdate()
}

// Complete marks the end of text production. Chunks returns once the
// remaining chunks are drained.
func (b *textBuffer) Complete() {
	b.mu.Lock()
	b.complete = true
	b.mu.Unlock()
	b.signalUpdate()
}

// Chunks yields buffered chunks in production order, blocking while the
// buffer is open but empty. Only one consumer may range over it.
func (b *textBuffer) Chunks(yield func(string) bool) {
	for {
		b.mu.Lock()
		if b.cleared {
			b.mu.Unlock()
			return
		}

		if b.chunksConsumed < len(b.chunks) {
			chunk := b.chunks[b.chunksConsumed]
			b.chunksConsumed++
			b.mu.Unlock()
			if !yield(chunk) {
				return
			}
			continue
		}

		if b.complete {
			b.mu.Unlock()
			return
		}

		b.mu.Unlock()
		<-b.updateSignal
	}
}

// String returns everything added so far, consumed or not.
func (b *textBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return strings.Join(b.chunks, "")
}

// Clear permanently shuts the buffer; blocked and future Chunks calls
// return immediately.
func (b *textBuffer) Clear() {
	b.mu.Lock()
	b.cleared = true
	b.mu.Unlock()
	b.signalUpdate()
}

func (b *textBuffer) signalUpdate() {
	select {
	case b.updateSignal <- struct{}{}:
	default:
	}
}
