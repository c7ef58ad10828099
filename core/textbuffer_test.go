package pipeline

import (
	"testing"
	"time"
)

func TestTextBufferYieldsChunksInProductionOrder(t *testing.T) {
	buffer := newTextBuffer()
	buffer.AddChunk("Hello")
	buffer.AddChunk(" there")
	buffer.Complete()

	var chunks []string
	for chunk := range buffer.Chunks {
		chunks = append(chunks, chunk)
	}

	if len(chunks) != 2 || chunks[0] != "Hello" || chunks[1] != " there" {
		t.Fatalf("expected chunks in production order, got %v", chunks)
	}
}

func TestTextBufferBlocksUntilChunkArrives(t *testing.T) {
	buffer := newTextBuffer()

	received := make(chan string, 1)
	go func() {
		for chunk := range buffer.Chunks {
			select {
			case received <- chunk:
			default:
			}
		}
	}()

	select {
	case chunk := <-received:
		t.Fatalf("expected consumer to block on an empty buffer, got %q", chunk)
	case <-time.After(100 * time.Millisecond):
	}

	buffer.AddChunk("late")

	select {
	case chunk := <-received:
		if chunk != "late" {
			t.Fatalf("expected chunk %q, got %q", "late", chunk)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the late chunk")
	}
}

func TestTextBufferClearUnblocksConsumer(t *testing.T) {
	buffer := newTextBuffer()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range buffer.Chunks {
		}
	}()

	buffer.Clear()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for cleared buffer to release its consumer")
	}
}

func TestTextBufferStringKeepsTextAfterClear(t *testing.T) {
	buffer := newTextBuffer()
	buffer.AddChunk("kept ")
	buffer.AddChunk("text")
	buffer.Clear()

	if got := buffer.String(); got != "kept text" {
		t.Fatalf("expected cleared buffer to keep its text, got %q", got)
	}
}

func TestTextBufferCompleteEndsIterationAfterDraining(t *testing.T) {
	buffer := newTextBuffer()
	buffer.AddChunk("only")

	done := make(chan struct{})
	var chunks []string
	go func() {
		defer close(done)
		for chunk := range buffer.Chunks {
			chunks = append(chunks, chunk)
		}
	}()

	waitForCondition(t, 2*time.Second, "buffered chunk to be consumed", func() bool {
		buffer.mu.Lock()
		defer buffer.mu.Unlock()
		return buffer.chunksConsumed == 1
	})
	buffer.Complete()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for completed buffer to end iteration")
	}
	if len(chunks) != 1 || chunks[0] != "only" {
		t.Fatalf("expected the drained chunk, got %v", chunks)
	}
}
