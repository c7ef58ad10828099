package pipeline

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/voicepipe/core/audio"
)

// playerOutputStub records everything sent to it and exposes no mark
// capability.
type playerOutputStub struct {
	mu     sync.Mutex
	sent   [][]byte
	clears int
}

func (s *playerOutputStub) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func (s *playerOutputStub) SendAudio(audio []byte) error {
	s.mu.Lock()
	s.sent = append(s.sent, audio)
	s.mu.Unlock()
	return nil
}

func (s *playerOutputStub) ClearBuffer() {
	s.mu.Lock()
	s.clears++
	s.mu.Unlock()
}

func (s *playerOutputStub) sentAudio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	sent := make([][]byte, len(s.sent))
	copy(sent, s.sent)
	return sent
}

func (s *playerOutputStub) clearCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}

// markingOutputStub confirms every mark synchronously through its
// callback, the way mark-capable device clients do.
type markingOutputStub struct {
	playerOutputStub
	markErr error
	marks   []string
}

func (s *markingOutputStub) Mark(mark string, callback func(string)) error {
	s.mu.Lock()
	if s.markErr != nil {
		s.mu.Unlock()
		return s.markErr
	}
	s.marks = append(s.marks, mark)
	s.mu.Unlock()

	callback(mark)
	return nil
}

func (s *markingOutputStub) markedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	marks := make([]string, len(s.marks))
	copy(marks, s.marks)
	return marks
}

// awaitingOutputStub only supports blocking until buffered audio drained.
type awaitingOutputStub struct {
	playerOutputStub
	awaits int
}

func (s *awaitingOutputStub) AwaitMark() error {
	s.mu.Lock()
	s.awaits++
	s.mu.Unlock()
	return nil
}

func (s *awaitingOutputStub) awaitCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awaits
}

func TestMarkRoutesThroughMarkerClient(t *testing.T) {
	client := &markingOutputStub{}
	output := newAudioOutput(client)

	confirmed := make(chan string, 1)
	output.Mark("mark-1", func(mark string) {
		select {
		case confirmed <- mark:
		default:
		}
	})

	select {
	case mark := <-confirmed:
		if mark != "mark-1" {
			t.Fatalf("expected confirmation for %q, got %q", "mark-1", mark)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for mark confirmation")
	}

	if marks := client.markedIDs(); len(marks) != 1 || marks[0] != "mark-1" {
		t.Fatalf("expected client to receive the mark, got %v", marks)
	}
}

func TestMarkFallsBackToDirectConfirmationOnMarkerError(t *testing.T) {
	client := &markingOutputStub{markErr: fmt.Errorf("device gone")}
	output := newAudioOutput(client)

	confirmed := make(chan string, 1)
	output.Mark("mark-1", func(mark string) {
		select {
		case confirmed <- mark:
		default:
		}
	})

	select {
	case mark := <-confirmed:
		if mark != "mark-1" {
			t.Fatalf("expected confirmation for %q, got %q", "mark-1", mark)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for fallback confirmation")
	}
}

func TestMarkBridgesAwaiterClientToCallback(t *testing.T) {
	client := &awaitingOutputStub{}
	output := newAudioOutput(client)

	confirmed := make(chan string, 1)
	output.Mark("mark-1", func(mark string) {
		select {
		case confirmed <- mark:
		default:
		}
	})

	select {
	case mark := <-confirmed:
		if mark != "mark-1" {
			t.Fatalf("expected confirmation for %q, got %q", "mark-1", mark)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for awaited confirmation")
	}

	if client.awaitCalls() != 1 {
		t.Fatalf("expected one drain wait, got %d", client.awaitCalls())
	}
}

func TestMarkConfirmsImmediatelyWithoutClient(t *testing.T) {
	output := newAudioOutput(nil)

	confirmed := false
	output.Mark("mark-1", func(string) { confirmed = true })

	if !confirmed {
		t.Fatalf("expected immediate confirmation without a client")
	}
}

func TestSendAudioWithoutClientIsDropped(t *testing.T) {
	output := newAudioOutput(nil)

	if err := output.SendAudio([]byte{1, 2, 3}); err != nil {
		t.Fatalf("expected dropped audio to be silent, got %v", err)
	}
}

func TestSetTreatsTypedNilClientAsUnconfigured(t *testing.T) {
	var client *playerOutputStub
	output := newAudioOutput(client)

	if output.isConfigured() {
		t.Fatalf("expected typed-nil client to leave output unconfigured")
	}
}

func TestSnapshotSharesClientButFreezesRouting(t *testing.T) {
	client := &playerOutputStub{}
	output := newAudioOutput(client)
	snapshot := output.Snapshot()

	output.Set(nil)

	if err := snapshot.SendAudio([]byte("still here")); err != nil {
		t.Fatalf("expected snapshot to keep its client, got %v", err)
	}
	if sent := client.sentAudio(); len(sent) != 1 || string(sent[0]) != "still here" {
		t.Fatalf("expected snapshot audio to reach the client, got %v", sent)
	}
}
