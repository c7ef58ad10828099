package pipeline

import (
	"bytes"
	"testing"
	"time"

	"github.com/koscakluka/voicepipe/core/audio"
)

func TestAudioBufferDeliversAudioAndMarksInOrder(t *testing.T) {
	buffer := newAudioBuffer(audio.GetDefaultEncodingInfo(), 0)
	buffer.AddAudio([]byte("chunk-1"))
	buffer.Mark("first words")
	buffer.AddAudio([]byte("chunk-2"))
	buffer.Mark("second words")
	buffer.AllAudioLoaded()

	var played []string
	var transcripts []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		for item := range buffer.Audio {
			if item.isMark() {
				transcript, ok := buffer.ConfirmMark(item.mark)
				if ok {
					transcripts = append(transcripts, transcript)
				}
				continue
			}
			played = append(played, string(item.audio))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the buffer to drain")
	}

	if len(played) != 2 || played[0] != "chunk-1" || played[1] != "chunk-2" {
		t.Fatalf("expected chunks in arrival order, got %v", played)
	}
	// The terminal mark carries no transcript.
	if len(transcripts) != 3 || transcripts[0] != "first words" || transcripts[1] != "second words" || transcripts[2] != "" {
		t.Fatalf("expected mark transcripts in order, got %v", transcripts)
	}
	if got := buffer.SpokenTranscript(); got != "first words second words" {
		t.Fatalf("expected the full spoken transcript, got %q", got)
	}
}

func TestAudioBufferWaitsForPrebuffer(t *testing.T) {
	buffer := newAudioBuffer(audio.GetDefaultEncodingInfo(), 8)
	buffer.AddAudio([]byte{1, 2, 3, 4})

	received := make(chan []byte, 1)
	go func() {
		for item := range buffer.Audio {
			if !item.isMark() {
				select {
				case received <- item.audio:
				default:
				}
			}
		}
	}()

	select {
	case <-received:
		t.Fatalf("expected playback to wait for the prebuffer to fill")
	case <-time.After(100 * time.Millisecond):
	}

	buffer.AddAudio([]byte{5, 6, 7, 8})

	select {
	case chunk := <-received:
		if !bytes.Equal(chunk, []byte{1, 2, 3, 4}) {
			t.Fatalf("expected the first buffered chunk, got %v", chunk)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for playback to start")
	}

	buffer.Stop()
}

func TestAudioBufferStartsShortOfPrebufferOnceAllAudioLoaded(t *testing.T) {
	buffer := newAudioBuffer(audio.GetDefaultEncodingInfo(), 1024)
	buffer.AddAudio([]byte("short"))
	buffer.AllAudioLoaded()

	received := make(chan []byte, 1)
	go func() {
		for item := range buffer.Audio {
			if item.isMark() {
				buffer.ConfirmMark(item.mark)
				continue
			}
			select {
			case received <- item.audio:
			default:
			}
		}
	}()

	select {
	case chunk := <-received:
		if string(chunk) != "short" {
			t.Fatalf("expected the short chunk, got %q", chunk)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the starved buffer to start")
	}
}

func TestAudioBufferStopUnblocksConsumer(t *testing.T) {
	buffer := newAudioBuffer(audio.GetDefaultEncodingInfo(), 0)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range buffer.Audio {
		}
	}()

	buffer.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the stopped buffer to release its consumer")
	}
}

func TestConfirmMarkIgnoresUnknownAndRepeatedConfirmations(t *testing.T) {
	buffer := newAudioBuffer(audio.GetDefaultEncodingInfo(), 0)
	buffer.AddAudio([]byte("chunk"))
	buffer.Mark("spoken words")

	var markIDs []string
	if _, ok := buffer.consumeNextChunk(); !ok {
		t.Fatalf("expected a chunk to consume")
	}
	buffer.broadcastMarks(func(item playbackItem) bool {
		markIDs = append(markIDs, item.mark)
		return true
	})
	if len(markIDs) != 1 {
		t.Fatalf("expected one broadcast mark, got %d", len(markIDs))
	}

	if _, ok := buffer.ConfirmMark("not-a-mark"); ok {
		t.Fatalf("expected an unknown mark to be ignored")
	}

	transcript, ok := buffer.ConfirmMark(markIDs[0])
	if !ok || transcript != "spoken words" {
		t.Fatalf("expected the mark's transcript, got %q (ok=%t)", transcript, ok)
	}

	if _, ok := buffer.ConfirmMark(markIDs[0]); ok {
		t.Fatalf("expected a repeated confirmation to be ignored")
	}
}

func TestSpokenTranscriptStopsAtFirstUnconfirmedMark(t *testing.T) {
	buffer := newAudioBuffer(audio.GetDefaultEncodingInfo(), 0)
	buffer.AddAudio([]byte("chunk-1"))
	buffer.Mark("first")
	buffer.AddAudio([]byte("chunk-2"))
	buffer.Mark("second")

	var markIDs []string
	buffer.consumeNextChunk()
	buffer.consumeNextChunk()
	buffer.broadcastMarks(func(item playbackItem) bool {
		markIDs = append(markIDs, item.mark)
		return true
	})
	if len(markIDs) != 2 {
		t.Fatalf("expected two broadcast marks, got %d", len(markIDs))
	}

	if _, ok := buffer.ConfirmMark(markIDs[1]); !ok {
		t.Fatalf("expected the second mark to confirm")
	}
	if got := buffer.SpokenTranscript(); got != "" {
		t.Fatalf("expected no transcript while the first mark is unconfirmed, got %q", got)
	}

	if _, ok := buffer.ConfirmMark(markIDs[0]); !ok {
		t.Fatalf("expected the first mark to confirm")
	}
	if got := buffer.SpokenTranscript(); got != "first second" {
		t.Fatalf("expected both transcripts, got %q", got)
	}
}

func TestApproximateSpokenTranscriptCutsAtWordBoundary(t *testing.T) {
	encoding := audio.GetDefaultEncodingInfo()
	oneSecond := bytes.Repeat([]byte{0x11}, encoding.BytesPerSecond())

	buffer := newAudioBuffer(encoding, 0)
	buffer.AddAudio(oneSecond)
	buffer.Mark("alpha beta gamma")

	buffer.consumeNextChunk()
	buffer.StartedPlaying()

	halfway := buffer.lastMarkTimestamp.Add(500 * time.Millisecond)
	if got := buffer.ApproximateSpokenTranscript(halfway); got != "alpha" {
		t.Fatalf("expected the halfway estimate to stop at a word boundary, got %q", got)
	}

	past := buffer.lastMarkTimestamp.Add(2 * time.Second)
	if got := buffer.ApproximateSpokenTranscript(past); got != "alpha beta gamma" {
		t.Fatalf("expected the full segment once its audio elapsed, got %q", got)
	}

	buffer.Pause()
	if got := buffer.ApproximateSpokenTranscript(past); got != "" {
		t.Fatalf("expected no estimate while paused, got %q", got)
	}
}

func TestApproximateSpokenPrefix(t *testing.T) {
	testCases := []struct {
		transcript string
		progress   float64
		expected   string
	}{
		{transcript: "alpha beta gamma", progress: 0, expected: ""},
		{transcript: "alpha beta gamma", progress: 0.5, expected: "alpha"},
		{transcript: "alpha beta gamma", progress: 0.75, expected: "alpha beta"},
		{transcript: "alpha beta gamma", progress: 1, expected: "alpha beta gamma"},
		{transcript: "alphabet", progress: 0.5, expected: ""},
	}

	for _, testCase := range testCases {
		if got := approximateSpokenPrefix(testCase.transcript, testCase.progress); got != testCase.expected {
			t.Fatalf("approximateSpokenPrefix(%q, %v): expected %q, got %q",
				testCase.transcript, testCase.progress, testCase.expected, got)
		}
	}
}

func TestPauseRewindsToLastConfirmedPositionAndRearmsMarks(t *testing.T) {
	encoding := audio.GetDefaultEncodingInfo()
	oneSecond := bytes.Repeat([]byte{0x11}, encoding.BytesPerSecond())
	anotherSecond := bytes.Repeat([]byte{0x22}, encoding.BytesPerSecond())

	buffer := newAudioBuffer(encoding, 0)
	buffer.AddAudio(oneSecond)
	buffer.Mark("first second")
	buffer.AddAudio(anotherSecond)

	buffer.consumeNextChunk()
	buffer.consumeNextChunk()

	var markIDs []string
	buffer.broadcastMarks(func(item playbackItem) bool {
		markIDs = append(markIDs, item.mark)
		return true
	})
	if len(markIDs) != 1 {
		t.Fatalf("expected one broadcast mark, got %d", len(markIDs))
	}

	// Nothing confirmed and no time audibly played, so the rewind walks
	// all the way back to the start.
	buffer.StartedPlaying()
	buffer.Pause()

	if buffer.internalPlayhead != 0 || buffer.externalPlayhead != 0 {
		t.Fatalf("expected the playheads rewound to 0, got internal=%d external=%d",
			buffer.internalPlayhead, buffer.externalPlayhead)
	}

	buffer.Resume()

	chunk, ok := buffer.consumeNextChunk()
	if !ok || chunk[0] != 0x11 {
		t.Fatalf("expected the first chunk to be re-sent after resume")
	}

	var rebroadcast []string
	buffer.broadcastMarks(func(item playbackItem) bool {
		rebroadcast = append(rebroadcast, item.mark)
		return true
	})
	if len(rebroadcast) != 1 || rebroadcast[0] != markIDs[0] {
		t.Fatalf("expected the rewound mark to be re-broadcast, got %v", rebroadcast)
	}
}
