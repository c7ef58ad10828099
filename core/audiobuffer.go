package pipeline

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/voicepipe/core/audio"
)

// audioBuffer reorders the playback side of a turn: synthesized audio and
// sentence marks go in as they arrive, and come back out through Audio in
// strict arrival order, gated by a pre-buffer threshold so playback does
// not start on a starved buffer.
//
// Two playheads track progress: internalPlayhead counts chunks handed to
// the output, externalPlayhead counts chunks the output confirmed played
// (via marks). The gap between them is audio sitting in device buffers.
type audioBuffer struct {
	mu sync.Mutex

	encodingInfo   audio.EncodingInfo
	prebufferBytes int

	audio          [][]byte
	allAudioLoaded bool

	internalPlayhead int
	externalPlayhead int

	// lastMarkTimestamp anchors the playback clock: the moment the chunk
	// at externalPlayhead started playing, as far as we can tell.
	lastMarkTimestamp time.Time

	marks []audioBufferMark

	stopped bool
	paused  bool

	updateSignal chan struct{}
}

type audioBufferMark struct {
	ID          string
	transcript  string
	position    int
	terminal    bool
	broadcasted bool
	confirmed   bool
}

func newAudioBuffer(encodingInfo audio.EncodingInfo, prebufferBytes int) *audioBuffer {
	return &audioBuffer{
		encodingInfo:   encodingInfo,
		prebufferBytes: prebufferBytes,
		updateSignal:   make(chan struct{}, 1),
	}
}

func (b *audioBuffer) AddAudio(audio []byte) {
	b.mu.Lock()
	b.audio = append(b.audio, audio)
	b.mu.Unlock()
	b.signalUpdate()
}

// Audio yields audio chunks and marks in order, blocking while the buffer
// is open but drained. It returns once the buffer is stopped or all
// loaded audio was confirmed played. Only one consumer may range over it.
func (b *audioBuffer) Audio(yield func(playbackItem) bool) {
	if !b.waitForPrebuffer() {
		return
	}

	firstStart := sync.Once{}
	for {
		for {
			if ok := b.waitIfPaused(); !ok {
				return
			}

			audio, ok := b.consumeNextChunk()
			if !ok {
				break
			}

			firstStart.Do(b.StartedPlaying)

			if !yield(playbackItem{audio: audio}) {
				return
			}
			if ok := b.broadcastMarks(yield); !ok {
				return
			}
		}
		if ok := b.waitForNextAudio(yield); !ok {
			return
		}
	}
}

// waitForPrebuffer blocks until enough audio accumulated to start
// playback without underrunning, or until there is no point waiting.
func (b *audioBuffer) waitForPrebuffer() (ok bool) {
	for {
		b.mu.Lock()
		stopped := b.stopped
		buffered := audioLen(b.audio) >= b.prebufferBytes || b.allAudioLoaded
		b.mu.Unlock()

		if stopped {
			return false
		}
		if buffered {
			return true
		}

		<-b.updateSignal
	}
}

func (b *audioBuffer) waitIfPaused() (ok bool) {
	for {
		b.mu.Lock()
		paused := b.paused
		stopped := b.stopped
		b.mu.Unlock()

		if stopped {
			return false
		}
		if !paused {
			return true
		}

		<-b.updateSignal
	}
}

func (b *audioBuffer) consumeNextChunk() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.audio) <= b.internalPlayhead {
		return nil, false
	}

	audio := b.audio[b.internalPlayhead]
	b.internalPlayhead++
	return audio, true
}

func (b *audioBuffer) broadcastMarks(yield func(playbackItem) bool) (ok bool) {
	b.mu.Lock()
	marksToBroadcast := []string{}
	for i, mark := range b.marks {
		if mark.confirmed || mark.broadcasted {
			continue
		} else if mark.position > b.internalPlayhead {
			break
		}

		b.marks[i].broadcasted = true
		marksToBroadcast = append(marksToBroadcast, mark.ID)
	}
	b.mu.Unlock()

	for _, markID := range marksToBroadcast {
		if !yield(playbackItem{mark: markID}) {
			return false
		}
	}

	return true
}

func (b *audioBuffer) waitForNextAudio(yield func(playbackItem) bool) (ok bool) {
	for {
		b.mu.Lock()
		noAudioAvailable := len(b.audio) == b.internalPlayhead
		stopped := b.stopped
		audioDone := b.audioDoneLocked()
		b.mu.Unlock()

		if !noAudioAvailable {
			return !(stopped || audioDone)
		}

		if stopped || audioDone {
			return false
		}

		<-b.updateSignal
		// A mark can land after its audio was already consumed; without
		// re-broadcasting here the loop would wait on a confirmation that
		// can never come.
		if ok := b.broadcastMarks(yield); !ok {
			return false
		}
	}
}

func (b *audioBuffer) audioDone() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.audioDoneLocked()
}

// audioDoneLocked is a version of [audioBuffer.audioDone] that is safe to
// call from a locked context.
func (b *audioBuffer) audioDoneLocked() bool {
	return b.allAudioLoaded && b.externalPlayhead >= len(b.audio)
}

// Mark records a sentence boundary at the current end of loaded audio,
// carrying the transcript spoken since the previous mark.
func (b *audioBuffer) Mark(transcript string) {
	b.mu.Lock()
	b.marks = append(b.marks, audioBufferMark{
		ID:         uuid.NewString(),
		transcript: transcript,
		position:   len(b.audio),
	})
	b.mu.Unlock()
	b.signalUpdate()
}

// ConfirmMark records that the output played everything up to the mark
// and returns the mark's transcript. Confirmations arriving out of order
// or for unknown marks are ignored.
func (b *audioBuffer) ConfirmMark(id string) (transcript string, ok bool) {
	b.mu.Lock()
	shouldSignal := false
	for i, mark := range b.marks {
		if mark.confirmed {
			continue
		} else if !mark.broadcasted {
			break
		}
		if mark.ID == id {
			b.marks[i].confirmed = true
			b.externalPlayhead = mark.position
			b.startedPlayingLocked()
			transcript = mark.transcript
			ok = true
			if b.audioDoneLocked() {
				shouldSignal = true
			}
			break
		}
	}
	b.mu.Unlock()

	if shouldSignal {
		b.signalUpdate()
	}
	return transcript, ok
}

// SpokenTranscript returns the transcript confirmed as played so far.
func (b *audioBuffer) SpokenTranscript() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.spokenTranscriptLocked(false, time.Time{})
}

// ApproximateSpokenTranscript extends SpokenTranscript with an estimated
// prefix of the segment playing at now, cut at a word boundary. The
// estimate assumes playback ran uninterrupted since the last confirmed
// mark.
func (b *audioBuffer) ApproximateSpokenTranscript(now time.Time) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.spokenTranscriptLocked(true, now)
}

func (b *audioBuffer) spokenTranscriptLocked(approximate bool, now time.Time) string {
	spoken := []string{}
	for _, mark := range b.marks {
		if mark.confirmed {
			if mark.transcript != "" {
				spoken = append(spoken, mark.transcript)
			}
			continue
		}

		if approximate && mark.transcript != "" {
			if prefix := approximateSpokenPrefix(mark.transcript, b.segmentProgressLocked(mark, now)); prefix != "" {
				spoken = append(spoken, prefix)
			}
		}
		break
	}
	return strings.Join(spoken, " ")
}

// segmentProgressLocked estimates how far playback has gotten into the
// segment ending at mark, as a fraction of its audio.
func (b *audioBuffer) segmentProgressLocked(mark audioBufferMark, now time.Time) float64 {
	if b.paused || b.lastMarkTimestamp.IsZero() || b.internalPlayhead == 0 {
		return 0
	}

	segmentEnd := min(mark.position, len(b.audio))
	segmentBytes := audioLen(b.audio[b.externalPlayhead:segmentEnd])
	if segmentBytes == 0 {
		return 0
	}

	playedBytes := audioBytesFor(now.Sub(b.lastMarkTimestamp), b.encodingInfo)
	playedBytes = min(playedBytes, audioLen(b.audio[b.externalPlayhead:b.internalPlayhead]))

	return min(float64(playedBytes)/float64(segmentBytes), 1)
}

// approximateSpokenPrefix cuts transcript proportionally to progress,
// backing up to the last word boundary so no half-spoken word is
// reported.
func approximateSpokenPrefix(transcript string, progress float64) string {
	if progress <= 0 {
		return ""
	}
	if progress >= 1 {
		return transcript
	}

	cut := int(progress * float64(len(transcript)))
	if cut >= len(transcript) {
		return transcript
	}
	if boundary := strings.LastIndex(transcript[:cut], " "); boundary >= 0 {
		return transcript[:boundary]
	}
	return ""
}

func (b *audioBuffer) StartedPlaying() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startedPlayingLocked()
}

// startedPlayingLocked is a version of [audioBuffer.StartedPlaying] that
// is safe to call from a locked context.
func (b *audioBuffer) startedPlayingLocked() {
	b.lastMarkTimestamp = time.Now()
}

// AllAudioLoaded marks the end of synthesis and drops a terminal mark
// after the last chunk, so confirmation of everything played arrives
// through the same mark path as sentence boundaries.
func (b *audioBuffer) AllAudioLoaded() {
	b.mu.Lock()
	if b.allAudioLoaded {
		b.mu.Unlock()
		return
	}
	b.allAudioLoaded = true
	b.marks = append(b.marks, audioBufferMark{
		ID:       uuid.NewString(),
		position: len(b.audio),
		terminal: true,
	})
	b.mu.Unlock()
	b.signalUpdate()
}

func (b *audioBuffer) Pause() {
	b.mu.Lock()
	if b.audioDoneLocked() || b.paused {
		b.mu.Unlock()
		return
	}

	b.paused = true
	b.rewindLocked()
	b.mu.Unlock()
	b.signalUpdate()
}

// rewindLocked walks the playheads back to the chunk estimated to be
// playing right now, so Resume can re-send what the device buffer held
// when it was cleared. Marks past the new playhead are re-armed for
// re-broadcast.
func (b *audioBuffer) rewindLocked() {
	// TODO: Account for output sink latency between a chunk leaving the
	// buffer and the device actually playing it.
	playedBytes := audioBytesFor(time.Since(b.lastMarkTimestamp), b.encodingInfo)
	chunksPlayed := 0
	for _, chunk := range b.audio[b.externalPlayhead:] {
		playedBytes -= len(chunk)
		if playedBytes < 0 {
			break
		}
		chunksPlayed++
	}
	b.externalPlayhead += chunksPlayed
	b.internalPlayhead = b.externalPlayhead
	for i, mark := range b.marks {
		if mark.position > b.internalPlayhead {
			b.marks[i].broadcasted = false
		}
	}
}

func (b *audioBuffer) Resume() {
	b.mu.Lock()
	if b.audioDoneLocked() || !b.paused {
		b.mu.Unlock()
		return
	}

	b.paused = false
	b.startedPlayingLocked()
	b.mu.Unlock()
	b.signalUpdate()
}

func (b *audioBuffer) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.mu.Unlock()
	b.signalUpdate()
}

func (b *audioBuffer) signalUpdate() {
	select {
	case b.updateSignal <- struct{}{}:
	default:
	}
}

// playbackItem is one element of the Audio iterator: an audio chunk, or a
// mark id when audio is empty.
type playbackItem struct {
	audio []byte
	mark  string
}

func (i playbackItem) isMark() bool {
	return i.mark != ""
}

func audioLen(audio [][]byte) int {
	chunksTotalLength := 0
	for _, audioChunk := range audio {
		chunksTotalLength += len(audioChunk)
	}
	return chunksTotalLength
}

// audioDuration converts buffered bytes to playback time. It reports 0
// for compressed encodings, whose byte rate is not fixed.
func audioDuration(audio [][]byte, encodingInfo audio.EncodingInfo) time.Duration {
	bytesPerSecond := encodingInfo.BytesPerSecond()
	if bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(float64(audioLen(audio)) / float64(bytesPerSecond) * float64(time.Second))
}

// audioBytesFor converts a wall-clock duration to the number of audio
// bytes the output plays in it.
func audioBytesFor(duration time.Duration, encodingInfo audio.EncodingInfo) int {
	return int(float64(duration) / float64(time.Second) * float64(encodingInfo.BytesPerSecond()))
}
