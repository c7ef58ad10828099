package pipeline

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

var (
	transcriptToFirstTokenHistogram metric.Float64Histogram
	firstTokenToFirstAudioHistogram metric.Float64Histogram
	transcriptToFirstAudioHistogram metric.Float64Histogram
	turnDurationHistogram           metric.Float64Histogram
)

func init() {
	transcriptToFirstTokenHistogram, _ = meter.Float64Histogram(
		"voicepipe.turn.transcript_to_first_token",
		metric.WithDescription("Time from the final transcript to the first generated token"),
		metric.WithUnit("s"),
	)
	firstTokenToFirstAudioHistogram, _ = meter.Float64Histogram(
		"voicepipe.turn.first_token_to_first_audio",
		metric.WithDescription("Time from the first generated token to the first synthesized audio"),
		metric.WithUnit("s"),
	)
	transcriptToFirstAudioHistogram, _ = meter.Float64Histogram(
		"voicepipe.turn.time_to_first_audio",
		metric.WithDescription("Time from the final transcript to the first synthesized audio"),
		metric.WithUnit("s"),
	)
	turnDurationHistogram, _ = meter.Float64Histogram(
		"voicepipe.turn.duration",
		metric.WithDescription("Time from trigger to the end of turn processing"),
		metric.WithUnit("s"),
	)
}

// TurnMetrics carries per-turn latency milestones. Zero timestamps mean
// the milestone was never reached; derived latencies report zero when
// either endpoint is missing.
type TurnMetrics struct {
	// TriggeredAt is when the turn's trigger was accepted.
	TriggeredAt time.Time
	// TranscriptAt is when the final transcript became available. For
	// typed prompts it matches TriggeredAt.
	TranscriptAt time.Time
	// FirstTokenAt is when the first response text arrived.
	FirstTokenAt time.Time
	// GenerationEndedAt is when the response text stream completed.
	GenerationEndedAt time.Time
	// FirstAudioAt is when the first synthesized audio chunk arrived.
	FirstAudioAt time.Time
	// PlaybackStartedAt is when audio first reached the output device.
	PlaybackStartedAt time.Time
	// PlaybackEndedAt is when playback of the response finished.
	PlaybackEndedAt time.Time
	// SkippedChunks counts speech chunks dropped after decode failures.
	SkippedChunks int
}

// TranscriptToFirstToken is the latency between the final transcript and
// the first generated token.
func (m TurnMetrics) TranscriptToFirstToken() time.Duration {
	return span(m.TranscriptAt, m.FirstTokenAt)
}

// FirstTokenToFirstAudio is the latency between the first generated token
// and the first synthesized audio chunk.
func (m TurnMetrics) FirstTokenToFirstAudio() time.Duration {
	return span(m.FirstTokenAt, m.FirstAudioAt)
}

// TranscriptToFirstAudio is the headline voice-to-voice latency: final
// transcript to first synthesized audio.
func (m TurnMetrics) TranscriptToFirstAudio() time.Duration {
	return span(m.TranscriptAt, m.FirstAudioAt)
}

// Duration is the full trigger-to-finish span of the turn.
func (m TurnMetrics) Duration() time.Duration {
	return span(m.TriggeredAt, m.PlaybackEndedAt)
}

func span(from, to time.Time) time.Duration {
	if from.IsZero() || to.IsZero() {
		return 0
	}
	return to.Sub(from)
}

// metricsRecorder collects turn milestones from the pipeline's workers.
// Each milestone is stamped at most once; later stamps are ignored.
type metricsRecorder struct {
	mu      sync.Mutex
	metrics TurnMetrics
}

func newMetricsRecorder() *metricsRecorder {
	return &metricsRecorder{metrics: TurnMetrics{TriggeredAt: time.Now()}}
}

// seed aligns the trigger milestones with when the trigger was actually
// raised rather than when the turn left the queue. For transcribed
// triggers that is the moment the final transcript arrived.
func (r *metricsRecorder) seed(triggeredAt time.Time) {
	if triggeredAt.IsZero() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics.TriggeredAt = triggeredAt
	r.metrics.TranscriptAt = triggeredAt
}

func (r *metricsRecorder) stampFirstToken() {
	r.stampField(func(m *TurnMetrics) *time.Time { return &m.FirstTokenAt })
}

func (r *metricsRecorder) stampGenerationEnded() {
	r.stampField(func(m *TurnMetrics) *time.Time { return &m.GenerationEndedAt })
}

func (r *metricsRecorder) stampFirstAudio() {
	r.stampField(func(m *TurnMetrics) *time.Time { return &m.FirstAudioAt })
}

func (r *metricsRecorder) stampPlaybackStarted() {
	r.stampField(func(m *TurnMetrics) *time.Time { return &m.PlaybackStartedAt })
}

func (r *metricsRecorder) stampPlaybackEnded() {
	r.stampField(func(m *TurnMetrics) *time.Time { return &m.PlaybackEndedAt })
}

func (r *metricsRecorder) stampField(pick func(*TurnMetrics) *time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	milestone := pick(&r.metrics)
	if milestone.IsZero() {
		*milestone = time.Now()
	}
}

func (r *metricsRecorder) addSkippedChunk() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics.SkippedChunks++
}

func (r *metricsRecorder) snapshot() TurnMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics
}

// record publishes the turn's latency histograms. Milestones that were
// never reached are left out rather than recorded as zero.
func (r *metricsRecorder) record(ctx context.Context) {
	metrics := r.snapshot()
	if latency := metrics.TranscriptToFirstToken(); latency > 0 {
		transcriptToFirstTokenHistogram.Record(ctx, latency.Seconds())
	}
	if latency := metrics.FirstTokenToFirstAudio(); latency > 0 {
		firstTokenToFirstAudioHistogram.Record(ctx, latency.Seconds())
	}
	if latency := metrics.TranscriptToFirstAudio(); latency > 0 {
		transcriptToFirstAudioHistogram.Record(ctx, latency.Seconds())
	}
	if metrics.PlaybackEndedAt.IsZero() {
		return
	}
	turnDurationHistogram.Record(ctx, metrics.Duration().Seconds())
}
