// Command voicepipe is a push-to-talk voice assistant demo. It wires
// live transcription, response generation, speech synthesis, and local
// audio devices into a pipeline coordinator and drives it from a small
// terminal UI: Enter toggles capture, Esc cancels the turn in flight,
// Ctrl+C quits.
//
// Providers are picked from the environment. Set VOICEPIPE_LLM,
// VOICEPIPE_STT, VOICEPIPE_TTS, or VOICEPIPE_AUDIO to force a backend;
// otherwise the first provider whose API key is present wins.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	pipeline "github.com/koscakluka/voicepipe/core"
	"github.com/koscakluka/voicepipe/core/audio"
	"github.com/koscakluka/voicepipe/core/audio/miniaudio"
	"github.com/koscakluka/voicepipe/core/audio/opusdec"
	"github.com/koscakluka/voicepipe/core/audio/portaudio"
	"github.com/koscakluka/voicepipe/core/llms/anthropic"
	"github.com/koscakluka/voicepipe/core/llms/groq"
	"github.com/koscakluka/voicepipe/core/llms/openai"
	deepgramstt "github.com/koscakluka/voicepipe/core/speechtotext/deepgram"
	"github.com/koscakluka/voicepipe/core/speechtotext/whisper"
	deepgramtts "github.com/koscakluka/voicepipe/core/texttospeech/deepgram"
	"github.com/koscakluka/voicepipe/core/texttospeech/elevenlabs"
)

const systemPrompt = "You are a helpful voice assistant. Your answers are " +
	"spoken aloud, so respond in short conversational sentences of plain " +
	"prose. No markdown, no lists, no code blocks."

// portaudioBufferSize is the frames-per-buffer of the duplex stream,
// roughly 64ms at the default 16kHz.
const portaudioBufferSize = 1024

// prebufferMillis delays playback until this much audio is buffered so
// the first sentence does not stutter on a slow synthesis stream.
const prebufferMillis = 200

func main() {
	// Missing .env is fine, the environment itself may carry the keys.
	_ = godotenv.Load()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	llmClient, llmName, err := buildLLM()
	if err != nil {
		return fmt.Errorf("failed to configure response generation: %w", err)
	}

	sttClient, sttName, err := buildSpeechToText()
	if err != nil {
		return fmt.Errorf("failed to configure transcription: %w", err)
	}

	ttsClient, ttsName, playable, synthesisOpts, err := buildTextToSpeech()
	if err != nil {
		return fmt.Errorf("failed to configure speech synthesis: %w", err)
	}

	input, output, closeAudio, deviceName, err := buildAudioDevices(playable)
	if err != nil {
		return fmt.Errorf("failed to open audio devices: %w", err)
	}
	defer closeAudio()

	opts := append([]pipeline.CoordinatorOption{
		pipeline.WithLLM(llmClient),
		pipeline.WithSpeechToTextClient(sttClient),
		pipeline.WithTextToSpeechClient(ttsClient),
		pipeline.WithAudioInput(input),
		pipeline.WithAudioOutput(output),
		pipeline.WithSystemPrompt(systemPrompt),
		pipeline.WithPlaybackPrebuffer(playable.BytesPerSecond() * prebufferMillis / 1000),
	}, synthesisOpts...)

	coordinator, err := pipeline.NewCoordinator(opts...)
	if err != nil {
		return fmt.Errorf("failed to configure pipeline: %w", err)
	}
	defer coordinator.Close()

	program := tea.NewProgram(
		newModel(coordinator, providerSummary{
			llm: llmName, stt: sttName, tts: ttsName, device: deviceName,
		}),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	go func() {
		err := coordinator.Run(ctx,
			pipeline.WithInterimTranscriptionCallback(func(transcript string) {
				program.Send(interimTranscriptMsg(transcript))
			}),
			pipeline.WithTranscriptionCallback(func(transcript string) {
				program.Send(transcriptMsg(transcript))
			}),
			pipeline.WithResponseCallback(func(response string) {
				program.Send(responseDeltaMsg(response))
			}),
			pipeline.WithResponseEndCallback(func(response string) {
				program.Send(responseEndMsg(response))
			}),
			pipeline.WithSpokenTextCallback(func(spokenText string) {
				program.Send(spokenTextMsg(spokenText))
			}),
			pipeline.WithChunkSkippedCallback(func(index int, reason string) {
				program.Send(chunkSkippedMsg{index: index, reason: reason})
			}),
			pipeline.WithCancellationCallback(func() {
				program.Send(cancellationMsg{})
			}),
			pipeline.WithTurnStateCallback(func(state pipeline.TurnState) {
				program.Send(turnStateMsg(state))
			}),
			pipeline.WithTurnMetricsCallback(func(metrics pipeline.TurnMetrics) {
				program.Send(turnMetricsMsg(metrics))
			}),
			pipeline.WithErrorCallback(func(err error) {
				program.Send(pipelineErrMsg{err: err})
			}),
		)
		program.Send(pipelineStoppedMsg{err: err})
	}()

	finalModel, err := program.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("failed to run ui: %w", err)
	}
	if m, ok := finalModel.(model); ok && m.fatal != nil && !errors.Is(m.fatal, context.Canceled) {
		return fmt.Errorf("pipeline stopped: %w", m.fatal)
	}
	return nil
}

type providerSummary struct {
	llm    string
	stt    string
	tts    string
	device string
}

func buildLLM() (pipeline.LLM, string, error) {
	switch name := strings.ToLower(os.Getenv("VOICEPIPE_LLM")); name {
	case "groq":
		client, err := groq.NewClient()
		return client, name, err
	case "anthropic":
		client, err := anthropic.NewClient()
		return client, name, err
	case "openai":
		client, err := openai.NewClient()
		return client, name, err
	case "":
		if hasEnv("GROQ_API_KEY") {
			client, err := groq.NewClient()
			return client, "groq", err
		}
		if hasEnv("ANTHROPIC_API_KEY") {
			client, err := anthropic.NewClient()
			return client, "anthropic", err
		}
		if hasEnv("OPENAI_API_KEY") {
			client, err := openai.NewClient()
			return client, "openai", err
		}
		return nil, "", errors.New("no generation provider available: set GROQ_API_KEY, ANTHROPIC_API_KEY, or OPENAI_API_KEY")
	default:
		return nil, "", fmt.Errorf("unknown generation provider %q", name)
	}
}

func buildSpeechToText() (pipeline.SpeechToText, string, error) {
	switch name := strings.ToLower(os.Getenv("VOICEPIPE_STT")); name {
	case "deepgram":
		client, err := deepgramstt.NewTranscriptionClient()
		return client, name, err
	case "whisper":
		client, err := whisper.NewTranscriptionClient()
		return client, name, err
	case "":
		if hasEnv("DEEPGRAM_API_KEY") {
			client, err := deepgramstt.NewTranscriptionClient()
			return client, "deepgram", err
		}
		if hasEnv("OPENAI_API_KEY") {
			client, err := whisper.NewTranscriptionClient()
			return client, "whisper", err
		}
		return nil, "", errors.New("no transcription provider available: set DEEPGRAM_API_KEY or OPENAI_API_KEY")
	default:
		return nil, "", fmt.Errorf("unknown transcription provider %q", name)
	}
}

// buildTextToSpeech picks the synthesis provider and reports the
// encoding the playback device has to run at. With VOICEPIPE_OPUS set
// the synthesizer streams compressed packets and the returned options
// splice an opus decoder into the pipeline; the playable encoding is
// then the decoder's PCM output.
func buildTextToSpeech() (pipeline.TextToSpeechClient, string, audio.EncodingInfo, []pipeline.CoordinatorOption, error) {
	name := strings.ToLower(os.Getenv("VOICEPIPE_TTS"))
	if name == "" {
		switch {
		case hasEnv("ELEVENLABS_API_KEY"):
			name = "elevenlabs"
		case hasEnv("DEEPGRAM_API_KEY"):
			name = "deepgram"
		default:
			return nil, "", audio.EncodingInfo{}, nil, errors.New("no synthesis provider available: set ELEVENLABS_API_KEY or DEEPGRAM_API_KEY")
		}
	}

	useOpus := hasEnv("VOICEPIPE_OPUS")
	if useOpus && name != "elevenlabs" {
		return nil, "", audio.EncodingInfo{}, nil, fmt.Errorf("opus synthesis requires the elevenlabs provider, not %q", name)
	}

	switch name {
	case "elevenlabs":
		if useOpus {
			compressed := audio.EncodingInfo{SampleRate: 48000, Channels: 1, Format: audio.EncodingOpus}
			client, err := elevenlabs.NewTextToSpeechClient(elevenlabs.WithEncodingInfo(compressed))
			if err != nil {
				return nil, "", audio.EncodingInfo{}, nil, err
			}
			decoder, err := opusdec.NewDecoder(compressed)
			if err != nil {
				return nil, "", audio.EncodingInfo{}, nil, err
			}
			return client, name, decoder.Encoding(), []pipeline.CoordinatorOption{
				pipeline.WithSynthesisEncoding(compressed),
				pipeline.WithSpeechDecoder(decoder),
			}, nil
		}
		client, err := elevenlabs.NewTextToSpeechClient()
		if err != nil {
			return nil, "", audio.EncodingInfo{}, nil, err
		}
		return client, name, client.EncodingInfo(), nil, nil
	case "deepgram":
		client, err := deepgramtts.NewTextToSpeechClient()
		if err != nil {
			return nil, "", audio.EncodingInfo{}, nil, err
		}
		return client, name, client.EncodingInfo(), nil, nil
	default:
		return nil, "", audio.EncodingInfo{}, nil, fmt.Errorf("unknown synthesis provider %q", name)
	}
}

// buildAudioDevices opens the capture and playback devices. Miniaudio
// runs them as independent devices so the microphone stays at the
// default capture encoding; portaudio is a single duplex stream, so
// both directions run at the playable encoding.
func buildAudioDevices(playable audio.EncodingInfo) (pipeline.AudioInput, pipeline.AudioOutput, func(), string, error) {
	switch name := strings.ToLower(os.Getenv("VOICEPIPE_AUDIO")); name {
	case "", "miniaudio":
		client, err := miniaudio.NewClient(miniaudio.WithPlaybackEncoding(playable))
		if err != nil {
			return nil, nil, nil, "", err
		}
		return client.Capture(), client.Playback(), client.Close, "miniaudio", nil
	case "portaudio":
		client, err := portaudio.NewClient(portaudioBufferSize, portaudio.WithEncoding(playable))
		if err != nil {
			return nil, nil, nil, "", err
		}
		return client, client, client.Close, "portaudio", nil
	default:
		return nil, nil, nil, "", fmt.Errorf("unknown audio backend %q", name)
	}
}

func hasEnv(key string) bool {
	value, ok := os.LookupEnv(key)
	return ok && value != ""
}
