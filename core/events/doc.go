// Package events defines the typed pipeline event contract.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - user_input.*
//   - assistant_response.*
//   - tool_call.*
//   - assistant_speech.*
//   - assistant_playback.*
//   - turn_state.*
//
// Semantics used across the package:
//
//   - Frame: binary audio frame/chunk payload.
//   - Segment: append-only text piece emitted in stream order.
//   - Updated: mutable point-in-time snapshot that can change over time.
//   - Final: terminal immutable text/state for the current stream/turn phase.
//   - Ended: lifecycle boundary indicating stream completion.
//
// user_input events
//
//   - UserAudioFrame (user_input.audio_frame): raw user input audio frame.
//   - UserSpeechStarted (user_input.speech_started): speech activity began.
//   - UserSpeechEnded (user_input.speech_ended): speech activity ended.
//   - UserTranscriptInterimUpdated (user_input.transcript_interim_updated):
//     mutable full transcript snapshot; Seq orders snapshots within the
//     utterance.
//   - UserTranscriptFinal (user_input.transcript_final): terminal full
//     transcript for the utterance, emitted exactly once per capture.
//
// assistant_response events
//
//   - AssistantResponseStarted (assistant_response.started): response
//     generation started.
//   - AssistantResponseSegment (assistant_response.segment): streamed
//     response text segment.
//   - AssistantResponseFinal (assistant_response.final): response text
//     stream is complete; carries the assembled response content.
//
// tool_call events
//
// Tool execution is driven by the generation client, which only sees the
// tool's name and serialized arguments, so tool events carry no provider
// call id.
//
//   - ToolCallStarted (tool_call.started): tool execution started.
//   - ToolCallCompleted (tool_call.completed): tool execution completed.
//   - ToolCallFailed (tool_call.failed): tool execution failed.
//
// assistant_speech events
//
//   - AssistantSpeechFrame (assistant_speech.frame): synthesized speech audio
//     chunk, still in the synthesizer's wire encoding.
//   - AssistantSpeechMarkGenerated (assistant_speech.mark_generated): TTS mark
//     generated with the transcript text associated with that mark.
//   - AssistantSpeechChunkSkipped (assistant_speech.chunk_skipped): a speech
//     chunk failed to decode and was dropped from playback.
//   - AssistantSpeechFinal (assistant_speech.final): TTS generation ended.
//
// assistant_playback events
//
//   - AssistantPlaybackStarted (assistant_playback.started): playback started
//     for the current response.
//   - AssistantPlaybackFrame (assistant_playback.frame): decoded audio handed
//     to the output device.
//   - AssistantPlaybackMarkPlayed (assistant_playback.mark_played): output
//     mark was confirmed as played; includes mark id and transcript chunk.
//   - AssistantPlaybackTranscriptUpdated (assistant_playback.transcript_updated):
//     mutable spoken-transcript snapshot.
//   - AssistantPlaybackTranscriptSegment (assistant_playback.transcript_segment):
//     append-only spoken-transcript segment.
//   - AssistantPlaybackEnded (assistant_playback.ended): playback ended for the
//     current response; includes the final transcript known to be spoken.
//
// turn_state events
//
//   - TurnStarted (turn_state.started): a turn left the queue and started.
//   - TurnStateChanged (turn_state.changed): the turn moved to a new
//     lifecycle state.
//   - TurnCompleted (turn_state.completed): the turn completed normally.
//   - TurnFailed (turn_state.failed): the turn failed; includes the stage
//     that produced the failure.
//   - TurnCancelled (turn_state.cancelled): the turn was cancelled.
package events
