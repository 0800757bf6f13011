// Package events defines the typed recorder event contract.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - recorder.*
//   - speech.*
//   - utterance.*
//
// recorder events
//
//   - RecordingChanged (recorder.recording): recording flag turned on or off.
//     Starting twice in a row emits a single event.
//   - RecorderFailed (recorder.failed): an error that happened off the
//     caller's path, such as a failed encode. Fatal failures mean the
//     segmenter hit an impossible state and refuses further work.
//
// speech events
//
//   - SpeakingChanged (speech.speaking): speech confirmed after the minimum
//     speech duration, or silence confirmed after the silence timeout.
//   - SpeakingDurationMeasured (speech.most_recent_speaking_duration): length
//     of the latest speaking stretch.
//   - LongestSilenceUpdated (speech.longest_silence_duration): emitted only
//     when a silence window beats the previous maximum.
//
// utterance events
//
//   - DataBlob (utterance.data_blob): finalized utterance persisted to disk.
package events
