// Package capture manages a live camera and microphone session for
// interview recording: it acquires the devices, renders a preview, samples
// preview frames for an external analyser and records the session to a
// media artifact.
//
// Key pieces include:
//   - MediaDevices/DeviceProvider, MediaStream and MediaStreamTrack
//     (getUserMedia-style APIs) plus a SyntheticProvider for tests and demos
//   - DeviceSession: acquisition, permission-denial classification, track
//     enable toggles and release
//   - FrameSampler: periodic hand-off of the preview surface
//   - RecordingController: segmented recording with an encoding fallback
//     chain, assembled into one Artifact per pass
//   - Session: the lifecycle tying the three together behind an
//     isRecording input
//
// # Architecture
//
//	DeviceProvider -> MediaDevices -> DeviceSession -> MediaStream
//	MediaStream -> PreviewSurface -> FrameSampler -> OnVideoFrame
//	MediaStream -> Recorder -> segments -> RecordingController -> OnRecordingReady
//
// # Recording
//
// Recorders are created through a RecorderFactory for each encoding in the
// fallback chain (DefaultEncodings) until one is accepted. The bundled
// NewFFmpegRecorderFactory produces webm through an ffmpeg child process.
//
// # Denials
//
// A permission denial surfaces as a flag in SessionState, never as an
// error. Other acquisition failures are logged and leave the session
// without a stream.
package capture
