package domain

import "time"

// SessionState models the recording lifecycle of a meeting.
type SessionState string

const (
	SessionStateIdle      SessionState = "idle"
	SessionStateRecording SessionState = "recording"
	SessionStateStopping  SessionState = "stopping"
	SessionStateError     SessionState = "error"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonReady               SessionStateReason = "ready"
	SessionReasonRecordingStarted    SessionStateReason = "recording_started"
	SessionReasonRecordingRestarted  SessionStateReason = "recording_restarted"
	SessionReasonRecordingStopped    SessionStateReason = "recording_stopped"
	SessionReasonRecordingDiscarded  SessionStateReason = "recording_discarded"
	SessionReasonTranscribing        SessionStateReason = "transcribing"
	SessionReasonTranscriptionFailed SessionStateReason = "transcription_failed"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeAudioStop     ErrorCode = "audio_stop"
	ErrorCodeAudioStream   ErrorCode = "audio_stream"
	ErrorCodeTranscription ErrorCode = "transcription"
	ErrorCodeStorage       ErrorCode = "storage"
	ErrorCodeUpload        ErrorCode = "upload"
)

// Well-known speaker labels. Mic audio is attributed to "You", system audio
// to "Others", and uploads default to "Uploaded" until the user renames them.
const (
	SpeakerYou      = "You"
	SpeakerOthers   = "Others"
	SpeakerUploaded = "Uploaded"
)

// Meeting is a note the user records against.
type Meeting struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	// AudioPath is the pre-segment single-file recording location. Cleared
	// once the legacy migration turns it into a RecordedSegment.
	AudioPath string    `json:"audioPath,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SourceType tags the provenance of a transcript segment.
type SourceType string

const (
	SourceTypeUpload  SourceType = "upload"
	SourceTypeSegment SourceType = "segment"
	SourceTypeLive    SourceType = "live"
	// SourceTypeLegacy marks segments recorded before provenance existed.
	// It is never written; segments with no stored source type resolve to it.
	SourceTypeLegacy SourceType = "legacy"
)

// TranscriptSegment is one stored piece of transcript text.
type TranscriptSegment struct {
	ID        int64      `json:"id"`
	MeetingID string     `json:"meetingId"`
	StartTime float64    `json:"startTime"`
	EndTime   float64    `json:"endTime"`
	Text      string     `json:"text"`
	Speaker   string     `json:"speaker,omitempty"`
	Source    Provenance `json:"source"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Provenance identifies which audio source produced a transcript segment.
// A zero Provenance means the segment predates source tracking.
type Provenance struct {
	Type SourceType `json:"type,omitempty"`
	ID   int64      `json:"id,omitempty"`
}

// NewSegment is the input shape for appending transcript segments.
type NewSegment struct {
	StartTime float64
	EndTime   float64
	Text      string
	Speaker   string
	Source    Provenance
}

// TimedText is a transcribed span of audio, relative to its source's start.
type TimedText struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptionResult is what the batch transcription backend returns.
type TranscriptionResult struct {
	Segments []TimedText `json:"segments"`
	FullText string      `json:"fullText"`
	Language string      `json:"language,omitempty"`
}

// TranscriptionStatus tracks batch transcription of an uploaded file.
type TranscriptionStatus string

const (
	TranscriptionPending    TranscriptionStatus = "pending"
	TranscriptionProcessing TranscriptionStatus = "processing"
	TranscriptionCompleted  TranscriptionStatus = "completed"
	TranscriptionFailed     TranscriptionStatus = "failed"
)
