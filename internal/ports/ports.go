package ports

import (
	"context"
	"io"

	"notedeck/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session. Reads yield raw PCM while a copy
// of the stream is written to the session's output file.
type AudioSession interface {
	io.ReadCloser
	Stop() error
	OutputPath() string
}

// AudioCapture creates microphone capture sessions recording into outputPath.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig, outputPath string) (AudioSession, error)
}

// AudioConverter prepares external audio files for transcription.
type AudioConverter interface {
	ConvertToWAV(ctx context.Context, sourcePath, destPath string) error
	DurationMS(ctx context.Context, path string) (int64, error)
	IsSupportedFormat(path string) bool
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
}

// LiveUpdate is one incremental transcription event for an active session.
type LiveUpdate struct {
	MeetingID string
	Speaker   string
	Chunks    []domain.TimedText
	IsFinal   bool
}

// LiveSession is an active streaming transcription session.
type LiveSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Updates() <-chan LiveUpdate
	Wait() error
	Close() error
}

// TranscriptionProvider is the capture/transcription backend.
type TranscriptionProvider interface {
	StartLive(ctx context.Context, meetingID string, cfg StreamingConfig) (LiveSession, error)
	TranscribeBatch(ctx context.Context, audioPath string) (domain.TranscriptionResult, error)
}

// MeetingStore persists meeting records.
type MeetingStore interface {
	CreateMeeting(title string) (domain.Meeting, error)
	GetMeeting(id string) (domain.Meeting, error)
	ListMeetings() ([]domain.Meeting, error)
	// DeleteMeeting cascades to the meeting's sources and transcript.
	DeleteMeeting(id string) error
	EndMeeting(id string) error
}

// SegmentStore owns the transcript segments of a meeting.
type SegmentStore interface {
	// AppendSegments appends in one transaction and returns the new row ids,
	// in input order.
	AppendSegments(meetingID string, segments []domain.NewSegment) ([]int64, error)
	// ExtendSegment rewrites the text and end time of an existing segment.
	// Only the live consolidator's merge step uses it.
	ExtendSegment(id int64, text string, endTime float64) error
	GetSegments(meetingID string) ([]domain.TranscriptSegment, error)
	DeleteSegmentsBySource(source domain.Provenance) error
}

// SourceStore owns audio sources and their display order.
type SourceStore interface {
	AddRecordedSegment(meetingID string, segmentIndex int, micPath, systemPath string, startOffsetMS int64) (domain.RecordedSegment, error)
	SetSegmentDuration(id int64, durationMS int64) error
	GetRecordedSegment(id int64) (domain.RecordedSegment, error)
	NextSegmentIndex(meetingID string) (int, error)

	AddUploadedFile(meetingID, filePath, originalFilename string, durationMS *int64, speakerLabel string) (domain.UploadedFile, error)
	GetUploadedFile(id int64) (domain.UploadedFile, error)
	SetUploadStatus(id int64, status domain.TranscriptionStatus) error
	SetUploadSpeaker(id int64, speakerLabel string) error
	DeleteUploadedFile(id int64) error

	// ListSources returns both variants sorted by display order, ties broken
	// by creation time then id.
	ListSources(meetingID string) ([]domain.AudioSource, error)
	// PersistOrder writes display order i for refs[i], all or nothing.
	PersistOrder(meetingID string, refs []domain.SourceRef) error

	// MigrateLegacyAudio converts a meeting's single-file recording into a
	// RecordedSegment at order 0. Returns nil when nothing needed migrating.
	MigrateLegacyAudio(meetingID string, durationMS *int64) (*domain.RecordedSegment, error)
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	SessionStateChanged(meetingID string, state domain.SessionState, reason domain.SessionStateReason)
	TranscriptUpdated(meetingID string)
	UploadStatusChanged(meetingID string, uploadID int64, status domain.TranscriptionStatus)
	SourceOrderChanged(meetingID string)
	SessionError(code domain.ErrorCode, detail string)
}
