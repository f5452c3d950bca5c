package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"notedeck/internal/domain"
	"notedeck/internal/logging"
	"notedeck/internal/ports"
	"notedeck/internal/rules"
)

// UploadManager ingests external audio files and drives their batch
// transcription through the status lifecycle pending -> processing ->
// completed|failed. A failure marks only its own upload failed; every other
// source and the live transcript are untouched.
type UploadManager struct {
	sources   ports.SourceStore
	segments  ports.SegmentStore
	provider  ports.TranscriptionProvider
	converter ports.AudioConverter
	noise     *rules.Engine
	events    ports.EventSink
	log       *logging.Logger

	recordingsDir string
	// activeMeeting reports which meeting the user is currently viewing, so
	// completions landing after a meeting switch can be flagged as stale.
	activeMeeting func() string
}

func NewUploadManager(
	sources ports.SourceStore,
	segments ports.SegmentStore,
	provider ports.TranscriptionProvider,
	converter ports.AudioConverter,
	noise *rules.Engine,
	events ports.EventSink,
	log *logging.Logger,
	recordingsDir string,
	activeMeeting func() string,
) *UploadManager {
	return &UploadManager{
		sources:       sources,
		segments:      segments,
		provider:      provider,
		converter:     converter,
		noise:         noise,
		events:        events,
		log:           log,
		recordingsDir: recordingsDir,
		activeMeeting: activeMeeting,
	}
}

// Ingest converts sourcePath to 16kHz mono WAV and registers it as an
// UploadedFile with transcription status pending. Conversion goes through a
// .tmp file renamed into place, so an interrupted run leaves no half-written
// upload behind.
func (m *UploadManager) Ingest(ctx context.Context, meetingID, sourcePath, speakerLabel string) (domain.UploadedFile, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		return domain.UploadedFile{}, fmt.Errorf("source file: %w", err)
	}
	if !m.converter.IsSupportedFormat(sourcePath) {
		return domain.UploadedFile{}, fmt.Errorf("unsupported audio format: %s", filepath.Ext(sourcePath))
	}

	if err := os.MkdirAll(m.recordingsDir, 0o755); err != nil {
		return domain.UploadedFile{}, fmt.Errorf("recordings dir: %w", err)
	}

	uploadTag := uuid.NewString()[:8]
	outPath := filepath.Join(m.recordingsDir, fmt.Sprintf("%s_upload_%s.wav", meetingID, uploadTag))
	tmpPath := outPath + ".tmp"

	if err := m.converter.ConvertToWAV(ctx, sourcePath, tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return domain.UploadedFile{}, fmt.Errorf("convert upload: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return domain.UploadedFile{}, fmt.Errorf("finalize converted file: %w", err)
	}

	var durationMS *int64
	if d, err := m.converter.DurationMS(ctx, outPath); err == nil {
		durationMS = &d
	}

	label := strings.TrimSpace(speakerLabel)
	if label == "" {
		label = domain.SpeakerUploaded
	}

	upload, err := m.sources.AddUploadedFile(meetingID, outPath, filepath.Base(sourcePath), durationMS, label)
	if err != nil {
		_ = os.Remove(outPath)
		return domain.UploadedFile{}, fmt.Errorf("register upload: %w", err)
	}
	return upload, nil
}

// Transcribe runs batch transcription for one upload and appends the result
// to the segment store under the upload's provenance. Retrying a failed
// upload is just calling Transcribe again.
func (m *UploadManager) Transcribe(ctx context.Context, uploadID int64) (int, error) {
	upload, err := m.sources.GetUploadedFile(uploadID)
	if err != nil {
		return 0, fmt.Errorf("load upload: %w", err)
	}
	meetingID := upload.Meeting

	if err := m.setStatus(meetingID, uploadID, domain.TranscriptionProcessing); err != nil {
		return 0, err
	}

	result, err := m.provider.TranscribeBatch(ctx, upload.FilePath)
	if err != nil {
		m.markFailed(meetingID, uploadID)
		return 0, fmt.Errorf("transcribe upload %d: %w", uploadID, err)
	}

	newSegments := make([]domain.NewSegment, 0, len(result.Segments))
	for _, seg := range result.Segments {
		if !m.noise.KeepSegment(seg.Text) {
			continue
		}
		newSegments = append(newSegments, domain.NewSegment{
			StartTime: seg.Start,
			EndTime:   seg.End,
			Text:      strings.TrimSpace(seg.Text),
			Speaker:   upload.SpeakerLabel,
			Source:    domain.Provenance{Type: domain.SourceTypeUpload, ID: uploadID},
		})
	}
	if len(newSegments) > 0 {
		if _, err := m.segments.AppendSegments(meetingID, newSegments); err != nil {
			m.markFailed(meetingID, uploadID)
			return 0, fmt.Errorf("store upload transcript: %w", err)
		}
	}

	if err := m.setStatus(meetingID, uploadID, domain.TranscriptionCompleted); err != nil {
		return len(newSegments), err
	}

	// The result is keyed by its own meeting either way; the refresh event
	// is only useful if the user is still looking at that meeting.
	if m.activeMeeting() == meetingID {
		m.events.TranscriptUpdated(meetingID)
	} else {
		m.log.Warn("upload transcription finished for background meeting",
			"meetingId", meetingID, "uploadId", uploadID)
	}
	return len(newSegments), nil
}

// SetSpeaker renames the upload's speaker label for future transcriptions
// and display.
func (m *UploadManager) SetSpeaker(uploadID int64, speakerLabel string) error {
	if strings.TrimSpace(speakerLabel) == "" {
		return fmt.Errorf("speaker label must not be empty")
	}
	return m.sources.SetUploadSpeaker(uploadID, speakerLabel)
}

// Delete removes the upload, its converted file and its transcript segments.
func (m *UploadManager) Delete(uploadID int64) error {
	upload, err := m.sources.GetUploadedFile(uploadID)
	if err != nil {
		return fmt.Errorf("load upload: %w", err)
	}
	// The file may already be gone; the records are what matter.
	_ = os.Remove(upload.FilePath)

	if err := m.segments.DeleteSegmentsBySource(domain.Provenance{Type: domain.SourceTypeUpload, ID: uploadID}); err != nil {
		return fmt.Errorf("delete upload transcript: %w", err)
	}
	if err := m.sources.DeleteUploadedFile(uploadID); err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	return nil
}

func (m *UploadManager) setStatus(meetingID string, uploadID int64, status domain.TranscriptionStatus) error {
	if err := m.sources.SetUploadStatus(uploadID, status); err != nil {
		return fmt.Errorf("set upload status: %w", err)
	}
	m.events.UploadStatusChanged(meetingID, uploadID, status)
	return nil
}

func (m *UploadManager) markFailed(meetingID string, uploadID int64) {
	if err := m.sources.SetUploadStatus(uploadID, domain.TranscriptionFailed); err != nil {
		m.log.Error("marking upload failed", "uploadId", uploadID, "error", err)
		return
	}
	m.events.UploadStatusChanged(meetingID, uploadID, domain.TranscriptionFailed)
}
