package usecase

import (
	"context"
	"fmt"
	"strings"

	"notedeck/internal/domain"
	"notedeck/internal/logging"
	"notedeck/internal/ports"
	"notedeck/internal/rules"
)

// BatchTranscriber re-runs transcription over recorded segments. System
// audio is transcribed first and labeled "Others"; mic audio is labeled
// "You", with mic segments that echo system audio dropped.
type BatchTranscriber struct {
	sources  ports.SourceStore
	segments ports.SegmentStore
	provider ports.TranscriptionProvider
	noise    *rules.Engine
	events   ports.EventSink
	log      *logging.Logger

	activeMeeting func() string
}

func NewBatchTranscriber(
	sources ports.SourceStore,
	segments ports.SegmentStore,
	provider ports.TranscriptionProvider,
	noise *rules.Engine,
	events ports.EventSink,
	log *logging.Logger,
	activeMeeting func() string,
) *BatchTranscriber {
	return &BatchTranscriber{
		sources:       sources,
		segments:      segments,
		provider:      provider,
		noise:         noise,
		events:        events,
		log:           log,
		activeMeeting: activeMeeting,
	}
}

// RetranscribeSegment replaces a recorded segment's transcript with a fresh
// batch transcription of its capture files.
func (b *BatchTranscriber) RetranscribeSegment(ctx context.Context, segmentID int64) (int, error) {
	segment, err := b.sources.GetRecordedSegment(segmentID)
	if err != nil {
		return 0, fmt.Errorf("load recorded segment: %w", err)
	}
	meetingID := segment.Meeting
	provenance := domain.Provenance{Type: domain.SourceTypeSegment, ID: segmentID}

	var systemResult domain.TranscriptionResult
	if segment.SystemPath != "" {
		systemResult, err = b.provider.TranscribeBatch(ctx, segment.SystemPath)
		if err != nil {
			// System audio is best effort; the mic track still transcribes.
			b.log.Warn("system audio transcription failed",
				"segmentId", segmentID, "error", err)
			systemResult = domain.TranscriptionResult{}
		}
	}

	micResult, err := b.provider.TranscribeBatch(ctx, segment.MicPath)
	if err != nil {
		return 0, fmt.Errorf("transcribe segment %d: %w", segmentID, err)
	}

	newSegments := b.labelResults(micResult, systemResult, provenance)

	if err := b.segments.DeleteSegmentsBySource(provenance); err != nil {
		return 0, fmt.Errorf("clear previous transcript: %w", err)
	}
	if len(newSegments) > 0 {
		if _, err := b.segments.AppendSegments(meetingID, newSegments); err != nil {
			return 0, fmt.Errorf("store segment transcript: %w", err)
		}
	}

	if b.activeMeeting() == meetingID {
		b.events.TranscriptUpdated(meetingID)
	} else {
		b.log.Warn("segment transcription finished for background meeting",
			"meetingId", meetingID, "segmentId", segmentID)
	}
	return len(newSegments), nil
}

// labelResults interleaves mic ("You") and system ("Others") segments sorted
// by start time, dropping noise annotations and mic echoes of system audio.
func (b *BatchTranscriber) labelResults(mic, system domain.TranscriptionResult, source domain.Provenance) []domain.NewSegment {
	var out []domain.NewSegment
	for _, seg := range system.Segments {
		if !b.noise.KeepSegment(seg.Text) {
			continue
		}
		out = append(out, domain.NewSegment{
			StartTime: seg.Start,
			EndTime:   seg.End,
			Text:      strings.TrimSpace(seg.Text),
			Speaker:   domain.SpeakerOthers,
			Source:    source,
		})
	}
	for _, seg := range mic.Segments {
		if !b.noise.KeepSegment(seg.Text) {
			continue
		}
		if b.noise.IsEcho(seg.Text, seg.Start, seg.End, system.Segments) {
			continue
		}
		out = append(out, domain.NewSegment{
			StartTime: seg.Start,
			EndTime:   seg.End,
			Text:      strings.TrimSpace(seg.Text),
			Speaker:   domain.SpeakerYou,
			Source:    source,
		})
	}
	return out
}
