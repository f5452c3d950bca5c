package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"notedeck/internal/domain"
	"notedeck/internal/logging"
	"notedeck/internal/ports"
)

var ErrNoActiveSession = errors.New("no active recording session")

// Config controls recording and streaming behavior.
type Config struct {
	Audio          ports.AudioConfig
	Streaming      ports.StreamingConfig
	RecordingsDir  string
	ChunkSize      int
	StreamingGrace time.Duration
}

// SessionController orchestrates live capture sessions for meetings: it
// starts the capture and streaming collaborators, registers the recorded
// segment, and feeds live updates into the consolidator.
type SessionController struct {
	capture      ports.AudioCapture
	provider     ports.TranscriptionProvider
	consolidator *Consolidator
	sources      ports.SourceStore
	events       ports.EventSink
	log          *logging.Logger
	cfg          Config

	mu      sync.Mutex
	current *activeSession
}

func NewSessionController(
	capture ports.AudioCapture,
	provider ports.TranscriptionProvider,
	consolidator *Consolidator,
	sources ports.SourceStore,
	events ports.EventSink,
	log *logging.Logger,
	cfg Config,
) *SessionController {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	return &SessionController{
		capture:      capture,
		provider:     provider,
		consolidator: consolidator,
		sources:      sources,
		events:       events,
		log:          log,
		cfg:          cfg,
	}
}

// Start begins a new capture/transcription session for meetingID. A session
// already running for another meeting is stopped and discarded first.
func (c *SessionController) Start(ctx context.Context, meetingID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	restarted := false
	if c.current != nil {
		c.stopSession(c.current)
		c.current = nil
		restarted = true
	}

	index, err := c.sources.NextSegmentIndex(meetingID)
	if err != nil {
		return fmt.Errorf("next segment index: %w", err)
	}
	offsetMS, err := c.totalRecordedMS(meetingID)
	if err != nil {
		return fmt.Errorf("segment offset: %w", err)
	}
	micPath := filepath.Join(c.cfg.RecordingsDir, fmt.Sprintf("%s_seg%d_mic.wav", meetingID, index))

	sessionCtx, cancel := context.WithCancel(ctx)
	stream, err := c.provider.StartLive(sessionCtx, meetingID, c.cfg.Streaming)
	if err != nil {
		cancel()
		return fmt.Errorf("start live transcription: %w", err)
	}
	audioSession, err := c.capture.Start(sessionCtx, c.cfg.Audio, micPath)
	if err != nil {
		_ = stream.Close()
		cancel()
		return fmt.Errorf("start audio capture: %w", err)
	}

	// Register whatever path the capture actually writes to.
	segment, err := c.sources.AddRecordedSegment(meetingID, index, audioSession.OutputPath(), "", offsetMS)
	if err != nil {
		_ = audioSession.Stop()
		_ = stream.Close()
		cancel()
		return fmt.Errorf("register recorded segment: %w", err)
	}

	active := &activeSession{
		meetingID:   meetingID,
		segmentID:   segment.ID,
		cancel:      cancel,
		audio:       audioSession,
		stream:      stream,
		state:       domain.SessionStateRecording,
		updatesDone: make(chan struct{}),
		audioDone:   make(chan struct{}),
	}
	c.current = active
	c.consolidator.Begin(meetingID)

	go c.consumeLiveUpdates(active)
	go c.pumpAudio(active)

	reason := domain.SessionReasonRecordingStarted
	if restarted {
		reason = domain.SessionReasonRecordingRestarted
	}
	c.events.SessionStateChanged(meetingID, domain.SessionStateRecording, reason)
	return nil
}

// Stop ends the active session, finalizes the recorded segment duration and
// deactivates the consolidator. Ending is terminal for the session: later
// live updates for the same meeting are stale by definition.
func (c *SessionController) Stop(ctx context.Context) (domain.RecordedSegment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	active := c.current
	if active == nil {
		return domain.RecordedSegment{}, ErrNoActiveSession
	}

	active.setState(domain.SessionStateStopping)
	c.events.SessionStateChanged(active.meetingID, domain.SessionStateStopping, domain.SessionReasonTranscribing)

	if err := active.audio.Stop(); err != nil {
		c.events.SessionError(domain.ErrorCodeAudioStop, "failed to stop audio capture cleanly")
	}

	if c.cfg.StreamingGrace > 0 {
		timer := time.NewTimer(c.cfg.StreamingGrace)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}

	_ = active.stream.CloseSend()
	streamErr := waitForStream(active.stream, 4*time.Second)
	<-active.updatesDone
	<-active.audioDone

	c.consolidator.Deactivate()
	c.current = nil
	active.cancel()

	segment, err := c.finalizeSegment(active)
	if err != nil {
		c.events.SessionStateChanged(active.meetingID, domain.SessionStateError, domain.SessionReasonTranscriptionFailed)
		return domain.RecordedSegment{}, err
	}
	if streamErr != nil {
		c.log.Warn("live stream closed with error", "meetingId", active.meetingID, "error", streamErr)
	}

	active.setState(domain.SessionStateIdle)
	c.events.SessionStateChanged(active.meetingID, domain.SessionStateIdle, domain.SessionReasonRecordingStopped)
	return segment, nil
}

// Abort cancels the active session. The recorded segment row keeps whatever
// audio made it to disk.
func (c *SessionController) Abort() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	active := c.current
	if active == nil {
		return ErrNoActiveSession
	}
	c.stopSession(active)
	c.current = nil
	c.consolidator.Deactivate()
	active.setState(domain.SessionStateIdle)
	c.events.SessionStateChanged(active.meetingID, domain.SessionStateIdle, domain.SessionReasonRecordingDiscarded)
	return nil
}

// Status reports the current session state.
func (c *SessionController) Status() (string, domain.SessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return "", domain.SessionStateIdle
	}
	return c.current.meetingID, c.current.getState()
}

func (c *SessionController) consumeLiveUpdates(active *activeSession) {
	defer close(active.updatesDone)
	for update := range active.stream.Updates() {
		err := c.consolidator.ApplyLiveUpdate(update.MeetingID, update.Speaker, update.Chunks, update.IsFinal)
		if err != nil {
			c.log.Error("applying live update failed", "meetingId", update.MeetingID, "error", err)
			c.events.SessionError(domain.ErrorCodeTranscription, err.Error())
			continue
		}
		if len(update.Chunks) > 0 {
			c.events.TranscriptUpdated(update.MeetingID)
		}
	}
}

func (c *SessionController) pumpAudio(active *activeSession) {
	defer close(active.audioDone)

	buf := make([]byte, c.cfg.ChunkSize)
	for {
		n, err := active.audio.Read(buf)
		if n > 0 {
			if sendErr := active.stream.SendAudio(buf[:n]); sendErr != nil {
				c.events.SessionError(domain.ErrorCodeAudioStream, fmt.Sprintf("failed to stream audio: %v", sendErr))
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				c.events.SessionError(domain.ErrorCodeAudioStream, fmt.Sprintf("audio capture error: %v", err))
			}
			return
		}
	}
}

func (c *SessionController) stopSession(active *activeSession) {
	active.cancel()
	_ = active.audio.Stop()
	_ = active.stream.Close()
	<-active.updatesDone
	<-active.audioDone
}

func (c *SessionController) finalizeSegment(active *activeSession) (domain.RecordedSegment, error) {
	segment, err := c.sources.GetRecordedSegment(active.segmentID)
	if err != nil {
		return domain.RecordedSegment{}, fmt.Errorf("load recorded segment: %w", err)
	}
	elapsed := time.Since(segment.Created).Milliseconds()
	if err := c.sources.SetSegmentDuration(active.segmentID, elapsed); err != nil {
		return domain.RecordedSegment{}, fmt.Errorf("set segment duration: %w", err)
	}
	segment.DurationMS = &elapsed
	return segment, nil
}

func (c *SessionController) totalRecordedMS(meetingID string) (int64, error) {
	all, err := c.sources.ListSources(meetingID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, src := range all {
		if seg, ok := domain.AsRecordedSegment(src); ok && seg.DurationMS != nil {
			total += *seg.DurationMS
		}
	}
	return total, nil
}

func waitForStream(session ports.LiveSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = session.Close()
		return <-done
	}
}
