package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"notedeck/internal/bootstrap"
	"notedeck/internal/config"
	"notedeck/internal/domain"
	"notedeck/internal/usecase"
)

const (
	eventSession     = "notedeck:session"
	eventTranscript  = "notedeck:transcript"
	eventUpload      = "notedeck:upload"
	eventSourceOrder = "notedeck:source-order"
	eventError       = "notedeck:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services bootstrap.Services
	cfg      config.Config
	bootErr  error

	meetingMu     sync.Mutex
	activeMeeting string
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, a.ActiveMeeting)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.cfg = services.Config
}

func (a *App) shutdown(_ context.Context) {
	if a.services.Controller != nil {
		_ = a.services.Controller.Abort()
	}
	if a.services.Store != nil {
		_ = a.services.Store.Close()
	}
	if a.services.Log != nil {
		_ = a.services.Log.Sync()
	}
}

// ActiveMeeting reports the meeting the user currently has open.
func (a *App) ActiveMeeting() string {
	a.meetingMu.Lock()
	defer a.meetingMu.Unlock()
	return a.activeMeeting
}

// CreateMeeting creates a new meeting and returns its record.
func (a *App) CreateMeeting(title string) (domain.Meeting, error) {
	if err := a.requireReady(); err != nil {
		return domain.Meeting{}, err
	}
	return a.services.Store.CreateMeeting(title)
}

// ListMeetings returns all meetings, most recent first.
func (a *App) ListMeetings() ([]domain.Meeting, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.services.Store.ListMeetings()
}

// OpenMeeting marks a meeting as the one the user is viewing. Meetings
// recorded before segmented capture existed get their single audio file
// migrated into a recorded segment on first open.
func (a *App) OpenMeeting(id string) (domain.Meeting, error) {
	if err := a.requireReady(); err != nil {
		return domain.Meeting{}, err
	}

	meeting, err := a.services.Store.GetMeeting(id)
	if err != nil {
		return domain.Meeting{}, err
	}

	if meeting.AudioPath != "" {
		var durationMS *int64
		if ms, err := a.services.Converter.DurationMS(a.ctx, meeting.AudioPath); err == nil {
			durationMS = &ms
		}
		if _, err := a.services.Store.MigrateLegacyAudio(id, durationMS); err != nil {
			a.services.Log.Warn("legacy audio migration failed", "meetingId", id, "error", err)
		} else {
			meeting, err = a.services.Store.GetMeeting(id)
			if err != nil {
				return domain.Meeting{}, err
			}
		}
	}

	a.meetingMu.Lock()
	a.activeMeeting = id
	a.meetingMu.Unlock()
	return meeting, nil
}

// CloseMeeting clears the active meeting if id is still the one open.
func (a *App) CloseMeeting(id string) {
	a.meetingMu.Lock()
	if a.activeMeeting == id {
		a.activeMeeting = ""
	}
	a.meetingMu.Unlock()
}

// EndMeeting stamps a meeting's end time.
func (a *App) EndMeeting(id string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Store.EndMeeting(id)
}

// DeleteMeeting removes a meeting, its sources and its transcript.
func (a *App) DeleteMeeting(id string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.CloseMeeting(id)
	return a.services.Store.DeleteMeeting(id)
}

// StartRecording begins live capture and transcription for a meeting.
func (a *App) StartRecording(meetingID string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.services.Controller.Start(a.ctx, meetingID); err != nil {
		a.SessionError(domain.ErrorCodeTranscription, err.Error())
		return err
	}
	return nil
}

// StopRecording ends the active capture session and returns the finished
// recorded segment.
func (a *App) StopRecording() (domain.RecordedSegment, error) {
	if err := a.requireReady(); err != nil {
		return domain.RecordedSegment{}, err
	}
	segment, err := a.services.Controller.Stop(a.ctx)
	if err != nil {
		if !errors.Is(err, usecase.ErrNoActiveSession) {
			a.SessionError(domain.ErrorCodeTranscription, err.Error())
		}
		return domain.RecordedSegment{}, err
	}
	return segment, nil
}

// AbortRecording discards the active capture session.
func (a *App) AbortRecording() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.services.Controller.Abort(); err != nil {
		if errors.Is(err, usecase.ErrNoActiveSession) {
			return nil
		}
		return err
	}
	return nil
}

// RecordingStatus reports which meeting is recording, if any.
func (a *App) RecordingStatus() map[string]string {
	if a.services.Controller == nil {
		return map[string]string{"state": string(domain.SessionStateIdle)}
	}
	meetingID, state := a.services.Controller.Status()
	return map[string]string{
		"meetingId": meetingID,
		"state":     string(state),
	}
}

// UploadAudio converts an external audio file and attaches it to a meeting.
// Transcription is a separate step so a slow provider never blocks the import.
func (a *App) UploadAudio(meetingID, sourcePath, speakerLabel string) (domain.UploadedFile, error) {
	if err := a.requireReady(); err != nil {
		return domain.UploadedFile{}, err
	}
	upload, err := a.services.Uploads.Ingest(a.ctx, meetingID, sourcePath, speakerLabel)
	if err != nil {
		a.SessionError(domain.ErrorCodeUpload, err.Error())
		return domain.UploadedFile{}, err
	}
	a.SourceOrderChanged(meetingID)
	return upload, nil
}

// TranscribeUpload starts background transcription of an uploaded file.
// Progress lands as upload status events.
func (a *App) TranscribeUpload(uploadID int64) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	go func() {
		if _, err := a.services.Uploads.Transcribe(a.ctx, uploadID); err != nil {
			a.SessionError(domain.ErrorCodeTranscription, err.Error())
		}
	}()
	return nil
}

// RetranscribeSegment re-runs batch transcription for a recorded segment.
func (a *App) RetranscribeSegment(segmentID int64) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	go func() {
		if _, err := a.services.Batch.RetranscribeSegment(a.ctx, segmentID); err != nil {
			a.SessionError(domain.ErrorCodeTranscription, err.Error())
		}
	}()
	return nil
}

// SetUploadSpeaker renames the speaker label of an upload's transcript.
func (a *App) SetUploadSpeaker(uploadID int64, speakerLabel string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Uploads.SetSpeaker(uploadID, speakerLabel)
}

// DeleteUpload removes an uploaded file along with its transcript.
func (a *App) DeleteUpload(uploadID int64) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	upload, err := a.services.Store.GetUploadedFile(uploadID)
	if err != nil {
		return err
	}
	if err := a.services.Uploads.Delete(uploadID); err != nil {
		return err
	}
	a.SourceOrderChanged(upload.Meeting)
	return nil
}

// SourceInfo is the UI-facing shape of one audio source.
type SourceInfo struct {
	Kind         domain.SourceKind          `json:"kind"`
	ID           int64                      `json:"id"`
	DisplayOrder int                        `json:"displayOrder"`
	CreatedAt    time.Time                  `json:"createdAt"`
	SegmentIndex int                        `json:"segmentIndex,omitempty"`
	DurationMS   *int64                     `json:"durationMs,omitempty"`
	Filename     string                     `json:"filename,omitempty"`
	SpeakerLabel string                     `json:"speakerLabel,omitempty"`
	Status       domain.TranscriptionStatus `json:"status,omitempty"`
}

// ListAudioSources returns a meeting's sources in display order.
func (a *App) ListAudioSources(meetingID string) ([]SourceInfo, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	sources, err := a.services.Orders.List(meetingID)
	if err != nil {
		return nil, err
	}

	infos := make([]SourceInfo, 0, len(sources))
	for _, source := range sources {
		info := SourceInfo{
			Kind:         source.Kind(),
			ID:           source.SourceID(),
			DisplayOrder: source.DisplayOrder(),
			CreatedAt:    source.CreatedAt(),
		}
		if segment, ok := domain.AsRecordedSegment(source); ok {
			info.SegmentIndex = segment.SegmentIndex
			info.DurationMS = segment.DurationMS
		}
		if upload, ok := domain.AsUploadedFile(source); ok {
			info.DurationMS = upload.DurationMS
			info.Filename = upload.OriginalFilename
			info.SpeakerLabel = upload.SpeakerLabel
			info.Status = upload.Status
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// ReorderAudioSources applies a full reordering of a meeting's sources.
func (a *App) ReorderAudioSources(meetingID string, moves []usecase.Move) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Orders.Reorder(meetingID, moves)
}

// MoveAudioSource moves the source at index one step up or down.
func (a *App) MoveAudioSource(meetingID string, index int, direction string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	switch usecase.MoveDirection(direction) {
	case usecase.MoveUp, usecase.MoveDown:
	default:
		return fmt.Errorf("unknown move direction %q", direction)
	}
	return a.services.Orders.MoveAdjacent(meetingID, index, usecase.MoveDirection(direction))
}

// GetTranscript returns the grouped, filtered transcript view of a meeting.
func (a *App) GetTranscript(meetingID string, filters domain.TranscriptFilters) ([]domain.SourceSection, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	segments, err := a.services.Store.GetSegments(meetingID)
	if err != nil {
		return nil, err
	}
	sources, err := a.services.Orders.List(meetingID)
	if err != nil {
		return nil, err
	}
	return usecase.Project(segments, sources, filters), nil
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	return map[string]string{
		"provider":      "Deepgram",
		"model":         a.cfg.Deepgram.Model,
		"language":      a.cfg.Deepgram.Language,
		"database":      a.cfg.Storage.DatabasePath,
		"recordingsDir": a.cfg.Storage.RecordingsDir,
		"rulesFile":     a.cfg.Rules.Path,
		"audioInput":    a.cfg.Audio.InputDevice,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services.Controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(meetingID string, state domain.SessionState, reason domain.SessionStateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventSession, map[string]string{
		"meetingId": meetingID,
		"state":     string(state),
		"reason":    string(reason),
	})
}

// TranscriptUpdated tells the frontend to refresh a meeting's transcript.
func (a *App) TranscriptUpdated(meetingID string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventTranscript, map[string]string{"meetingId": meetingID})
}

// UploadStatusChanged emits upload transcription progress.
func (a *App) UploadStatusChanged(meetingID string, uploadID int64, status domain.TranscriptionStatus) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventUpload, map[string]any{
		"meetingId": meetingID,
		"uploadId":  uploadID,
		"status":    string(status),
	})
}

// SourceOrderChanged tells the frontend a meeting's source list changed.
func (a *App) SourceOrderChanged(meetingID string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventSourceOrder, map[string]string{"meetingId": meetingID})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":   string(code),
		"detail": detail,
	})
}
