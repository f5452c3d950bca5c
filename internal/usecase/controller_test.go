package usecase

import (
	"context"
	"errors"
	"testing"

	"notedeck/internal/domain"
	"notedeck/internal/logging"
	"notedeck/internal/ports"
)

func newTestController(capture *fakeAudioCapture, provider *fakeProvider, sources *fakeSourceStore, segments *fakeSegmentStore, events *fakeEventSink) *SessionController {
	return NewSessionController(
		capture,
		provider,
		NewConsolidator(segments, logging.NewNop()),
		sources,
		events,
		logging.NewNop(),
		Config{ChunkSize: 512, StreamingGrace: 0},
	)
}

func TestSessionControllerStartStopSuccess(t *testing.T) {
	t.Parallel()

	audioSession := &fakeAudioSession{chunks: [][]byte{[]byte("abc")}}
	stream := newFakeLiveSession()
	stream.updates <- ports.LiveUpdate{
		MeetingID: "m1",
		Speaker:   domain.SpeakerYou,
		Chunks:    []domain.TimedText{{Start: 0, End: 1, Text: "hello world"}},
	}
	segments := newFakeSegmentStore()
	sources := newFakeSourceStore()
	events := &fakeEventSink{}
	controller := newTestController(
		&fakeAudioCapture{sessions: []ports.AudioSession{audioSession}},
		&fakeProvider{sessions: []ports.LiveSession{stream}},
		sources, segments, events,
	)

	if err := controller.Start(context.Background(), "m1"); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	segment, err := controller.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if segment.Meeting != "m1" || segment.SegmentIndex != 0 {
		t.Fatalf("unexpected segment: %+v", segment)
	}
	if segment.DurationMS == nil {
		t.Fatalf("stop must finalize the segment duration")
	}
	if segment.MicPath == "" || segment.MicPath != audioSession.OutputPath() {
		t.Fatalf("segment must record the capture session's output path: %q vs %q", segment.MicPath, audioSession.OutputPath())
	}

	stored := segments.snapshot()
	if len(stored) != 1 || stored[0].Text != "hello world" {
		t.Fatalf("live transcript missing: %+v", stored)
	}
	if stored[0].Source.Type != domain.SourceTypeLive {
		t.Fatalf("live segments must carry live provenance, got %q", stored[0].Source.Type)
	}

	states := events.snapshotStates()
	if len(states) < 3 {
		t.Fatalf("expected at least 3 state transitions, got %d", len(states))
	}
	if states[0].reason != domain.SessionReasonRecordingStarted {
		t.Fatalf("unexpected first reason: %s", states[0].reason)
	}
	if states[len(states)-1].reason != domain.SessionReasonRecordingStopped {
		t.Fatalf("unexpected final reason: %s", states[len(states)-1].reason)
	}

	if updates := events.snapshotTranscripts(); len(updates) == 0 || updates[0] != "m1" {
		t.Fatalf("expected transcript update event for m1")
	}
}

func TestSessionControllerStopWithoutActiveSession(t *testing.T) {
	t.Parallel()

	controller := newTestController(
		&fakeAudioCapture{}, &fakeProvider{},
		newFakeSourceStore(), newFakeSegmentStore(), &fakeEventSink{},
	)

	if _, err := controller.Stop(context.Background()); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestSessionControllerAbortDiscardsSession(t *testing.T) {
	t.Parallel()

	audioSession := &fakeAudioSession{chunks: [][]byte{[]byte("abc")}}
	stream := newFakeLiveSession()
	events := &fakeEventSink{}
	controller := newTestController(
		&fakeAudioCapture{sessions: []ports.AudioSession{audioSession}},
		&fakeProvider{sessions: []ports.LiveSession{stream}},
		newFakeSourceStore(), newFakeSegmentStore(), events,
	)

	if err := controller.Start(context.Background(), "m1"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := controller.Abort(); err != nil {
		t.Fatalf("abort failed: %v", err)
	}

	if meetingID, state := controller.Status(); meetingID != "" || state != domain.SessionStateIdle {
		t.Fatalf("expected idle after abort, got %s/%s", meetingID, state)
	}
	states := events.snapshotStates()
	if states[len(states)-1].reason != domain.SessionReasonRecordingDiscarded {
		t.Fatalf("expected discarded reason, got %s", states[len(states)-1].reason)
	}
}

func TestSessionControllerRestartStopsPreviousSession(t *testing.T) {
	t.Parallel()

	firstAudio := &fakeAudioSession{chunks: [][]byte{[]byte("a")}}
	secondAudio := &fakeAudioSession{chunks: [][]byte{[]byte("b")}}
	firstStream := newFakeLiveSession()
	secondStream := newFakeLiveSession()
	sources := newFakeSourceStore()
	events := &fakeEventSink{}
	controller := newTestController(
		&fakeAudioCapture{sessions: []ports.AudioSession{firstAudio, secondAudio}},
		&fakeProvider{sessions: []ports.LiveSession{firstStream, secondStream}},
		sources, newFakeSegmentStore(), events,
	)

	if err := controller.Start(context.Background(), "m1"); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := controller.Start(context.Background(), "m2"); err != nil {
		t.Fatalf("second start failed: %v", err)
	}

	if firstAudio.stopCalls == 0 {
		t.Fatalf("previous audio session must be stopped on restart")
	}
	if firstStream.closeCalls == 0 {
		t.Fatalf("previous stream must be closed on restart")
	}
	states := events.snapshotStates()
	if states[len(states)-1].reason != domain.SessionReasonRecordingRestarted {
		t.Fatalf("expected recording_restarted, got %s", states[len(states)-1].reason)
	}
	if meetingID, _ := controller.Status(); meetingID != "m2" {
		t.Fatalf("expected m2 active, got %q", meetingID)
	}
}

func TestSessionControllerSegmentIndexAndOffsetAdvance(t *testing.T) {
	t.Parallel()

	sources := newFakeSourceStore()
	// A previous 90s segment already exists.
	prior, err := sources.AddRecordedSegment("m1", 0, "m1_seg0_mic.wav", "", 0)
	if err != nil {
		t.Fatalf("seed segment failed: %v", err)
	}
	if err := sources.SetSegmentDuration(prior.ID, 90_000); err != nil {
		t.Fatalf("seed duration failed: %v", err)
	}

	audioSession := &fakeAudioSession{chunks: [][]byte{[]byte("a")}}
	stream := newFakeLiveSession()
	controller := newTestController(
		&fakeAudioCapture{sessions: []ports.AudioSession{audioSession}},
		&fakeProvider{sessions: []ports.LiveSession{stream}},
		sources, newFakeSegmentStore(), &fakeEventSink{},
	)

	if err := controller.Start(context.Background(), "m1"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	segment, err := controller.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	if segment.SegmentIndex != 1 {
		t.Fatalf("expected segment index 1, got %d", segment.SegmentIndex)
	}
	if segment.StartOffsetMS != 90_000 {
		t.Fatalf("expected 90s start offset, got %d", segment.StartOffsetMS)
	}
}

func TestSessionControllerStaleUpdateAfterStopIsDiscarded(t *testing.T) {
	t.Parallel()

	audioSession := &fakeAudioSession{chunks: [][]byte{[]byte("a")}}
	stream := newFakeLiveSession()
	segments := newFakeSegmentStore()
	consolidator := NewConsolidator(segments, logging.NewNop())
	controller := NewSessionController(
		&fakeAudioCapture{sessions: []ports.AudioSession{audioSession}},
		&fakeProvider{sessions: []ports.LiveSession{stream}},
		consolidator,
		newFakeSourceStore(),
		&fakeEventSink{},
		logging.NewNop(),
		Config{ChunkSize: 512},
	)

	if err := controller.Start(context.Background(), "m1"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := controller.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	// A delivery that arrives after Stop targets an ended session.
	err := consolidator.ApplyLiveUpdate("m1", domain.SpeakerYou, []domain.TimedText{
		{Start: 10, End: 11, Text: "late arrival"},
	}, false)
	if err != nil {
		t.Fatalf("stale update should be discarded quietly, got %v", err)
	}
	if len(segments.snapshot()) != 0 {
		t.Fatalf("stale update must not be stored")
	}
}

func TestSessionControllerStartFailsWhenProviderFails(t *testing.T) {
	t.Parallel()

	controller := newTestController(
		&fakeAudioCapture{},
		&fakeProvider{liveErr: errors.New("no network")},
		newFakeSourceStore(), newFakeSegmentStore(), &fakeEventSink{},
	)

	if err := controller.Start(context.Background(), "m1"); err == nil {
		t.Fatalf("expected start error")
	}
	if meetingID, state := controller.Status(); meetingID != "" || state != domain.SessionStateIdle {
		t.Fatalf("failed start must leave controller idle")
	}
}
