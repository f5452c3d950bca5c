package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"notedeck/internal/domain"
	"notedeck/internal/ports"
)

type fakeSegmentStore struct {
	mu       sync.Mutex
	nextID   int64
	segments []domain.TranscriptSegment

	appendErr error
	extendErr error

	extendCalls int
}

func newFakeSegmentStore() *fakeSegmentStore {
	return &fakeSegmentStore{}
}

func (f *fakeSegmentStore) AppendSegments(meetingID string, segments []domain.NewSegment) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	ids := make([]int64, 0, len(segments))
	for _, seg := range segments {
		f.nextID++
		f.segments = append(f.segments, domain.TranscriptSegment{
			ID:        f.nextID,
			MeetingID: meetingID,
			StartTime: seg.StartTime,
			EndTime:   seg.EndTime,
			Text:      seg.Text,
			Speaker:   seg.Speaker,
			Source:    seg.Source,
			CreatedAt: time.Now(),
		})
		ids = append(ids, f.nextID)
	}
	return ids, nil
}

func (f *fakeSegmentStore) ExtendSegment(id int64, text string, endTime float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extendCalls++
	if f.extendErr != nil {
		return f.extendErr
	}
	for i := range f.segments {
		if f.segments[i].ID == id {
			f.segments[i].Text = text
			f.segments[i].EndTime = endTime
			return nil
		}
	}
	return errors.New("segment not found")
}

func (f *fakeSegmentStore) GetSegments(meetingID string) ([]domain.TranscriptSegment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TranscriptSegment
	for _, seg := range f.segments {
		if seg.MeetingID == meetingID {
			out = append(out, seg)
		}
	}
	return out, nil
}

func (f *fakeSegmentStore) DeleteSegmentsBySource(source domain.Provenance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []domain.TranscriptSegment
	for _, seg := range f.segments {
		if seg.Source != source {
			kept = append(kept, seg)
		}
	}
	f.segments = kept
	return nil
}

func (f *fakeSegmentStore) snapshot() []domain.TranscriptSegment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TranscriptSegment(nil), f.segments...)
}

type fakeSourceStore struct {
	mu       sync.Mutex
	nextID   int64
	segments map[int64]domain.RecordedSegment
	uploads  map[int64]domain.UploadedFile

	persistErr    error
	persistCalls  int
	persistedRefs []domain.SourceRef
	persistGate   chan struct{}
}

func newFakeSourceStore() *fakeSourceStore {
	return &fakeSourceStore{
		segments: make(map[int64]domain.RecordedSegment),
		uploads:  make(map[int64]domain.UploadedFile),
	}
}

func (f *fakeSourceStore) AddRecordedSegment(meetingID string, segmentIndex int, micPath, systemPath string, startOffsetMS int64) (domain.RecordedSegment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	seg := domain.RecordedSegment{
		ID:            f.nextID,
		Meeting:       meetingID,
		SegmentIndex:  segmentIndex,
		MicPath:       micPath,
		SystemPath:    systemPath,
		StartOffsetMS: startOffsetMS,
		Order:         f.nextOrderLocked(meetingID),
		Created:       time.Now(),
	}
	f.segments[seg.ID] = seg
	return seg, nil
}

func (f *fakeSourceStore) SetSegmentDuration(id int64, durationMS int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	seg, ok := f.segments[id]
	if !ok {
		return errors.New("segment not found")
	}
	seg.DurationMS = &durationMS
	f.segments[id] = seg
	return nil
}

func (f *fakeSourceStore) GetRecordedSegment(id int64) (domain.RecordedSegment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seg, ok := f.segments[id]
	if !ok {
		return domain.RecordedSegment{}, errors.New("segment not found")
	}
	return seg, nil
}

func (f *fakeSourceStore) NextSegmentIndex(meetingID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	max := -1
	for _, seg := range f.segments {
		if seg.Meeting == meetingID && seg.SegmentIndex > max {
			max = seg.SegmentIndex
		}
	}
	return max + 1, nil
}

func (f *fakeSourceStore) AddUploadedFile(meetingID, filePath, originalFilename string, durationMS *int64, speakerLabel string) (domain.UploadedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	up := domain.UploadedFile{
		ID:               f.nextID,
		Meeting:          meetingID,
		FilePath:         filePath,
		OriginalFilename: originalFilename,
		DurationMS:       durationMS,
		SpeakerLabel:     speakerLabel,
		Status:           domain.TranscriptionPending,
		Order:            f.nextOrderLocked(meetingID),
		Created:          time.Now(),
	}
	f.uploads[up.ID] = up
	return up, nil
}

func (f *fakeSourceStore) GetUploadedFile(id int64) (domain.UploadedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	up, ok := f.uploads[id]
	if !ok {
		return domain.UploadedFile{}, errors.New("upload not found")
	}
	return up, nil
}

func (f *fakeSourceStore) SetUploadStatus(id int64, status domain.TranscriptionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	up, ok := f.uploads[id]
	if !ok {
		return errors.New("upload not found")
	}
	up.Status = status
	f.uploads[id] = up
	return nil
}

func (f *fakeSourceStore) SetUploadSpeaker(id int64, speakerLabel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	up, ok := f.uploads[id]
	if !ok {
		return errors.New("upload not found")
	}
	up.SpeakerLabel = speakerLabel
	f.uploads[id] = up
	return nil
}

func (f *fakeSourceStore) DeleteUploadedFile(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.uploads[id]; !ok {
		return errors.New("upload not found")
	}
	delete(f.uploads, id)
	return nil
}

func (f *fakeSourceStore) ListSources(meetingID string) ([]domain.AudioSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AudioSource
	for _, seg := range f.segments {
		if seg.Meeting == meetingID {
			out = append(out, seg)
		}
	}
	for _, up := range f.uploads {
		if up.Meeting == meetingID {
			out = append(out, up)
		}
	}
	return out, nil
}

func (f *fakeSourceStore) PersistOrder(meetingID string, refs []domain.SourceRef) error {
	if f.persistGate != nil {
		<-f.persistGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persistCalls++
	if f.persistErr != nil {
		return f.persistErr
	}
	for i, ref := range refs {
		switch ref.Kind {
		case domain.SourceKindSegment:
			seg := f.segments[ref.ID]
			seg.Order = i
			f.segments[ref.ID] = seg
		case domain.SourceKindUpload:
			up := f.uploads[ref.ID]
			up.Order = i
			f.uploads[ref.ID] = up
		}
	}
	f.persistedRefs = append([]domain.SourceRef(nil), refs...)
	return nil
}

func (f *fakeSourceStore) MigrateLegacyAudio(string, *int64) (*domain.RecordedSegment, error) {
	return nil, nil
}

func (f *fakeSourceStore) nextOrderLocked(meetingID string) int {
	next := 0
	for _, seg := range f.segments {
		if seg.Meeting == meetingID && seg.Order >= next {
			next = seg.Order + 1
		}
	}
	for _, up := range f.uploads {
		if up.Meeting == meetingID && up.Order >= next {
			next = up.Order + 1
		}
	}
	return next
}

type stateEvent struct {
	meetingID string
	state     domain.SessionState
	reason    domain.SessionStateReason
}

type uploadEvent struct {
	meetingID string
	uploadID  int64
	status    domain.TranscriptionStatus
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

type fakeEventSink struct {
	mu sync.Mutex

	states       []stateEvent
	transcripts  []string
	uploads      []uploadEvent
	orderChanges []string
	errors       []errEvent
}

func (f *fakeEventSink) SessionStateChanged(meetingID string, state domain.SessionState, reason domain.SessionStateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{meetingID: meetingID, state: state, reason: reason})
}

func (f *fakeEventSink) TranscriptUpdated(meetingID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, meetingID)
}

func (f *fakeEventSink) UploadStatusChanged(meetingID string, uploadID int64, status domain.TranscriptionStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, uploadEvent{meetingID: meetingID, uploadID: uploadID, status: status})
}

func (f *fakeEventSink) SourceOrderChanged(meetingID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderChanges = append(f.orderChanges, meetingID)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stateEvent(nil), f.states...)
}

func (f *fakeEventSink) snapshotTranscripts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.transcripts...)
}

func (f *fakeEventSink) snapshotUploads() []uploadEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uploadEvent(nil), f.uploads...)
}

type fakeAudioCapture struct {
	sessions []ports.AudioSession
	err      error
	calls    int
}

func (f *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig, outputPath string) (ports.AudioSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no audio session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	if fs, ok := session.(*fakeAudioSession); ok && fs.path == "" {
		fs.path = outputPath
	}
	return session, nil
}

type fakeAudioSession struct {
	mu        sync.Mutex
	chunks    [][]byte
	index     int
	stopCalls int
	stopErr   error
	path      string
}

func (f *fakeAudioSession) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index >= len(f.chunks) {
		return 0, io.EOF
	}
	n := copy(p, f.chunks[f.index])
	f.index++
	return n, nil
}

func (f *fakeAudioSession) Close() error { return nil }

func (f *fakeAudioSession) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return f.stopErr
}

func (f *fakeAudioSession) OutputPath() string { return f.path }

type fakeProvider struct {
	mu       sync.Mutex
	sessions []ports.LiveSession
	liveErr  error
	calls    int

	batchResults map[string]domain.TranscriptionResult
	batchErrs    map[string]error
}

func (f *fakeProvider) StartLive(_ context.Context, _ string, _ ports.StreamingConfig) (ports.LiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.liveErr != nil {
		return nil, f.liveErr
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no live session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	return session, nil
}

func (f *fakeProvider) TranscribeBatch(_ context.Context, audioPath string) (domain.TranscriptionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.batchErrs[audioPath]; ok {
		return domain.TranscriptionResult{}, err
	}
	if result, ok := f.batchResults[audioPath]; ok {
		return result, nil
	}
	return domain.TranscriptionResult{}, fmt.Errorf("no result configured for %s", audioPath)
}

type fakeLiveSession struct {
	updates    chan ports.LiveUpdate
	waitErr    error
	mu         sync.Mutex
	closeSend  int
	closeCalls int
	closed     bool
}

func newFakeLiveSession() *fakeLiveSession {
	return &fakeLiveSession{updates: make(chan ports.LiveUpdate, 16)}
}

func (f *fakeLiveSession) SendAudio(_ []byte) error { return nil }

func (f *fakeLiveSession) CloseSend() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeSend++
	if !f.closed {
		close(f.updates)
		f.closed = true
	}
	return nil
}

func (f *fakeLiveSession) Updates() <-chan ports.LiveUpdate { return f.updates }

func (f *fakeLiveSession) Wait() error {
	time.Sleep(5 * time.Millisecond)
	return f.waitErr
}

func (f *fakeLiveSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	if !f.closed {
		close(f.updates)
		f.closed = true
	}
	return nil
}

type fakeConverter struct {
	convertErr  error
	durationMS  int64
	durationOK  bool
	unsupported bool
}

func (f *fakeConverter) ConvertToWAV(_ context.Context, _, destPath string) error {
	if f.convertErr != nil {
		return f.convertErr
	}
	return os.WriteFile(destPath, []byte("RIFF"), 0o600)
}

func (f *fakeConverter) DurationMS(_ context.Context, _ string) (int64, error) {
	if !f.durationOK {
		return 0, errors.New("no duration")
	}
	return f.durationMS, nil
}

func (f *fakeConverter) IsSupportedFormat(_ string) bool {
	return !f.unsupported
}
