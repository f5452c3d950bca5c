package domain

import "time"

// SourceKind distinguishes the two audio source variants.
type SourceKind string

const (
	SourceKindSegment SourceKind = "segment"
	SourceKindUpload  SourceKind = "upload"
)

// AudioSource is a recorded segment or uploaded file contributing audio to a
// meeting. The two variants share one display-order sequence per meeting.
// Consumers switch on Kind and unwrap with AsRecordedSegment/AsUploadedFile,
// so a new variant forces every switch site to be revisited.
type AudioSource interface {
	Kind() SourceKind
	SourceID() int64
	MeetingID() string
	DisplayOrder() int
	CreatedAt() time.Time
}

// RecordedSegment is audio captured in-app, one per pause/resume stretch.
type RecordedSegment struct {
	ID            int64     `json:"id"`
	Meeting       string    `json:"meetingId"`
	SegmentIndex  int       `json:"segmentIndex"`
	MicPath       string    `json:"micPath"`
	SystemPath    string    `json:"systemPath,omitempty"`
	StartOffsetMS int64     `json:"startOffsetMs"`
	DurationMS    *int64    `json:"durationMs,omitempty"`
	Order         int       `json:"displayOrder"`
	Created       time.Time `json:"createdAt"`
}

func (s RecordedSegment) Kind() SourceKind     { return SourceKindSegment }
func (s RecordedSegment) SourceID() int64      { return s.ID }
func (s RecordedSegment) MeetingID() string    { return s.Meeting }
func (s RecordedSegment) DisplayOrder() int    { return s.Order }
func (s RecordedSegment) CreatedAt() time.Time { return s.Created }

// UploadedFile is an external audio file the user attached to a meeting.
type UploadedFile struct {
	ID               int64               `json:"id"`
	Meeting          string              `json:"meetingId"`
	FilePath         string              `json:"filePath"`
	OriginalFilename string              `json:"originalFilename"`
	DurationMS       *int64              `json:"durationMs,omitempty"`
	SpeakerLabel     string              `json:"speakerLabel"`
	Status           TranscriptionStatus `json:"transcriptionStatus"`
	Order            int                 `json:"displayOrder"`
	Created          time.Time           `json:"createdAt"`
}

func (u UploadedFile) Kind() SourceKind     { return SourceKindUpload }
func (u UploadedFile) SourceID() int64      { return u.ID }
func (u UploadedFile) MeetingID() string    { return u.Meeting }
func (u UploadedFile) DisplayOrder() int    { return u.Order }
func (u UploadedFile) CreatedAt() time.Time { return u.Created }

// AsRecordedSegment unwraps the segment variant.
func AsRecordedSegment(s AudioSource) (RecordedSegment, bool) {
	seg, ok := s.(RecordedSegment)
	return seg, ok
}

// AsUploadedFile unwraps the upload variant.
func AsUploadedFile(s AudioSource) (UploadedFile, bool) {
	up, ok := s.(UploadedFile)
	return up, ok
}

// SourceRef names one audio source by variant and id.
type SourceRef struct {
	Kind SourceKind `json:"kind"`
	ID   int64      `json:"id"`
}

// RefOf returns the SourceRef identifying a source.
func RefOf(s AudioSource) SourceRef {
	return SourceRef{Kind: s.Kind(), ID: s.SourceID()}
}

// ProvenanceOf maps a source to the provenance its transcript segments carry.
func ProvenanceOf(s AudioSource) Provenance {
	switch s.Kind() {
	case SourceKindUpload:
		return Provenance{Type: SourceTypeUpload, ID: s.SourceID()}
	default:
		return Provenance{Type: SourceTypeSegment, ID: s.SourceID()}
	}
}
