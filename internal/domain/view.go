package domain

// SpeakerFilter selects which speakers the grouped transcript view keeps.
type SpeakerFilter string

const (
	SpeakerFilterAll SpeakerFilter = "all"
	// SpeakerFilterYou keeps segments with any non-empty label except "Others".
	SpeakerFilterYou SpeakerFilter = "you"
	// SpeakerFilterOthers keeps segments labeled exactly "Others".
	SpeakerFilterOthers SpeakerFilter = "others"
)

// TranscriptFilters narrows the grouped transcript view.
type TranscriptFilters struct {
	Speaker SpeakerFilter `json:"speaker,omitempty"`
	Text    string        `json:"text,omitempty"`
}

// SpeakerRun is a maximal consecutive run of segments sharing a speaker label
// within one source section. Recomputed on every read, never stored.
type SpeakerRun struct {
	Speaker   string              `json:"speaker,omitempty"`
	StartTime float64             `json:"startTime"`
	EndTime   float64             `json:"endTime"`
	Text      string              `json:"text"`
	Segments  []TranscriptSegment `json:"segments"`
}

// SourceSection groups the transcript of one audio source. Source is nil for
// the live session, legacy segments and stale provenance references.
type SourceSection struct {
	Key      string      `json:"key"`
	Type     SourceType  `json:"type"`
	SourceID int64       `json:"sourceId,omitempty"`
	Source   AudioSource `json:"source,omitempty"`
	Runs     []SpeakerRun `json:"runs"`
}
