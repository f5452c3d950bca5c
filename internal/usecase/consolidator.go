package usecase

import (
	"fmt"
	"strings"
	"sync"

	"notedeck/internal/domain"
	"notedeck/internal/logging"
	"notedeck/internal/ports"
)

// segmentTail is the explicit handle to the newest live segment, returned by
// the store on append. The merge step extends it instead of re-reading the
// store's last row.
type segmentTail struct {
	id      int64
	speaker string
	text    string
	end     float64
}

// Consolidator folds incremental live transcription updates into the segment
// store, merging consecutive same-speaker chunks so no two adjacent stored
// segments share a speaker label.
type Consolidator struct {
	segments ports.SegmentStore
	log      *logging.Logger

	mu        sync.Mutex
	active    bool
	meetingID string
	tail      *segmentTail
}

func NewConsolidator(segments ports.SegmentStore, log *logging.Logger) *Consolidator {
	return &Consolidator{segments: segments, log: log}
}

// Begin marks meetingID as the active live session. Any previous session's
// tail is abandoned; its segments stay in the store untouched.
func (c *Consolidator) Begin(meetingID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = true
	c.meetingID = meetingID
	c.tail = nil
}

// Deactivate ends the active session without a final update (explicit stop
// or abort). Later updates for the same meeting id belong to a new session.
func (c *Consolidator) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	c.tail = nil
}

// ActiveMeeting reports the meeting of the current live session, if any.
func (c *Consolidator) ActiveMeeting() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return "", false
	}
	return c.meetingID, true
}

// ApplyLiveUpdate folds chunks into the store. Updates for a meeting that is
// not the active session are discarded: they are stale deliveries from a
// session that already ended, not errors. Chunk timestamps are taken as
// given; out-of-order starts are logged but not rejected.
func (c *Consolidator) ApplyLiveUpdate(meetingID, speaker string, chunks []domain.TimedText, isFinal bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active || c.meetingID != meetingID {
		c.log.Warn("discarding stale live update",
			"meetingId", meetingID,
			"activeMeetingId", c.meetingID,
			"sessionActive", c.active,
			"chunks", len(chunks),
		)
		return nil
	}

	for _, chunk := range chunks {
		text := strings.TrimSpace(chunk.Text)
		if text == "" {
			continue
		}
		if c.tail != nil && chunk.Start < c.tail.end {
			c.log.Warn("live chunk starts before session tail",
				"meetingId", meetingID,
				"chunkStart", chunk.Start,
				"tailEnd", c.tail.end,
			)
		}

		if c.tail != nil && c.tail.speaker == speaker {
			merged := c.tail.text + " " + text
			if err := c.segments.ExtendSegment(c.tail.id, merged, chunk.End); err != nil {
				return fmt.Errorf("extend live segment %d: %w", c.tail.id, err)
			}
			c.tail.text = merged
			c.tail.end = chunk.End
			continue
		}

		ids, err := c.segments.AppendSegments(meetingID, []domain.NewSegment{{
			StartTime: chunk.Start,
			EndTime:   chunk.End,
			Text:      text,
			Speaker:   speaker,
			Source:    domain.Provenance{Type: domain.SourceTypeLive},
		}})
		if err != nil {
			return fmt.Errorf("append live segment: %w", err)
		}
		c.tail = &segmentTail{id: ids[0], speaker: speaker, text: text, end: chunk.End}
	}

	if isFinal {
		c.active = false
		c.tail = nil
	}
	return nil
}
