package usecase

import (
	"fmt"
	"sort"
	"strings"

	"notedeck/internal/domain"
)

const (
	sectionKeyLive   = "live"
	sectionKeyLegacy = "legacy"
)

// sectionRank is the resolved display position of one section. The live
// session always renders first, legacy and stale-provenance sections always
// last; everything else follows the source order register.
type sectionRank struct {
	last  bool
	order int
}

func rankLess(a, b sectionRank) bool {
	if a.last != b.last {
		return !a.last
	}
	return a.order < b.order
}

// Project groups transcript segments by source, orders sections by the
// supplied source ordering, folds consecutive same-speaker segments into
// runs and applies filters. It is pure: it reads its inputs, mutates
// nothing, and holds no cache across calls.
func Project(segments []domain.TranscriptSegment, sources []domain.AudioSource, filters domain.TranscriptFilters) []domain.SourceSection {
	parts := make(map[string][]domain.TranscriptSegment)
	for _, seg := range segments {
		parts[sectionKey(seg.Source)] = append(parts[sectionKey(seg.Source)], seg)
	}

	bySource := make(map[string]domain.AudioSource, len(sources))
	position := make(map[string]int, len(sources))
	for i, src := range sources {
		key := sectionKey(domain.ProvenanceOf(src))
		bySource[key] = src
		position[key] = i
	}

	keys := make([]string, 0, len(parts))
	for key := range parts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := resolveRank(keys[i], position), resolveRank(keys[j], position)
		if ri != rj {
			return rankLess(ri, rj)
		}
		return keys[i] < keys[j]
	})

	sections := make([]domain.SourceSection, 0, len(keys))
	for _, key := range keys {
		secSegments := append([]domain.TranscriptSegment(nil), parts[key]...)
		sort.SliceStable(secSegments, func(i, j int) bool {
			return secSegments[i].StartTime < secSegments[j].StartTime
		})
		secSegments = filterSpeaker(secSegments, filters.Speaker)
		secSegments = filterText(secSegments, filters.Text)
		if len(secSegments) == 0 {
			continue
		}

		first := parts[key][0]
		sections = append(sections, domain.SourceSection{
			Key:      key,
			Type:     sectionType(first.Source),
			SourceID: first.Source.ID,
			Source:   bySource[key],
			Runs:     foldRuns(secSegments),
		})
	}
	return sections
}

func sectionKey(p domain.Provenance) string {
	switch p.Type {
	case domain.SourceTypeUpload:
		return fmt.Sprintf("upload-%d", p.ID)
	case domain.SourceTypeSegment:
		return fmt.Sprintf("segment-%d", p.ID)
	case domain.SourceTypeLive:
		return sectionKeyLive
	default:
		return sectionKeyLegacy
	}
}

func sectionType(p domain.Provenance) domain.SourceType {
	if p.Type == "" {
		return domain.SourceTypeLegacy
	}
	return p.Type
}

func resolveRank(key string, position map[string]int) sectionRank {
	switch key {
	case sectionKeyLive:
		return sectionRank{order: -1}
	case sectionKeyLegacy:
		return sectionRank{last: true}
	}
	pos, ok := position[key]
	if !ok {
		// Stale reference to a deleted source: still rendered, sorted last,
		// never silently hidden.
		return sectionRank{last: true}
	}
	return sectionRank{order: pos}
}

func filterSpeaker(segments []domain.TranscriptSegment, filter domain.SpeakerFilter) []domain.TranscriptSegment {
	switch filter {
	case domain.SpeakerFilterYou:
		return keep(segments, func(s domain.TranscriptSegment) bool {
			return s.Speaker != "" && s.Speaker != domain.SpeakerOthers
		})
	case domain.SpeakerFilterOthers:
		return keep(segments, func(s domain.TranscriptSegment) bool {
			return s.Speaker == domain.SpeakerOthers
		})
	default:
		return segments
	}
}

// filterText runs before the speaker-run fold so a match inside one segment
// of a run is not lost when its neighbors miss.
func filterText(segments []domain.TranscriptSegment, query string) []domain.TranscriptSegment {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return segments
	}
	return keep(segments, func(s domain.TranscriptSegment) bool {
		return strings.Contains(strings.ToLower(s.Text), query)
	})
}

func keep(segments []domain.TranscriptSegment, pred func(domain.TranscriptSegment) bool) []domain.TranscriptSegment {
	var out []domain.TranscriptSegment
	for _, s := range segments {
		if pred(s) {
			out = append(out, s)
		}
	}
	return out
}

// foldRuns merges consecutive equal-speaker segments into SpeakerRuns. Same
// merge rule as the live consolidator, applied read-side only.
func foldRuns(segments []domain.TranscriptSegment) []domain.SpeakerRun {
	var runs []domain.SpeakerRun
	for _, seg := range segments {
		if n := len(runs); n > 0 && runs[n-1].Speaker == seg.Speaker {
			run := &runs[n-1]
			run.Text = run.Text + " " + seg.Text
			run.EndTime = seg.EndTime
			run.Segments = append(run.Segments, seg)
			continue
		}
		runs = append(runs, domain.SpeakerRun{
			Speaker:   seg.Speaker,
			StartTime: seg.StartTime,
			EndTime:   seg.EndTime,
			Text:      seg.Text,
			Segments:  []domain.TranscriptSegment{seg},
		})
	}
	return runs
}
