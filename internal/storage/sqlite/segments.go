package sqlite

import (
	"database/sql"
	"fmt"

	"notedeck/internal/domain"
)

// AppendSegments inserts segments in one transaction and returns their row
// ids in input order.
func (s *Store) AppendSegments(meetingID string, segments []domain.NewSegment) ([]int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO transcript_segments
		 (meeting_id, start_time, end_time, text, speaker, source_type, source_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare append: %w", err)
	}
	defer stmt.Close()

	now := nowRFC3339()
	ids := make([]int64, 0, len(segments))
	for _, seg := range segments {
		res, err := stmt.Exec(
			meetingID, seg.StartTime, seg.EndTime, seg.Text,
			nullIfEmpty(seg.Speaker),
			nullIfEmpty(string(seg.Source.Type)),
			nullIfZero(seg.Source.ID),
			now,
		)
		if err != nil {
			return nil, fmt.Errorf("insert segment: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("segment id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return ids, nil
}

// ExtendSegment rewrites the text and end time of one segment in place.
func (s *Store) ExtendSegment(id int64, text string, endTime float64) error {
	res, err := s.db.Exec(
		`UPDATE transcript_segments SET text = ?, end_time = ? WHERE id = ?`,
		text, endTime, id,
	)
	if err != nil {
		return fmt.Errorf("extend segment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("segment %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) GetSegments(meetingID string) ([]domain.TranscriptSegment, error) {
	rows, err := s.db.Query(
		`SELECT id, meeting_id, start_time, end_time, text, speaker, source_type, source_id, created_at
		 FROM transcript_segments
		 WHERE meeting_id = ?
		 ORDER BY start_time ASC, id ASC`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var segments []domain.TranscriptSegment
	for rows.Next() {
		var seg domain.TranscriptSegment
		var speaker, sourceType sql.NullString
		var sourceID sql.NullInt64
		var createdAt string
		if err := rows.Scan(&seg.ID, &seg.MeetingID, &seg.StartTime, &seg.EndTime,
			&seg.Text, &speaker, &sourceType, &sourceID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		if speaker.Valid {
			seg.Speaker = speaker.String
		}
		if sourceType.Valid {
			seg.Source.Type = domain.SourceType(sourceType.String)
		}
		if sourceID.Valid {
			seg.Source.ID = sourceID.Int64
		}
		seg.CreatedAt = parseTime(createdAt)
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

func (s *Store) DeleteSegmentsBySource(source domain.Provenance) error {
	_, err := s.db.Exec(
		`DELETE FROM transcript_segments WHERE source_type = ? AND source_id = ?`,
		string(source.Type), source.ID,
	)
	if err != nil {
		return fmt.Errorf("delete segments by source: %w", err)
	}
	return nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullIfZero(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
