package sqlite

import (
	"database/sql"
	"fmt"
	"sort"

	"notedeck/internal/domain"
)

func (s *Store) AddRecordedSegment(meetingID string, segmentIndex int, micPath, systemPath string, startOffsetMS int64) (domain.RecordedSegment, error) {
	order, err := s.nextDisplayOrder(meetingID)
	if err != nil {
		return domain.RecordedSegment{}, err
	}
	res, err := s.db.Exec(
		`INSERT INTO audio_segments
		 (meeting_id, segment_index, mic_path, system_path, start_offset_ms, display_order, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		meetingID, segmentIndex, micPath, nullIfEmpty(systemPath), startOffsetMS, order, nowRFC3339(),
	)
	if err != nil {
		return domain.RecordedSegment{}, fmt.Errorf("insert recorded segment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.RecordedSegment{}, fmt.Errorf("recorded segment id: %w", err)
	}
	return s.GetRecordedSegment(id)
}

func (s *Store) SetSegmentDuration(id int64, durationMS int64) error {
	res, err := s.db.Exec(
		`UPDATE audio_segments SET duration_ms = ? WHERE id = ?`, durationMS, id)
	if err != nil {
		return fmt.Errorf("set segment duration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("recorded segment %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) GetRecordedSegment(id int64) (domain.RecordedSegment, error) {
	row := s.db.QueryRow(
		`SELECT id, meeting_id, segment_index, mic_path, system_path, start_offset_ms, duration_ms, display_order, created_at
		 FROM audio_segments WHERE id = ?`, id)
	seg, err := scanRecordedSegment(row)
	if err == sql.ErrNoRows {
		return domain.RecordedSegment{}, fmt.Errorf("recorded segment %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.RecordedSegment{}, fmt.Errorf("scan recorded segment: %w", err)
	}
	return seg, nil
}

func (s *Store) NextSegmentIndex(meetingID string) (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRow(
		`SELECT MAX(segment_index) FROM audio_segments WHERE meeting_id = ?`, meetingID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("next segment index: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64) + 1, nil
}

func (s *Store) AddUploadedFile(meetingID, filePath, originalFilename string, durationMS *int64, speakerLabel string) (domain.UploadedFile, error) {
	order, err := s.nextDisplayOrder(meetingID)
	if err != nil {
		return domain.UploadedFile{}, err
	}
	res, err := s.db.Exec(
		`INSERT INTO uploaded_audio
		 (meeting_id, file_path, original_filename, duration_ms, speaker_label, transcription_status, display_order, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		meetingID, filePath, originalFilename, durationMS, speakerLabel,
		string(domain.TranscriptionPending), order, nowRFC3339(),
	)
	if err != nil {
		return domain.UploadedFile{}, fmt.Errorf("insert upload: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.UploadedFile{}, fmt.Errorf("upload id: %w", err)
	}
	return s.GetUploadedFile(id)
}

func (s *Store) GetUploadedFile(id int64) (domain.UploadedFile, error) {
	row := s.db.QueryRow(
		`SELECT id, meeting_id, file_path, original_filename, duration_ms, speaker_label, transcription_status, display_order, created_at
		 FROM uploaded_audio WHERE id = ?`, id)
	up, err := scanUploadedFile(row)
	if err == sql.ErrNoRows {
		return domain.UploadedFile{}, fmt.Errorf("upload %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.UploadedFile{}, fmt.Errorf("scan upload: %w", err)
	}
	return up, nil
}

func (s *Store) SetUploadStatus(id int64, status domain.TranscriptionStatus) error {
	res, err := s.db.Exec(
		`UPDATE uploaded_audio SET transcription_status = ? WHERE id = ?`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("set upload status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("upload %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) SetUploadSpeaker(id int64, speakerLabel string) error {
	res, err := s.db.Exec(
		`UPDATE uploaded_audio SET speaker_label = ? WHERE id = ?`, speakerLabel, id)
	if err != nil {
		return fmt.Errorf("set upload speaker: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("upload %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteUploadedFile(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM uploaded_audio WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	return nil
}

// ListSources returns both variants sorted by display order, ties broken by
// creation time then id.
func (s *Store) ListSources(meetingID string) ([]domain.AudioSource, error) {
	var sources []domain.AudioSource

	rows, err := s.db.Query(
		`SELECT id, meeting_id, segment_index, mic_path, system_path, start_offset_ms, duration_ms, display_order, created_at
		 FROM audio_segments WHERE meeting_id = ? ORDER BY display_order ASC, id ASC`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("query recorded segments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		seg, err := scanRecordedSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recorded segment: %w", err)
		}
		sources = append(sources, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	uploadRows, err := s.db.Query(
		`SELECT id, meeting_id, file_path, original_filename, duration_ms, speaker_label, transcription_status, display_order, created_at
		 FROM uploaded_audio WHERE meeting_id = ? ORDER BY display_order ASC, id ASC`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("query uploads: %w", err)
	}
	defer uploadRows.Close()
	for uploadRows.Next() {
		up, err := scanUploadedFile(uploadRows)
		if err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		sources = append(sources, up)
	}
	if err := uploadRows.Err(); err != nil {
		return nil, err
	}

	sortSources(sources)
	return sources, nil
}

// PersistOrder writes display order i for refs[i] in one transaction. A ref
// that matches no row aborts the whole write.
func (s *Store) PersistOrder(meetingID string, refs []domain.SourceRef) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin reorder: %w", err)
	}
	defer tx.Rollback()

	for i, ref := range refs {
		var res sql.Result
		switch ref.Kind {
		case domain.SourceKindSegment:
			res, err = tx.Exec(
				`UPDATE audio_segments SET display_order = ? WHERE id = ? AND meeting_id = ?`,
				i, ref.ID, meetingID)
		case domain.SourceKindUpload:
			res, err = tx.Exec(
				`UPDATE uploaded_audio SET display_order = ? WHERE id = ? AND meeting_id = ?`,
				i, ref.ID, meetingID)
		default:
			return fmt.Errorf("unknown source kind %q", ref.Kind)
		}
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%s %d in meeting %s: %w", ref.Kind, ref.ID, meetingID, ErrNotFound)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reorder: %w", err)
	}
	return nil
}

// MigrateLegacyAudio converts a meeting's single-file recording into a
// RecordedSegment at order 0, shifting existing uploads down one slot.
// Returns nil when there is nothing to migrate.
func (s *Store) MigrateLegacyAudio(meetingID string, durationMS *int64) (*domain.RecordedSegment, error) {
	var audioPath sql.NullString
	err := s.db.QueryRow(
		`SELECT audio_path FROM meetings WHERE id = ?`, meetingID).Scan(&audioPath)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("meeting %s: %w", meetingID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load meeting audio path: %w", err)
	}
	if !audioPath.Valid || audioPath.String == "" {
		return nil, nil
	}

	var segmentCount int
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM audio_segments WHERE meeting_id = ?`, meetingID,
	).Scan(&segmentCount); err != nil {
		return nil, fmt.Errorf("count segments: %w", err)
	}
	if segmentCount > 0 {
		return nil, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	now := nowRFC3339()
	if _, err := tx.Exec(
		`UPDATE uploaded_audio SET display_order = display_order + 1 WHERE meeting_id = ?`,
		meetingID); err != nil {
		return nil, fmt.Errorf("shift uploads: %w", err)
	}
	res, err := tx.Exec(
		`INSERT INTO audio_segments
		 (meeting_id, segment_index, mic_path, system_path, start_offset_ms, duration_ms, display_order, created_at)
		 VALUES (?, 0, ?, NULL, 0, ?, 0, ?)`,
		meetingID, audioPath.String, durationMS, now)
	if err != nil {
		return nil, fmt.Errorf("insert migrated segment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("migrated segment id: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE meetings SET audio_path = NULL, updated_at = ? WHERE id = ?`,
		now, meetingID); err != nil {
		return nil, fmt.Errorf("clear legacy audio path: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit migration: %w", err)
	}

	seg, err := s.GetRecordedSegment(id)
	if err != nil {
		return nil, err
	}
	return &seg, nil
}

func (s *Store) nextDisplayOrder(meetingID string) (int, error) {
	// One sequence across both variants.
	var maxSegment, maxUpload sql.NullInt64
	if err := s.db.QueryRow(
		`SELECT MAX(display_order) FROM audio_segments WHERE meeting_id = ?`, meetingID,
	).Scan(&maxSegment); err != nil {
		return 0, fmt.Errorf("max segment order: %w", err)
	}
	if err := s.db.QueryRow(
		`SELECT MAX(display_order) FROM uploaded_audio WHERE meeting_id = ?`, meetingID,
	).Scan(&maxUpload); err != nil {
		return 0, fmt.Errorf("max upload order: %w", err)
	}
	next := 0
	if maxSegment.Valid && int(maxSegment.Int64)+1 > next {
		next = int(maxSegment.Int64) + 1
	}
	if maxUpload.Valid && int(maxUpload.Int64)+1 > next {
		next = int(maxUpload.Int64) + 1
	}
	return next, nil
}

func scanRecordedSegment(row rowScanner) (domain.RecordedSegment, error) {
	var seg domain.RecordedSegment
	var systemPath sql.NullString
	var durationMS sql.NullInt64
	var createdAt string
	if err := row.Scan(&seg.ID, &seg.Meeting, &seg.SegmentIndex, &seg.MicPath,
		&systemPath, &seg.StartOffsetMS, &durationMS, &seg.Order, &createdAt); err != nil {
		return domain.RecordedSegment{}, err
	}
	if systemPath.Valid {
		seg.SystemPath = systemPath.String
	}
	if durationMS.Valid {
		d := durationMS.Int64
		seg.DurationMS = &d
	}
	seg.Created = parseTime(createdAt)
	return seg, nil
}

func scanUploadedFile(row rowScanner) (domain.UploadedFile, error) {
	var up domain.UploadedFile
	var durationMS sql.NullInt64
	var status, createdAt string
	if err := row.Scan(&up.ID, &up.Meeting, &up.FilePath, &up.OriginalFilename,
		&durationMS, &up.SpeakerLabel, &status, &up.Order, &createdAt); err != nil {
		return domain.UploadedFile{}, err
	}
	if durationMS.Valid {
		d := durationMS.Int64
		up.DurationMS = &d
	}
	up.Status = domain.TranscriptionStatus(status)
	up.Created = parseTime(createdAt)
	return up, nil
}

func sortSources(sources []domain.AudioSource) {
	sort.SliceStable(sources, func(i, j int) bool {
		return sourceLess(sources[i], sources[j])
	})
}

func sourceLess(a, b domain.AudioSource) bool {
	if a.DisplayOrder() != b.DisplayOrder() {
		return a.DisplayOrder() < b.DisplayOrder()
	}
	if !a.CreatedAt().Equal(b.CreatedAt()) {
		return a.CreatedAt().Before(b.CreatedAt())
	}
	return a.SourceID() < b.SourceID()
}
