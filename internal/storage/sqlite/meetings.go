package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"notedeck/internal/domain"
)

func (s *Store) CreateMeeting(title string) (domain.Meeting, error) {
	id := uuid.NewString()
	now := nowRFC3339()
	_, err := s.db.Exec(
		`INSERT INTO meetings (id, title, started_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, title, now, now, now,
	)
	if err != nil {
		return domain.Meeting{}, fmt.Errorf("insert meeting: %w", err)
	}
	return s.GetMeeting(id)
}

func (s *Store) GetMeeting(id string) (domain.Meeting, error) {
	row := s.db.QueryRow(
		`SELECT id, title, started_at, ended_at, audio_path, created_at, updated_at
		 FROM meetings WHERE id = ?`, id)
	meeting, err := scanMeeting(row)
	if err == sql.ErrNoRows {
		return domain.Meeting{}, fmt.Errorf("meeting %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.Meeting{}, fmt.Errorf("scan meeting: %w", err)
	}
	return meeting, nil
}

func (s *Store) ListMeetings() ([]domain.Meeting, error) {
	rows, err := s.db.Query(
		`SELECT id, title, started_at, ended_at, audio_path, created_at, updated_at
		 FROM meetings ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query meetings: %w", err)
	}
	defer rows.Close()

	var meetings []domain.Meeting
	for rows.Next() {
		meeting, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan meeting: %w", err)
		}
		meetings = append(meetings, meeting)
	}
	return meetings, rows.Err()
}

// DeleteMeeting removes the meeting; segments, sources and uploads cascade.
func (s *Store) DeleteMeeting(id string) error {
	if _, err := s.db.Exec(`DELETE FROM meetings WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete meeting: %w", err)
	}
	return nil
}

func (s *Store) EndMeeting(id string) error {
	now := nowRFC3339()
	_, err := s.db.Exec(
		`UPDATE meetings SET ended_at = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("end meeting: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeeting(row rowScanner) (domain.Meeting, error) {
	var m domain.Meeting
	var startedAt, createdAt, updatedAt string
	var endedAt, audioPath sql.NullString

	if err := row.Scan(&m.ID, &m.Title, &startedAt, &endedAt, &audioPath, &createdAt, &updatedAt); err != nil {
		return domain.Meeting{}, err
	}
	m.StartedAt = parseTime(startedAt)
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	if endedAt.Valid {
		t := parseTime(endedAt.String)
		m.EndedAt = &t
	}
	if audioPath.Valid {
		m.AudioPath = audioPath.String
	}
	return m, nil
}
