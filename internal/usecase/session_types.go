package usecase

import (
	"sync"

	"notedeck/internal/domain"
	"notedeck/internal/ports"
)

type activeSession struct {
	meetingID string
	segmentID int64

	cancel func()
	audio  ports.AudioSession
	stream ports.LiveSession

	stateMu sync.Mutex
	state   domain.SessionState

	updatesDone chan struct{}
	audioDone   chan struct{}
}

func (s *activeSession) setState(state domain.SessionState) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = state
}

func (s *activeSession) getState() domain.SessionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}
