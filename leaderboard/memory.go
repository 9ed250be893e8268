package leaderboard

import (
	"context"
	"sync"

	"triviakit/core"
)

// Memory keeps every board in a process-local skip list.
type Memory struct {
	mu     sync.RWMutex
	boards map[BoardID]*SkipList
}

func NewMemory() *Memory { return &Memory{boards: map[BoardID]*SkipList{}} }

func (m *Memory) board(id BoardID, create bool) *SkipList {
	m.mu.RLock()
	b := m.boards[id]
	m.mu.RUnlock()
	if b != nil || !create {
		return b
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if b = m.boards[id]; b == nil {
		b = NewSkipList()
		m.boards[id] = b
	}
	return b
}

func (m *Memory) Incr(_ context.Context, board BoardID, user core.UserID, delta int64) (int64, error) {
	return m.board(board, true).Incr(user, delta), nil
}

func (m *Memory) Set(_ context.Context, board BoardID, user core.UserID, score int64) error {
	m.board(board, true).Set(user, score)
	return nil
}

func (m *Memory) Top(_ context.Context, board BoardID, offset, limit int) ([]Entry, error) {
	b := m.board(board, false)
	if b == nil {
		return []Entry{}, nil
	}
	return b.Range(offset, limit), nil
}

func (m *Memory) Rank(_ context.Context, board BoardID, user core.UserID) (Entry, bool, error) {
	b := m.board(board, false)
	if b == nil {
		return Entry{}, false, nil
	}
	e, ok := b.Rank(user)
	return e, ok, nil
}

var _ Boards = (*Memory)(nil)
