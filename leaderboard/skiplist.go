package leaderboard

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"

	"triviakit/core"
)

// SkipList orders users by score descending, then user id ascending.
// Updates are O(log n); Rank walks the bottom level.

const maxLevel = 16
const pFactor = 0.25

type score struct {
	user  core.UserID
	value int64
}

type node struct {
	s    score
	next [maxLevel]*node
}

type SkipList struct {
	mu     sync.RWMutex
	head   *node
	lvl    int
	size   int
	byUser map[core.UserID]*node
	rng    *rand.Rand
}

func NewSkipList() *SkipList {
	var seed [16]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		seed = [16]byte{}
	}
	return &SkipList{
		head:   &node{},
		lvl:    1,
		byUser: map[core.UserID]*node{},
		rng:    rand.New(rand.NewPCG(binary.BigEndian.Uint64(seed[:8]), binary.BigEndian.Uint64(seed[8:]))),
	}
}

func (s *SkipList) randomLevel() int {
	lvl := 1
	for lvl < maxLevel && s.rng.Float64() < pFactor {
		lvl++
	}
	return lvl
}

func before(a, b score) bool {
	if a.value == b.value {
		return a.user < b.user
	}
	return a.value > b.value
}

// Set places user at value, moving an existing entry.
func (s *SkipList) Set(user core.UserID, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(user, value)
}

// Incr adds delta to user's score and returns the result.
func (s *SkipList) Incr(user core.UserID, delta int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cur int64
	if n, ok := s.byUser[user]; ok {
		cur = n.s.value
	}
	next, err := core.AddSafe(cur, delta)
	if err != nil {
		next = cur
	}
	s.setLocked(user, next)
	return next
}

func (s *SkipList) setLocked(user core.UserID, value int64) {
	if old, ok := s.byUser[user]; ok {
		if old.s.value == value {
			return
		}
		s.removeLocked(old.s)
	}
	sc := score{user: user, value: value}
	update := [maxLevel]*node{}
	cur := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for cur.next[i] != nil && before(cur.next[i].s, sc) {
			cur = cur.next[i]
		}
		update[i] = cur
	}
	lvl := s.randomLevel()
	if lvl > s.lvl {
		for i := s.lvl; i < lvl; i++ {
			update[i] = s.head
		}
		s.lvl = lvl
	}
	n := &node{s: sc}
	for i := 0; i < lvl; i++ {
		n.next[i] = update[i].next[i]
		update[i].next[i] = n
	}
	s.byUser[user] = n
	s.size++
}

func (s *SkipList) removeLocked(sc score) {
	update := [maxLevel]*node{}
	cur := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for cur.next[i] != nil && before(cur.next[i].s, sc) {
			cur = cur.next[i]
		}
		update[i] = cur
	}
	target := update[0].next[0]
	if target == nil || target.s.user != sc.user {
		return
	}
	for i := 0; i < s.lvl; i++ {
		if update[i].next[i] == target {
			update[i].next[i] = target.next[i]
		}
	}
	delete(s.byUser, sc.user)
	s.size--
	for s.lvl > 1 && s.head.next[s.lvl-1] == nil {
		s.lvl--
	}
}

// Remove drops user from the list.
func (s *SkipList) Remove(user core.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.byUser[user]; ok {
		s.removeLocked(n.s)
	}
}

// Len is the number of ranked users.
func (s *SkipList) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Range returns up to limit entries after skipping offset.
func (s *SkipList) Range(offset, limit int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || offset < 0 {
		return nil
	}
	out := make([]Entry, 0, min(limit, s.size))
	cur := s.head.next[0]
	for i := 0; cur != nil && i < offset; i++ {
		cur = cur.next[0]
	}
	for rank := int64(offset + 1); cur != nil && len(out) < limit; rank++ {
		out = append(out, Entry{User: cur.s.user, Score: cur.s.value, Rank: rank})
		cur = cur.next[0]
	}
	return out
}

// Rank returns user's 1-based position.
func (s *SkipList) Rank(user core.UserID) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.byUser[user]
	if !ok {
		return Entry{}, false
	}
	rank := int64(1)
	for cur := s.head.next[0]; cur != nil && cur != n; cur = cur.next[0] {
		rank++
	}
	return Entry{User: user, Score: n.s.value, Rank: rank}, true
}
