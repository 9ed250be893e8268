package leaderboard

import (
	"testing"

	"triviakit/core"
)

func TestSkipListOrdering(t *testing.T) {
	s := NewSkipList()
	s.Set("a", 10)
	s.Set("b", 20)
	s.Set("c", 15)
	top := s.Range(0, 3)
	if len(top) != 3 || top[0].User != "b" || top[1].User != "c" || top[2].User != "a" {
		t.Fatalf("unexpected order: %#v", top)
	}
	if top[2].Rank != 3 {
		t.Fatalf("rank %d", top[2].Rank)
	}
	s.Set("a", 25)
	if top = s.Range(0, 1); top[0].User != "a" {
		t.Fatalf("top should be a, got %#v", top)
	}
	if s.Len() != 3 {
		t.Fatalf("len %d", s.Len())
	}
}

func TestSkipListTiesByUser(t *testing.T) {
	s := NewSkipList()
	s.Set("zed", 5)
	s.Set("amy", 5)
	top := s.Range(0, 2)
	if top[0].User != "amy" || top[1].User != "zed" {
		t.Fatalf("ties must order by user: %#v", top)
	}
}

func TestSkipListIncrRankRange(t *testing.T) {
	s := NewSkipList()
	for i, u := range []core.UserID{"u1", "u2", "u3", "u4", "u5"} {
		s.Incr(u, int64(i+1)*10)
	}
	if got := s.Incr("u1", 100); got != 110 {
		t.Fatalf("incr %d", got)
	}
	e, ok := s.Rank("u1")
	if !ok || e.Rank != 1 || e.Score != 110 {
		t.Fatalf("rank %+v", e)
	}
	e, _ = s.Rank("u2")
	if e.Rank != 5 {
		t.Fatalf("u2 rank %d", e.Rank)
	}
	page := s.Range(2, 2)
	if len(page) != 2 || page[0].Rank != 3 || page[0].User != "u4" {
		t.Fatalf("page %+v", page)
	}
	if len(s.Range(10, 5)) != 0 {
		t.Fatal("range past the end")
	}
	s.Remove("u1")
	if _, ok := s.Rank("u1"); ok {
		t.Fatal("removed user still ranked")
	}
}
