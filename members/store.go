// Package members tracks who is currently present in the moderated channel and
// since when. It is a pure presence/time record: it knows nothing about
// promotion rules or the bot's own identity.
package members

import (
	"sort"
	"time"
)

// Member is a nickname together with the time it was last observed joining.
type Member struct {
	Nick     string
	JoinedAt time.Time
}

// Store maps nicknames to the time they were last seen joining.
// It is not safe for concurrent use; the promotion engine owns it.
type Store struct {
	joined map[string]time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{joined: make(map[string]time.Time)}
}

// Record marks nick as present since now, overwriting any earlier timestamp.
func (s *Store) Record(nick string, now time.Time) {
	s.joined[nick] = now
}

// Remove forgets nick. Removing an unknown nick is a no-op.
func (s *Store) Remove(nick string) {
	delete(s.joined, nick)
}

// Contains reports whether nick is currently tracked.
func (s *Store) Contains(nick string) bool {
	_, ok := s.joined[nick]
	return ok
}

// JoinedAt returns the recorded join time for nick.
func (s *Store) JoinedAt(nick string) (time.Time, bool) {
	t, ok := s.joined[nick]
	return t, ok
}

// Len returns the number of tracked members.
func (s *Store) Len() int { return len(s.joined) }

// Snapshot returns a copy of all tracked members, longest present first.
// Members that joined at the same instant are ordered by nickname.
func (s *Store) Snapshot() []Member {
	out := make([]Member, 0, len(s.joined))
	for nick, at := range s.joined {
		out = append(out, Member{Nick: nick, JoinedAt: at})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].Nick < out[j].Nick
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}
