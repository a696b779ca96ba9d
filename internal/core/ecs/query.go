package ecs

// Filter returns the entities, in id order, for which keep returns true.
func Filter(s *Store, keep func(*Entity) bool) []*Entity {
	all := s.GetAll()
	out := all[:0]
	for _, e := range all {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Replicated keeps entities that mirror a remote authority.
func Replicated(e *Entity) bool { return !e.authoritative }

// Authoritative keeps entities owned by this peer.
func Authoritative(e *Entity) bool { return e.authoritative }
