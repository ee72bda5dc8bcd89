// Package registry tracks which relay connection belongs to which room.
//
// A Registry is owned by a single goroutine (the relay node's run loop) and is
// not safe for concurrent use.
package registry

import (
	"sort"

	"github.com/nzlov/roomsync/event"
)

// Participant is a (email, connection) pair inside a room.
type Participant = event.Participant

// Registry maps room ids to participant sets. Rooms are created on first
// join; an emptied room keeps its (empty) entry.
type Registry struct {
	rooms map[string][]Participant
}

func New() *Registry {
	return &Registry{rooms: map[string][]Participant{}}
}

// Join adds (email, connID) to room unless the pair is already present and
// returns the room's participant list after the call.
func (r *Registry) Join(roomID, email, connID string) []Participant {
	users := r.rooms[roomID]
	for _, p := range users {
		if p.Email == email && p.ConnID == connID {
			return r.Participants(roomID)
		}
	}
	r.rooms[roomID] = append(users, Participant{Email: email, RoomID: roomID, ConnID: connID})
	return r.Participants(roomID)
}

// Remove drops connID from every room and returns, for each room whose
// membership changed, the participants that remain.
func (r *Registry) Remove(connID string) map[string][]Participant {
	changed := map[string][]Participant{}
	for roomID, users := range r.rooms {
		kept := users[:0:0]
		for _, p := range users {
			if p.ConnID != connID {
				kept = append(kept, p)
			}
		}
		if len(kept) != len(users) {
			r.rooms[roomID] = kept
			changed[roomID] = append([]Participant{}, kept...)
		}
	}
	return changed
}

// Participants returns a copy of the room's participants in join order.
func (r *Registry) Participants(roomID string) []Participant {
	return append([]Participant{}, r.rooms[roomID]...)
}

// Conns returns the distinct connection ids in a room, excluding except.
func (r *Registry) Conns(roomID, except string) []string {
	seen := map[string]struct{}{}
	ids := []string{}
	for _, p := range r.rooms[roomID] {
		if p.ConnID == except {
			continue
		}
		if _, ok := seen[p.ConnID]; ok {
			continue
		}
		seen[p.ConnID] = struct{}{}
		ids = append(ids, p.ConnID)
	}
	return ids
}

// Snapshot copies every room, sorted by room id. Empty rooms are included.
func (r *Registry) Snapshot() []Room {
	out := make([]Room, 0, len(r.rooms))
	for id, users := range r.rooms {
		out = append(out, Room{ID: id, Participants: append([]Participant{}, users...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Room is a point-in-time copy of one room.
type Room struct {
	ID           string        `json:"id"`
	Participants []Participant `json:"participants"`
}
