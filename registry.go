/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"strings"
)

const roomCodeLength = 6

// validRoomCode reports whether code is a canonical 6-character room code
// drawn from the uppercase letter and digit alphabet.
func validRoomCode(code string) bool {
	if len(code) != roomCodeLength {
		return false
	}
	for _, c := range code {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// Registry owns every room and the mapping from connection id to room code.
// It is constructed once and handed to the gateway; all access happens under
// the gateway mutex.
type Registry struct {
	rooms      map[string]*Room // canonical code -> room
	connRooms  map[string]string
	timing     roomTiming
	maxPlayers int
}

func newRegistry(timing roomTiming, maxPlayers int) *Registry {
	return &Registry{
		rooms:      make(map[string]*Room),
		connRooms:  make(map[string]string),
		timing:     timing,
		maxPlayers: maxPlayers,
	}
}

// normalizeCode canonicalizes room codes so lookups are case-insensitive
// while stored codes stay uppercase.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (reg *Registry) room(code string) *Room {
	return reg.rooms[normalizeCode(code)]
}

// createRoom makes a new room for code. Returns nil if the code is taken
// or malformed.
func (reg *Registry) createRoom(code string) *Room {
	code = normalizeCode(code)
	if !validRoomCode(code) {
		return nil
	}
	if _, exists := reg.rooms[code]; exists {
		return nil
	}

	room := newRoom(code, reg.timing)
	reg.rooms[code] = room

	return room
}

// joinRoom seats a player in an existing lobby-phase room. During night or
// day, a join bearing the name of a disconnected player re-binds that seat
// instead (reconnect-by-name); anything else is a no-op.
func (reg *Registry) joinRoom(connID, code, name string) (*Room, *Player) {
	room := reg.room(code)
	if room == nil {
		return nil, nil
	}

	if room.phase == PhaseLobby {
		if len(room.players) >= reg.maxPlayers {
			return nil, nil
		}
		player := room.addPlayer(connID, name)
		if player == nil {
			return nil, nil
		}
		reg.connRooms[connID] = room.code
		return room, player
	}

	if player := room.reconnect(name, connID); player != nil {
		reg.connRooms[connID] = room.code
		return room, player
	}

	return nil, nil
}

// leaveRoom detaches a connection from its room. Lobby-phase players are
// removed outright; in-game players are only flagged disconnected so their
// seat survives a refresh. Empty rooms are destroyed immediately.
func (reg *Registry) leaveRoom(connID string) (*Room, *Player) {
	code, ok := reg.connRooms[connID]
	if !ok {
		return nil, nil
	}
	delete(reg.connRooms, connID)

	room := reg.rooms[code]
	if room == nil {
		return nil, nil
	}

	var player *Player
	if room.phase == PhaseLobby {
		player = room.removePlayer(connID)
	} else {
		player = room.disconnect(connID)
	}

	if len(room.players) == 0 {
		delete(reg.rooms, code)
	}

	return room, player
}

// destroyRoom drops a room and every connection mapping pointing at it.
func (reg *Registry) destroyRoom(code string) {
	code = normalizeCode(code)
	delete(reg.rooms, code)
	for connID, roomCode := range reg.connRooms {
		if roomCode == code {
			delete(reg.connRooms, connID)
		}
	}
}

// roomForConn returns the room a connection is seated in, if any.
func (reg *Registry) roomForConn(connID string) *Room {
	code, ok := reg.connRooms[connID]
	if !ok {
		return nil
	}
	return reg.rooms[code]
}

// RoomSummary is the occupancy listing sent for rooms-list.
type RoomSummary struct {
	RoomCode    string `json:"roomCode"`
	Phase       Phase  `json:"phase"`
	PlayerCount int    `json:"playerCount"`
	MaxPlayers  int    `json:"maxPlayers"`
	CanJoin     bool   `json:"canJoin"`
}

// roomInfo summarizes a single room, or returns nil if the code is unknown.
func (reg *Registry) roomInfo(code string) *RoomSummary {
	room := reg.room(code)
	if room == nil {
		return nil
	}
	return &RoomSummary{
		RoomCode:    room.code,
		Phase:       room.phase,
		PlayerCount: len(room.players),
		MaxPlayers:  reg.maxPlayers,
		CanJoin:     room.phase == PhaseLobby && len(room.players) < reg.maxPlayers,
	}
}

func (reg *Registry) listAvailableRooms() []RoomSummary {
	rooms := make([]RoomSummary, 0, len(reg.rooms))
	for code, room := range reg.rooms {
		rooms = append(rooms, RoomSummary{
			RoomCode:    code,
			Phase:       room.phase,
			PlayerCount: len(room.players),
			MaxPlayers:  reg.maxPlayers,
			CanJoin:     room.phase == PhaseLobby && len(room.players) < reg.maxPlayers,
		})
	}
	return rooms
}
