/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"errors"
	"strings"
)

// Wire framing: clients send UTF-8 text frames shaped "event@@@{json}".
// The @@@ separator survives intermediary rewriting that strips other
// structural characters. A legacy fallback accepts a single JSON object
// shaped {"event": ..., "data": ...}.
const frameDelimiter = "@@@"

// EventKind is the closed set of inbound message kinds. Dispatch over this
// enum is exhaustive, so every protocol event has a handler.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventCreateRoom
	EventJoinRoom
	EventStartGame
	EventNightAction
	EventVote
	EventChatMessage
	EventGetRooms
	EventCheckRoom
	EventRequestRoomState
)

var eventKinds = map[string]EventKind{
	"create-room":        EventCreateRoom,
	"join-room":          EventJoinRoom,
	"start-game":         EventStartGame,
	"night-action":       EventNightAction,
	"vote":               EventVote,
	"chat-message":       EventChatMessage,
	"get-rooms":          EventGetRooms,
	"check-room":         EventCheckRoom,
	"request-room-state": EventRequestRoomState,
}

var errMalformedFrame = errors.New("malformed frame")

// inboundFrame is one decoded client message.
type inboundFrame struct {
	Kind EventKind
	Name string
	Data json.RawMessage
}

// legacyFrame is the fallback single-object encoding.
type legacyFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// decodeFrame parses a raw text frame in either encoding. Unknown event
// names decode successfully with Kind == EventUnknown so the gateway can
// answer with a protocol error instead of dropping the connection.
func decodeFrame(raw []byte) (inboundFrame, error) {
	text := string(raw)

	if name, payload, found := strings.Cut(text, frameDelimiter); found {
		if name == "" || !json.Valid([]byte(payload)) {
			return inboundFrame{}, errMalformedFrame
		}
		return inboundFrame{
			Kind: eventKinds[name],
			Name: name,
			Data: json.RawMessage(payload),
		}, nil
	}

	var legacy legacyFrame
	if err := json.Unmarshal(raw, &legacy); err != nil || legacy.Event == "" {
		return inboundFrame{}, errMalformedFrame
	}

	data := legacy.Data
	if data == nil {
		data = json.RawMessage("{}")
	}

	return inboundFrame{
		Kind: eventKinds[legacy.Event],
		Name: legacy.Event,
		Data: data,
	}, nil
}

// outboundFrame is the server-to-client envelope.
type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Inbound payloads

type roomJoinPayload struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
}

type roomCodePayload struct {
	RoomCode string `json:"roomCode"`
}

type nightActionPayload struct {
	RoomCode string `json:"roomCode"`
	Action   string `json:"action"`
	Target   string `json:"target"`
}

type votePayload struct {
	RoomCode string `json:"roomCode"`
	TargetID string `json:"targetId"` // empty = skip vote
}

type chatPayload struct {
	RoomCode string `json:"roomCode"`
	Message  string `json:"message"`
	ChatType string `json:"chatType"` // "public" or "mafia"
}

// Outbound payloads

// PlayerView is the roster projection sent to clients. Role is filled in
// per-recipient: players see their own role, mafia additionally see their
// living teammates' roles, nobody else's is ever sent.
type PlayerView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	IsAlive      bool   `json:"isAlive"`
	Votes        int    `json:"votes"`
	Disconnected bool   `json:"disconnected"`
	Role         Role   `json:"role,omitempty"`
}

type connectedPayload struct {
	ConnectionID string `json:"connectionId"`
	OnlineCount  int    `json:"onlineCount"`
}

type roomJoinedPayload struct {
	IsCreator bool         `json:"isCreator"`
	Players   []PlayerView `json:"players"`
	RoomCode  string       `json:"roomCode"`
}

type playerJoinedPayload struct {
	PlayerID   string       `json:"playerId"`
	PlayerName string       `json:"playerName"`
	Players    []PlayerView `json:"players"`
}

type roleAssignedPayload struct {
	Role             Role     `json:"role"`
	RoleImage        string   `json:"roleImage"`
	MafiaTeammateIDs []string `json:"mafiaTeammateIds,omitempty"`
}

type gameStartedPayload struct {
	Players []PlayerView `json:"players"`
}

type phaseUpdatePayload struct {
	Phase         Phase `json:"phase"`
	TimeRemaining int   `json:"timeRemaining"`
	NightNumber   int   `json:"nightNumber,omitempty"`
}

type nightPhasePayload struct {
	Phase         Phase        `json:"phase"`
	TimeRemaining int          `json:"timeRemaining"`
	NightNumber   int          `json:"nightNumber"`
	Players       []PlayerView `json:"players"`
}

type dayPhasePayload struct {
	Phase         Phase        `json:"phase"`
	TimeRemaining int          `json:"timeRemaining"`
	Deaths        []string     `json:"deaths"`
	Players       []PlayerView `json:"players"`
}

type nightActionConfirmedPayload struct {
	Action string `json:"action"`
	Target string `json:"target"`
}

type voteTally struct {
	ID    string `json:"id"`
	Votes int    `json:"votes"`
}

type voteCastPayload struct {
	VoterID  string      `json:"voterId"`
	TargetID string      `json:"targetId,omitempty"`
	Votes    []voteTally `json:"votes"`
}

type chatMessagePayload struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Message    string `json:"message"`
	ChatType   string `json:"chatType"`
}

type moderatorMessagePayload struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type roomsListPayload struct {
	Rooms []RoomSummary `json:"rooms"`
}

type roomStatusPayload struct {
	RoomCode    string `json:"roomCode"`
	Exists      bool   `json:"exists"`
	Phase       Phase  `json:"phase,omitempty"`
	PlayerCount int    `json:"playerCount,omitempty"`
	CanJoin     bool   `json:"canJoin,omitempty"`
	Message     string `json:"message,omitempty"`
}

type roomStatePayload struct {
	RoomCode      string            `json:"roomCode"`
	IsCreator     bool              `json:"isCreator"`
	Players       []PlayerView      `json:"players"`
	Phase         Phase             `json:"phase"`
	TimeRemaining int               `json:"timeRemaining"`
	Investigated  []DetectiveResult `json:"investigated,omitempty"` // detective only
}

type onlineCountPayload struct {
	OnlineCount int `json:"onlineCount"`
}

type roomPlayerCountPayload struct {
	RoomCode    string `json:"roomCode"`
	PlayerCount int    `json:"playerCount"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// rosterFor projects the roster for one recipient, applying the role
// visibility rules.
func rosterFor(room *Room, recipientID string) []PlayerView {
	recipient := room.playerByID(recipientID)
	recipientIsMafia := recipient != nil && recipient.Role == RoleMafia

	views := make([]PlayerView, 0, len(room.players))
	for _, p := range room.players {
		view := PlayerView{
			ID:           p.ID,
			Name:         p.Name,
			IsAlive:      p.Alive,
			Votes:        p.Votes,
			Disconnected: p.Disconnected,
		}
		switch {
		case recipient != nil && p == recipient:
			view.Role = p.Role
		case recipientIsMafia && p.Role == RoleMafia && p.Alive:
			view.Role = p.Role
		}
		views = append(views, view)
	}

	return views
}
