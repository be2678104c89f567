/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one live websocket connection.
type Client struct {
	conn *websocket.Conn
	send chan outboundFrame
	id   string
}

// Gateway owns the live connections, decodes and dispatches the wire
// protocol, fans events out to rooms, and drives the per-room phase timers.
// Every room mutation happens under mu, so handlers and timer ticks for the
// same room serialize in arrival order.
type Gateway struct {
	cfg      *Config
	registry *Registry

	mu      sync.Mutex
	clients map[string]*Client
	timers  map[string]chan struct{} // room code -> stop channel
}

func newGateway(cfg *Config, registry *Registry) *Gateway {
	g := &Gateway{
		cfg:      cfg,
		registry: registry,
		clients:  make(map[string]*Client),
		timers:   make(map[string]chan struct{}),
	}

	if cfg.roomTimeout > 0 {
		go g.reaperLoop()
	}

	return g
}

// serveWS upgrades a connection, assigns it an opaque id, and runs the
// read loop until the client goes away.
func (g *Gateway) serveWS() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan outboundFrame, 16),
			id:   uuid.NewString(),
		}

		g.mu.Lock()
		g.clients[client.id] = client
		online := len(g.clients)
		g.mu.Unlock()

		logf(g.cfg, "CONNS: Client %s connected from %s", client.id, realIP(r))

		go client.writePump()

		client.send <- outboundFrame{Event: "connected", Data: connectedPayload{
			ConnectionID: client.id,
			OnlineCount:  online,
		}}

		g.broadcastOnlineCount()

		g.readPump(client)
	}
}

func (g *Gateway) readPump(c *Client) {
	defer func() {
		g.handleDisconnect(c)
		_ = c.conn.Close()
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		frame, err := decodeFrame(raw)
		if err != nil {
			g.sendError(c, "Malformed message")
			continue
		}

		g.dispatch(c, frame)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// dispatch routes one decoded frame. The switch is exhaustive over the
// inbound event enum.
func (g *Gateway) dispatch(c *Client, frame inboundFrame) {
	switch frame.Kind {
	case EventCreateRoom:
		var payload roomJoinPayload
		if err := json.Unmarshal(frame.Data, &payload); err == nil {
			g.handleCreateRoom(c, payload)
		}
	case EventJoinRoom:
		var payload roomJoinPayload
		if err := json.Unmarshal(frame.Data, &payload); err == nil {
			g.handleJoinRoom(c, payload)
		}
	case EventStartGame:
		var payload roomCodePayload
		if err := json.Unmarshal(frame.Data, &payload); err == nil {
			g.handleStartGame(c, payload)
		}
	case EventNightAction:
		var payload nightActionPayload
		if err := json.Unmarshal(frame.Data, &payload); err == nil {
			g.handleNightAction(c, payload)
		}
	case EventVote:
		var payload votePayload
		if err := json.Unmarshal(frame.Data, &payload); err == nil {
			g.handleVote(c, payload)
		}
	case EventChatMessage:
		var payload chatPayload
		if err := json.Unmarshal(frame.Data, &payload); err == nil {
			g.handleChatMessage(c, payload)
		}
	case EventGetRooms:
		g.handleGetRooms(c)
	case EventCheckRoom:
		var payload roomCodePayload
		if err := json.Unmarshal(frame.Data, &payload); err == nil {
			g.handleCheckRoom(c, payload)
		}
	case EventRequestRoomState:
		var payload roomCodePayload
		if err := json.Unmarshal(frame.Data, &payload); err == nil {
			g.handleRoomState(c, payload)
		}
	case EventUnknown:
		g.sendError(c, "Unknown event")
	}
}

// Fan-out helpers. All assume g.mu is held unless noted otherwise.

// trySend queues a frame for connID, dropping the client if its buffer is
// full (same policy as dropping a dead peer).
func (g *Gateway) trySend(connID string, frame outboundFrame) {
	client, ok := g.clients[connID]
	if !ok {
		return
	}
	select {
	case client.send <- frame:
	default:
		delete(g.clients, connID)
		close(client.send)
	}
}

// broadcastRoom sends a per-recipient frame to every connected player in
// the room. build receives the recipient's connection id so payloads can
// apply the role visibility rules.
func (g *Gateway) broadcastRoom(room *Room, event string, build func(recipientID string) any) {
	for _, p := range room.players {
		if p.ID == "" {
			continue
		}
		g.trySend(p.ID, outboundFrame{Event: event, Data: build(p.ID)})
	}
}

func (g *Gateway) broadcastRoomStatic(room *Room, event string, data any) {
	g.broadcastRoom(room, event, func(string) any { return data })
}

func (g *Gateway) moderatorMessage(room *Room, message string) {
	g.broadcastRoomStatic(room, "moderator-message", moderatorMessagePayload{
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (g *Gateway) roomPlayerCount(room *Room) {
	g.broadcastRoomStatic(room, "room-player-count-update", roomPlayerCountPayload{
		RoomCode:    room.code,
		PlayerCount: len(room.players),
	})
}

// broadcastOnlineCount pushes the global presence count to every client.
// Takes g.mu itself.
func (g *Gateway) broadcastOnlineCount() {
	g.mu.Lock()
	defer g.mu.Unlock()

	count := len(g.clients)
	for id := range g.clients {
		g.trySend(id, outboundFrame{Event: "online-count-update", Data: onlineCountPayload{
			OnlineCount: count,
		}})
	}
}

func (g *Gateway) sendError(c *Client, message string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.trySend(c.id, outboundFrame{Event: "error", Data: errorPayload{Message: message}})
}

// Handlers

func (g *Gateway) handleCreateRoom(c *Client, payload roomJoinPayload) {
	if payload.RoomCode == "" || payload.PlayerName == "" {
		g.sendError(c, "Room code and player name required")
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	code := normalizeCode(payload.RoomCode)
	if !validRoomCode(code) {
		g.trySend(c.id, outboundFrame{Event: "error", Data: errorPayload{Message: "Invalid room code"}})
		return
	}
	if g.registry.room(code) != nil {
		g.trySend(c.id, outboundFrame{Event: "error", Data: errorPayload{Message: "Room already exists"}})
		return
	}

	g.registry.createRoom(code)
	room, player := g.registry.joinRoom(c.id, code, payload.PlayerName)
	if room == nil {
		g.registry.destroyRoom(code)
		g.trySend(c.id, outboundFrame{Event: "error", Data: errorPayload{Message: "Could not create room"}})
		return
	}

	logf(g.cfg, "ROOMS: %q created %s", player.Name, room.code)

	g.trySend(c.id, outboundFrame{Event: "room-joined", Data: roomJoinedPayload{
		IsCreator: true,
		Players:   rosterFor(room, c.id),
		RoomCode:  room.code,
	}})

	g.broadcastRoom(room, "player-joined", func(recipientID string) any {
		return playerJoinedPayload{
			PlayerID:   player.ID,
			PlayerName: player.Name,
			Players:    rosterFor(room, recipientID),
		}
	})
	g.roomPlayerCount(room)
}

func (g *Gateway) handleJoinRoom(c *Client, payload roomJoinPayload) {
	if payload.RoomCode == "" || payload.PlayerName == "" {
		g.sendError(c, "Room code and player name required")
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	existing := g.registry.room(payload.RoomCode)
	if existing == nil {
		g.trySend(c.id, outboundFrame{Event: "error", Data: errorPayload{Message: "Room not found"}})
		return
	}

	room, player := g.registry.joinRoom(c.id, payload.RoomCode, payload.PlayerName)
	if room == nil {
		message := "Could not join room. Game may have already started."
		if existing.phase == PhaseLobby {
			if taken := existing.playerByName(payload.PlayerName); taken != nil && !taken.Disconnected {
				message = "That name is already taken"
			}
		}
		g.trySend(c.id, outboundFrame{Event: "error", Data: errorPayload{Message: message}})
		return
	}

	reconnected := room.phase != PhaseLobby
	if reconnected {
		logf(g.cfg, "ROOMS: %q reconnected to %s", player.Name, room.code)
		g.sendRoleAssigned(room, player)
	} else {
		logf(g.cfg, "ROOMS: %q joined %s", player.Name, room.code)
	}

	g.trySend(c.id, outboundFrame{Event: "room-joined", Data: roomJoinedPayload{
		IsCreator: room.isCreator(c.id),
		Players:   rosterFor(room, c.id),
		RoomCode:  room.code,
	}})

	g.broadcastRoom(room, "player-joined", func(recipientID string) any {
		return playerJoinedPayload{
			PlayerID:   player.ID,
			PlayerName: player.Name,
			Players:    rosterFor(room, recipientID),
		}
	})
	g.roomPlayerCount(room)

	if reconnected {
		g.sendRoomState(c, room)
	}
}

// sendRoleAssigned privately delivers a player's role, including living
// mafia teammates when the player is mafia.
func (g *Gateway) sendRoleAssigned(room *Room, player *Player) {
	payload := roleAssignedPayload{
		Role:      player.Role,
		RoleImage: player.Role.image(),
	}

	if player.Role == RoleMafia {
		for _, p := range room.players {
			if p != player && p.Role == RoleMafia && p.Alive && p.ID != "" {
				payload.MafiaTeammateIDs = append(payload.MafiaTeammateIDs, p.ID)
			}
		}
	}

	g.trySend(player.ID, outboundFrame{Event: "role-assigned", Data: payload})
}

func (g *Gateway) handleStartGame(c *Client, payload roomCodePayload) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room := g.registry.room(payload.RoomCode)
	if room == nil {
		g.trySend(c.id, outboundFrame{Event: "error", Data: errorPayload{Message: "Room not found"}})
		return
	}
	if !room.isCreator(c.id) {
		g.trySend(c.id, outboundFrame{Event: "error", Data: errorPayload{Message: "Only room creator can start the game"}})
		return
	}
	if len(room.players) < minPlayers {
		g.trySend(c.id, outboundFrame{Event: "error", Data: errorPayload{Message: "Need at least 3 players to start"}})
		return
	}

	if !room.startGame(c.id) {
		g.trySend(c.id, outboundFrame{Event: "error", Data: errorPayload{Message: "Could not start game"}})
		return
	}

	logf(g.cfg, "GAMES: Game started in %s with %d players", room.code, len(room.players))

	for _, player := range room.players {
		if player.ID != "" {
			g.sendRoleAssigned(room, player)
		}
	}

	g.broadcastRoom(room, "game-started", func(recipientID string) any {
		return gameStartedPayload{Players: rosterFor(room, recipientID)}
	})

	g.startPhaseTimerLocked(room.code)
	g.moderatorMessage(room, "Night falls. The Mafia awakens...")
	g.broadcastRoom(room, "night-phase", func(recipientID string) any {
		return nightPhasePayload{
			Phase:         PhaseNight,
			TimeRemaining: room.timeRemaining,
			NightNumber:   room.nightNumber,
			Players:       rosterFor(room, recipientID),
		}
	})
}

func (g *Gateway) handleNightAction(c *Client, payload nightActionPayload) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room := g.registry.room(payload.RoomCode)
	if room == nil {
		return
	}

	player := room.playerByID(c.id)
	if player == nil {
		return
	}

	// Invalid submissions are an ignorable client-state race, not an error.
	if !room.recordNightAction(c.id, payload.Target) {
		return
	}

	g.trySend(c.id, outboundFrame{Event: "night-action-confirmed", Data: nightActionConfirmedPayload{
		Action: payload.Action,
		Target: payload.Target,
	}})

	if player.Role == RoleDetective {
		if target := room.playerByID(payload.Target); target != nil {
			room.investigationResults[target] = target.Role == RoleMafia
			g.trySend(c.id, outboundFrame{Event: "detective-result", Data: DetectiveResult{
				TargetID:   target.ID,
				TargetName: target.Name,
				IsMafia:    target.Role == RoleMafia,
			}})
		}
	}

	g.advancePhaseLocked(room)
}

func (g *Gateway) handleVote(c *Client, payload votePayload) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room := g.registry.room(payload.RoomCode)
	if room == nil {
		return
	}

	if !room.recordVote(c.id, payload.TargetID) {
		return
	}

	tallies := make([]voteTally, 0, len(room.players))
	for _, p := range room.players {
		tallies = append(tallies, voteTally{ID: p.ID, Votes: p.Votes})
	}

	g.broadcastRoomStatic(room, "vote-cast", voteCastPayload{
		VoterID:  c.id,
		TargetID: payload.TargetID,
		Votes:    tallies,
	})

	g.advancePhaseLocked(room)
}

func (g *Gateway) handleChatMessage(c *Client, payload chatPayload) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room := g.registry.room(payload.RoomCode)
	if room == nil {
		return
	}

	player := room.playerByID(c.id)
	if player == nil || !player.Alive {
		return
	}

	message := chatMessagePayload{
		PlayerID:   c.id,
		PlayerName: player.Name,
		Message:    payload.Message,
	}

	if payload.ChatType == "mafia" {
		// Night-time mafia chat, visible only to living mafia.
		if room.phase != PhaseNight || player.Role != RoleMafia {
			return
		}
		message.ChatType = "mafia"
		for _, p := range room.players {
			if p.Role == RoleMafia && p.Alive && p.ID != "" {
				g.trySend(p.ID, outboundFrame{Event: "chat-message", Data: message})
			}
		}
		return
	}

	if room.phase != PhaseDay {
		return
	}
	message.ChatType = "public"
	g.broadcastRoomStatic(room, "chat-message", message)
}

func (g *Gateway) handleGetRooms(c *Client) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.trySend(c.id, outboundFrame{Event: "rooms-list", Data: roomsListPayload{
		Rooms: g.registry.listAvailableRooms(),
	}})
}

func (g *Gateway) handleCheckRoom(c *Client, payload roomCodePayload) {
	g.mu.Lock()
	defer g.mu.Unlock()

	code := normalizeCode(payload.RoomCode)
	info := g.registry.roomInfo(code)
	if info == nil {
		g.trySend(c.id, outboundFrame{Event: "room-status", Data: roomStatusPayload{
			RoomCode: code,
			Exists:   false,
			Message:  "Room does not exist",
		}})
		return
	}

	g.trySend(c.id, outboundFrame{Event: "room-status", Data: roomStatusPayload{
		RoomCode:    info.RoomCode,
		Exists:      true,
		Phase:       info.Phase,
		PlayerCount: info.PlayerCount,
		CanJoin:     info.CanJoin,
	}})
}

func (g *Gateway) handleRoomState(c *Client, payload roomCodePayload) {
	g.mu.Lock()
	defer g.mu.Unlock()

	room := g.registry.room(payload.RoomCode)
	if room == nil {
		g.trySend(c.id, outboundFrame{Event: "error", Data: errorPayload{Message: "Room not found"}})
		return
	}

	g.sendRoomState(c, room)
}

// sendRoomState assumes g.mu is held.
func (g *Gateway) sendRoomState(c *Client, room *Room) {
	state := roomStatePayload{
		RoomCode:      room.code,
		IsCreator:     room.isCreator(c.id),
		Players:       rosterFor(room, c.id),
		Phase:         room.phase,
		TimeRemaining: room.timeRemaining,
	}

	// A reconnecting detective gets their accumulated results back.
	if player := room.playerByID(c.id); player != nil && player.Role == RoleDetective {
		for target, isMafia := range room.investigationResults {
			state.Investigated = append(state.Investigated, DetectiveResult{
				TargetID:   target.ID,
				TargetName: target.Name,
				IsMafia:    isMafia,
			})
		}
	}

	g.trySend(c.id, outboundFrame{Event: "room-state", Data: state})
}

func (g *Gateway) handleDisconnect(c *Client) {
	g.mu.Lock()

	if client, ok := g.clients[c.id]; ok && client == c {
		delete(g.clients, c.id)
		close(c.send)
	}

	room, player := g.registry.leaveRoom(c.id)
	if room != nil {
		if g.registry.room(room.code) == nil {
			// Last player left; room is gone.
			g.stopPhaseTimerLocked(room.code)
			logf(g.cfg, "ROOMS: Destroyed empty room %s", room.code)
		} else {
			g.roomPlayerCount(room)
			if player != nil && room.phase != PhaseLobby {
				logf(g.cfg, "CONNS: %q disconnected from %s mid-game", player.Name, room.code)
			}
		}
	}

	g.mu.Unlock()

	g.broadcastOnlineCount()
}

// Phase timers. One ticking countdown per room in night or day phase;
// replaced atomically on every transition so two timers can never drive the
// same room.

func (g *Gateway) stopPhaseTimerLocked(code string) {
	if stop, ok := g.timers[code]; ok {
		close(stop)
		delete(g.timers, code)
	}
}

func (g *Gateway) startPhaseTimerLocked(code string) {
	g.stopPhaseTimerLocked(code)

	stop := make(chan struct{})
	g.timers[code] = stop

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !g.tick(code, stop) {
					return
				}
			}
		}
	}()
}

// tick advances one room's countdown. Returns false once this timer is no
// longer the room's active timer.
func (g *Gateway) tick(code string, stop chan struct{}) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.timers[code] != stop {
		return false
	}

	room := g.registry.room(code)
	if room == nil || room.terminal() {
		g.stopPhaseTimerLocked(code)
		return false
	}

	room.timeRemaining--

	g.broadcastRoomStatic(room, "phase-update", phaseUpdatePayload{
		Phase:         room.phase,
		TimeRemaining: room.timeRemaining,
		NightNumber:   room.nightNumber,
	})

	if room.timeRemaining <= 0 {
		g.advancePhaseLocked(room)
	}

	return g.timers[code] == stop
}

// advancePhaseLocked runs the room's authoritative transition and
// broadcasts the outcome. Safe to call from any trigger: a no-op when the
// phase is not actually due. Assumes g.mu is held.
func (g *Gateway) advancePhaseLocked(room *Room) {
	change := room.tryAdvancePhase()
	if change == nil {
		return
	}

	switch change.From {
	case PhaseNight:
		g.announceNightOutcome(room, change.Night)
	case PhaseDay:
		if change.Eliminated != nil {
			g.moderatorMessage(room, change.Eliminated.Name+" has been eliminated by the town's vote.")
		} else {
			g.moderatorMessage(room, "The town could not decide on anyone.")
		}
	}

	if change.Winner != nil {
		logf(g.cfg, "GAMES: Game over in %s: %s", room.code, change.Winner.Winner)
		g.broadcastRoomStatic(room, "game-ended", change.Winner)
		g.stopPhaseTimerLocked(room.code)
		return
	}

	g.startPhaseTimerLocked(room.code)

	switch room.phase {
	case PhaseDay:
		deaths := make([]string, 0, len(change.Night.Deaths))
		for _, dead := range change.Night.Deaths {
			deaths = append(deaths, dead.ID)
		}
		g.broadcastRoom(room, "day-phase", func(recipientID string) any {
			return dayPhasePayload{
				Phase:         PhaseDay,
				TimeRemaining: room.timeRemaining,
				Deaths:        deaths,
				Players:       rosterFor(room, recipientID),
			}
		})
	case PhaseNight:
		g.moderatorMessage(room, "Night falls. The Mafia awakens...")
		g.broadcastRoom(room, "night-phase", func(recipientID string) any {
			return nightPhasePayload{
				Phase:         PhaseNight,
				TimeRemaining: room.timeRemaining,
				NightNumber:   room.nightNumber,
				Players:       rosterFor(room, recipientID),
			}
		})
	}
}

// announceNightOutcome narrates the night's result.
func (g *Gateway) announceNightOutcome(room *Room, results NightResults) {
	switch {
	case len(results.Deaths) > 0:
		for _, dead := range results.Deaths {
			g.moderatorMessage(room, "The sun rises, and "+dead.Name+" was found dead.")
		}
	case results.Protected != nil:
		g.moderatorMessage(room, "The sun rises. "+results.Protected.Name+" was protected by the Doctor.")
	default:
		g.moderatorMessage(room, "The sun rises. No one was killed last night.")
	}
}

// reaperLoop periodically tears down rooms that have been idle longer than
// the configured timeout.
func (g *Gateway) reaperLoop() {
	ticker := time.NewTicker(g.cfg.roomTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-g.cfg.roomTimeout)

		g.mu.Lock()
		for code, room := range g.registry.rooms {
			if room.lastActive.Before(cutoff) {
				g.moderatorMessage(room, "Room closed due to inactivity.")
				g.stopPhaseTimerLocked(code)
				g.registry.destroyRoom(code)
				logf(g.cfg, "ROOMS: Reaped idle room %s", code)
			}
		}
		g.mu.Unlock()
	}
}
