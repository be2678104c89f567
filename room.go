/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"time"
)

// Phase is the current stage of a room's game loop.
type Phase string

const (
	PhaseLobby Phase = "lobby"
	PhaseNight Phase = "night"
	PhaseDay   Phase = "day"
)

// Player holds the data we store server-side for one seat in a room.
// Identity for reconnection purposes is Name, not ID: the connection id is
// cleared on disconnect and reassigned when the same name rejoins.
type Player struct {
	ID           string
	Name         string
	Role         Role
	Alive        bool
	Votes        int
	Disconnected bool
}

// roomTiming carries the configured phase durations, in seconds.
type roomTiming struct {
	night     int
	day       int
	skipNight int // night number with no actions; 0 disables
}

// Room is one isolated game instance. All mutation happens under the
// registry mutex, so methods are written as plain synchronous steps.
type Room struct {
	code    string
	phase   Phase
	players []*Player
	creator *Player
	timing  roomTiming

	nightActions         NightActions
	investigationResults map[*Player]bool // target -> isMafia, persisted across nights
	dayVotes             map[*Player]*Player
	hasVoted             map[*Player]bool

	round         int
	nightNumber   int
	timeRemaining int
	winner        *WinResult

	createdAt  time.Time
	lastActive time.Time
}

func newRoom(code string, timing roomTiming) *Room {
	now := time.Now()
	return &Room{
		code:                 code,
		phase:                PhaseLobby,
		timing:               timing,
		nightActions:         make(NightActions),
		investigationResults: make(map[*Player]bool),
		dayVotes:             make(map[*Player]*Player),
		hasVoted:             make(map[*Player]bool),
		createdAt:            now,
		lastActive:           now,
	}
}

func (r *Room) touch() {
	r.lastActive = time.Now()
}

func (r *Room) playerByID(id string) *Player {
	if id == "" {
		return nil
	}
	for _, p := range r.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Room) playerByName(name string) *Player {
	for _, p := range r.players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (r *Room) alivePlayers() []*Player {
	alive := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		if p.Alive {
			alive = append(alive, p)
		}
	}
	return alive
}

func (r *Room) terminal() bool {
	return r.winner != nil
}

// addPlayer seats a new player. Only possible while the room is in the
// lobby; a name already held by a connected player is rejected.
func (r *Room) addPlayer(connID, name string) *Player {
	if r.phase != PhaseLobby || connID == "" || name == "" {
		return nil
	}
	if r.playerByName(name) != nil {
		return nil
	}

	player := &Player{
		ID:    connID,
		Name:  name,
		Alive: true,
	}
	r.players = append(r.players, player)

	if r.creator == nil {
		r.creator = player
	}

	r.touch()

	return player
}

// reconnect re-binds a disconnected player's record to a new connection,
// preserving role, aliveness, and vote history. This is how a mid-game
// refresh is supported.
func (r *Room) reconnect(name, connID string) *Player {
	player := r.playerByName(name)
	if player == nil || !player.Disconnected {
		return nil
	}

	player.ID = connID
	player.Disconnected = false
	r.touch()

	return player
}

// disconnect flags a player as gone without removing them, keeping the
// seat open for reconnect-by-name.
func (r *Room) disconnect(connID string) *Player {
	player := r.playerByID(connID)
	if player == nil {
		return nil
	}

	player.Disconnected = true
	player.ID = ""
	r.touch()

	return player
}

// removePlayer drops a player outright. Used for lobby-phase departures,
// where no role or history is worth keeping.
func (r *Room) removePlayer(connID string) *Player {
	for i, p := range r.players {
		if p.ID != "" && p.ID == connID {
			r.players = append(r.players[:i], r.players[i+1:]...)
			if r.creator == p && len(r.players) > 0 {
				// Promote the earliest remaining joiner.
				r.creator = r.players[0]
			} else if len(r.players) == 0 {
				r.creator = nil
			}
			r.touch()
			return p
		}
	}
	return nil
}

func (r *Room) isCreator(connID string) bool {
	return r.creator != nil && connID != "" && r.creator.ID == connID
}

// startGame transitions lobby -> night: deals roles, sets round 1, night 1.
// Only the room creator may start, and only with at least three players.
func (r *Room) startGame(connID string) bool {
	if r.phase != PhaseLobby || !r.isCreator(connID) || len(r.players) < minPlayers {
		return false
	}

	roles := assignRoles(len(r.players))
	for i, p := range r.players {
		p.Role = roles[i]
	}

	r.round = 1
	r.transitionToNight()

	return true
}

func (r *Room) transitionToNight() {
	r.phase = PhaseNight
	r.nightActions = make(NightActions)
	r.dayVotes = make(map[*Player]*Player)
	r.hasVoted = make(map[*Player]bool)
	r.timeRemaining = r.timing.night
	r.nightNumber++

	for _, p := range r.players {
		p.Votes = 0
	}

	r.touch()
}

// transitionToDay applies the night's deaths transactionally and resets the
// vote records.
func (r *Room) transitionToDay(results NightResults) {
	r.phase = PhaseDay
	r.dayVotes = make(map[*Player]*Player)
	r.hasVoted = make(map[*Player]bool)
	r.timeRemaining = r.timing.day

	for _, target := range results.Deaths {
		target.Alive = false
	}

	if results.Investigated != nil {
		r.investigationResults[results.Investigated] = results.Investigated.Role == RoleMafia
	}

	r.touch()
}

// skipNight reports whether the current night accepts no role actions.
func (r *Room) skipNight() bool {
	return r.timing.skipNight > 0 && r.nightNumber == r.timing.skipNight
}

// recordNightAction validates and records a role action for the player bound
// to connID. Mafia submissions are mutable until resolution; detective and
// doctor actions are one-shot. Citizens have no night action.
func (r *Room) recordNightAction(connID, targetID string) bool {
	if r.phase != PhaseNight || r.terminal() || r.skipNight() {
		return false
	}

	player := r.playerByID(connID)
	if player == nil || !player.Alive || player.Role == RoleCitizen || player.Role == "" {
		return false
	}

	if targetID == "" {
		return false
	}

	target := r.playerByID(targetID)
	if target == nil || !target.Alive {
		return false
	}

	// Only the doctor may target themselves.
	if player.Role != RoleDoctor && targetID == connID {
		return false
	}

	actions := r.nightActions[player.Role]

	for i, action := range actions {
		if action.Actor == player {
			if player.Role != RoleMafia {
				return false
			}
			// Mafia may change their mind until resolution.
			actions[i].Target = target
			r.touch()
			return true
		}
	}

	r.nightActions[player.Role] = append(actions, NightAction{
		Actor:  player,
		Target: target,
	})
	r.touch()

	return true
}

// nightComplete reports whether every required role has acted: all alive
// mafia, plus the detective and doctor if alive and present. Skip nights run
// on the timer alone.
func (r *Room) nightComplete() bool {
	if r.phase != PhaseNight || r.skipNight() {
		return false
	}

	acted := make(map[*Player]bool)
	for _, actions := range r.nightActions {
		for _, action := range actions {
			acted[action.Actor] = true
		}
	}

	required := 0
	for _, p := range r.players {
		if !p.Alive {
			continue
		}
		switch p.Role {
		case RoleMafia, RoleDetective, RoleDoctor:
			required++
			if !acted[p] {
				return false
			}
		}
	}

	return required > 0
}

// recordVote records a day vote, or a skip when targetID is empty. Changing
// a vote keeps the tallies consistent: the previous target loses one, the new
// target gains one. Votes are keyed by player record, so a voter who refreshes
// mid-day can still change their earlier vote rather than doubling it.
func (r *Room) recordVote(voterID, targetID string) bool {
	if r.phase != PhaseDay || r.terminal() {
		return false
	}

	voter := r.playerByID(voterID)
	if voter == nil || !voter.Alive {
		return false
	}

	retract := func() {
		if prev, ok := r.dayVotes[voter]; ok {
			if prev.Votes > 0 {
				prev.Votes--
			}
			delete(r.dayVotes, voter)
		}
	}

	// Skip vote: counts toward "has voted", never toward a tally.
	if targetID == "" {
		retract()
		r.hasVoted[voter] = true
		r.touch()
		return true
	}

	target := r.playerByID(targetID)
	if target == nil || !target.Alive {
		return false
	}

	retract()
	r.dayVotes[voter] = target
	r.hasVoted[voter] = true
	target.Votes++
	r.touch()

	return true
}

// allAliveVoted reports whether every living player has voted or skipped,
// which ends the day early.
func (r *Room) allAliveVoted() bool {
	alive := r.alivePlayers()
	if len(alive) == 0 {
		return false
	}
	for _, p := range alive {
		if !r.hasVoted[p] {
			return false
		}
	}
	return true
}

// mostVotedPlayer returns the player holding a unique maximum tally. Any tie
// among the maximum voids the elimination; skip votes never count.
func (r *Room) mostVotedPlayer() *Player {
	var most *Player
	maxVotes := 0
	tied := false

	for _, p := range r.players {
		if !p.Alive {
			continue
		}
		switch {
		case p.Votes > maxVotes:
			maxVotes = p.Votes
			most = p
			tied = false
		case p.Votes == maxVotes && p.Votes > 0:
			tied = true
		}
	}

	if most == nil || tied {
		return nil
	}

	return most
}

// PhaseChange describes one applied phase transition and everything the
// gateway needs to broadcast about it.
type PhaseChange struct {
	From       Phase
	To         Phase
	Night      NightResults // set on night -> day
	Eliminated *Player      // set on day -> night when the town decided
	Winner     *WinResult
}

// tryAdvancePhase is the single authoritative transition function, called
// from both the phase timer and the early-completion checks. It no-ops
// unless the current phase is actually due, so racing triggers cannot
// resolve the same phase twice.
func (r *Room) tryAdvancePhase() *PhaseChange {
	if r.terminal() {
		return nil
	}

	switch r.phase {
	case PhaseNight:
		if r.timeRemaining > 0 && !r.nightComplete() {
			return nil
		}

		change := &PhaseChange{From: PhaseNight, To: PhaseDay}
		change.Night = resolveNight(r.nightActions)
		r.transitionToDay(change.Night)

		if result := evaluateWin(r.players); result != nil {
			r.winner = result
			change.Winner = result
		}

		return change

	case PhaseDay:
		if r.timeRemaining > 0 && !r.allAliveVoted() {
			return nil
		}

		change := &PhaseChange{From: PhaseDay, To: PhaseNight}

		if eliminated := r.mostVotedPlayer(); eliminated != nil {
			eliminated.Alive = false
			change.Eliminated = eliminated
		}

		if result := evaluateWin(r.players); result != nil {
			r.winner = result
			change.Winner = result
			return change
		}

		r.round++
		r.transitionToNight()

		return change
	}

	return nil
}
