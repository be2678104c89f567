/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"testing"
)

var testTiming = roomTiming{night: 60, day: 120, skipNight: 2}

// fivePlayerRoom seats five players and deals fixed roles so tests stay
// deterministic: p1 and p2 mafia, p3 detective, p4 doctor, p5 citizen.
func fivePlayerRoom(t *testing.T) *Room {
	t.Helper()

	room := newRoom("ABC123", testTiming)
	names := []string{"Ana", "Ben", "Cleo", "Dmitri", "Elif"}
	for i, name := range names {
		if room.addPlayer(connID(i), name) == nil {
			t.Fatalf("failed to seat %s", name)
		}
	}

	if !room.startGame("p1") {
		t.Fatal("creator could not start a 5-player game")
	}

	roles := []Role{RoleMafia, RoleMafia, RoleDetective, RoleDoctor, RoleCitizen}
	for i, p := range room.players {
		p.Role = roles[i]
	}

	return room
}

func connID(i int) string {
	return fmt.Sprintf("p%d", i+1)
}

func TestStartGameGuards(t *testing.T) {
	room := newRoom("ABC123", testTiming)
	room.addPlayer("p1", "Ana")
	room.addPlayer("p2", "Ben")

	if room.startGame("p1") {
		t.Error("started with only 2 players")
	}

	room.addPlayer("p3", "Cleo")

	if room.startGame("p2") {
		t.Error("non-creator started the game")
	}

	if !room.startGame("p1") {
		t.Fatal("creator could not start a 3-player game")
	}

	if room.phase != PhaseNight {
		t.Errorf("phase = %q, want night", room.phase)
	}
	if room.round != 1 || room.nightNumber != 1 {
		t.Errorf("round/night = %d/%d, want 1/1", room.round, room.nightNumber)
	}
	if room.timeRemaining != testTiming.night {
		t.Errorf("timeRemaining = %d, want %d", room.timeRemaining, testTiming.night)
	}

	for _, p := range room.players {
		if p.Role == "" {
			t.Errorf("%s has no role after start", p.Name)
		}
	}

	if room.startGame("p1") {
		t.Error("started twice")
	}
}

func TestNightActionRules(t *testing.T) {
	room := fivePlayerRoom(t)

	if room.recordNightAction("p5", "p1") {
		t.Error("citizen recorded a night action")
	}
	if room.recordNightAction("p1", "") {
		t.Error("mafia recorded an action without a target")
	}
	if room.recordNightAction("p1", "p1") {
		t.Error("mafia targeted themselves")
	}
	if room.recordNightAction("p3", "p3") {
		t.Error("detective targeted themselves")
	}
	if !room.recordNightAction("p4", "p4") {
		t.Error("doctor could not protect themselves")
	}

	// Mafia may change their mind; the record stays one entry per actor.
	if !room.recordNightAction("p1", "p5") {
		t.Fatal("mafia action rejected")
	}
	if !room.recordNightAction("p1", "p3") {
		t.Error("mafia could not overwrite their target")
	}
	if len(room.nightActions[RoleMafia]) != 1 {
		t.Errorf("mafia entries = %d, want 1", len(room.nightActions[RoleMafia]))
	}
	if target := room.nightActions[RoleMafia][0].Target; target.ID != "p3" {
		t.Errorf("mafia target = %q, want p3", target.ID)
	}

	// Detective and doctor actions are one-shot.
	if !room.recordNightAction("p3", "p1") {
		t.Fatal("detective action rejected")
	}
	if room.recordNightAction("p3", "p2") {
		t.Error("detective submitted twice")
	}
	if room.recordNightAction("p4", "p5") {
		t.Error("doctor submitted twice")
	}
}

func TestNightEarlyCompletion(t *testing.T) {
	room := fivePlayerRoom(t)

	if room.nightComplete() {
		t.Error("night complete with no actions")
	}

	room.recordNightAction("p1", "p5")
	room.recordNightAction("p3", "p1")
	room.recordNightAction("p4", "p5")

	if room.nightComplete() {
		t.Error("night complete while second mafia has not acted")
	}

	room.recordNightAction("p2", "p5")

	if !room.nightComplete() {
		t.Error("night not complete after every required role acted")
	}

	change := room.tryAdvancePhase()
	if change == nil {
		t.Fatal("early completion did not advance the phase")
	}
	if change.To != PhaseDay || room.phase != PhaseDay {
		t.Errorf("phase = %q, want day", room.phase)
	}

	// Doctor protected the target, so nobody died.
	if len(change.Night.Deaths) != 0 {
		t.Errorf("deaths = %v, want none", change.Night.Deaths)
	}
	if change.Night.Protected == nil || change.Night.Protected.ID != "p5" {
		t.Errorf("protected = %+v, want p5", change.Night.Protected)
	}

	// The same trigger firing again must be a no-op.
	if again := room.tryAdvancePhase(); again != nil {
		t.Errorf("second advance applied a transition: %+v", again)
	}
}

func TestSkipNightAcceptsNoActions(t *testing.T) {
	room := fivePlayerRoom(t)
	room.nightNumber = testTiming.skipNight

	if room.recordNightAction("p1", "p5") {
		t.Error("skip night accepted a mafia action")
	}
	if room.nightComplete() {
		t.Error("skip night reported early completion")
	}

	// Timer expiry still ends the night.
	room.timeRemaining = 0
	if change := room.tryAdvancePhase(); change == nil || change.To != PhaseDay {
		t.Error("skip night did not end on timer expiry")
	}
}

func toDay(t *testing.T, room *Room) {
	t.Helper()

	room.timeRemaining = 0
	if change := room.tryAdvancePhase(); change == nil || room.phase != PhaseDay {
		t.Fatal("could not reach day phase")
	}
}

func TestVoteTalliesStayConsistent(t *testing.T) {
	room := fivePlayerRoom(t)
	toDay(t, room)

	if !room.recordVote("p5", "p1") {
		t.Fatal("vote rejected")
	}
	if room.playerByID("p1").Votes != 1 {
		t.Errorf("p1 votes = %d, want 1", room.playerByID("p1").Votes)
	}

	// Changing a vote moves the tally.
	if !room.recordVote("p5", "p2") {
		t.Fatal("vote change rejected")
	}
	if room.playerByID("p1").Votes != 0 || room.playerByID("p2").Votes != 1 {
		t.Errorf("tallies = %d/%d, want 0/1",
			room.playerByID("p1").Votes, room.playerByID("p2").Votes)
	}

	// Changing to a skip retracts the tally but still counts as voting.
	if !room.recordVote("p5", "") {
		t.Fatal("skip vote rejected")
	}
	if room.playerByID("p2").Votes != 0 {
		t.Errorf("p2 votes = %d after skip, want 0", room.playerByID("p2").Votes)
	}
	if !room.hasVoted[room.playerByID("p5")] {
		t.Error("skip vote did not count toward has-voted")
	}

	if room.recordVote("p5", "missing") {
		t.Error("vote for unknown target accepted")
	}
}

func TestVoteRejections(t *testing.T) {
	room := fivePlayerRoom(t)

	if room.recordVote("p5", "p1") {
		t.Error("vote accepted during night phase")
	}

	toDay(t, room)
	room.playerByID("p5").Alive = false

	if room.recordVote("p5", "p1") {
		t.Error("dead player voted")
	}
	if room.recordVote("ghost", "p1") {
		t.Error("unknown player voted")
	}
	if room.recordVote("p4", "p5") {
		t.Error("vote for a dead target accepted")
	}
}

func TestMostVotedPlayer(t *testing.T) {
	room := fivePlayerRoom(t)
	toDay(t, room)

	if room.mostVotedPlayer() != nil {
		t.Error("elimination candidate with zero votes")
	}

	room.recordVote("p1", "p5")
	room.recordVote("p2", "p5")
	room.recordVote("p3", "p4")

	if most := room.mostVotedPlayer(); most == nil || most.ID != "p5" {
		t.Errorf("most voted = %+v, want p5", most)
	}

	// A tie among the maximum voids the elimination.
	room.recordVote("p4", "p4")
	if most := room.mostVotedPlayer(); most != nil {
		t.Errorf("tie produced a candidate: %s", most.ID)
	}
}

func TestDayTieNoElimination(t *testing.T) {
	room := fivePlayerRoom(t)
	toDay(t, room)

	room.recordVote("p1", "p5")
	room.recordVote("p2", "p4")
	room.recordVote("p3", "")
	room.recordVote("p4", "")
	room.recordVote("p5", "")

	if !room.allAliveVoted() {
		t.Fatal("all alive voted or skipped, early completion expected")
	}

	change := room.tryAdvancePhase()
	if change == nil {
		t.Fatal("day did not end")
	}
	if change.Eliminated != nil {
		t.Errorf("tie eliminated %s", change.Eliminated.Name)
	}
	if room.phase != PhaseNight {
		t.Errorf("phase = %q, want night", room.phase)
	}
	if room.round != 2 || room.nightNumber != 2 {
		t.Errorf("round/night = %d/%d, want 2/2", room.round, room.nightNumber)
	}
}

func TestReconnectByName(t *testing.T) {
	room := fivePlayerRoom(t)

	role := room.playerByID("p3").Role

	if room.reconnect("Cleo", "x9") != nil {
		t.Error("reconnected a player who never disconnected")
	}

	if room.disconnect("p3") == nil {
		t.Fatal("disconnect failed")
	}

	player := room.playerByName("Cleo")
	if !player.Disconnected || player.ID != "" {
		t.Errorf("disconnect left player as %+v", player)
	}

	if room.reconnect("Zelda", "x9") != nil {
		t.Error("reconnected an unknown name")
	}

	if room.reconnect("Cleo", "x9") == nil {
		t.Fatal("reconnect by name failed")
	}

	player = room.playerByID("x9")
	if player == nil || player.Name != "Cleo" {
		t.Fatal("reconnected player not reachable under the new connection id")
	}
	if player.Disconnected {
		t.Error("player still flagged disconnected")
	}
	if player.Role != role || !player.Alive {
		t.Error("reconnect lost role or aliveness")
	}
}

func TestNightActionSurvivesReconnect(t *testing.T) {
	room := fivePlayerRoom(t)

	if !room.recordNightAction("p1", "p5") || !room.recordNightAction("p2", "p5") {
		t.Fatal("mafia kills rejected")
	}

	// A refresh between submission and resolution must not discard the
	// recorded kill.
	if room.disconnect("p1") == nil {
		t.Fatal("disconnect failed")
	}

	room.timeRemaining = 0
	change := room.tryAdvancePhase()
	if change == nil {
		t.Fatal("night did not end on timer expiry")
	}
	if len(change.Night.Deaths) != 1 || change.Night.Deaths[0].ID != "p5" {
		t.Fatalf("deaths = %v, want [p5]", change.Night.Deaths)
	}
	if room.playerByID("p5").Alive {
		t.Error("kill target still alive")
	}
}

func TestNightActionRebindsAfterReconnect(t *testing.T) {
	room := fivePlayerRoom(t)

	if !room.recordNightAction("p1", "p5") {
		t.Fatal("mafia kill rejected")
	}

	room.disconnect("p1")
	if room.reconnect("Ana", "x7") == nil {
		t.Fatal("reconnect failed")
	}

	// The re-bound seat changes its existing action instead of adding one.
	if !room.recordNightAction("x7", "p3") {
		t.Fatal("post-reconnect action rejected")
	}
	if len(room.nightActions[RoleMafia]) != 1 {
		t.Errorf("mafia entries = %d, want 1", len(room.nightActions[RoleMafia]))
	}
	if target := room.nightActions[RoleMafia][0].Target; target.ID != "p3" {
		t.Errorf("mafia target = %q, want p3", target.ID)
	}
}

func TestVoteSurvivesReconnect(t *testing.T) {
	room := fivePlayerRoom(t)
	toDay(t, room)

	if !room.recordVote("p5", "p1") {
		t.Fatal("vote rejected")
	}

	room.disconnect("p5")
	if room.reconnect("Elif", "x9") == nil {
		t.Fatal("reconnect failed")
	}

	// Voting again after the refresh retracts the earlier vote; one voter
	// never holds two counted votes.
	if !room.recordVote("x9", "p2") {
		t.Fatal("post-reconnect vote rejected")
	}
	if room.playerByID("p1").Votes != 0 || room.playerByID("p2").Votes != 1 {
		t.Errorf("tallies = %d/%d, want 0/1",
			room.playerByID("p1").Votes, room.playerByID("p2").Votes)
	}
}

func TestCreatorSurvivesLobbyDepartures(t *testing.T) {
	room := newRoom("ABC123", testTiming)
	room.addPlayer("p1", "Ana")
	room.addPlayer("p2", "Ben")

	if !room.isCreator("p1") {
		t.Fatal("first joiner is not the creator")
	}

	room.removePlayer("p1")

	if !room.isCreator("p2") {
		t.Error("creator was not promoted after the original left")
	}
}

func TestEndToEndThreePlayerGame(t *testing.T) {
	reg := newRegistry(testTiming, 10)

	if reg.createRoom("ABC123") == nil {
		t.Fatal("could not create room")
	}

	room, alice := reg.joinRoom("a1", "ABC123", "Alice")
	if room == nil {
		t.Fatal("Alice could not join")
	}
	if _, bob := reg.joinRoom("b1", "ABC123", "Bob"); bob == nil {
		t.Fatal("Bob could not join")
	}
	if _, carol := reg.joinRoom("c1", "abc123", "Carol"); carol == nil {
		t.Fatal("Carol could not join via lowercase code")
	}

	if !room.isCreator(alice.ID) {
		t.Error("Alice is not the creator")
	}

	if !room.startGame("a1") {
		t.Fatal("Alice could not start the game")
	}

	counts := make(map[Role]int)
	for _, p := range room.players {
		counts[p.Role]++
	}
	if counts[RoleMafia] != 1 || counts[RoleCitizen] != 2 {
		t.Fatalf("3-player deal = %v, want 1 mafia + 2 citizens", counts)
	}
	if room.phase != PhaseNight || room.nightNumber != 1 {
		t.Fatalf("phase/night = %q/%d, want night/1", room.phase, room.nightNumber)
	}

	// Pin roles so the rest of the scenario is deterministic.
	room.playerByID("a1").Role = RoleCitizen
	room.playerByID("b1").Role = RoleMafia
	room.playerByID("c1").Role = RoleCitizen

	// A quiet first night: the timer runs out with no actions.
	room.timeRemaining = 0
	change := room.tryAdvancePhase()
	if change == nil || room.phase != PhaseDay {
		t.Fatal("night did not end on timer expiry")
	}
	if len(change.Night.Deaths) != 0 {
		t.Fatalf("deaths = %v, want none", change.Night.Deaths)
	}
	if change.Winner != nil {
		t.Fatalf("premature winner: %+v", change.Winner)
	}

	// The town converges on Bob; his lone counter-vote cannot tie.
	if !room.recordVote("a1", "b1") || !room.recordVote("c1", "b1") || !room.recordVote("b1", "a1") {
		t.Fatal("day votes rejected")
	}

	change = room.tryAdvancePhase()
	if change == nil {
		t.Fatal("day did not resolve after everyone voted")
	}
	if change.Eliminated == nil || change.Eliminated.ID != "b1" {
		t.Fatal("mafia was not eliminated")
	}
	if change.Winner == nil || change.Winner.Winner != WinnerCitizens {
		t.Fatalf("winner = %+v, want citizens", change.Winner)
	}
	if !room.terminal() {
		t.Error("room not terminal after the win")
	}
	if again := room.tryAdvancePhase(); again != nil {
		t.Error("terminal room advanced a phase")
	}
}

func TestMafiaParityWinAtDawn(t *testing.T) {
	room := newRoom("ABC123", testTiming)
	room.addPlayer("a1", "Alice")
	room.addPlayer("b1", "Bob")
	room.addPlayer("c1", "Carol")
	if !room.startGame("a1") {
		t.Fatal("could not start")
	}

	room.playerByID("a1").Role = RoleCitizen
	room.playerByID("b1").Role = RoleMafia
	room.playerByID("c1").Role = RoleCitizen

	if !room.recordNightAction("b1", "c1") {
		t.Fatal("mafia kill rejected")
	}

	change := room.tryAdvancePhase()
	if change == nil {
		t.Fatal("night did not resolve after the lone mafia acted")
	}
	if len(change.Night.Deaths) != 1 || change.Night.Deaths[0].ID != "c1" {
		t.Fatalf("deaths = %v, want [c1]", change.Night.Deaths)
	}

	// One mafia against one citizen is parity: the game ends at dawn.
	if change.Winner == nil || change.Winner.Winner != WinnerMafia {
		t.Fatalf("winner = %+v, want mafia", change.Winner)
	}
	if !room.terminal() {
		t.Error("room not terminal after a parity win")
	}
}
