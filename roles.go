/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/rand"
)

// Role is a hidden role dealt to a player when the game starts.
type Role string

const (
	RoleMafia     Role = "mafia"
	RoleDetective Role = "detective"
	RoleDoctor    Role = "doctor"
	RoleCitizen   Role = "citizen"
)

const minPlayers = 3

// roleImage maps each role to the card art served alongside role-assigned.
var roleImage = map[Role]string{
	RoleCitizen:   "/images/citizen.jpg",
	RoleMafia:     "/images/mafia.jpg",
	RoleDetective: "/images/officer.jpg",
	RoleDoctor:    "/images/doctor.jpg",
}

func (r Role) image() string {
	img, ok := roleImage[r]
	if !ok {
		return roleImage[RoleCitizen]
	}
	return img
}

// assignRoles deals a shuffled role list for playerCount seats.
//
// Roughly a third of the players are mafia (at least one, and capped so at
// least three non-mafia seats remain when possible). A detective is dealt
// from 4 players, a doctor from 5. Everyone else is a citizen.
func assignRoles(playerCount int) []Role {
	mafiaCount := playerCount / 3
	if mafiaCount < 1 {
		mafiaCount = 1
	}
	if mafiaCount >= playerCount-2 {
		mafiaCount = playerCount - 3
		if mafiaCount < 1 {
			mafiaCount = 1
		}
	}

	roles := make([]Role, 0, playerCount)
	for i := 0; i < mafiaCount; i++ {
		roles = append(roles, RoleMafia)
	}
	if playerCount >= 4 {
		roles = append(roles, RoleDetective)
	}
	if playerCount >= 5 {
		roles = append(roles, RoleDoctor)
	}
	for len(roles) < playerCount {
		roles = append(roles, RoleCitizen)
	}

	// Fisher-Yates shuffle using crypto/rand
	for i := len(roles) - 1; i > 0; i-- {
		j := randomIndex(i + 1)
		roles[i], roles[j] = roles[j], roles[i]
	}

	return roles
}

// randomIndex returns an unbiased random integer in [0, n), rejecting bytes
// past the largest multiple of n.
func randomIndex(n int) int {
	max := byte(255 - (256 % n))

	for {
		var b [1]byte
		if _, err := rand.Read(b[:]); err != nil {
			continue
		}
		if b[0] <= max {
			return int(b[0]) % n
		}
	}
}
