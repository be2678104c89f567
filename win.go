/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

// Winner identifies the faction that ended the game.
type Winner string

const (
	WinnerMafia    Winner = "mafia"
	WinnerCitizens Winner = "citizens"
	WinnerDraw     Winner = "draw"
)

// WinResult describes a finished game.
type WinResult struct {
	Winner Winner `json:"winner"`
	Reason string `json:"reason"`
}

// evaluateWin checks whether either faction has won. Returns nil while the
// game is still in progress.
//
// Mafia only need parity: once they can no longer be outvoted, the game is
// over. This is the sole termination check, run after every death-producing
// transition.
func evaluateWin(players []*Player) *WinResult {
	var aliveMafia, aliveCitizens int
	alive := 0

	for _, p := range players {
		if !p.Alive {
			continue
		}
		alive++
		if p.Role == RoleMafia {
			aliveMafia++
		} else {
			aliveCitizens++
		}
	}

	switch {
	case alive == 0:
		return &WinResult{
			Winner: WinnerDraw,
			Reason: "All players have been eliminated.",
		}
	case aliveMafia >= aliveCitizens && aliveCitizens > 0:
		return &WinResult{
			Winner: WinnerMafia,
			Reason: "Mafia outnumber the citizens!",
		}
	case aliveMafia == 0 && aliveCitizens > 0:
		return &WinResult{
			Winner: WinnerCitizens,
			Reason: "All Mafia members have been eliminated!",
		}
	}

	return nil
}
