/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

// NightAction is a single submitted role action. Actions hold player records
// rather than connection ids, so a mid-phase refresh cannot orphan an action
// that was already validated and recorded.
type NightAction struct {
	Actor  *Player
	Target *Player
}

// NightActions collects the actions submitted during one night phase,
// keyed by role. Cleared every time a night begins.
type NightActions map[Role][]NightAction

// DetectiveResult is echoed privately to the investigator.
type DetectiveResult struct {
	TargetID   string `json:"targetId"`
	TargetName string `json:"targetName"`
	IsMafia    bool   `json:"isMafia"`
}

// NightResults is the outcome of resolving one night.
type NightResults struct {
	Deaths          []*Player
	Protected       *Player
	Investigated    *Player
	DetectiveResult *DetectiveResult
}

// resolveNight resolves the night's actions.
//
// The mafia kill requires unanimous agreement: zero distinct targets means no
// kill, one distinct target is the kill candidate, two or more distinct
// targets means the mafia could not agree and nobody dies. Actions by actors
// no longer alive as mafia are skipped, and targets who are themselves alive
// mafia are discarded before counting. A doctor protection matching the kill
// candidate nullifies it.
//
// Deaths are returned but not applied; the caller flips aliveness during the
// day transition so resolution stays pure and repeatable.
func resolveNight(actions NightActions) NightResults {
	results := NightResults{}

	distinct := make(map[*Player]bool)
	for _, action := range actions[RoleMafia] {
		if action.Actor == nil || action.Target == nil {
			continue
		}
		if action.Actor.Role != RoleMafia || !action.Actor.Alive {
			continue
		}
		if action.Target.Role == RoleMafia && action.Target.Alive {
			continue
		}
		distinct[action.Target] = true
	}

	var killTarget *Player
	if len(distinct) == 1 {
		for target := range distinct {
			killTarget = target
		}
	}

	if protections := actions[RoleDoctor]; len(protections) > 0 && killTarget != nil {
		if protections[0].Target == killTarget {
			results.Protected = killTarget
			killTarget = nil
		}
	}

	if killTarget != nil && killTarget.Alive {
		results.Deaths = append(results.Deaths, killTarget)
	}

	if checks := actions[RoleDetective]; len(checks) > 0 && checks[0].Target != nil {
		checked := checks[0].Target
		results.Investigated = checked
		results.DetectiveResult = &DetectiveResult{
			TargetID:   checked.ID,
			TargetName: checked.Name,
			IsMafia:    checked.Role == RoleMafia,
		}
	}

	return results
}
