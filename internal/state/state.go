// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

// Package state computes health rollups over severity-ranked resource states.
// It is pure: no I/O, no shared mutable state.
package state

// State is a resource state as reported by the platform (e.g. "up", "provisioned").
type State string

// Dyno states, healthiest first.
const (
	Up       State = "up"
	Starting State = "starting"
	Idle     State = "idle"
	Crashed  State = "crashed"
	Down     State = "down"
)

// Add-on states, healthiest first.
const (
	Provisioned   State = "provisioned"
	Provisioning  State = "provisioning"
	Deprovisioned State = "deprovisioned"
)

// Ranking is a total order of states from healthiest to least healthy.
// The last element is the worst-case sentinel.
type Ranking []State

var (
	// DynoRanking orders dyno states.
	DynoRanking = Ranking{Up, Starting, Idle, Crashed, Down}

	// AddonRanking orders add-on states.
	AddonRanking = Ranking{Provisioned, Provisioning, Deprovisioned}
)

// addonSlots maps each add-on state to the dyno state that shares its color/severity.
var addonSlots = map[State]State{
	Provisioned:   Up,
	Provisioning:  Starting,
	Deprovisioned: Down,
}

// Index returns the position of s in the ranking, or -1 if s is not ranked.
func (r Ranking) Index(s State) int {
	for i, candidate := range r {
		if candidate == s {
			return i
		}
	}
	return -1
}

// Worst returns the least-healthy sentinel of the ranking.
func (r Ranking) Worst() State {
	if len(r) == 0 {
		return ""
	}
	return r[len(r)-1]
}

// BestState returns the least-healthy state present in states.
// An empty sequence yields the ranking's worst sentinel, and so does any state the
// ranking does not know: an unknown subtree never reads as healthy.
func BestState(states []State, ranking Ranking) State {
	if len(states) == 0 {
		return ranking.Worst()
	}
	worst := -1
	for _, s := range states {
		idx := ranking.Index(s)
		if idx < 0 {
			return ranking.Worst()
		}
		if idx > worst {
			worst = idx
		}
	}
	return ranking[worst]
}

// AddonAsDyno translates an add-on state into the matching slot of DynoRanking.
func AddonAsDyno(s State) State {
	if slot, ok := addonSlots[s]; ok {
		return slot
	}
	return DynoRanking.Worst()
}

// StageStates groups the app states of one pipeline stage.
type StageStates struct {
	Stage  string
	States []State
}

// PipelineState rolls up every app of every stage. When authoritative names a stage
// that is present and non-empty, only that stage counts.
func PipelineState(stages []StageStates, authoritative string) State {
	if authoritative != "" {
		for _, s := range stages {
			if s.Stage == authoritative && len(s.States) > 0 {
				return BestState(s.States, DynoRanking)
			}
		}
	}
	var all []State
	for _, s := range stages {
		all = append(all, s.States...)
	}
	return BestState(all, DynoRanking)
}
