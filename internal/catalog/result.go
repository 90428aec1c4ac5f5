package catalog

import (
	"fmt"
	"strings"
)

// Phase names used to tag unit results
const (
	PhaseZones      = "zones"
	PhaseExpansions = "expansions"
	PhaseSeasons    = "seasons"
	PhaseStaticMeta = "static-meta"
	PhaseIcons      = "icons"
	PhaseRaids      = "raids"
)

// UnitResult is the outcome of one item of a phase loop
type UnitResult struct {
	Phase string
	Unit  string
	Err   error
}

// OK reports whether the unit succeeded
func (u UnitResult) OK() bool {
	return u.Err == nil
}

func (u UnitResult) String() string {
	if u.OK() {
		return fmt.Sprintf("%s %s: ok", u.Phase, u.Unit)
	}
	return fmt.Sprintf("%s %s: %v", u.Phase, u.Unit, u.Err)
}

// unitLog accumulates unit results of one sync run
type unitLog struct {
	units []UnitResult
}

func (l *unitLog) record(phase, unit string, err error) UnitResult {
	u := UnitResult{Phase: phase, Unit: unit, Err: err}
	l.units = append(l.units, u)
	return u
}

func (l *unitLog) failures() []UnitResult {
	var out []UnitResult
	for _, u := range l.units {
		if !u.OK() {
			out = append(out, u)
		}
	}
	return out
}

// errorStrings flattens failed units into the sync report's error list
func (l *unitLog) errorStrings() []string {
	failed := l.failures()
	out := make([]string, 0, len(failed))
	for _, u := range failed {
		out = append(out, strings.TrimSpace(u.String()))
	}
	return out
}
