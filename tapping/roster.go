package tapping

import (
	"context"
	"strings"

	"github.com/seringal/tapping-engine/farm"
)

// =============================================================================
// ROSTER - Which sections each worker taps
// =============================================================================

// Section is one block of trees in a worker's assignment.
type Section struct {
	Code      farm.SectionCode `json:"code" yaml:"code"`
	TreeCount int              `json:"tree_count" yaml:"tree_count"`
}

// Assignment lists the sections of one worker.
type Assignment struct {
	WorkerID farm.WorkerID `json:"worker_id" yaml:"worker_id"`
	Name     string        `json:"name" yaml:"name"`
	Code     string        `json:"code" yaml:"code"`
	Sections []Section     `json:"sections" yaml:"sections"`
}

// TotalTrees sums the tree counts of all sections.
func (a Assignment) TotalTrees() int {
	total := 0
	for _, s := range a.Sections {
		total += s.TreeCount
	}
	return total
}

// SectionCodes returns the section codes in roster order.
func (a Assignment) SectionCodes() []farm.SectionCode {
	codes := make([]farm.SectionCode, len(a.Sections))
	for i, s := range a.Sections {
		codes[i] = s.Code
	}
	return codes
}

// Roster is the farm's worker-to-section assignment.
type Roster []Assignment

// Lookup finds a worker by ID, falling back to a case-insensitive name match.
func (r Roster) Lookup(worker farm.WorkerID) (Assignment, bool) {
	for _, a := range r {
		if a.WorkerID == worker {
			return a, true
		}
	}
	for _, a := range r {
		if strings.EqualFold(a.Name, string(worker)) {
			return a, true
		}
	}
	return Assignment{}, false
}

// Canonical maps a worker ID or display name to the roster's worker ID.
// Workers absent from the roster are returned unchanged.
func (r Roster) Canonical(worker farm.WorkerID) farm.WorkerID {
	if a, ok := r.Lookup(worker); ok {
		return a.WorkerID
	}
	return worker
}

// Owns reports whether section belongs to worker in this roster.
func (r Roster) Owns(worker farm.WorkerID, section farm.SectionCode) bool {
	a, ok := r.Lookup(worker)
	if !ok {
		return false
	}
	for _, s := range a.Sections {
		if s.Code == section {
			return true
		}
	}
	return false
}

// TotalTrees sums every assignment on the farm.
func (r Roster) TotalTrees() int {
	total := 0
	for _, a := range r {
		total += a.TotalTrees()
	}
	return total
}

// CheckWorker resolves eligibility for every section a worker is assigned.
// An unknown worker yields an empty map.
func (e *Engine) CheckWorker(ctx context.Context, roster Roster, worker farm.WorkerID, asOf farm.Date) (map[farm.SectionCode]Result, error) {
	if worker == "" {
		return nil, &farm.ArgumentError{Field: "worker_id", Reason: "required"}
	}
	a, ok := roster.Lookup(worker)
	if !ok || len(a.Sections) == 0 {
		return map[farm.SectionCode]Result{}, nil
	}
	return e.CheckEligibilityForMany(ctx, a.WorkerID, a.SectionCodes(), asOf)
}

func sec(code string, trees int) Section {
	return Section{Code: farm.SectionCode(code), TreeCount: trees}
}

// DefaultRoster is the seringal's current tree inventory.
func DefaultRoster() Roster {
	return Roster{
		{WorkerID: "aquiles", Name: "Aquiles", Code: "A", Sections: []Section{
			sec("A1", 805), sec("A2", 1042), sec("A3", 898), sec("A4", 911)}},
		{WorkerID: "messias", Name: "Messias", Code: "B", Sections: []Section{
			sec("B1", 986), sec("B2", 775), sec("B3", 663), sec("B4", 766)}},
		{WorkerID: "zuzueli", Name: "Zuzueli", Code: "C", Sections: []Section{
			sec("C1", 959), sec("C2", 770), sec("C3", 1158), sec("C4", 1341)}},
		{WorkerID: "anderson", Name: "Anderson", Code: "D", Sections: []Section{
			sec("D1", 973), sec("D2", 761), sec("D3", 874), sec("D4", 1221)}},
		{WorkerID: "patrick", Name: "Patrick", Code: "E", Sections: []Section{
			sec("E1", 831), sec("E2", 996), sec("E3", 996), sec("E4", 1130)}},
		{WorkerID: "valdeci", Name: "Valdeci", Code: "F", Sections: []Section{
			sec("F1", 1102), sec("F2", 1095), sec("F3", 1039), sec("F4", 1057)}},
		{WorkerID: "fabio", Name: "Fabio", Code: "G", Sections: []Section{
			sec("G1", 730), sec("G2", 1125), sec("G3", 1218), sec("G4", 511)}},
	}
}
