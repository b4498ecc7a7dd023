package tapping

import (
	"errors"
	"fmt"

	"github.com/seringal/tapping-engine/farm"
)

var errNoMarker = errors.New("engine has no completion marker")

// Result is the eligibility verdict for one (worker, section) pair.
// CanTap is false exactly when NextAvailableDate and DaysRemaining are set.
//
// NextAvailableDate is always the last tapping plus the recovery interval.
// DaysRemaining counts from the checked date and never exceeds the interval,
// so when the last tapping is dated after the checked date the two disagree:
// a tapping on the 12th checked on the 10th reports 4 days remaining and
// the 16th.
type Result struct {
	CanTap            bool
	NextAvailableDate *farm.Date
	DaysRemaining     *int
}

// Eligible is the verdict for a section that may be tapped.
func Eligible() Result {
	return Result{CanTap: true}
}

// Summary renders the verdict for display next to a section.
func (r Result) Summary(section farm.SectionCode) string {
	if r.CanTap || r.NextAvailableDate == nil || r.DaysRemaining == nil {
		return fmt.Sprintf("section %s is available for tapping", section)
	}
	unit := "days"
	if *r.DaysRemaining == 1 {
		unit = "day"
	}
	return fmt.Sprintf("section %s can be tapped again on %s (%d %s remaining)",
		section, r.NextAvailableDate, *r.DaysRemaining, unit)
}
