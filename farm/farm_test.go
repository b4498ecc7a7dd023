package farm_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seringal/tapping-engine/farm"
)

// =============================================================================
// DATE
// =============================================================================

func TestDateOf_StripsTimeOfDay(t *testing.T) {
	lateNight := time.Date(2025, 1, 10, 23, 59, 0, 0, time.UTC)
	justAfter := time.Date(2025, 1, 11, 0, 1, 0, 0, time.UTC)

	assert.Equal(t, 1, farm.DaysBetween(farm.DateOf(lateNight, nil), farm.DateOf(justAfter, nil)),
		"two minutes across midnight is one calendar day")
	assert.Equal(t, 0, farm.DaysBetween(farm.DateOf(justAfter, nil), farm.DateOf(justAfter.Add(23*time.Hour), nil)))
}

func TestDateOf_UsesLocation(t *testing.T) {
	acre, err := time.LoadLocation("America/Rio_Branco")
	require.NoError(t, err)

	// 02:00 UTC on the 11th is still the 10th in Acre (UTC-5).
	instant := time.Date(2025, 1, 11, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-01-10", farm.DateOf(instant, acre).String())
	assert.Equal(t, "2025-01-11", farm.DateOf(instant, time.UTC).String())
}

func TestDaysBetween(t *testing.T) {
	d := farm.NewDate(2024, time.February, 27)
	assert.Equal(t, 3, farm.DaysBetween(d, farm.NewDate(2024, time.March, 1)), "leap year")
	assert.Equal(t, -2, farm.DaysBetween(d, d.AddDays(-2)))
	assert.Equal(t, 0, farm.DaysBetween(d, d))
}

func TestParseDate(t *testing.T) {
	d, err := farm.ParseDate("2025-01-14")
	require.NoError(t, err)
	assert.True(t, d.Equal(farm.NewDate(2025, time.January, 14)))

	_, err = farm.ParseDate("14/01/2025")
	assert.Error(t, err)
}

func TestDate_JSON(t *testing.T) {
	type wrapper struct {
		Next *farm.Date `json:"next,omitempty"`
	}
	d := farm.MustParseDate("2025-01-14")

	b, err := json.Marshal(wrapper{Next: &d})
	require.NoError(t, err)
	assert.JSONEq(t, `{"next":"2025-01-14"}`, string(b))

	var back wrapper
	require.NoError(t, json.Unmarshal(b, &back))
	require.NotNil(t, back.Next)
	assert.True(t, back.Next.Equal(d))

	b, err = json.Marshal(wrapper{})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(b))
}

func TestFixedClock(t *testing.T) {
	d := farm.MustParseDate("2025-01-12")
	assert.True(t, farm.FixedClock(d).Today().Equal(d))
	assert.False(t, farm.SystemClock{}.Today().IsZero())
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to farm.TaskStatus
		ok       bool
	}{
		{farm.StatusPending, farm.StatusInProgress, true},
		{farm.StatusPending, farm.StatusCompleted, true},
		{farm.StatusInProgress, farm.StatusCompleted, true},
		{farm.StatusCompleted, farm.StatusInspected, true},
		{farm.StatusPending, farm.StatusInspected, false},
		{farm.StatusCompleted, farm.StatusPending, false},
		{farm.StatusInspected, farm.StatusCompleted, false},
		{farm.StatusCompleted, farm.StatusCompleted, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, farm.CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
	assert.True(t, farm.StatusInspected.Valid())
	assert.False(t, farm.TaskStatus("done").Valid())
}

// =============================================================================
// INSPECTION
// =============================================================================

func TestInspectionScore(t *testing.T) {
	insp := farm.Inspection{TaskID: "t-1", Angle: 4, Depth: 3, Injuries: 5, SpoutCleanliness: 3}
	require.NoError(t, insp.Validate())
	assert.True(t, insp.Score().Equal(decimal.NewFromFloat(3.75)))
}

func TestInspectionValidate(t *testing.T) {
	insp := farm.Inspection{TaskID: "t-1", Angle: 0, Depth: 3, Injuries: 5, SpoutCleanliness: 3}
	err := insp.Validate()
	var argErr *farm.ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "angle", argErr.Field)

	insp = farm.Inspection{Angle: 1, Depth: 1, Injuries: 1, SpoutCleanliness: 6}
	assert.ErrorIs(t, insp.Validate(), farm.ErrInvalidArgument)
}

// =============================================================================
// ERRORS
// =============================================================================

func TestUnavailable(t *testing.T) {
	assert.NoError(t, farm.Unavailable("op", nil))

	cause := errors.New("network down")
	err := farm.Unavailable("find completed tasks", cause)
	assert.ErrorIs(t, err, farm.ErrDependencyUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "find completed tasks")
	assert.False(t, farm.IsClientError(err))

	assert.Same(t, err, farm.Unavailable("outer", err), "not double wrapped")
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, farm.IsClientError(&farm.ArgumentError{Field: "x"}))
	assert.True(t, farm.IsClientError(&farm.TransitionError{From: farm.StatusPending, To: farm.StatusInspected}))
	assert.True(t, farm.IsNotFound(farm.ErrTaskNotFound))
	assert.False(t, farm.IsNotFound(farm.ErrDependencyUnavailable))
}
