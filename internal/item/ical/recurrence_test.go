package ical

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *Parsed {
	t.Helper()
	p, err := Parse([]byte(raw))
	require.NoError(t, err)
	return p
}

func TestExpandPlainEventSingleOccurrence(t *testing.T) {
	p := mustParse(t, plainEvent)
	ex := NewExpander(100)
	occs, err := ex.Expand(p.Cal, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), occs[0].Start.UTC())
}

func TestExpandPlainEventOutsideWindow(t *testing.T) {
	p := mustParse(t, plainEvent)
	ex := NewExpander(100)
	occs, err := ex.Expand(p.Cal, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, occs)
}

const dailyRecurring = `BEGIN:VCALENDAR
VERSION:2.0
BEGIN:VEVENT
UID:r1@example.com
DTSTART:20240201T100000Z
DTEND:20240201T110000Z
RRULE:FREQ=DAILY;COUNT=10
END:VEVENT
END:VCALENDAR
`

func TestExpandDailyRecurrenceWithinWindow(t *testing.T) {
	p := mustParse(t, dailyRecurring)
	ex := NewExpander(100)
	occs, err := ex.Expand(p.Cal,
		time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 7, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, occs, 2) // Feb 5, 6 (range end is exclusive)
}

func TestExpandRespectsOverriddenRecurrence(t *testing.T) {
	withOverride := `BEGIN:VCALENDAR
VERSION:2.0
BEGIN:VEVENT
UID:r1@example.com
DTSTART:20240201T100000Z
DTEND:20240201T110000Z
RRULE:FREQ=DAILY;COUNT=10
END:VEVENT
BEGIN:VEVENT
UID:r1@example.com
RECURRENCE-ID:20240203T100000Z
DTSTART:20240203T150000Z
DTEND:20240203T160000Z
SUMMARY:Rescheduled
END:VEVENT
END:VCALENDAR
`
	p := mustParse(t, withOverride)
	ex := NewExpander(100)
	occs, err := ex.Expand(p.Cal,
		time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.True(t, occs[0].Override)
	assert.Equal(t, time.Date(2024, 2, 3, 15, 0, 0, 0, time.UTC), occs[0].Start.UTC())
}

func TestExpandExceedsMaxOccurrences(t *testing.T) {
	p := mustParse(t, dailyRecurring)
	ex := NewExpander(2)
	_, err := ex.Expand(p.Cal,
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 11, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrTooManyOccurrences)
}

func TestEncodeExpandedStripsRecurrenceProperties(t *testing.T) {
	p := mustParse(t, dailyRecurring)
	ex := NewExpander(100)
	occs, err := ex.Expand(p.Cal,
		time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 7, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotEmpty(t, occs)

	out, err := EncodeExpanded(occs, "-//caldavd//EN")
	require.NoError(t, err)
	s := string(out)
	assert.NotContains(t, s, "RRULE")
	assert.Contains(t, s, "RECURRENCE-ID")
}

func TestNewExpanderDefaultsWhenNonPositive(t *testing.T) {
	ex := NewExpander(0)
	assert.Equal(t, 10000, ex.MaxOccurrences)
	ex2 := NewExpander(-5)
	assert.Equal(t, 10000, ex2.MaxOccurrences)
}
