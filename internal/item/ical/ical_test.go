package ical

import (
	"strings"
	"testing"
	"time"

	goical "github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plainEvent = `BEGIN:VCALENDAR
PRODID:-//Test//Test//EN
VERSION:2.0
BEGIN:VEVENT
UID:e1@example.com
DTSTART:20240101T100000Z
DTEND:20240101T110000Z
SUMMARY:Standup
END:VEVENT
END:VCALENDAR
`

func TestParseExtractsKindAndUID(t *testing.T) {
	p, err := Parse([]byte(plainEvent))
	require.NoError(t, err)
	assert.Equal(t, KindEvent, p.Kind)
	assert.Equal(t, "e1@example.com", p.UID)
}

func TestParseStripsControlCharacters(t *testing.T) {
	dirty := strings.ReplaceAll(plainEvent, "Standup", "Stand\x07up")
	p, err := Parse([]byte(dirty))
	require.NoError(t, err)
	assert.Equal(t, "e1@example.com", p.UID)
}

func TestParseRejectsUnsupportedComponent(t *testing.T) {
	_, err := Parse([]byte("BEGIN:VCALENDAR\nVERSION:2.0\nEND:VCALENDAR\n"))
	assert.ErrorIs(t, err, ErrInvalidItem)
}

func TestParseSynthesizesDeterministicUID(t *testing.T) {
	noUID := `BEGIN:VCALENDAR
VERSION:2.0
BEGIN:VEVENT
DTSTART:20240101T100000Z
SUMMARY:No UID here
END:VEVENT
END:VCALENDAR
`
	p1, err := Parse([]byte(noUID))
	require.NoError(t, err)
	p2, err := Parse([]byte(noUID))
	require.NoError(t, err)
	assert.NotEmpty(t, p1.UID)
	assert.Equal(t, p1.UID, p2.UID, "re-uploading identical bytes must synthesize the same UID")
}

func TestParseRejectsMismatchedOverrideUID(t *testing.T) {
	mixed := `BEGIN:VCALENDAR
VERSION:2.0
BEGIN:VEVENT
UID:master@example.com
DTSTART:20240101T100000Z
END:VEVENT
BEGIN:VEVENT
UID:different@example.com
RECURRENCE-ID:20240102T100000Z
DTSTART:20240102T100000Z
END:VEVENT
END:VCALENDAR
`
	_, err := Parse([]byte(mixed))
	assert.ErrorIs(t, err, ErrInvalidItem)
}

func TestCanonicalizeSetsProdIDAndVersion(t *testing.T) {
	p, err := Parse([]byte(plainEvent))
	require.NoError(t, err)
	prodID := ProdID("caldavd", "caldavd", "1.0", "en")
	out, err := Canonicalize(p.Cal, prodID)
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, "PRODID:"+prodID)
	assert.Contains(t, s, "VERSION:2.0")
	assert.Contains(t, s, "UID:e1@example.com")
}

func TestBoundsReadsStartAndEnd(t *testing.T) {
	p, err := Parse([]byte(plainEvent))
	require.NoError(t, err)
	start, end := Bounds(p)
	require.NotNil(t, start)
	require.NotNil(t, end)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), start.UTC())
	assert.Equal(t, time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC), end.UTC())
}

func TestBoundsWithDurationInsteadOfDTEnd(t *testing.T) {
	raw := `BEGIN:VCALENDAR
VERSION:2.0
BEGIN:VEVENT
UID:e2@example.com
DTSTART:20240101T100000Z
DURATION:PT1H30M
END:VEVENT
END:VCALENDAR
`
	p, err := Parse([]byte(raw))
	require.NoError(t, err)
	start, end := Bounds(p)
	require.NotNil(t, start)
	require.NotNil(t, end)
	assert.Equal(t, 90*time.Minute, end.Sub(*start))
}

func TestSynthesizeUIDIsDeterministic(t *testing.T) {
	data := []byte("some canonical bytes")
	assert.Equal(t, SynthesizeUID(data), SynthesizeUID(data))
	assert.NotEqual(t, SynthesizeUID(data), SynthesizeUID([]byte("other bytes")))
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte("not an icalendar document at all"))
	assert.Error(t, err)
}

func TestParseKeepsComponentKindConsistentAcrossOverrides(t *testing.T) {
	cal := `BEGIN:VCALENDAR
VERSION:2.0
BEGIN:VEVENT
UID:r1@example.com
DTSTART:20240201T100000Z
RRULE:FREQ=DAILY;COUNT=10
END:VEVENT
BEGIN:VEVENT
UID:r1@example.com
RECURRENCE-ID:20240203T100000Z
DTSTART:20240203T120000Z
SUMMARY:Moved instance
END:VEVENT
END:VCALENDAR
`
	p, err := Parse([]byte(cal))
	require.NoError(t, err)
	assert.Equal(t, KindEvent, p.Kind)
	assert.Equal(t, "r1@example.com", p.UID)
	assert.Len(t, p.Cal.Children, 2)
	_ = goical.CompEvent
}
