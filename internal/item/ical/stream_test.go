package ical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multiEventStream = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Test//EN
BEGIN:VEVENT
UID:a@example.com
DTSTART:20240101T100000Z
SUMMARY:First
END:VEVENT
BEGIN:VEVENT
UID:b@example.com
DTSTART:20240102T100000Z
SUMMARY:Second
END:VEVENT
END:VCALENDAR
`

func TestParseStreamGroupsByUID(t *testing.T) {
	items, err := ParseStream([]byte(multiEventStream))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a@example.com", items[0].UID)
	assert.Equal(t, "b@example.com", items[1].UID)
}

func TestParseStreamKeepsRecurrenceOverridesTogether(t *testing.T) {
	withOverride := `BEGIN:VCALENDAR
VERSION:2.0
BEGIN:VEVENT
UID:r1@example.com
DTSTART:20240201T100000Z
RRULE:FREQ=DAILY;COUNT=5
END:VEVENT
BEGIN:VEVENT
UID:r1@example.com
RECURRENCE-ID:20240203T100000Z
DTSTART:20240203T150000Z
END:VEVENT
BEGIN:VEVENT
UID:other@example.com
DTSTART:20240101T090000Z
END:VEVENT
END:VCALENDAR
`
	items, err := ParseStream([]byte(withOverride))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "r1@example.com", items[0].UID)
	assert.Len(t, items[0].Cal.Children, 2)
	assert.Equal(t, "other@example.com", items[1].UID)
}

func TestParseStreamSynthesizesMissingUIDs(t *testing.T) {
	noUID := `BEGIN:VCALENDAR
VERSION:2.0
BEGIN:VEVENT
DTSTART:20240101T100000Z
SUMMARY:No uid
END:VEVENT
END:VCALENDAR
`
	items, err := ParseStream([]byte(noUID))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.NotEmpty(t, items[0].UID)
}
