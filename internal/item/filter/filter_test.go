package filter

import (
	"testing"
	"time"

	"github.com/beevik/etree"
	govcard "github.com/emersion/go-vcard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caldavd/caldavd/internal/item/ical"
)

const eventCalendarQuery = `<?xml version="1.0"?>
<C:calendar-query xmlns:C="urn:ietf:params:xml:ns:caldav">
  <C:filter>
    <C:comp-filter name="VCALENDAR">
      <C:comp-filter name="VEVENT">
        <C:time-range start="20240101T000000Z" end="20240102T000000Z"/>
      </C:comp-filter>
    </C:comp-filter>
  </C:filter>
</C:calendar-query>
`

func parseFilterXML(t *testing.T, xml string) *etree.Element {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(xml))
	filterElem := doc.Root().FindElement("./filter")
	require.NotNil(t, filterElem)
	return filterElem
}

func TestParseCalendarFilterTimeRange(t *testing.T) {
	el := parseFilterXML(t, eventCalendarQuery)
	cf, err := ParseCalendarFilter(el)
	require.NoError(t, err)
	require.NotNil(t, cf)
	assert.Equal(t, "VCALENDAR", cf.Name)
	require.Len(t, cf.Children, 1)
	assert.Equal(t, "VEVENT", cf.Children[0].Name)
	require.NotNil(t, cf.Children[0].TimeRange)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), cf.Children[0].TimeRange.Start)
}

func TestMatchesComponentTimeRange(t *testing.T) {
	el := parseFilterXML(t, eventCalendarQuery)
	cf, err := ParseCalendarFilter(el)
	require.NoError(t, err)

	const event = `BEGIN:VCALENDAR
VERSION:2.0
BEGIN:VEVENT
UID:e1@example.com
DTSTART:20240101T100000Z
DTEND:20240101T110000Z
END:VEVENT
END:VCALENDAR
`
	p, err := ical.Parse([]byte(event))
	require.NoError(t, err)
	ex := ical.NewExpander(100)
	ok, err := MatchesComponent(cf, p.Cal, ex)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMatchesComponentOutsideTimeRange(t *testing.T) {
	outsideQuery := `<?xml version="1.0"?>
<C:calendar-query xmlns:C="urn:ietf:params:xml:ns:caldav">
  <C:filter>
    <C:comp-filter name="VCALENDAR">
      <C:comp-filter name="VEVENT">
        <C:time-range start="20240102T000000Z" end="20240103T000000Z"/>
      </C:comp-filter>
    </C:comp-filter>
  </C:filter>
</C:calendar-query>
`
	el := parseFilterXML(t, outsideQuery)
	cf, err := ParseCalendarFilter(el)
	require.NoError(t, err)

	const event = `BEGIN:VCALENDAR
VERSION:2.0
BEGIN:VEVENT
UID:e1@example.com
DTSTART:20240101T100000Z
DTEND:20240101T110000Z
END:VEVENT
END:VCALENDAR
`
	p, err := ical.Parse([]byte(event))
	require.NoError(t, err)
	ex := ical.NewExpander(100)
	ok, err := MatchesComponent(cf, p.Cal, ex)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchesComponentIsNotDefined(t *testing.T) {
	query := `<?xml version="1.0"?>
<C:calendar-query xmlns:C="urn:ietf:params:xml:ns:caldav">
  <C:filter>
    <C:comp-filter name="VCALENDAR">
      <C:comp-filter name="VALARM">
        <C:is-not-defined/>
      </C:comp-filter>
    </C:comp-filter>
  </C:filter>
</C:calendar-query>
`
	el := parseFilterXML(t, query)
	cf, err := ParseCalendarFilter(el)
	require.NoError(t, err)

	const event = `BEGIN:VCALENDAR
VERSION:2.0
BEGIN:VEVENT
UID:e1@example.com
DTSTART:20240101T100000Z
END:VEVENT
END:VCALENDAR
`
	p, err := ical.Parse([]byte(event))
	require.NoError(t, err)
	ex := ical.NewExpander(100)
	ok, err := MatchesComponent(cf, p.Cal, ex)
	require.NoError(t, err)
	assert.True(t, ok, "VALARM is absent so is-not-defined should match")
}

func TestMatchesComponentPropFilterTextMatch(t *testing.T) {
	query := `<?xml version="1.0"?>
<C:calendar-query xmlns:C="urn:ietf:params:xml:ns:caldav">
  <C:filter>
    <C:comp-filter name="VCALENDAR">
      <C:comp-filter name="VEVENT">
        <C:prop-filter name="SUMMARY">
          <C:text-match collation="i;ascii-casemap">standup</C:text-match>
        </C:prop-filter>
      </C:comp-filter>
    </C:comp-filter>
  </C:filter>
</C:calendar-query>
`
	el := parseFilterXML(t, query)
	cf, err := ParseCalendarFilter(el)
	require.NoError(t, err)

	const event = `BEGIN:VCALENDAR
VERSION:2.0
BEGIN:VEVENT
UID:e1@example.com
DTSTART:20240101T100000Z
SUMMARY:Daily Standup
END:VEVENT
END:VCALENDAR
`
	p, err := ical.Parse([]byte(event))
	require.NoError(t, err)
	ex := ical.NewExpander(100)
	ok, err := MatchesComponent(cf, p.Cal, ex)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMatchText(t *testing.T) {
	cases := []struct {
		name string
		tm   *TextMatch
		cand string
		want bool
	}{
		{"nil matches anything", nil, "whatever", true},
		{"contains", &TextMatch{Value: "and", MatchType: "contains"}, "Standup", true},
		{"equals case-insensitive", &TextMatch{Value: "standup", MatchType: "equals"}, "STANDUP", true},
		{"starts-with", &TextMatch{Value: "stand", MatchType: "starts-with"}, "Standup", true},
		{"ends-with false", &TextMatch{Value: "zzz", MatchType: "ends-with"}, "Standup", false},
		{"negate flips result", &TextMatch{Value: "stand", MatchType: "starts-with", Negate: true}, "Standup", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MatchText(tc.tm, tc.cand))
		})
	}
}

func TestParseAddressbookFilterDefaultTest(t *testing.T) {
	xml := `<?xml version="1.0"?>
<CARD:addressbook-query xmlns:CARD="urn:ietf:params:xml:ns:carddav">
  <CARD:filter>
    <CARD:prop-filter name="EMAIL">
      <CARD:text-match>example.com</CARD:text-match>
    </CARD:prop-filter>
  </CARD:filter>
</CARD:addressbook-query>
`
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(xml))
	el := doc.Root().FindElement("./filter")
	pfs, test, err := ParseAddressbookFilter(el)
	require.NoError(t, err)
	assert.Equal(t, "anyof", test)
	require.Len(t, pfs, 1)
	assert.Equal(t, "EMAIL", pfs[0].Name)
}

func TestMatchesCardAnyOfVsAllOf(t *testing.T) {
	card := govcard.Card{}
	card.SetValue(govcard.FieldFormattedName, "Alice Example")
	card.SetValue(govcard.FieldEmail, "alice@example.com")

	matchEmail := PropFilter{Name: govcard.FieldEmail, TextMatch: &TextMatch{Value: "example.com", MatchType: "contains"}}
	matchNone := PropFilter{Name: govcard.FieldTitle, TextMatch: &TextMatch{Value: "ceo", MatchType: "contains"}}

	assert.True(t, MatchesCard([]PropFilter{matchEmail, matchNone}, "anyof", card))
	assert.False(t, MatchesCard([]PropFilter{matchEmail, matchNone}, "allof", card))
}

func TestMatchesCardIsNotDefined(t *testing.T) {
	card := govcard.Card{}
	card.SetValue(govcard.FieldFormattedName, "Alice Example")

	pf := PropFilter{Name: govcard.FieldTitle, IsNotDefined: true}
	assert.True(t, MatchesCard([]PropFilter{pf}, "anyof", card))
}
