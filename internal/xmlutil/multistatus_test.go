package xmlutil

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupByStatusSplitsFoundAndMissing(t *testing.T) {
	found := []RawProp{Text(Name{Space: NSDAV, Local: "displayname"}, "Home")}
	missing := []Name{{Space: NSDAV, Local: "getetag"}}

	resp := GroupByStatus("/alice/cal/", found, missing)
	require.Len(t, resp.PropStats, 2)
	assert.Equal(t, "HTTP/1.1 200 OK", resp.PropStats[0].Status)
	assert.Equal(t, "HTTP/1.1 404 Not Found", resp.PropStats[1].Status)
}

func TestGroupByStatusOnlyFound(t *testing.T) {
	found := []RawProp{Text(Name{Local: "getetag"}, `"abc"`)}
	resp := GroupByStatus("/alice/cal/e1.ics", found, nil)
	require.Len(t, resp.PropStats, 1)
	assert.Equal(t, "HTTP/1.1 200 OK", resp.PropStats[0].Status)
}

func TestWriteMultiStatusProducesWellFormedXML(t *testing.T) {
	ms := MultiStatus{
		Responses: []Response{
			GroupByStatus("/alice/cal/e1.ics", []RawProp{
				Text(Name{Space: NSDAV, Local: "getetag"}, `"abc123"`),
				Nested(Name{Space: NSDAV, Local: "resourcetype"}),
			}, nil),
		},
		SyncToken: "urn:sync:1",
	}
	rec := httptest.NewRecorder()
	require.NoError(t, WriteMultiStatus(rec, ms))

	assert.Equal(t, 207, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<multistatus")
	assert.Contains(t, body, "getetag")
	assert.Contains(t, body, "abc123")
	assert.Contains(t, body, "urn:sync:1")
}

func TestMarkersEncodesSelfClosingChildren(t *testing.T) {
	rp := Markers(Name{Local: "resourcetype"}, Name{Space: NSDAV, Local: "collection"}, Name{Space: NSCalDAV, Local: "calendar"})
	resp := GroupByStatus("/alice/cal/", []RawProp{rp}, nil)
	rec := httptest.NewRecorder()
	ms := MultiStatus{Responses: []Response{resp}}
	require.NoError(t, WriteMultiStatus(rec, ms))
	body := rec.Body.String()
	assert.Contains(t, body, "<collection")
	assert.Contains(t, body, "<calendar")
}
