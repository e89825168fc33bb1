package ical

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func iv(startHour, endHour int) Interval {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return Interval{Start: day.Add(time.Duration(startHour) * time.Hour), End: day.Add(time.Duration(endHour) * time.Hour)}
}

func TestMergeIntervalsCoalescesOverlapping(t *testing.T) {
	merged := MergeIntervals([]Interval{iv(9, 10), iv(9, 11), iv(13, 14)})
	assert.Equal(t, []Interval{iv(9, 11), iv(13, 14)}, merged)
}

func TestMergeIntervalsCoalescesAdjacent(t *testing.T) {
	merged := MergeIntervals([]Interval{iv(9, 10), iv(10, 11)})
	assert.Equal(t, []Interval{iv(9, 11)}, merged)
}

func TestMergeIntervalsEmpty(t *testing.T) {
	assert.Nil(t, MergeIntervals(nil))
}

func TestBuildFreeBusyEmitsVFreeBusy(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	out := BuildFreeBusy(start, end, []Interval{iv(9, 10), iv(9, 11)}, "-//caldavd//EN", 0)
	s := string(out)
	assert.Contains(t, s, "BEGIN:VFREEBUSY")
	assert.Contains(t, s, "FREEBUSY")
	assert.Contains(t, s, "FBTYPE=BUSY")
}

func TestBuildFreeBusyCapsOccurrences(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	busy := []Interval{iv(1, 2), iv(3, 4), iv(5, 6), iv(7, 8)}
	out := BuildFreeBusy(start, end, busy, "-//caldavd//EN", 2)
	count := 0
	s := string(out)
	for i := 0; i+len("FBTYPE=BUSY") <= len(s); i++ {
		if s[i:i+len("FBTYPE=BUSY")] == "FBTYPE=BUSY" {
			count++
		}
	}
	assert.Equal(t, 2, count)
}
