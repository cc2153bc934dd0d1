package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidTaskID(t *testing.T) {
	valid := []string{"1", "12", "1.1", "3.2.1", "10.20"}
	for _, id := range valid {
		assert.True(t, ValidTaskID(id), "expected %q valid", id)
	}
	invalid := []string{"", ".", "1.", ".1", "1..2", "a.1", "1.b", "1 .2"}
	for _, id := range invalid {
		assert.False(t, ValidTaskID(id), "expected %q invalid", id)
	}
}

func TestValidTaskID_LeadingZeros(t *testing.T) {
	// "01" and "1" would be numerically equal but order differently, so
	// leading zeros are rejected outright.
	for _, id := range []string{"01", "1.01", "00", "0.01.2"} {
		assert.False(t, ValidTaskID(id), "expected %q invalid", id)
	}
	for _, id := range []string{"0", "1.0", "0.1", "10"} {
		assert.True(t, ValidTaskID(id), "expected %q valid", id)
	}
}

func TestParentID(t *testing.T) {
	assert.Equal(t, "", ParentID("1"))
	assert.Equal(t, "1", ParentID("1.2"))
	assert.Equal(t, "3.2", ParentID("3.2.1"))
}

func TestExtractIDTokens(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"empty", "", nil},
		{"single ref", "depends on 1.2 before merge", []string{"1.2"}},
		{"multiple dedup", "after 1.1 and 2, then 1.1 again", []string{"1.1", "2"}},
		{"malformed run skipped", "see 1..2 for details", nil},
		{"sentence punctuation trimmed", "run after 3.", []string{"3"}},
		{"leading zero run skipped", "ticket 007 is unrelated", nil},
		{"plain integer counts", "blocked by 4", []string{"4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractIDTokens(tt.body))
		})
	}
}

func TestLessID(t *testing.T) {
	assert.True(t, LessID("1.2", "1.10"))
	assert.True(t, LessID("2", "10"))
	assert.True(t, LessID("1", "1.1"))
	assert.False(t, LessID("1.1", "1"))
	assert.False(t, LessID("1.1", "1.1"))
}

func TestSortIDs(t *testing.T) {
	ids := []string{"10", "1.10", "1.2", "2", "1"}
	SortIDs(ids)
	assert.Equal(t, []string{"1", "1.2", "1.10", "2", "10"}, ids)
}
