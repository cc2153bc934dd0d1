// Package model defines the data structures shared across descent: tasks,
// statuses, configuration, and the run report.
package model

import (
	"regexp"
	"sort"
	"strings"
)

// TaskEntry is one raw record of the external task list, as produced by the
// upstream document parser.
type TaskEntry struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
	Body  string `yaml:"body"`

	// Optional attributes; zero values get scheduler defaults.
	Capabilities []string `yaml:"capabilities,omitempty"`
	Effort       int      `yaml:"effort,omitempty"`
	Priority     int      `yaml:"priority,omitempty"`
}

// TaskList is the on-disk shape of a task list file.
type TaskList struct {
	SchemaVersion int         `yaml:"schema_version"`
	Tasks         []TaskEntry `yaml:"tasks"`
}

// Task is a scheduled unit of work. The graph owns every Task after parsing;
// the scheduler mutates only Status, Worker, Attempts, and FailureCategory
// through validated transitions.
type Task struct {
	ID           string
	Title        string
	Body         string
	Status       Status
	Capabilities []string // required capability tags, sorted
	Effort       int      // estimated effort units
	Priority     int      // lower dispatches first
	Attempts     int
	Worker       string // id of the worker running the current attempt

	// FailureCategory records why the task went terminal-failed or blocked.
	FailureCategory string
}

// Segments may not carry leading zeros ("01"), which would make the numeric
// segment ordering ambiguous against "1".
var idPattern = regexp.MustCompile(`^(0|[1-9][0-9]*)(\.(0|[1-9][0-9]*))*$`)

// ValidTaskID reports whether id is a well-formed dotted hierarchical id.
func ValidTaskID(id string) bool {
	return idPattern.MatchString(id)
}

// ParentID returns the hierarchical parent of a dotted id, or "" for a root.
func ParentID(id string) string {
	i := strings.LastIndex(id, ".")
	if i < 0 {
		return ""
	}
	return id[:i]
}

var tokenRun = regexp.MustCompile(`[0-9.]+`)

// ExtractIDTokens returns the id-shaped tokens found in free text, in first
// appearance order, deduplicated. Surrounding dots are trimmed (sentence
// punctuation); runs that still do not form a well-formed id (e.g. "1..2",
// "007") are ignored.
func ExtractIDTokens(body string) []string {
	seen := make(map[string]bool)
	var tokens []string
	for _, run := range tokenRun.FindAllString(body, -1) {
		tok := strings.Trim(run, ".")
		if tok == "" || !ValidTaskID(tok) {
			continue
		}
		if !seen[tok] {
			seen[tok] = true
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// SortIDs orders dotted ids lexically by numeric segments, so "1.2" < "1.10"
// and "2" < "10".
func SortIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		return LessID(ids[i], ids[j])
	})
}

// LessID compares two dotted ids segment-wise numerically. Valid ids carry
// no leading zeros, so a shorter digit string is always the smaller number.
func LessID(a, b string) bool {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] != bs[i] {
			if len(as[i]) != len(bs[i]) {
				return len(as[i]) < len(bs[i])
			}
			return as[i] < bs[i]
		}
	}
	return len(as) < len(bs)
}
