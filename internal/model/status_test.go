package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTaskTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusNotStarted, StatusReady},
		{StatusNotStarted, StatusBlocked},
		{StatusReady, StatusAssigned},
		{StatusReady, StatusBlocked},
		{StatusAssigned, StatusRunning},
		{StatusAssigned, StatusReady},
		{StatusRunning, StatusCompleted},
		{StatusRunning, StatusFailed},
		{StatusRunning, StatusReady},
	}
	for _, tr := range allowed {
		assert.NoError(t, ValidateTaskTransition(tr.from, tr.to), "%s → %s", tr.from, tr.to)
	}

	rejected := []struct{ from, to Status }{
		{StatusNotStarted, StatusRunning},
		{StatusReady, StatusCompleted},
		{StatusCompleted, StatusReady},
		{StatusFailed, StatusRunning},
		{StatusBlocked, StatusReady},
		{StatusAssigned, StatusCompleted},
	}
	for _, tr := range rejected {
		assert.Error(t, ValidateTaskTransition(tr.from, tr.to), "%s → %s", tr.from, tr.to)
	}
}

func TestValidateSessionTransition(t *testing.T) {
	assert.NoError(t, ValidateSessionTransition(SessionOpen, SessionMerging))
	assert.NoError(t, ValidateSessionTransition(SessionOpen, SessionReverted))
	assert.NoError(t, ValidateSessionTransition(SessionOpen, SessionAborted))
	assert.NoError(t, ValidateSessionTransition(SessionMerging, SessionMerged))
	assert.NoError(t, ValidateSessionTransition(SessionMerging, SessionReverted))

	assert.Error(t, ValidateSessionTransition(SessionMerged, SessionOpen))
	assert.Error(t, ValidateSessionTransition(SessionReverted, SessionMerging))
	assert.Error(t, ValidateSessionTransition(SessionOpen, SessionMerged))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(StatusCompleted))
	assert.True(t, IsTerminal(StatusFailed))
	assert.True(t, IsTerminal(StatusBlocked))
	assert.False(t, IsTerminal(StatusRunning))
	assert.False(t, IsTerminal(StatusReady))

	assert.True(t, IsRunTerminal(RunSuccess))
	assert.True(t, IsRunTerminal(RunDeadlock))
	assert.False(t, IsRunTerminal(RunDispatching))
}
