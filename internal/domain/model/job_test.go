package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStatus_Terminal(t *testing.T) {
	tests := []struct {
		status   RunStatus
		terminal bool
		failure  bool
	}{
		{RunStatusEnqueued, false, false},
		{RunStatusRunning, false, false},
		{RunStatusSuccess, true, false},
		{RunStatusFailed, true, true},
		{RunStatusDiscarded, true, true},
		{RunStatusRetried, true, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.True(t, tt.status.Valid())
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.Equal(t, tt.failure, tt.status.IsFailure())
		})
	}
	assert.False(t, RunStatus("pending").Valid())
}

func TestRunStatus_UnmarshalText(t *testing.T) {
	var s RunStatus
	require.NoError(t, s.UnmarshalText([]byte(" Failed ")))
	assert.Equal(t, RunStatusFailed, s)
	assert.Error(t, s.UnmarshalText([]byte("bogus")))
}

func TestNextAverage(t *testing.T) {
	avg := 0.0
	var count int64
	for _, d := range []float64{100, 200, 300} {
		avg = NextAverage(avg, count, d)
		count++
	}
	assert.InDelta(t, 200.0, avg, 1e-9)

	// A negative count is clamped to zero.
	assert.InDelta(t, 42.0, NextAverage(999, -3, 42), 1e-9)
}

func TestJob_FailureRate(t *testing.T) {
	assert.Zero(t, (&Job{}).FailureRate())
	j := &Job{ExecutionCount: 3, FailuresCount: 1}
	assert.InDelta(t, 33.33, j.FailureRate(), 1e-9)
}

func TestCreateJobRunRequest_Validate(t *testing.T) {
	ok := CreateJobRunRequest{JobID: 1, RunID: "abc", Status: RunStatusRunning}
	require.NoError(t, ok.Validate())

	bad := ok
	bad.Status = RunStatusSuccess
	assert.Error(t, bad.Validate())

	bad = ok
	bad.RunID = " "
	assert.Error(t, bad.Validate())
}

func TestCompletion_Validate(t *testing.T) {
	c := Completion{Status: RunStatusRunning, Duration: 1}
	assert.ErrorIs(t, c.Validate(), ErrNotTerminal)

	c = Completion{Status: RunStatusSuccess, Duration: -1}
	assert.Error(t, c.Validate())

	c = Completion{Status: RunStatusDiscarded, Duration: 12.5}
	assert.NoError(t, c.Validate())
}

func TestJobRun_AllTags(t *testing.T) {
	run := &JobRun{Tags: Tags{"critical"}}
	job := &Job{Tags: Tags{"experimental", "critical"}}
	assert.Equal(t, Tags{"critical", "experimental"}, run.AllTags(job))
	assert.Equal(t, Tags{"critical"}, run.Tags, "run tags must not be mutated")
}
