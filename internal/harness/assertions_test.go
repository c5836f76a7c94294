package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Type: EventInvoke, Step: StepStart},
		{Seq: 2, Type: EventComplete, Step: StepStart, Result: map[string]any{"count": 5}},
		{Seq: 3, Type: EventInvoke, Step: StepPoll, Args: map[string]any{"remote": 7}},
		{Seq: 4, Type: EventAlert, Result: map[string]any{"delta": 2, "count": 7}},
		{Seq: 5, Type: EventToast, Result: map[string]any{"visible": true}},
		{Seq: 6, Type: EventComplete, Step: StepPoll, Result: map[string]any{"count": 7}},
		{Seq: 7, Type: EventInvoke, Step: StepPoll},
		{Seq: 8, Type: EventComplete, Step: StepPoll, Result: map[string]any{"count": 7}},
	}
}

func TestTraceEvent_Name(t *testing.T) {
	tr := sampleTrace()
	assert.Equal(t, "start", tr[0].Name())
	assert.Equal(t, "start.done", tr[1].Name())
	assert.Equal(t, "alert", tr[3].Name())
}

func TestAssertTraceContains(t *testing.T) {
	tr := sampleTrace()
	assert.NoError(t, assertTraceContains(tr, Assertion{Event: "alert", Result: map[string]any{"delta": 2}}))
	assert.NoError(t, assertTraceContains(tr, Assertion{Event: "poll", Result: map[string]any{"remote": 7}}))
	assert.Error(t, assertTraceContains(tr, Assertion{Event: "alert", Result: map[string]any{"delta": 3}}))
	assert.Error(t, assertTraceContains(tr, Assertion{Event: "notification"}))
}

func TestAssertTraceOrder(t *testing.T) {
	tr := sampleTrace()
	assert.NoError(t, assertTraceOrder(tr, Assertion{Events: []string{"start", "alert", "poll.done"}}))
	assert.NoError(t, assertTraceOrder(tr, Assertion{Events: []string{"poll", "poll"}}), "repeated names match later occurrences")
	assert.Error(t, assertTraceOrder(tr, Assertion{Events: []string{"alert", "start"}}))
	assert.Error(t, assertTraceOrder(tr, Assertion{Events: []string{"poll", "poll", "poll"}}))
}

func TestAssertTraceCount(t *testing.T) {
	tr := sampleTrace()
	assert.NoError(t, assertTraceCount(tr, Assertion{Event: "poll.done", Count: 2}))
	assert.NoError(t, assertTraceCount(tr, Assertion{Event: "notification", Count: 0}))

	err := assertTraceCount(tr, Assertion{Event: "alert", Count: 2})
	var ae *AssertionError
	assert.ErrorAs(t, err, &ae)
	assert.Equal(t, "1 occurrences", ae.Actual)
}

func TestAssertFinalState(t *testing.T) {
	state := map[string]any{"state": "polling", "count": 7, "toast_visible": false}

	assert.NoError(t, assertFinalState(state, Assertion{Expect: map[string]any{"state": "polling", "count": 7}}))
	assert.NoError(t, assertFinalState(state, Assertion{Expect: map[string]any{"count": float64(7)}}))

	err := assertFinalState(state, Assertion{Expect: map[string]any{"count": 6, "mood": "ok"}})
	assert.ErrorContains(t, err, "count: expected 6, got 7")
	assert.ErrorContains(t, err, "mood: unknown state field")
}

func TestEvaluateAssertions_UnknownType(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{{Type: "nope"}})
	assert.Len(t, errs, 1)
}
