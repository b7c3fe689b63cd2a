package runstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := New()
	s.StepIndex = 2
	s.PlanSteps = []string{"research", "draft", "review"}
	s.ContextSummary = "step 1 done; step 2 done"
	s.SetWait(WaitKindApproval, "evt_123")
	s.Approve("gmail_send_email", true)
	s.Approve("github_create_issue", false)

	decoded := Decode(Encode(s))
	require.NotNil(t, decoded)
	assert.Equal(t, s.StepIndex, decoded.StepIndex)
	assert.Equal(t, s.PlanSteps, decoded.PlanSteps)
	assert.Equal(t, s.ContextSummary, decoded.ContextSummary)
	assert.Equal(t, "evt_123", decoded.WaitingForEventID)
	assert.Equal(t, WaitKindApproval, decoded.WaitingForKind)
	assert.Equal(t, map[string]bool{"gmail_send_email": true}, decoded.ApprovedTools)
	assert.Equal(t, map[string]bool{"github_create_issue": true}, decoded.DeniedTools)
}

func TestEncodeNormalizesEmptyMaps(t *testing.T) {
	s := New()
	s.PlanSteps = []string{"a"}
	s.ApprovedTools = map[string]bool{"x": false}
	s.DeniedTools = map[string]bool{}

	decoded := Decode(Encode(s))
	require.NotNil(t, decoded)
	assert.Nil(t, decoded.ApprovedTools)
	assert.Nil(t, decoded.DeniedTools)
}

func TestEncodePreservesWaitBeforePlanning(t *testing.T) {
	// A run can pause before any plan exists, e.g. when the model asks a
	// clarifying question during planning. The blob must round-trip.
	s := New()
	s.SetWait(WaitKindQuestion, "evt_9")

	decoded := Decode(Encode(s))
	require.NotNil(t, decoded)
	assert.Empty(t, decoded.PlanSteps)
	require.True(t, decoded.Waiting())
	assert.Equal(t, WaitKindQuestion, decoded.WaitingForKind)
	assert.Equal(t, "evt_9", decoded.WaitingForEventID)
}

func TestDecodeRejectsMalformedBlobs(t *testing.T) {
	cases := map[string]string{
		"empty":              "",
		"not json":           "definitely not json",
		"missing plan":       `{"v":1,"step_index":0}`,
		"null plan":          `{"v":1,"step_index":0,"plan_steps":null}`,
		"non-array plan":     `{"v":1,"step_index":0,"plan_steps":"nope"}`,
		"non-numeric index":  `{"v":1,"step_index":"zero","plan_steps":[]}`,
		"missing index":      `{"v":1,"plan_steps":[]}`,
		"wrong version":      `{"v":7,"step_index":0,"plan_steps":[]}`,
		"missing version":    `{"step_index":0,"plan_steps":[]}`,
		"index out of range": `{"v":1,"step_index":5,"plan_steps":["a","b"]}`,
		"negative index":     `{"v":1,"step_index":-1,"plan_steps":[]}`,
		"half wait pointer":  `{"v":1,"step_index":0,"plan_steps":[],"waiting_for_event_id":"evt_1"}`,
		"kind without event": `{"v":1,"step_index":0,"plan_steps":[],"waiting_for_kind":"question"}`,
		"unknown wait kind":  `{"v":1,"step_index":0,"plan_steps":[],"waiting_for_event_id":"e","waiting_for_kind":"poll"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Nil(t, Decode(raw))
		})
	}
}

func TestDecodeAcceptsStepIndexAtPlanLength(t *testing.T) {
	s := Decode(`{"v":1,"step_index":2,"plan_steps":["a","b"]}`)
	require.NotNil(t, s)
	assert.Equal(t, 2, s.StepIndex)
}

func TestApproveFlipsDecision(t *testing.T) {
	s := New()
	s.Approve("gmail_send_email", false)
	assert.True(t, s.DeniedTools["gmail_send_email"])

	s.Approve("gmail_send_email", true)
	assert.True(t, s.ApprovedTools["gmail_send_email"])
	assert.NotContains(t, s.DeniedTools, "gmail_send_email")
}
