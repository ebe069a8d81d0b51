package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionStatus_Transitions(t *testing.T) {
	all := []SessionStatus{SessionStatusPending, SessionStatusActive, SessionStatusCompleted, SessionStatusCancelled}
	rank := map[SessionStatus]int{
		SessionStatusPending:   0,
		SessionStatusActive:    1,
		SessionStatusCompleted: 2,
		SessionStatusCancelled: 2,
	}

	for _, from := range all {
		for _, to := range all {
			got := from.CanTransitionTo(to)
			want := rank[to] > rank[from]
			assert.Equal(t, want, got, "%s -> %s", from, to)
		}
	}
}

func TestSessionStatus_IsTerminal(t *testing.T) {
	assert.False(t, SessionStatusPending.IsTerminal())
	assert.False(t, SessionStatusActive.IsTerminal())
	assert.True(t, SessionStatusCompleted.IsTerminal())
	assert.True(t, SessionStatusCancelled.IsTerminal())
}

func TestOutcome_Opposite(t *testing.T) {
	assert.Equal(t, OutcomeLoss, OutcomeWin.Opposite())
	assert.Equal(t, OutcomeWin, OutcomeLoss.Opposite())
	assert.Equal(t, OutcomeDraw, OutcomeDraw.Opposite())
}

func TestSession_ParticipantHelpers(t *testing.T) {
	s := &Session{Participants: [2]Participant{{UserID: "a", Rating: 1200}, {UserID: "b", Rating: 1300}}}

	assert.True(t, s.HasParticipant("a"))
	assert.False(t, s.HasParticipant("c"))
	assert.Equal(t, "b", s.Opponent("a"))
	assert.Equal(t, "a", s.Opponent("b"))

	p, ok := s.Participant("b")
	assert.True(t, ok)
	assert.Equal(t, 1300, p.Rating)
}

func TestSession_CloneIsIndependent(t *testing.T) {
	s := &Session{
		Submissions: []Submission{{ParticipantID: "a"}},
		RatingDelta: map[string]int{"a": 16},
	}

	c := s.Clone()
	c.Submissions[0].ParticipantID = "x"
	c.RatingDelta["a"] = 0

	assert.Equal(t, "a", s.Submissions[0].ParticipantID)
	assert.Equal(t, 16, s.RatingDelta["a"])
}

func TestProblem_ViewHidesHiddenCases(t *testing.T) {
	p := &Problem{
		ID: "two-sum",
		TestCases: []TestCase{
			{Input: "1", ExpectedOutput: "1"},
			{Input: "2", ExpectedOutput: "2", Hidden: true},
		},
	}

	v := p.View(0)
	assert.Len(t, v.Examples, 1)
	assert.Equal(t, "1", v.Examples[0].Input)
}

func TestEvaluationResult_PassedCount(t *testing.T) {
	r := &EvaluationResult{Results: []TestCaseResult{{Passed: true}, {Passed: false}, {Passed: true}}}
	assert.Equal(t, 2, r.PassedCount())
}
