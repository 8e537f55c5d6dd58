package services

import (
	"math"
	"testing"

	"academtrack_go/models"
)

func fptr(v float64) *float64 { return &v }

func TestComputeScores(t *testing.T) {
	tests := []struct {
		name        string
		subject     models.Subject
		wantInitial float64
		wantPenalty float64
		wantFinal   float64
	}{
		{
			name: "both scores with misses",
			subject: models.Subject{
				AssignmentScore: fptr(14),
				ExamScore:       fptr(16),
				MissedSessions:  3,
			},
			wantInitial: 15,
			wantPenalty: 0.6,
			wantFinal:   14.4,
		},
		{
			name: "no misses",
			subject: models.Subject{
				AssignmentScore: fptr(10),
				ExamScore:       fptr(20),
			},
			wantInitial: 15,
			wantPenalty: 0,
			wantFinal:   15,
		},
		{
			name: "penalty floors at zero",
			subject: models.Subject{
				AssignmentScore: fptr(0),
				ExamScore:       fptr(1),
				MissedSessions:  10,
			},
			wantInitial: 0.5,
			wantPenalty: 2,
			wantFinal:   0,
		},
		{
			name: "missing assignment score",
			subject: models.Subject{
				ExamScore:      fptr(18),
				MissedSessions: 2,
			},
			wantInitial: 0,
			wantPenalty: 0.4,
			wantFinal:   0,
		},
		{
			name: "missing exam score",
			subject: models.Subject{
				AssignmentScore: fptr(12),
			},
			wantInitial: 0,
			wantPenalty: 0,
			wantFinal:   0,
		},
		{
			name:        "no data at all",
			subject:     models.Subject{MissedSessions: 5},
			wantInitial: 0,
			wantPenalty: 1,
			wantFinal:   0,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeScores(tc.subject)
			if !closeTo(got.InitialScore, tc.wantInitial) {
				t.Errorf("initial score = %v, want %v", got.InitialScore, tc.wantInitial)
			}
			if !closeTo(got.Penalty, tc.wantPenalty) {
				t.Errorf("penalty = %v, want %v", got.Penalty, tc.wantPenalty)
			}
			if !closeTo(got.FinalScore, tc.wantFinal) {
				t.Errorf("final score = %v, want %v", got.FinalScore, tc.wantFinal)
			}
		})
	}
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
