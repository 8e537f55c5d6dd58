package services

import "academtrack_go/models"

// Each missed session costs 0.2 points off the final score.
const missedSessionPenalty = 0.2

// ComputeScores derives the grade figures for a merged subject view.
// Until both scores are entered the initial and final scores stay 0;
// the penalty accrues from missed sessions either way. The final score
// never goes below 0.
func ComputeScores(subject models.Subject) models.SubjectScores {
	penalty := float64(subject.MissedSessions) * missedSessionPenalty

	if subject.AssignmentScore == nil || subject.ExamScore == nil {
		return models.SubjectScores{
			InitialScore: 0,
			Penalty:      penalty,
			FinalScore:   0,
		}
	}

	initial := (*subject.AssignmentScore + *subject.ExamScore) / 2
	final := initial - penalty
	if final < 0 {
		final = 0
	}

	return models.SubjectScores{
		InitialScore: initial,
		Penalty:      penalty,
		FinalScore:   final,
	}
}
