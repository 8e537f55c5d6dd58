package services

import (
	"bytes"
	"context"
	"fmt"

	"academtrack_go/models"

	"github.com/xuri/excelize/v2"
)

// TranscriptService renders a user's grades as an xlsx workbook, one
// sheet per curriculum year.
type TranscriptService struct {
	academic *AcademicService
}

func NewTranscriptService(academic *AcademicService) *TranscriptService {
	return &TranscriptService{academic: academic}
}

var transcriptHeader = []string{
	"Module", "Subject", "Coefficient", "Assignment", "Exam",
	"Missed Sessions", "Initial Score", "Penalty", "Final Score",
}

// Export builds the workbook for one user across all years.
func (t *TranscriptService) Export(ctx context.Context, user *models.User) (*bytes.Buffer, error) {
	if user == nil {
		return nil, fmt.Errorf("no user logged in")
	}

	f := excelize.NewFile()
	defer f.Close()

	years := t.academic.Years()
	if len(years) == 0 {
		return nil, fmt.Errorf("shared structure not initialized")
	}

	for i, year := range years {
		sheet := fmt.Sprintf("Year %d", year.YearNumber)
		if i == 0 {
			f.SetSheetName(f.GetSheetName(0), sheet)
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return nil, err
			}
		}

		for col, title := range transcriptHeader {
			cell, _ := excelize.CoordinatesToCellName(col+1, 1)
			f.SetCellValue(sheet, cell, title)
		}

		row := 2
		entries := t.academic.GetSubjectsForYear(ctx, year.YearNumber, user)
		for _, entry := range entries {
			scores := ComputeScores(entry.Subject)
			values := []interface{}{
				entry.Module.Name,
				entry.Subject.Name,
				coefficientCell(entry.Subject.Coefficient),
				scoreCell(entry.Subject.AssignmentScore),
				scoreCell(entry.Subject.ExamScore),
				entry.Subject.MissedSessions,
				scores.InitialScore,
				scores.Penalty,
				scores.FinalScore,
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row)
				f.SetCellValue(sheet, cell, v)
			}
			row++
		}

		f.SetColWidth(sheet, "A", "B", 28)
		f.SetColWidth(sheet, "C", "I", 16)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write transcript workbook: %w", err)
	}
	return buf, nil
}

// FileName returns the download name for a user's transcript.
func (t *TranscriptService) FileName(user *models.User) string {
	return fmt.Sprintf("transcript_%s.xlsx", user.Username)
}

func scoreCell(score *float64) interface{} {
	if score == nil {
		return ""
	}
	return *score
}

func coefficientCell(coefficient *float64) interface{} {
	if coefficient == nil {
		return 1
	}
	return *coefficient
}
