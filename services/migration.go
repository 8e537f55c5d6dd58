package services

import (
	"fmt"

	"academtrack_go/models"
)

// MigrateYears upgrades a loaded shared structure to the semester
// schema. Years that already carry semesters are left untouched;
// legacy flat modules land in semester 1 and an empty semester 2 is
// added. Pure and idempotent - this is the only place in the codebase
// that looks at the legacy shape.
func MigrateYears(years []models.Year) []models.Year {
	out := make([]models.Year, len(years))
	for i, year := range years {
		if len(year.Semesters) > 0 {
			out[i] = year
			continue
		}

		modules := year.Modules
		if modules == nil {
			modules = []models.Module{}
		}

		migrated := year
		migrated.Semesters = []models.Semester{
			{
				ID:             fmt.Sprintf("%s-s1", year.ID),
				SemesterNumber: 1,
				Modules:        modules,
			},
			{
				ID:             fmt.Sprintf("%s-s2", year.ID),
				SemesterNumber: 2,
				Modules:        []models.Module{},
			},
		}
		migrated.Modules = nil
		out[i] = migrated
	}
	return out
}

// DefaultStructure returns the empty 5-year curriculum created on
// first access, already in the current schema.
func DefaultStructure() models.SharedStructure {
	years := make([]models.Year, 0, 5)
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("year-%d", i)
		years = append(years, models.Year{
			ID:         id,
			YearNumber: i,
			Semesters: []models.Semester{
				{ID: fmt.Sprintf("%s-s1", id), SemesterNumber: 1, Modules: []models.Module{}},
				{ID: fmt.Sprintf("%s-s2", id), SemesterNumber: 2, Modules: []models.Module{}},
			},
		})
	}
	return models.SharedStructure{Years: years}
}
