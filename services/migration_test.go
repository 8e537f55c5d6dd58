package services

import (
	"reflect"
	"testing"

	"academtrack_go/models"
)

func TestMigrateYearsLegacyModules(t *testing.T) {
	legacy := []models.Year{
		{
			ID:         "year-1",
			YearNumber: 1,
			Modules: []models.Module{
				{ID: "m1", Name: "Algebra Basics", Subjects: []models.SubjectStructure{{ID: "s1", Name: "Algebra"}}},
			},
		},
	}

	migrated := MigrateYears(legacy)

	if len(migrated) != 1 {
		t.Fatalf("expected 1 year, got %d", len(migrated))
	}
	year := migrated[0]
	if year.Modules != nil {
		t.Fatalf("legacy modules field must be cleared, got %v", year.Modules)
	}
	if len(year.Semesters) != 2 {
		t.Fatalf("expected 2 semesters, got %d", len(year.Semesters))
	}
	s1, s2 := year.Semesters[0], year.Semesters[1]
	if s1.ID != "year-1-s1" || s1.SemesterNumber != 1 {
		t.Fatalf("unexpected first semester %+v", s1)
	}
	if !reflect.DeepEqual(s1.Modules, legacy[0].Modules) {
		t.Fatalf("legacy modules must land in semester 1")
	}
	if s2.ID != "year-1-s2" || s2.SemesterNumber != 2 || len(s2.Modules) != 0 {
		t.Fatalf("unexpected second semester %+v", s2)
	}
}

func TestMigrateYearsEmptyYear(t *testing.T) {
	migrated := MigrateYears([]models.Year{{ID: "year-3", YearNumber: 3}})
	if len(migrated[0].Semesters) != 2 {
		t.Fatalf("expected 2 semesters, got %d", len(migrated[0].Semesters))
	}
	if migrated[0].Semesters[0].Modules == nil || len(migrated[0].Semesters[0].Modules) != 0 {
		t.Fatalf("semester 1 of an empty year must get an empty module list")
	}
}

func TestMigrateYearsIdempotent(t *testing.T) {
	legacy := []models.Year{
		{ID: "year-1", YearNumber: 1, Modules: []models.Module{{ID: "m1", Name: "M1"}}},
		{ID: "year-2", YearNumber: 2},
	}

	once := MigrateYears(legacy)
	twice := MigrateYears(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("migration must be idempotent\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestMigrateYearsPreservesCurrentSchema(t *testing.T) {
	current := []models.Year{
		{
			ID:         "year-1",
			YearNumber: 1,
			Semesters: []models.Semester{
				{ID: "custom-sem", SemesterNumber: 1, Modules: []models.Module{{ID: "m1"}}},
			},
		},
	}

	migrated := MigrateYears(current)
	if !reflect.DeepEqual(migrated, current) {
		t.Fatalf("years already in the semester schema must pass through unchanged")
	}
}

func TestDefaultStructure(t *testing.T) {
	structure := DefaultStructure()
	if len(structure.Years) != 5 {
		t.Fatalf("expected 5 years, got %d", len(structure.Years))
	}
	for i, year := range structure.Years {
		if year.YearNumber != i+1 {
			t.Fatalf("year %d has number %d", i, year.YearNumber)
		}
		if len(year.Semesters) != 2 {
			t.Fatalf("year %d has %d semesters", year.YearNumber, len(year.Semesters))
		}
		for _, sem := range year.Semesters {
			if len(sem.Modules) != 0 {
				t.Fatalf("default structure must start empty")
			}
		}
	}
	// Already in the current schema: migration is a no-op.
	if !reflect.DeepEqual(MigrateYears(structure.Years), structure.Years) {
		t.Fatalf("default structure must not need migration")
	}
}
