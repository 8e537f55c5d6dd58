package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"academtrack_go/models"
	"academtrack_go/store"
)

// saveFailBackend serves reads from an inner store but rejects writes.
type saveFailBackend struct {
	inner   *store.MemoryStore
	saveErr error
}

func (b *saveFailBackend) Load(ctx context.Context, key string) ([]byte, error) {
	return b.inner.Load(ctx, key)
}

func (b *saveFailBackend) Save(ctx context.Context, key string, payload []byte) error {
	return b.saveErr
}

func testStructure() models.SharedStructure {
	return models.SharedStructure{Years: []models.Year{
		{
			ID:         "year-1",
			YearNumber: 1,
			Semesters: []models.Semester{
				{
					ID:             "year-1-s1",
					SemesterNumber: 1,
					Modules: []models.Module{
						{
							ID:   "mod-math",
							Name: "Mathematics",
							Subjects: []models.SubjectStructure{
								{
									ID:   "sub-algebra",
									Name: "Algebra",
									Lessons: []models.Lesson{
										{ID: "les-1", Title: "Linear equations"},
										{ID: "les-2", Title: "Quadratics"},
									},
								},
							},
						},
					},
				},
				{ID: "year-1-s2", SemesterNumber: 2, Modules: []models.Module{}},
			},
		},
	}}
}

func seedStructure(t *testing.T, backend store.Backend, structure models.SharedStructure) {
	t.Helper()
	payload, err := json.Marshal(structure)
	if err != nil {
		t.Fatalf("marshal structure: %v", err)
	}
	if err := backend.Save(context.Background(), store.KeySharedStructure, payload); err != nil {
		t.Fatalf("seed structure: %v", err)
	}
}

func newTestAcademic(t *testing.T, adapter *store.Adapter) *AcademicService {
	t.Helper()
	svc, err := NewAcademicService(context.Background(), adapter, 0)
	if err != nil {
		t.Fatalf("NewAcademicService: %v", err)
	}
	return svc
}

func TestNewAcademicServiceDefaultsWhenEmpty(t *testing.T) {
	adapter := store.NewAdapter(nil, store.NewMemoryStore())
	svc := newTestAcademic(t, adapter)

	years := svc.Years()
	if len(years) != 5 {
		t.Fatalf("expected default 5-year structure, got %d years", len(years))
	}
	if len(years[0].Semesters) != 2 {
		t.Fatalf("default years must carry 2 semesters")
	}
}

func TestNewAcademicServiceMigratesAndPersists(t *testing.T) {
	local := store.NewMemoryStore()
	legacy := models.SharedStructure{Years: []models.Year{
		{ID: "year-1", YearNumber: 1, Modules: []models.Module{{ID: "m1", Name: "Old"}}},
	}}
	seedStructure(t, local, legacy)

	svc := newTestAcademic(t, store.NewAdapter(nil, local))

	years := svc.Years()
	if len(years[0].Semesters) != 2 || years[0].Modules != nil {
		t.Fatalf("structure not migrated in memory: %+v", years[0])
	}

	// The upgraded document must be written back immediately.
	payload, err := local.Load(context.Background(), store.KeySharedStructure)
	if err != nil {
		t.Fatalf("load persisted structure: %v", err)
	}
	var persisted models.SharedStructure
	if err := json.Unmarshal(payload, &persisted); err != nil {
		t.Fatalf("unmarshal persisted structure: %v", err)
	}
	if len(persisted.Years[0].Semesters) != 2 || persisted.Years[0].Modules != nil {
		t.Fatalf("persisted structure still legacy-shaped: %+v", persisted.Years[0])
	}
}

func TestOverlayIsolationBetweenUsers(t *testing.T) {
	local := store.NewMemoryStore()
	seedStructure(t, local, testStructure())
	svc := newTestAcademic(t, store.NewAdapter(nil, local))
	ctx := context.Background()

	alice := &models.User{ID: "u-alice", Username: "alice"}
	bob := &models.User{ID: "u-bob", Username: "bob"}

	if err := svc.UpdateUserSubjectData(ctx, alice, "sub-algebra", SubjectDataPatch{
		AssignmentScore: fptr(14),
		ExamScore:       fptr(16),
	}); err != nil {
		t.Fatalf("update alice: %v", err)
	}
	if err := svc.UpdateLessonReviewStatus(ctx, alice, "sub-algebra", "les-1", models.ReviewReviewed); err != nil {
		t.Fatalf("review alice: %v", err)
	}

	aliceView, _, ok := svc.GetSubject(ctx, "sub-algebra", alice)
	if !ok {
		t.Fatalf("subject not found for alice")
	}
	if aliceView.AssignmentScore == nil || *aliceView.AssignmentScore != 14 {
		t.Fatalf("alice assignment score = %v", aliceView.AssignmentScore)
	}
	if aliceView.Lessons[0].ReviewStatus == nil || *aliceView.Lessons[0].ReviewStatus != models.ReviewReviewed {
		t.Fatalf("alice lesson 1 review status = %v", aliceView.Lessons[0].ReviewStatus)
	}

	bobView, _, ok := svc.GetSubject(ctx, "sub-algebra", bob)
	if !ok {
		t.Fatalf("subject not found for bob")
	}
	if bobView.AssignmentScore != nil || bobView.ExamScore != nil {
		t.Fatalf("bob must not inherit alice's scores: %+v", bobView)
	}
	if bobView.MissedSessions != 0 {
		t.Fatalf("bob missed sessions = %d, want 0", bobView.MissedSessions)
	}
	for _, lesson := range bobView.Lessons {
		if lesson.ReviewStatus != nil {
			t.Fatalf("bob must not inherit review status, got %v", *lesson.ReviewStatus)
		}
	}
}

func TestGradeEntryEndToEnd(t *testing.T) {
	local := store.NewMemoryStore()
	seedStructure(t, local, testStructure())
	svc := newTestAcademic(t, store.NewAdapter(nil, local))
	ctx := context.Background()

	user := &models.User{ID: "u-1", Username: "student"}
	missed := 3
	if err := svc.UpdateUserSubjectData(ctx, user, "sub-algebra", SubjectDataPatch{
		AssignmentScore: fptr(14),
		ExamScore:       fptr(16),
		MissedSessions:  &missed,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	subject, module, ok := svc.GetSubject(ctx, "sub-algebra", user)
	if !ok {
		t.Fatalf("subject not found")
	}
	if module.ID != "mod-math" {
		t.Fatalf("module = %s, want mod-math", module.ID)
	}

	scores := ComputeScores(subject)
	if !closeTo(scores.InitialScore, 15) || !closeTo(scores.Penalty, 0.6) || !closeTo(scores.FinalScore, 14.4) {
		t.Fatalf("scores = %+v, want 15/0.6/14.4", scores)
	}
}

func TestUpdateUserSubjectDataValidation(t *testing.T) {
	local := store.NewMemoryStore()
	seedStructure(t, local, testStructure())
	svc := newTestAcademic(t, store.NewAdapter(nil, local))
	ctx := context.Background()

	if err := svc.UpdateUserSubjectData(ctx, nil, "sub-algebra", SubjectDataPatch{}); err == nil {
		t.Fatalf("expected error without a user")
	}

	negative := -1
	user := &models.User{ID: "u-1"}
	if err := svc.UpdateUserSubjectData(ctx, user, "sub-algebra", SubjectDataPatch{MissedSessions: &negative}); err == nil {
		t.Fatalf("expected error for negative missed sessions")
	}

	if err := svc.UpdateLessonReviewStatus(ctx, user, "sub-algebra", "les-1", "Done"); err == nil {
		t.Fatalf("expected error for unknown review status")
	}
}

func TestIncrementMissedSessionsConcurrent(t *testing.T) {
	local := store.NewMemoryStore()
	seedStructure(t, local, testStructure())
	svc := newTestAcademic(t, store.NewAdapter(nil, local))
	ctx := context.Background()
	user := &models.User{ID: "u-1", Username: "student"}

	const n = 100
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.IncrementMissedSessions(ctx, user, "sub-algebra"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("increment: %v", err)
	}

	subject, _, _ := svc.GetSubject(ctx, "sub-algebra", user)
	if subject.MissedSessions != n {
		t.Fatalf("missed sessions = %d, want %d", subject.MissedSessions, n)
	}

	if err := svc.IncrementMissedSessions(ctx, nil, "sub-algebra"); err == nil {
		t.Fatalf("expected error without a user")
	}
}

func TestUpdateStructureOptimistic(t *testing.T) {
	local := store.NewMemoryStore()
	svc := newTestAcademic(t, store.NewAdapter(nil, local))
	ctx := context.Background()

	before := svc.Refresh()
	svc.UpdateStructure(ctx, testStructure().Years)

	years := svc.Years()
	if len(years) != 1 || years[0].ID != "year-1" {
		t.Fatalf("in-memory structure not replaced: %+v", years)
	}
	if svc.Refresh() != before+1 {
		t.Fatalf("refresh counter = %d, want %d", svc.Refresh(), before+1)
	}

	// Persistence runs in the background.
	deadline := time.Now().Add(time.Second)
	for {
		payload, err := local.Load(ctx, store.KeySharedStructure)
		if err == nil && strings.Contains(string(payload), "sub-algebra") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("structure update never persisted")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestUpdateStructureMigratesInput(t *testing.T) {
	local := store.NewMemoryStore()
	svc := newTestAcademic(t, store.NewAdapter(nil, local))

	svc.UpdateStructure(context.Background(), []models.Year{
		{ID: "year-1", YearNumber: 1, Modules: []models.Module{{ID: "m1"}}},
	})

	years := svc.Years()
	if len(years[0].Semesters) != 2 || years[0].Modules != nil {
		t.Fatalf("legacy input must be migrated before use: %+v", years[0])
	}
}

func TestUpdateSubjectLessons(t *testing.T) {
	local := store.NewMemoryStore()
	seedStructure(t, local, testStructure())
	svc := newTestAcademic(t, store.NewAdapter(nil, local))
	ctx := context.Background()

	newLessons := []models.Lesson{{ID: "les-9", Title: "Polynomials"}}
	if err := svc.UpdateSubjectLessons(ctx, "sub-algebra", newLessons); err != nil {
		t.Fatalf("update lessons: %v", err)
	}

	subject, _, ok := svc.GetSubject(ctx, "sub-algebra", nil)
	if !ok {
		t.Fatalf("subject not found")
	}
	if len(subject.Lessons) != 1 || subject.Lessons[0].ID != "les-9" {
		t.Fatalf("lessons not replaced: %+v", subject.Lessons)
	}

	// Persisted synchronously.
	payload, err := local.Load(ctx, store.KeySharedStructure)
	if err != nil || !strings.Contains(string(payload), "les-9") {
		t.Fatalf("lesson update not persisted: %v", err)
	}
}

func TestUpdateSubjectLessonsUnknownSubject(t *testing.T) {
	local := store.NewMemoryStore()
	seedStructure(t, local, testStructure())
	svc := newTestAcademic(t, store.NewAdapter(nil, local))

	err := svc.UpdateSubjectLessons(context.Background(), "sub-nope", nil)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected subject-not-found error, got %v", err)
	}
}

func TestUpdateSubjectLessonsRefusesUninitializedStructure(t *testing.T) {
	tests := []struct {
		name string
		seed func(t *testing.T, local *store.MemoryStore)
	}{
		{
			name: "no document",
			seed: func(t *testing.T, local *store.MemoryStore) {},
		},
		{
			name: "zero years",
			seed: func(t *testing.T, local *store.MemoryStore) {
				seedStructure(t, local, models.SharedStructure{Years: []models.Year{}})
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			local := store.NewMemoryStore()
			seedStructure(t, local, testStructure())
			svc := newTestAcademic(t, store.NewAdapter(nil, local))

			// Degrade storage after startup.
			fresh := store.NewMemoryStore()
			tc.seed(t, fresh)
			svc.adapter = store.NewAdapter(nil, fresh)

			if err := svc.UpdateSubjectLessons(context.Background(), "sub-algebra", nil); err == nil {
				t.Fatalf("expected refusal on uninitialized structure")
			}
		})
	}
}

func TestUpdateSubjectLessonsReloadsOnPersistFailure(t *testing.T) {
	remoteInner := store.NewMemoryStore()
	seedStructure(t, remoteInner, testStructure())
	remote := &saveFailBackend{inner: remoteInner, saveErr: errors.New("insert failed")}
	local := store.NewMemoryStore()

	svc := newTestAcademic(t, store.NewAdapter(remote, local))
	ctx := context.Background()

	err := svc.UpdateSubjectLessons(ctx, "sub-algebra", []models.Lesson{{ID: "les-9", Title: "Polynomials"}})
	if err == nil {
		t.Fatalf("expected persist failure to surface")
	}

	// In-memory state must reflect authoritative storage, not the
	// rejected edit.
	subject, _, ok := svc.GetSubject(ctx, "sub-algebra", nil)
	if !ok {
		t.Fatalf("subject not found after reload")
	}
	if len(subject.Lessons) != 2 || subject.Lessons[0].ID != "les-1" {
		t.Fatalf("rejected lesson edit leaked into memory: %+v", subject.Lessons)
	}
}

func TestStripLargeAttachments(t *testing.T) {
	structure := testStructure()
	structure.Years[0].Semesters[0].Modules[0].Subjects[0].Lessons = []models.Lesson{
		{ID: "big", Attachment: &models.LessonAttachment{Name: "big.pdf", Data: strings.Repeat("A", 64), Size: 64}},
		{ID: "small", Attachment: &models.LessonAttachment{Name: "small.pdf", Data: "tiny", Size: 4}},
	}

	stripped := stripLargeAttachments(structure, 16)

	lessons := stripped.Years[0].Semesters[0].Modules[0].Subjects[0].Lessons
	big, small := lessons[0].Attachment, lessons[1].Attachment
	if big.Data != "" || big.Name != "big.pdf" || big.Size != 64 {
		t.Fatalf("oversized attachment not stripped correctly: %+v", big)
	}
	if small.Data != "tiny" {
		t.Fatalf("small attachment must stay inline: %+v", small)
	}

	// The original is untouched.
	orig := structure.Years[0].Semesters[0].Modules[0].Subjects[0].Lessons[0].Attachment
	if orig.Data == "" {
		t.Fatalf("stripLargeAttachments must not mutate its input")
	}
}

type recordingNotifier struct {
	resources []string
	seqs      []uint64
}

func (r *recordingNotifier) NotifyRefresh(resource string, seq uint64) {
	r.resources = append(r.resources, resource)
	r.seqs = append(r.seqs, seq)
}

func TestMutationsNotifyRefresh(t *testing.T) {
	local := store.NewMemoryStore()
	seedStructure(t, local, testStructure())
	svc := newTestAcademic(t, store.NewAdapter(nil, local))

	n := &recordingNotifier{}
	svc.SetNotifier(n)

	user := &models.User{ID: "u-1"}
	if err := svc.UpdateUserSubjectData(context.Background(), user, "sub-algebra", SubjectDataPatch{AssignmentScore: fptr(10)}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if len(n.resources) != 1 || n.resources[0] != "user_data" {
		t.Fatalf("expected one user_data refresh, got %v", n.resources)
	}
	if n.seqs[0] != svc.Refresh() {
		t.Fatalf("notified seq %d, counter %d", n.seqs[0], svc.Refresh())
	}
}
