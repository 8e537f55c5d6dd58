package services

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"academtrack_go/models"
	"academtrack_go/store"

	"github.com/sirupsen/logrus"
)

// Notifier receives a signal after every mutation so read-model
// consumers know to recompute derived views. Cache invalidation, not
// a correctness mechanism.
type Notifier interface {
	NotifyRefresh(resource string, seq uint64)
}

// persistPolicy picks the failure behavior of a structure write.
type persistPolicy int

const (
	// keepOptimistic: in-memory state stands, persistence failure is
	// only logged. Used for grade edits and plain structure edits.
	keepOptimistic persistPolicy = iota
	// reloadAuthoritative: on failure the in-memory state is forced
	// back to the last persisted value and the error surfaces. Used
	// for lesson edits, the higher-stakes shared mutation.
	reloadAuthoritative
)

// AcademicService owns the shared curriculum structure and the
// per-user overlay documents, and merges the two into the subject
// views the UI consumes.
type AcademicService struct {
	adapter *store.Adapter

	// Attachments above this many bytes are stripped from local
	// mirrors of the structure document.
	maxMirrorAttachment int64

	notifier Notifier
	refresh  uint64

	mu        sync.RWMutex
	structure models.SharedStructure

	udMu     sync.Mutex
	userData map[string]*models.UserData
}

// NewAcademicService loads the shared structure (falling back to the
// empty 5-year default), migrates it to the current schema and, if
// migration changed anything, persists the upgraded document right
// away so later reads observe the new shape.
func NewAcademicService(ctx context.Context, adapter *store.Adapter, maxMirrorAttachment int64) (*AcademicService, error) {
	if maxMirrorAttachment <= 0 {
		maxMirrorAttachment = 1 << 20
	}

	s := &AcademicService{
		adapter:             adapter,
		maxMirrorAttachment: maxMirrorAttachment,
		userData:            make(map[string]*models.UserData),
	}

	structure := DefaultStructure()
	payload, err := adapter.Load(ctx, store.KeySharedStructure)
	if err == nil {
		var loaded models.SharedStructure
		if jsonErr := json.Unmarshal(payload, &loaded); jsonErr != nil {
			return nil, fmt.Errorf("corrupt shared structure document: %w", jsonErr)
		}
		structure = loaded
	}

	migrated := MigrateYears(structure.Years)
	changed := !reflect.DeepEqual(structure.Years, migrated)
	structure.Years = migrated
	s.structure = structure

	if changed {
		if err := s.saveStructure(ctx, structure); err != nil {
			logrus.WithError(err).Warn("Failed to persist migrated structure, will retry on next write")
		} else {
			logrus.Info("Shared structure migrated to semester schema")
		}
	}

	return s, nil
}

// SetNotifier wires the refresh signal consumer (the websocket hub).
func (s *AcademicService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Refresh returns the current mutation counter.
func (s *AcademicService) Refresh() uint64 {
	return atomic.LoadUint64(&s.refresh)
}

func (s *AcademicService) bumpRefresh(resource string) {
	seq := atomic.AddUint64(&s.refresh, 1)
	if s.notifier != nil {
		s.notifier.NotifyRefresh(resource, seq)
	}
}

// Years returns the current shared structure.
func (s *AcademicService) Years() []models.Year {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.structure.Years
}

// SubjectEntry pairs a merged subject view with its owning module.
type SubjectEntry struct {
	Subject models.Subject `json:"subject"`
	Module  models.Module  `json:"module"`
}

// GetSubject locates a subject in the shared structure and overlays
// the calling user's data. Returns false if the subject id is unknown.
func (s *AcademicService) GetSubject(ctx context.Context, subjectID string, user *models.User) (models.Subject, models.Module, bool) {
	s.mu.RLock()
	years := s.structure.Years
	s.mu.RUnlock()

	for _, year := range years {
		for _, semester := range year.Semesters {
			for _, module := range semester.Modules {
				for _, subject := range module.Subjects {
					if subject.ID == subjectID {
						return s.buildSubjectView(ctx, subject, user), module, true
					}
				}
			}
		}
	}
	return models.Subject{}, models.Module{}, false
}

// GetSubjectsForYear returns every subject of a year, each merged with
// the calling user's overlay, together with its module.
func (s *AcademicService) GetSubjectsForYear(ctx context.Context, yearNumber int, user *models.User) []SubjectEntry {
	s.mu.RLock()
	years := s.structure.Years
	s.mu.RUnlock()

	result := []SubjectEntry{}
	for _, year := range years {
		if year.YearNumber != yearNumber {
			continue
		}
		for _, semester := range year.Semesters {
			for _, module := range semester.Modules {
				for _, subject := range module.Subjects {
					result = append(result, SubjectEntry{
						Subject: s.buildSubjectView(ctx, subject, user),
						Module:  module,
					})
				}
			}
		}
	}
	return result
}

// buildSubjectView merges shared subject content with one user's
// overlay. With no user (or no overlay) scores stay absent and
// missed sessions default to 0; review status is never inherited
// from another user.
func (s *AcademicService) buildSubjectView(ctx context.Context, subject models.SubjectStructure, user *models.User) models.Subject {
	view := models.Subject{
		ID:          subject.ID,
		Name:        subject.Name,
		Coefficient: subject.Coefficient,
		Lessons:     make([]models.LessonView, 0, len(subject.Lessons)),
	}

	var overlay *models.SubjectUserData
	if user != nil {
		overlay = s.getUserSubjectData(ctx, user.ID, subject.ID)
	}

	for _, lesson := range subject.Lessons {
		lv := models.LessonView{Lesson: lesson}
		if overlay != nil && overlay.LessonReviewStatus != nil {
			if status, ok := overlay.LessonReviewStatus[lesson.ID]; ok {
				st := status
				lv.ReviewStatus = &st
			}
		}
		view.Lessons = append(view.Lessons, lv)
	}

	if overlay != nil {
		view.AssignmentScore = overlay.AssignmentScore
		view.ExamScore = overlay.ExamScore
		view.MissedSessions = overlay.MissedSessions
	}

	return view
}

// getUserSubjectData returns the user's overlay for one subject, or
// nil if they have none yet.
func (s *AcademicService) getUserSubjectData(ctx context.Context, userID, subjectID string) *models.SubjectUserData {
	ud := s.loadUserData(ctx, userID)
	if data, ok := ud.SubjectData[subjectID]; ok {
		return &data
	}
	return nil
}

// loadUserData fetches (and caches) a user's data document, creating
// the empty document on first access.
func (s *AcademicService) loadUserData(ctx context.Context, userID string) *models.UserData {
	s.udMu.Lock()
	defer s.udMu.Unlock()
	return s.loadUserDataLocked(ctx, userID)
}

func (s *AcademicService) loadUserDataLocked(ctx context.Context, userID string) *models.UserData {
	if cached, ok := s.userData[userID]; ok {
		return cached
	}

	ud := &models.UserData{
		UserID:      userID,
		SubjectData: make(map[string]models.SubjectUserData),
	}
	payload, err := s.adapter.Load(ctx, store.UserDataKey(userID))
	if err == nil {
		var loaded models.UserData
		if jsonErr := json.Unmarshal(payload, &loaded); jsonErr != nil {
			logrus.WithError(jsonErr).WithField("user_id", userID).Error("Corrupt user data document, starting fresh")
		} else {
			if loaded.SubjectData == nil {
				loaded.SubjectData = make(map[string]models.SubjectUserData)
			}
			ud = &loaded
		}
	}

	s.userData[userID] = ud
	return ud
}

// UpdateStructure replaces the shared structure. The in-memory state
// is set immediately and persistence runs in the background; a failed
// save is logged and the optimistic state stands.
func (s *AcademicService) UpdateStructure(ctx context.Context, years []models.Year) {
	structure := models.SharedStructure{Years: MigrateYears(years)}

	s.mu.Lock()
	s.structure = structure
	s.mu.Unlock()
	s.bumpRefresh("structure")

	go func() {
		_ = s.persistStructure(context.Background(), structure, keepOptimistic)
	}()
}

// persistStructure saves the structure document and applies the
// write's failure policy.
func (s *AcademicService) persistStructure(ctx context.Context, structure models.SharedStructure, policy persistPolicy) error {
	err := s.saveStructure(ctx, structure)
	if err == nil {
		return nil
	}
	switch policy {
	case keepOptimistic:
		logrus.WithError(err).Error("Failed to persist structure update, optimistic state stands")
		return nil
	case reloadAuthoritative:
		s.reloadFromStorage(ctx)
		return err
	}
	return err
}

// SubjectDataPatch is a partial update of a user's subject overlay.
// Nil fields are left unchanged.
type SubjectDataPatch struct {
	AssignmentScore *float64 `json:"assignment_score"`
	ExamScore       *float64 `json:"exam_score"`
	MissedSessions  *int     `json:"missed_sessions"`
}

// UpdateUserSubjectData merges a partial grade/attendance update into
// the user's overlay. Optimistic: the cached overlay is updated first
// and is not rolled back if persistence fails (accepted risk, logged).
func (s *AcademicService) UpdateUserSubjectData(ctx context.Context, user *models.User, subjectID string, patch SubjectDataPatch) error {
	if user == nil {
		return fmt.Errorf("no user logged in")
	}
	if patch.MissedSessions != nil && *patch.MissedSessions < 0 {
		return fmt.Errorf("missed sessions cannot be negative")
	}

	s.udMu.Lock()
	ud := s.loadUserDataLocked(ctx, user.ID)

	data, ok := ud.SubjectData[subjectID]
	if !ok {
		data = models.SubjectUserData{SubjectID: subjectID}
	}
	if patch.AssignmentScore != nil {
		data.AssignmentScore = patch.AssignmentScore
	}
	if patch.ExamScore != nil {
		data.ExamScore = patch.ExamScore
	}
	if patch.MissedSessions != nil {
		data.MissedSessions = *patch.MissedSessions
	}
	ud.SubjectData[subjectID] = data

	payload, err := json.Marshal(ud)
	s.udMu.Unlock()
	if err != nil {
		return err
	}

	s.persistUserData(ctx, user.ID, payload)
	s.bumpRefresh("user_data")
	return nil
}

// IncrementMissedSessions adds one missed session to the user's
// overlay for a subject. The read and the write share one critical
// section, so concurrent absence marks never lose an increment.
func (s *AcademicService) IncrementMissedSessions(ctx context.Context, user *models.User, subjectID string) error {
	if user == nil {
		return fmt.Errorf("no user logged in")
	}

	s.udMu.Lock()
	ud := s.loadUserDataLocked(ctx, user.ID)

	data, ok := ud.SubjectData[subjectID]
	if !ok {
		data = models.SubjectUserData{SubjectID: subjectID}
	}
	data.MissedSessions++
	ud.SubjectData[subjectID] = data

	payload, err := json.Marshal(ud)
	s.udMu.Unlock()
	if err != nil {
		return err
	}

	s.persistUserData(ctx, user.ID, payload)
	s.bumpRefresh("user_data")
	return nil
}

// UpdateLessonReviewStatus sets one lesson's review status in the
// user's overlay. Same optimistic pattern as UpdateUserSubjectData,
// scoped to a single map entry.
func (s *AcademicService) UpdateLessonReviewStatus(ctx context.Context, user *models.User, subjectID, lessonID string, status models.ReviewStatus) error {
	if user == nil {
		return fmt.Errorf("no user logged in")
	}
	if !models.ValidReviewStatus(status) {
		return fmt.Errorf("invalid review status %q", status)
	}

	s.udMu.Lock()
	ud := s.loadUserDataLocked(ctx, user.ID)

	data, ok := ud.SubjectData[subjectID]
	if !ok {
		data = models.SubjectUserData{SubjectID: subjectID}
	}
	if data.LessonReviewStatus == nil {
		data.LessonReviewStatus = make(map[string]models.ReviewStatus)
	}
	data.LessonReviewStatus[lessonID] = status
	ud.SubjectData[subjectID] = data

	payload, err := json.Marshal(ud)
	s.udMu.Unlock()
	if err != nil {
		return err
	}

	s.persistUserData(ctx, user.ID, payload)
	s.bumpRefresh("user_data")
	return nil
}

// persistUserData writes a user document with the eventual policy:
// local cache synchronously, remote best-effort. Failures never
// surface to the caller.
func (s *AcademicService) persistUserData(ctx context.Context, userID string, payload []byte) {
	if err := s.adapter.SaveEventual(ctx, store.UserDataKey(userID), payload); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to persist user data, optimistic state stands")
	}
}

// UpdateSubjectLessons replaces a subject's lessons. This is the
// high-stakes shared mutation, so it runs with reloadAuthoritative
// semantics: re-fetch the structure from storage to narrow the
// concurrent-edit window, apply, persist synchronously, and on
// failure force the in-memory state back to storage and re-throw.
func (s *AcademicService) UpdateSubjectLessons(ctx context.Context, subjectID string, lessons []models.Lesson) error {
	payload, err := s.adapter.Load(ctx, store.KeySharedStructure)
	if err != nil {
		return fmt.Errorf("shared structure not initialized, refusing lesson update: %w", err)
	}

	var fresh models.SharedStructure
	if err := json.Unmarshal(payload, &fresh); err != nil {
		return fmt.Errorf("corrupt shared structure document: %w", err)
	}
	fresh.Years = MigrateYears(fresh.Years)
	if len(fresh.Years) == 0 {
		return fmt.Errorf("shared structure looks uninitialized, refusing lesson update")
	}

	if !replaceSubjectLessons(fresh.Years, subjectID, lessons) {
		return fmt.Errorf("subject %s not found", subjectID)
	}

	if err := s.persistStructure(ctx, fresh, reloadAuthoritative); err != nil {
		return fmt.Errorf("failed to persist lesson update: %w", err)
	}

	s.mu.Lock()
	s.structure = fresh
	s.mu.Unlock()
	s.bumpRefresh("structure")
	return nil
}

// replaceSubjectLessons swaps the lesson list of the given subject,
// returning false if the subject does not exist. Operates on the
// post-migration shape (callers run MigrateYears first).
func replaceSubjectLessons(years []models.Year, subjectID string, lessons []models.Lesson) bool {
	for yi := range years {
		for si := range years[yi].Semesters {
			modules := years[yi].Semesters[si].Modules
			for mi := range modules {
				for subi := range modules[mi].Subjects {
					if modules[mi].Subjects[subi].ID == subjectID {
						modules[mi].Subjects[subi].Lessons = lessons
						return true
					}
				}
			}
		}
	}
	return false
}

// reloadFromStorage discards the in-memory structure in favor of
// whatever storage currently holds.
func (s *AcademicService) reloadFromStorage(ctx context.Context) {
	structure := DefaultStructure()
	payload, err := s.adapter.Load(ctx, store.KeySharedStructure)
	if err == nil {
		var loaded models.SharedStructure
		if jsonErr := json.Unmarshal(payload, &loaded); jsonErr != nil {
			logrus.WithError(jsonErr).Error("Corrupt shared structure document on reload")
			return
		}
		structure = loaded
	}
	structure.Years = MigrateYears(structure.Years)

	s.mu.Lock()
	s.structure = structure
	s.mu.Unlock()
	s.bumpRefresh("structure")
}

// saveStructure persists the structure with the authoritative policy.
// The local mirror gets a copy with oversized attachments stripped so
// the cache respects its storage bounds.
func (s *AcademicService) saveStructure(ctx context.Context, structure models.SharedStructure) error {
	payload, err := json.Marshal(structure)
	if err != nil {
		return err
	}
	mirror, err := json.Marshal(stripLargeAttachments(structure, s.maxMirrorAttachment))
	if err != nil {
		return err
	}
	return s.adapter.SaveAuthoritative(ctx, store.KeySharedStructure, payload, mirror)
}

// stripLargeAttachments returns a deep copy of the structure with the
// inline data of oversized attachments removed (name and size kept so
// the UI can still show what exists).
func stripLargeAttachments(structure models.SharedStructure, max int64) models.SharedStructure {
	out := structure
	out.Years = make([]models.Year, len(structure.Years))
	for yi, year := range structure.Years {
		y := year
		y.Semesters = make([]models.Semester, len(year.Semesters))
		for si, semester := range year.Semesters {
			sem := semester
			sem.Modules = make([]models.Module, len(semester.Modules))
			for mi, module := range semester.Modules {
				m := module
				m.Subjects = make([]models.SubjectStructure, len(module.Subjects))
				for subi, subject := range module.Subjects {
					sub := subject
					sub.Lessons = make([]models.Lesson, len(subject.Lessons))
					for li, lesson := range subject.Lessons {
						l := lesson
						if l.Attachment != nil && (l.Attachment.Size > max || int64(len(l.Attachment.Data)) > max) {
							stripped := *l.Attachment
							stripped.Data = ""
							l.Attachment = &stripped
						}
						sub.Lessons[li] = l
					}
					m.Subjects[subi] = sub
				}
				sem.Modules[mi] = m
			}
			y.Semesters[si] = sem
		}
		out.Years[yi] = y
	}
	return out
}
