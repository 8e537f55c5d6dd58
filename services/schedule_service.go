package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"academtrack_go/models"
	"academtrack_go/store"
	"academtrack_go/utils"

	"github.com/sirupsen/logrus"
)

const dateLayout = "2006-01-02"

// ScheduleService owns the weekly class schedule and absence marking.
// Events persist with the eventual policy (local first, remote
// best-effort); attendance records are local-only. Both collections
// live in whole-document records, so every mutation is a
// load-modify-save serialized by mu.
type ScheduleService struct {
	adapter  *store.Adapter
	academic *AcademicService
	mu       sync.Mutex
}

func NewScheduleService(adapter *store.Adapter, academic *AcademicService) *ScheduleService {
	return &ScheduleService{adapter: adapter, academic: academic}
}

// Events returns all schedule events.
func (s *ScheduleService) Events(ctx context.Context) ([]models.ScheduleEvent, error) {
	return s.loadEvents(ctx)
}

func (s *ScheduleService) loadEvents(ctx context.Context) ([]models.ScheduleEvent, error) {
	payload, err := s.adapter.Load(ctx, store.KeyScheduleEvents)
	if err != nil {
		// Resource absent in both stores: empty schedule.
		return []models.ScheduleEvent{}, nil
	}
	var events []models.ScheduleEvent
	if err := json.Unmarshal(payload, &events); err != nil {
		return nil, fmt.Errorf("corrupt schedule events document: %w", err)
	}
	return events, nil
}

func (s *ScheduleService) saveEvents(ctx context.Context, events []models.ScheduleEvent) error {
	payload, err := json.Marshal(events)
	if err != nil {
		return err
	}
	return s.adapter.SaveEventual(ctx, store.KeyScheduleEvents, payload)
}

// AddEvent validates and stores a new event. Recurring events get the
// far-future sentinel end date; fixed events need a real range.
func (s *ScheduleService) AddEvent(ctx context.Context, event models.ScheduleEvent) (models.ScheduleEvent, error) {
	if strings.TrimSpace(event.Title) == "" {
		return models.ScheduleEvent{}, fmt.Errorf("event title is required")
	}

	if event.IsRecurring {
		if !validDayOfWeek(event.DayOfWeek) {
			return models.ScheduleEvent{}, fmt.Errorf("invalid day of week %q", event.DayOfWeek)
		}
		event.DayOfWeek = strings.ToLower(event.DayOfWeek)
		if event.StartDate == "" {
			event.StartDate = time.Now().Format(dateLayout)
		}
		event.EndDate = models.RecurringEndDateSentinel
	} else {
		if _, err := time.Parse(dateLayout, event.StartDate); err != nil {
			return models.ScheduleEvent{}, fmt.Errorf("invalid start date: %w", err)
		}
		if _, err := time.Parse(dateLayout, event.EndDate); err != nil {
			return models.ScheduleEvent{}, fmt.Errorf("invalid end date: %w", err)
		}
		if event.EndDate < event.StartDate {
			return models.ScheduleEvent{}, fmt.Errorf("end date before start date")
		}
		event.DayOfWeek = ""
	}

	if event.ID == "" {
		event.ID = utils.NewID()
	}
	now := time.Now().UnixMilli()
	event.CreatedAt = now
	event.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.loadEvents(ctx)
	if err != nil {
		return models.ScheduleEvent{}, err
	}
	events = append(events, event)
	if err := s.saveEvents(ctx, events); err != nil {
		return models.ScheduleEvent{}, err
	}
	return event, nil
}

// UpdateEvent overwrites an existing event's mutable fields. Updated
// events pass the same validation as new ones.
func (s *ScheduleService) UpdateEvent(ctx context.Context, eventID string, updated models.ScheduleEvent) (models.ScheduleEvent, error) {
	if updated.IsRecurring {
		if !validDayOfWeek(updated.DayOfWeek) {
			return models.ScheduleEvent{}, fmt.Errorf("invalid day of week %q", updated.DayOfWeek)
		}
		updated.DayOfWeek = strings.ToLower(updated.DayOfWeek)
		updated.EndDate = models.RecurringEndDateSentinel
	} else {
		if _, err := time.Parse(dateLayout, updated.StartDate); err != nil {
			return models.ScheduleEvent{}, fmt.Errorf("invalid start date: %w", err)
		}
		if _, err := time.Parse(dateLayout, updated.EndDate); err != nil {
			return models.ScheduleEvent{}, fmt.Errorf("invalid end date: %w", err)
		}
		if updated.EndDate < updated.StartDate {
			return models.ScheduleEvent{}, fmt.Errorf("end date before start date")
		}
		updated.DayOfWeek = ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.loadEvents(ctx)
	if err != nil {
		return models.ScheduleEvent{}, err
	}

	for i := range events {
		if events[i].ID != eventID {
			continue
		}
		updated.ID = eventID
		updated.CreatedBy = events[i].CreatedBy
		updated.CreatedAt = events[i].CreatedAt
		updated.UpdatedAt = time.Now().UnixMilli()
		events[i] = updated
		if err := s.saveEvents(ctx, events); err != nil {
			return models.ScheduleEvent{}, err
		}
		return updated, nil
	}
	return models.ScheduleEvent{}, fmt.Errorf("event %s not found", eventID)
}

// DeleteEvent removes an event.
func (s *ScheduleService) DeleteEvent(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.loadEvents(ctx)
	if err != nil {
		return err
	}

	filtered := events[:0]
	found := false
	for _, e := range events {
		if e.ID == eventID {
			found = true
			continue
		}
		filtered = append(filtered, e)
	}
	if !found {
		return fmt.Errorf("event %s not found", eventID)
	}
	return s.saveEvents(ctx, filtered)
}

// EventsOn returns every event occurring on the given calendar date:
// fixed events whose inclusive range contains it, plus recurring
// events whose weekday matches.
func EventsOn(events []models.ScheduleEvent, date string) ([]models.ScheduleEvent, error) {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("invalid date: %w", err)
	}
	weekday := strings.ToLower(day.Weekday().String())

	matched := []models.ScheduleEvent{}
	for _, e := range events {
		if e.IsRecurring {
			if strings.ToLower(e.DayOfWeek) == weekday {
				matched = append(matched, e)
			}
			continue
		}
		// ISO dates compare correctly as strings.
		if e.StartDate <= date && date <= e.EndDate {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// EventsOnDate loads the schedule and filters it to one calendar date.
func (s *ScheduleService) EventsOnDate(ctx context.Context, date string) ([]models.ScheduleEvent, error) {
	events, err := s.loadEvents(ctx)
	if err != nil {
		return nil, err
	}
	return EventsOn(events, date)
}

// MarkAbsence records that a user missed a specific occurrence of an
// event and propagates the miss into their subject overlay - the only
// channel through which attendance reaches the scoring penalty.
// Idempotent on (user, event, date): re-marking an occurrence that is
// already absent does not increment missedSessions again.
func (s *ScheduleService) MarkAbsence(ctx context.Context, user *models.User, eventID, subjectID, date string) (models.AttendanceRecord, error) {
	if user == nil {
		return models.AttendanceRecord{}, fmt.Errorf("no user logged in")
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return models.AttendanceRecord{}, fmt.Errorf("invalid date: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadAttendance(ctx)
	if err != nil {
		return models.AttendanceRecord{}, err
	}

	for i, r := range records {
		if r.UserID == user.ID && r.EventID == eventID && r.Date == date {
			if r.IsAbsent {
				// Already counted; don't double the penalty.
				return r, nil
			}
			records[i].IsAbsent = true
			records[i].MarkedAt = time.Now().UnixMilli()
			if err := s.saveAttendance(ctx, records); err != nil {
				return models.AttendanceRecord{}, err
			}
			if err := s.incrementMissedSessions(ctx, user, subjectID); err != nil {
				return models.AttendanceRecord{}, err
			}
			return records[i], nil
		}
	}

	record := models.AttendanceRecord{
		ID:        utils.NewID(),
		UserID:    user.ID,
		EventID:   eventID,
		SubjectID: subjectID,
		Date:      date,
		IsAbsent:  true,
		MarkedAt:  time.Now().UnixMilli(),
	}
	records = append(records, record)
	if err := s.saveAttendance(ctx, records); err != nil {
		return models.AttendanceRecord{}, err
	}

	if err := s.incrementMissedSessions(ctx, user, subjectID); err != nil {
		return models.AttendanceRecord{}, err
	}
	return record, nil
}

func (s *ScheduleService) incrementMissedSessions(ctx context.Context, user *models.User, subjectID string) error {
	if subjectID == "" {
		// Absence on an event with no linked subject carries no penalty.
		return nil
	}
	return s.academic.IncrementMissedSessions(ctx, user, subjectID)
}

// AbsencesForUser returns the user's attendance records.
func (s *ScheduleService) AbsencesForUser(ctx context.Context, userID string) ([]models.AttendanceRecord, error) {
	records, err := s.loadAttendance(ctx)
	if err != nil {
		return nil, err
	}
	out := []models.AttendanceRecord{}
	for _, r := range records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *ScheduleService) loadAttendance(ctx context.Context) ([]models.AttendanceRecord, error) {
	payload, err := s.adapter.Load(ctx, store.KeyAttendanceRecords)
	if err != nil {
		return []models.AttendanceRecord{}, nil
	}
	var records []models.AttendanceRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("corrupt attendance records document: %w", err)
	}
	return records, nil
}

func (s *ScheduleService) saveAttendance(ctx context.Context, records []models.AttendanceRecord) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return err
	}
	if err := s.adapter.SaveLocalOnly(ctx, store.KeyAttendanceRecords, payload); err != nil {
		logrus.WithError(err).Error("Failed to persist attendance records")
		return err
	}
	return nil
}

func validDayOfWeek(day string) bool {
	switch strings.ToLower(day) {
	case "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday":
		return true
	}
	return false
}
