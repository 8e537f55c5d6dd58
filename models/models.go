package models

import (
	"database/sql/driver"
	"time"

	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// JSON field type for GORM
type JSON []byte

func (j JSON) Value() (driver.Value, error) {
	if j.IsNull() {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	s, ok := value.([]byte)
	if !ok {
		return nil
	}
	*j = append((*j)[0:0], s...)
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}

func (j JSON) IsNull() bool {
	return len(j) == 0 || string(j) == "null"
}

// Document is a row of the remote document store. Every logical
// resource (shared structure, per-user data, users, schedule events)
// is a single JSON payload keyed by its resource key.
type Document struct {
	BaseModel
	ResourceKey string `json:"resource_key" gorm:"size:255;not null;uniqueIndex"`
	Payload     JSON   `json:"payload" gorm:"type:json"`
}

// Log model for activity tracking
type ActivityLog struct {
	BaseModel
	UserID    string `json:"user_id" gorm:"size:64;index"`
	Username  string `json:"username" gorm:"size:100"`
	Action    string `json:"action" gorm:"size:100;not null"`
	Resource  string `json:"resource" gorm:"size:100;not null"`
	Details   JSON   `json:"details" gorm:"type:json"`
	IPAddress string `json:"ip_address" gorm:"size:45"`
	UserAgent string `json:"user_agent" gorm:"size:500"`
}

// ReviewStatus is the per-user review state of a lesson.
type ReviewStatus string

const (
	ReviewNotReviewed ReviewStatus = "Not Reviewed"
	ReviewInProgress  ReviewStatus = "In Progress"
	ReviewReviewed    ReviewStatus = "Reviewed"
)

// ValidReviewStatus reports whether s is one of the known statuses.
func ValidReviewStatus(s ReviewStatus) bool {
	switch s {
	case ReviewNotReviewed, ReviewInProgress, ReviewReviewed:
		return true
	}
	return false
}

// LessonAttachment is an inline file on a lesson (typically a PDF).
// Data is base64 encoded; Size is the decoded size in bytes.
type LessonAttachment struct {
	Name string `json:"name"`
	Data string `json:"data,omitempty"`
	Size int64  `json:"size"`
}

// Lesson content is shared across users; per-user review status lives
// in SubjectUserData, never here.
type Lesson struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Notes       string            `json:"notes"`
	YoutubeLink string            `json:"youtube_link,omitempty"`
	CourseLink  string            `json:"course_link,omitempty"`
	Attachment  *LessonAttachment `json:"attachment,omitempty"`
}

// SubjectStructure is the shared definition of a subject.
type SubjectStructure struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Coefficient *float64 `json:"coefficient,omitempty"`
	Lessons     []Lesson `json:"lessons"`
}

// Module groups subjects; owned by exactly one semester (or by a year
// directly in the legacy schema).
type Module struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Subjects []SubjectStructure `json:"subjects"`
}

type Semester struct {
	ID             string   `json:"id"`
	SemesterNumber int      `json:"semester_number"`
	Modules        []Module `json:"modules"`
}

// Year holds either Semesters (current schema) or legacy Modules.
// Only the migrator inspects the legacy field; everything downstream
// assumes the post-migration shape.
type Year struct {
	ID         string     `json:"id"`
	YearNumber int        `json:"year_number"`
	Semesters  []Semester `json:"semesters,omitempty"`
	Modules    []Module   `json:"modules,omitempty"`
}

// SharedStructure is the curriculum definition common to all users.
type SharedStructure struct {
	Years []Year `json:"years"`
}

// SubjectUserData is one user's overlay for one subject.
type SubjectUserData struct {
	SubjectID          string                  `json:"subject_id"`
	AssignmentScore    *float64                `json:"assignment_score,omitempty"`
	ExamScore          *float64                `json:"exam_score,omitempty"`
	MissedSessions     int                     `json:"missed_sessions"`
	LessonReviewStatus map[string]ReviewStatus `json:"lesson_review_status,omitempty"`
}

// UserData is the per-user mutable document, created lazily on the
// user's first grade or absence edit.
type UserData struct {
	UserID      string                     `json:"user_id"`
	SubjectData map[string]SubjectUserData `json:"subject_data"`
}

// LessonView is a shared lesson plus the calling user's review status.
type LessonView struct {
	Lesson
	ReviewStatus *ReviewStatus `json:"review_status,omitempty"`
}

// Subject is the runtime merge of a SubjectStructure with the calling
// user's overlay. Never persisted.
type Subject struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Coefficient     *float64     `json:"coefficient,omitempty"`
	AssignmentScore *float64     `json:"assignment_score,omitempty"`
	ExamScore       *float64     `json:"exam_score,omitempty"`
	MissedSessions  int          `json:"missed_sessions"`
	Lessons         []LessonView `json:"lessons"`
}

// SubjectScores are the derived grade figures for a subject.
type SubjectScores struct {
	InitialScore float64 `json:"initial_score"`
	Penalty      float64 `json:"penalty"`
	FinalScore   float64 `json:"final_score"`
}

// User account. Password holds a bcrypt hash.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	CreatedAt int64  `json:"created_at"`
	IsAdmin   bool   `json:"is_admin"`
}

// Schedule event types mirror the calendar UI's categories.
const (
	EventTypeClass    = "class"
	EventTypeExam     = "exam"
	EventTypeDeadline = "deadline"
	EventTypeOther    = "other"
)

// RecurringEndDateSentinel is the far-future end date stored on
// weekly-recurring events, whose date range is otherwise meaningless.
const RecurringEndDateSentinel = "2099-12-31"

// ScheduleEvent is either a fixed-date range event or a weekly
// recurring one (IsRecurring with DayOfWeek set, dates vestigial).
type ScheduleEvent struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	StartTime   string `json:"start_time,omitempty"`
	EndTime     string `json:"end_time,omitempty"`
	Location    string `json:"location,omitempty"`
	SubjectID   string `json:"subject_id,omitempty"`
	IsRecurring bool   `json:"is_recurring"`
	DayOfWeek   string `json:"day_of_week,omitempty"`
	CreatedBy   string `json:"created_by"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// AttendanceRecord marks one user absent for one calendar occurrence
// of an event. The (UserID, EventID, Date) triple is the identity.
type AttendanceRecord struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	EventID   string `json:"event_id"`
	SubjectID string `json:"subject_id"`
	Date      string `json:"date"`
	IsAbsent  bool   `json:"is_absent"`
	MarkedAt  int64  `json:"marked_at"`
}
