package store

// Logical resource keys. These match the storage keys the original
// deployment used, so an existing local cache stays readable.
const (
	KeySharedStructure   = "shared_structure"
	KeyUsers             = "academic_users"
	KeyScheduleEvents    = "schedule_events"
	KeyAttendanceRecords = "attendance_records"
)

const userDataPrefix = "user_data_"

// UserDataKey returns the resource key of one user's data document.
func UserDataKey(userID string) string {
	return userDataPrefix + userID
}
