package models

import "time"

// TimetableEntry is one teaching period of a class on a weekday.
type TimetableEntry struct {
	ID          string    `db:"id" json:"id"`
	Day         string    `db:"day" json:"day"`
	StartTime   string    `db:"start_time" json:"start_time"`
	EndTime     string    `db:"end_time" json:"end_time"`
	SubjectName string    `db:"subject_name" json:"subject_name"`
	RoomNumber  string    `db:"room_number" json:"room_number"`
	ClassID     string    `db:"class_id" json:"class_id"`
	TeacherID   string    `db:"teacher_id" json:"teacher_id"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// TimetableConflict references an existing entry that overlaps a candidate.
type TimetableConflict struct {
	EntryID     string `json:"entry_id"`
	SubjectName string `json:"subject_name"`
	Day         string `json:"day"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Message     string `json:"message"`
}

// TimetableValidation is the verdict for a candidate entry.
type TimetableValidation struct {
	IsValid   bool                `json:"is_valid"`
	Conflicts []TimetableConflict `json:"conflicts"`
	Errors    []string            `json:"errors"`
}

// TimetableDay groups a class's entries for one weekday.
type TimetableDay struct {
	Day     string           `json:"day"`
	Entries []TimetableEntry `json:"entries"`
}
