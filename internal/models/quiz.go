package models

import "time"

// QuizStatus tracks the lifecycle of a quiz.
type QuizStatus string

const (
	QuizStatusScheduled QuizStatus = "scheduled"
	QuizStatusActive    QuizStatus = "active"
	QuizStatusCompleted QuizStatus = "completed"
	QuizStatusCancelled QuizStatus = "cancelled"
)

// QuizType classifies an assessment.
type QuizType string

const (
	QuizTypeQuiz       QuizType = "quiz"
	QuizTypeTest       QuizType = "test"
	QuizTypeExam       QuizType = "exam"
	QuizTypeAssignment QuizType = "assignment"
)

var quizTransitions = map[QuizStatus][]QuizStatus{
	QuizStatusScheduled: {QuizStatusActive, QuizStatusCompleted, QuizStatusCancelled},
	QuizStatusActive:    {QuizStatusCompleted, QuizStatusCancelled},
}

// CanTransition reports whether a quiz may move from s to next. Completed and cancelled are terminal.
func (s QuizStatus) CanTransition(next QuizStatus) bool {
	for _, allowed := range quizTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Open reports whether grading a result should still close the quiz.
func (s QuizStatus) Open() bool {
	return s == QuizStatusScheduled || s == QuizStatusActive
}

// Quiz is a scheduled assessment for one subject of one class.
type Quiz struct {
	ID            string     `db:"id" json:"id"`
	Title         string     `db:"title" json:"title"`
	Description   *string    `db:"description" json:"description,omitempty"`
	SubjectID     string     `db:"subject_id" json:"subject_id"`
	ClassID       string     `db:"class_id" json:"class_id"`
	TeacherID     string     `db:"teacher_id" json:"teacher_id"`
	ScheduledDate time.Time  `db:"scheduled_date" json:"scheduled_date"`
	Duration      int        `db:"duration" json:"duration"`
	TotalMarks    int        `db:"total_marks" json:"total_marks"`
	PassingMarks  int        `db:"passing_marks" json:"passing_marks"`
	Status        QuizStatus `db:"status" json:"status"`
	Type          QuizType   `db:"type" json:"type"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// QuizFilter describes query params for listing quizzes.
type QuizFilter struct {
	ClassID   string
	SubjectID string
	TeacherID string
	Status    QuizStatus
	Type      QuizType
	Page      int
	PageSize  int
}

// SubmissionStatus records whether the student sat the quiz.
type SubmissionStatus string

const (
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionAbsent    SubmissionStatus = "absent"
)

// QuizResult is one student's outcome for one quiz. Percentage, Grade and Passed are derived on read.
type QuizResult struct {
	ID               string           `db:"id" json:"id"`
	QuizID           string           `db:"quiz_id" json:"quiz_id"`
	StudentID        string           `db:"student_id" json:"student_id"`
	StudentName      string           `db:"student_name" json:"student_name,omitempty"`
	RollNumber       string           `db:"roll_number" json:"roll_number,omitempty"`
	MarksObtained    *float64         `db:"marks_obtained" json:"marks_obtained"`
	TotalMarks       int              `db:"total_marks" json:"total_marks"`
	IsChecked        bool             `db:"is_checked" json:"is_checked"`
	SubmissionStatus SubmissionStatus `db:"submission_status" json:"submission_status"`
	Remarks          *string          `db:"remarks" json:"remarks,omitempty"`
	CheckedAt        *time.Time       `db:"checked_at" json:"checked_at,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`

	Percentage *float64 `db:"-" json:"percentage,omitempty"`
	Grade      string   `db:"-" json:"grade,omitempty"`
	Passed     *bool    `db:"-" json:"passed,omitempty"`
}

// Absent reports whether the result was marked absent.
func (r QuizResult) Absent() bool {
	return r.SubmissionStatus == SubmissionAbsent
}

// CheckedFilter narrows results by grading state.
type CheckedFilter string

const (
	CheckedAll       CheckedFilter = "all"
	CheckedOnly      CheckedFilter = "checked"
	CheckedUnchecked CheckedFilter = "unchecked"
)

// QuizResultFilter composes class, subject and checked filters. Empty values mean "all".
type QuizResultFilter struct {
	ClassID   string
	SubjectID string
	Checked   CheckedFilter
}

// QuizResultStats summarises a result set.
type QuizResultStats struct {
	Count             int     `json:"count"`
	CheckedCount      int     `json:"checked_count"`
	AbsentCount       int     `json:"absent_count"`
	PendingCount      int     `json:"pending_count"`
	ObtainedMarks     float64 `json:"obtained_marks"`
	PossibleMarks     float64 `json:"possible_marks"`
	AveragePercentage float64 `json:"average_percentage"`
}
