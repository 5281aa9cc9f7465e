package models

import "time"

// TeacherEnrollment links a teacher to a subject taught in a class.
type TeacherEnrollment struct {
	ID        string    `db:"id" json:"id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AsClassSubject projects the enrollment onto the class-subject pair it makes available.
func (e TeacherEnrollment) AsClassSubject() ClassSubject {
	return ClassSubject{
		ID:        e.ID,
		ClassID:   e.ClassID,
		SubjectID: e.SubjectID,
		IsActive:  e.IsActive,
		CreatedAt: e.CreatedAt,
	}
}
