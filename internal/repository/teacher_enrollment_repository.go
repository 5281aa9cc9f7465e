package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/classroom-api/internal/models"
)

// TeacherEnrollmentRepository reads teacher-subject-class enrollments.
type TeacherEnrollmentRepository struct {
	db *sqlx.DB
}

// NewTeacherEnrollmentRepository constructs the repository.
func NewTeacherEnrollmentRepository(db *sqlx.DB) *TeacherEnrollmentRepository {
	return &TeacherEnrollmentRepository{db: db}
}

// ListActiveByTeacher returns the active enrollments of a teacher.
func (r *TeacherEnrollmentRepository) ListActiveByTeacher(ctx context.Context, teacherID string) ([]models.TeacherEnrollment, error) {
	const query = `
SELECT id, teacher_id, class_id, subject_id, is_active, created_at
FROM teacher_subject_enrollments
WHERE teacher_id = $1 AND is_active = TRUE
ORDER BY created_at ASC`
	var enrollments []models.TeacherEnrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher enrollments: %w", err)
	}
	return enrollments, nil
}

// ExistsActive checks if the teacher is actively enrolled to teach the subject in the class.
func (r *TeacherEnrollmentRepository) ExistsActive(ctx context.Context, teacherID, classID, subjectID string) (bool, error) {
	const query = `SELECT 1 FROM teacher_subject_enrollments WHERE teacher_id = $1 AND class_id = $2 AND subject_id = $3 AND is_active = TRUE LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, teacherID, classID, subjectID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check teacher enrollment: %w", err)
	}
	return true, nil
}
