package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/classroom-api/internal/models"
)

// ClassSubjectRepository manages class-subject mappings.
type ClassSubjectRepository struct {
	db *sqlx.DB
}

// NewClassSubjectRepository creates a new repository.
func NewClassSubjectRepository(db *sqlx.DB) *ClassSubjectRepository {
	return &ClassSubjectRepository{db: db}
}

// ListActive returns every active class-subject mapping.
func (r *ClassSubjectRepository) ListActive(ctx context.Context) ([]models.ClassSubject, error) {
	const query = `SELECT id, class_id, subject_id, is_active, created_at FROM class_subjects WHERE is_active = TRUE`
	var assignments []models.ClassSubject
	if err := r.db.SelectContext(ctx, &assignments, query); err != nil {
		return nil, fmt.Errorf("list class subjects: %w", err)
	}
	return assignments, nil
}

// ExistsActive reports whether the subject is actively taught in the class.
func (r *ClassSubjectRepository) ExistsActive(ctx context.Context, classID, subjectID string) (bool, error) {
	const query = `SELECT 1 FROM class_subjects WHERE class_id = $1 AND subject_id = $2 AND is_active = TRUE LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, classID, subjectID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class subject: %w", err)
	}
	return true, nil
}
