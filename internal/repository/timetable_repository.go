package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/classroom-api/internal/models"
)

const timetableSelect = `SELECT id, day, to_char(start_time, 'HH24:MI') AS start_time, to_char(end_time, 'HH24:MI') AS end_time,
       subject_name, room_number, class_id, teacher_id, is_active, created_at, updated_at
FROM timetable_entries`

// TimetableRepository provides persistence for timetable entries.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository creates a new timetable repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

// ListByClassAndDay returns the active entries competing for a class's day.
func (r *TimetableRepository) ListByClassAndDay(ctx context.Context, classID, day string) ([]models.TimetableEntry, error) {
	query := timetableSelect + ` WHERE class_id = $1 AND lower(day) = lower($2) AND is_active = TRUE ORDER BY start_time ASC`
	var entries []models.TimetableEntry
	if err := r.db.SelectContext(ctx, &entries, query, classID, day); err != nil {
		return nil, fmt.Errorf("list timetable entries by class and day: %w", err)
	}
	return entries, nil
}

// ListByClass returns a class's active entries.
func (r *TimetableRepository) ListByClass(ctx context.Context, classID string) ([]models.TimetableEntry, error) {
	query := timetableSelect + ` WHERE class_id = $1 AND is_active = TRUE ORDER BY day ASC, start_time ASC`
	var entries []models.TimetableEntry
	if err := r.db.SelectContext(ctx, &entries, query, classID); err != nil {
		return nil, fmt.Errorf("list timetable entries by class: %w", err)
	}
	return entries, nil
}

// ListByTeacher returns the active entries taught by a teacher.
func (r *TimetableRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.TimetableEntry, error) {
	query := timetableSelect + ` WHERE teacher_id = $1 AND is_active = TRUE ORDER BY day ASC, start_time ASC`
	var entries []models.TimetableEntry
	if err := r.db.SelectContext(ctx, &entries, query, teacherID); err != nil {
		return nil, fmt.Errorf("list timetable entries by teacher: %w", err)
	}
	return entries, nil
}

// FindByID loads an active entry by id.
func (r *TimetableRepository) FindByID(ctx context.Context, id string) (*models.TimetableEntry, error) {
	query := timetableSelect + ` WHERE id = $1 AND is_active = TRUE`
	var entry models.TimetableEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Create stores a new entry.
func (r *TimetableRepository) Create(ctx context.Context, entry *models.TimetableEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	entry.IsActive = true

	const query = `INSERT INTO timetable_entries (id, day, start_time, end_time, subject_name, room_number, class_id, teacher_id, is_active, created_at, updated_at)
		VALUES (:id, :day, :start_time, :end_time, :subject_name, :room_number, :class_id, :teacher_id, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create timetable entry: %w", err)
	}
	return nil
}

// Update modifies an entry.
func (r *TimetableRepository) Update(ctx context.Context, entry *models.TimetableEntry) error {
	entry.UpdatedAt = time.Now().UTC()
	const query = `UPDATE timetable_entries SET day = :day, start_time = :start_time, end_time = :end_time, subject_name = :subject_name,
		room_number = :room_number, class_id = :class_id, teacher_id = :teacher_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("update timetable entry: %w", err)
	}
	return nil
}

// SoftDelete deactivates an entry.
func (r *TimetableRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE timetable_entries SET is_active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("delete timetable entry: %w", err)
	}
	return nil
}
