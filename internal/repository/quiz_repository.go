package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/classroom-api/internal/models"
)

const quizColumns = `id, title, description, subject_id, class_id, teacher_id, scheduled_date, duration, total_marks, passing_marks, status, type, created_at, updated_at`

// QuizRepository provides persistence for quizzes.
type QuizRepository struct {
	db *sqlx.DB
}

// NewQuizRepository creates a new quiz repository.
func NewQuizRepository(db *sqlx.DB) *QuizRepository {
	return &QuizRepository{db: db}
}

// List returns quizzes matching the filter with pagination.
func (r *QuizRepository) List(ctx context.Context, filter models.QuizFilter) ([]models.Quiz, int, error) {
	base := "FROM quizzes WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY scheduled_date DESC, created_at DESC LIMIT %d OFFSET %d", quizColumns, base, size, offset)
	var quizzes []models.Quiz
	if err := r.db.SelectContext(ctx, &quizzes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list quizzes: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count quizzes: %w", err)
	}
	return quizzes, total, nil
}

// ListByTeacher returns every quiz owned by the teacher, or every quiz when teacherID is empty.
func (r *QuizRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.Quiz, error) {
	var quizzes []models.Quiz
	if teacherID == "" {
		query := fmt.Sprintf("SELECT %s FROM quizzes ORDER BY scheduled_date DESC", quizColumns)
		if err := r.db.SelectContext(ctx, &quizzes, query); err != nil {
			return nil, fmt.Errorf("list quizzes: %w", err)
		}
		return quizzes, nil
	}
	query := fmt.Sprintf("SELECT %s FROM quizzes WHERE teacher_id = $1 ORDER BY scheduled_date DESC", quizColumns)
	if err := r.db.SelectContext(ctx, &quizzes, query, teacherID); err != nil {
		return nil, fmt.Errorf("list quizzes by teacher: %w", err)
	}
	return quizzes, nil
}

// FindByID loads a quiz by id.
func (r *QuizRepository) FindByID(ctx context.Context, id string) (*models.Quiz, error) {
	query := fmt.Sprintf("SELECT %s FROM quizzes WHERE id = $1", quizColumns)
	var quiz models.Quiz
	if err := r.db.GetContext(ctx, &quiz, query, id); err != nil {
		return nil, err
	}
	return &quiz, nil
}

// Create stores a new quiz.
func (r *QuizRepository) Create(ctx context.Context, quiz *models.Quiz) error {
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = now
	}
	quiz.UpdatedAt = now

	const query = `INSERT INTO quizzes (id, title, description, subject_id, class_id, teacher_id, scheduled_date, duration, total_marks, passing_marks, status, type, created_at, updated_at)
		VALUES (:id, :title, :description, :subject_id, :class_id, :teacher_id, :scheduled_date, :duration, :total_marks, :passing_marks, :status, :type, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, quiz); err != nil {
		return fmt.Errorf("create quiz: %w", err)
	}
	return nil
}

// UpdateStatus sets the status of a quiz.
func (r *QuizRepository) UpdateStatus(ctx context.Context, id string, status models.QuizStatus) error {
	const query = `UPDATE quizzes SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update quiz status: %w", err)
	}
	return nil
}

// CompleteIfOpen moves a scheduled or active quiz to completed. It reports whether a row changed.
func (r *QuizRepository) CompleteIfOpen(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE quizzes SET status = 'completed', updated_at = $2 WHERE id = $1 AND status IN ('scheduled', 'active')`
	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("complete quiz: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check completed quiz rows: %w", err)
	}
	return affected > 0, nil
}
