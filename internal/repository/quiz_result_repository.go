package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/classroom-api/internal/models"
)

const quizResultSelect = `
SELECT qr.id, qr.quiz_id, qr.student_id, COALESCE(s.full_name, '') AS student_name, COALESCE(s.roll_number, '') AS roll_number,
       qr.marks_obtained, qr.total_marks, qr.is_checked, qr.submission_status, qr.remarks, qr.checked_at, qr.created_at, qr.updated_at
FROM quiz_results qr
LEFT JOIN students s ON s.id = qr.student_id`

// QuizResultRepository persists per-student quiz results.
type QuizResultRepository struct {
	db *sqlx.DB
}

// NewQuizResultRepository constructs the repository.
func NewQuizResultRepository(db *sqlx.DB) *QuizResultRepository {
	return &QuizResultRepository{db: db}
}

// ListByQuizIDs returns the results of the given quizzes.
func (r *QuizResultRepository) ListByQuizIDs(ctx context.Context, quizIDs []string) ([]models.QuizResult, error) {
	if len(quizIDs) == 0 {
		return []models.QuizResult{}, nil
	}
	query := quizResultSelect + `
WHERE qr.quiz_id = ANY($1)
ORDER BY qr.quiz_id ASC, s.roll_number ASC`
	var results []models.QuizResult
	if err := r.db.SelectContext(ctx, &results, query, pq.Array(quizIDs)); err != nil {
		return nil, fmt.Errorf("list quiz results: %w", err)
	}
	return results, nil
}

// FindByID loads a single result.
func (r *QuizResultRepository) FindByID(ctx context.Context, id string) (*models.QuizResult, error) {
	query := quizResultSelect + `
WHERE qr.id = $1`
	var result models.QuizResult
	if err := r.db.GetContext(ctx, &result, query, id); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListStudentIDsByQuiz returns the students that already have a result row for the quiz.
func (r *QuizResultRepository) ListStudentIDsByQuiz(ctx context.Context, quizID string) ([]string, error) {
	const query = `SELECT student_id FROM quiz_results WHERE quiz_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, quizID); err != nil {
		return nil, fmt.Errorf("list quiz result students: %w", err)
	}
	return ids, nil
}

// BulkCreate inserts results in one transaction, skipping (quiz, student) pairs that already exist.
// It returns how many rows were inserted.
func (r *QuizResultRepository) BulkCreate(ctx context.Context, results []models.QuizResult) (int, error) {
	if len(results) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin bulk create quiz results: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO quiz_results (id, quiz_id, student_id, marks_obtained, total_marks, is_checked, submission_status, remarks, created_at, updated_at)
		VALUES (:id, :quiz_id, :student_id, :marks_obtained, :total_marks, :is_checked, :submission_status, :remarks, :created_at, :updated_at)
		ON CONFLICT (quiz_id, student_id) DO NOTHING`

	now := time.Now().UTC()
	inserted := 0
	for i := range results {
		payload := results[i]
		if payload.ID == "" {
			payload.ID = uuid.NewString()
		}
		if payload.CreatedAt.IsZero() {
			payload.CreatedAt = now
		}
		payload.UpdatedAt = now

		var res sql.Result
		res, err = tx.NamedExecContext(ctx, query, &payload)
		if err != nil {
			return 0, fmt.Errorf("insert quiz result: %w", err)
		}
		var affected int64
		if affected, err = res.RowsAffected(); err != nil {
			return 0, fmt.Errorf("check inserted quiz result rows: %w", err)
		}
		inserted += int(affected)
		results[i] = payload
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit bulk create quiz results: %w", err)
	}
	return inserted, nil
}

// Grade stores the outcome of a grading action.
func (r *QuizResultRepository) Grade(ctx context.Context, result *models.QuizResult) error {
	result.UpdatedAt = time.Now().UTC()
	const query = `UPDATE quiz_results SET marks_obtained = :marks_obtained, is_checked = :is_checked, submission_status = :submission_status,
		remarks = :remarks, checked_at = :checked_at, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, result); err != nil {
		return fmt.Errorf("grade quiz result: %w", err)
	}
	return nil
}
