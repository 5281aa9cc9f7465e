package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/classroom-api/internal/models"
	"github.com/noah-isme/classroom-api/pkg/events"
	"github.com/noah-isme/classroom-api/pkg/jobs"
)

// JobTypeQuizFanout identifies fan-out retries on the job queue.
const JobTypeQuizFanout = "quiz_result_fanout"

type quizReader interface {
	FindByID(ctx context.Context, id string) (*models.Quiz, error)
}

type quizResultWriter interface {
	ListStudentIDsByQuiz(ctx context.Context, quizID string) ([]string, error)
	BulkCreate(ctx context.Context, results []models.QuizResult) (int, error)
}

type classStudentLister interface {
	ListByClass(ctx context.Context, classID string) ([]models.Student, error)
}

type changePublisher interface {
	Publish(ctx context.Context, change events.Change) error
}

// ResultFanout creates the pending result row of every active student of a quiz's class. Runs are
// idempotent: students that already have a row are skipped and the insert ignores duplicates.
type ResultFanout struct {
	quizzes  quizReader
	results  quizResultWriter
	students classStudentLister
	cache    *CacheService
	events   changePublisher
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewResultFanout constructs a fan-out runner.
func NewResultFanout(quizzes quizReader, results quizResultWriter, students classStudentLister, cache *CacheService, publisher changePublisher, metrics *MetricsService, logger *zap.Logger) *ResultFanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultFanout{
		quizzes:  quizzes,
		results:  results,
		students: students,
		cache:    cache,
		events:   publisher,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run inserts the missing rows for quiz and returns how many were created.
func (f *ResultFanout) Run(ctx context.Context, quiz models.Quiz) (int, error) {
	students, err := f.students.ListByClass(ctx, quiz.ClassID)
	if err != nil {
		return 0, fmt.Errorf("list class students: %w", err)
	}
	existing, err := f.results.ListStudentIDsByQuiz(ctx, quiz.ID)
	if err != nil {
		return 0, fmt.Errorf("list existing results: %w", err)
	}
	seen := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		seen[id] = struct{}{}
	}

	missing := make([]models.QuizResult, 0, len(students))
	for _, student := range students {
		if _, ok := seen[student.ID]; ok {
			continue
		}
		seen[student.ID] = struct{}{}
		missing = append(missing, models.QuizResult{
			QuizID:           quiz.ID,
			StudentID:        student.ID,
			TotalMarks:       quiz.TotalMarks,
			IsChecked:        false,
			SubmissionStatus: models.SubmissionSubmitted,
		})
	}
	if len(missing) == 0 {
		return 0, nil
	}

	inserted, err := f.results.BulkCreate(ctx, missing)
	if err != nil {
		return 0, fmt.Errorf("create quiz results: %w", err)
	}
	f.metrics.AddFanoutRows(inserted)
	return inserted, nil
}

// Handle processes a queued fan-out retry. The job ID is the quiz ID.
func (f *ResultFanout) Handle(ctx context.Context, job jobs.Job) error {
	quiz, err := f.quizzes.FindByID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load quiz %s: %w", job.ID, err)
	}
	inserted, err := f.Run(ctx, *quiz)
	if err != nil {
		return err
	}
	f.logger.Info("quiz result fan-out repaired", zap.String("quiz_id", quiz.ID), zap.Int("attempt", job.Attempt), zap.Int("created", inserted))
	if inserted > 0 {
		if err := f.cache.Invalidate(ctx, quizSnapshotPattern); err != nil {
			f.logger.Warn("failed to invalidate quiz snapshots", zap.Error(err))
		}
		publishChange(ctx, f.events, f.logger, "quiz_results", events.KindInsert)
	}
	return nil
}

func publishChange(ctx context.Context, publisher changePublisher, logger *zap.Logger, table string, kind events.Kind) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, events.Change{Table: table, Kind: kind}); err != nil {
		logger.Warn("failed to publish change", zap.String("table", table), zap.Error(err))
	}
}
