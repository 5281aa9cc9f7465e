package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/classroom-api/internal/dto"
	"github.com/noah-isme/classroom-api/internal/models"
	appErrors "github.com/noah-isme/classroom-api/pkg/errors"
	"github.com/noah-isme/classroom-api/pkg/events"
	"github.com/noah-isme/classroom-api/pkg/jobs"
)

const quizSnapshotPattern = "quiz:snapshot:*"

// snapshotTables lists the tables whose changes make cached quiz snapshots stale.
var snapshotTables = map[string]struct{}{
	"quizzes":                     {},
	"quiz_results":                {},
	"subjects":                    {},
	"class_subjects":              {},
	"teacher_subject_enrollments": {},
	"students":                    {},
}

type quizStore interface {
	List(ctx context.Context, filter models.QuizFilter) ([]models.Quiz, int, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.Quiz, error)
	FindByID(ctx context.Context, id string) (*models.Quiz, error)
	Create(ctx context.Context, quiz *models.Quiz) error
	UpdateStatus(ctx context.Context, id string, status models.QuizStatus) error
	CompleteIfOpen(ctx context.Context, id string) (bool, error)
}

type quizResultStore interface {
	ListByQuizIDs(ctx context.Context, quizIDs []string) ([]models.QuizResult, error)
	FindByID(ctx context.Context, id string) (*models.QuizResult, error)
	Grade(ctx context.Context, result *models.QuizResult) error
}

type subjectLister interface {
	ListActive(ctx context.Context) ([]models.Subject, error)
}

type classLister interface {
	List(ctx context.Context) ([]models.Class, error)
}

type classSubjectStore interface {
	ListActive(ctx context.Context) ([]models.ClassSubject, error)
	ExistsActive(ctx context.Context, classID, subjectID string) (bool, error)
}

type teacherEnrollmentStore interface {
	ListActiveByTeacher(ctx context.Context, teacherID string) ([]models.TeacherEnrollment, error)
	ExistsActive(ctx context.Context, teacherID, classID, subjectID string) (bool, error)
}

type fanoutRunner interface {
	Run(ctx context.Context, quiz models.Quiz) (int, error)
}

type fanoutDispatcher interface {
	Enqueue(job jobs.Job) error
}

// QuizScope selects whose quizzes a read covers. An empty TeacherID is the administrator view.
type QuizScope struct {
	TeacherID string
}

// ScopeFor derives the read scope of the caller.
func ScopeFor(claims *models.JWTClaims) QuizScope {
	if claims.IsTeacher() {
		return QuizScope{TeacherID: claims.UserID}
	}
	return QuizScope{}
}

func (s QuizScope) cacheKey() string {
	if s.TeacherID == "" {
		return "quiz:snapshot:all"
	}
	return fmt.Sprintf("quiz:snapshot:teacher:%s", s.TeacherID)
}

// CreateQuizRequest describes the payload for scheduling a quiz.
type CreateQuizRequest struct {
	Title         string          `json:"title" validate:"required,max=200"`
	Description   *string         `json:"description" validate:"omitempty,max=2000"`
	SubjectID     string          `json:"subject_id" validate:"required"`
	ClassID       string          `json:"class_id" validate:"required"`
	ScheduledDate string          `json:"scheduled_date" validate:"required,datetime=2006-01-02"`
	Duration      int             `json:"duration" validate:"required,gt=0"`
	TotalMarks    int             `json:"total_marks" validate:"required,gt=0"`
	PassingMarks  int             `json:"passing_marks" validate:"gte=0,ltefield=TotalMarks"`
	Type          models.QuizType `json:"type" validate:"omitempty,oneof=quiz test exam assignment"`
}

// GradeResultRequest grades one result. Marks are required unless the student is absent.
type GradeResultRequest struct {
	MarksObtained *float64 `json:"marks_obtained" validate:"omitempty,gte=0"`
	IsAbsent      bool     `json:"is_absent"`
	Remarks       *string  `json:"remarks" validate:"omitempty,max=500"`
}

// UpdateQuizStatusRequest moves a quiz along its lifecycle.
type UpdateQuizStatusRequest struct {
	Status models.QuizStatus `json:"status" validate:"required,oneof=active completed cancelled"`
}

// QuizServiceConfig tunes caching and exports.
type QuizServiceConfig struct {
	CacheTTL       time.Duration
	ExportsEnabled bool
}

// QuizServiceParams groups constructor dependencies.
type QuizServiceParams struct {
	Quizzes       quizStore
	Results       quizResultStore
	Subjects      subjectLister
	Classes       classLister
	ClassSubjects classSubjectStore
	Enrollments   teacherEnrollmentStore
	Fanout        fanoutRunner
	Queue         fanoutDispatcher
	Cache         *CacheService
	Events        changePublisher
	Exporter      *ResultSheetExporter
	Metrics       *MetricsService
	Validator     *validator.Validate
	Logger        *zap.Logger
	Config        QuizServiceConfig
}

// QuizService exposes quiz scheduling, result fan-out, grading and the result views.
type QuizService struct {
	quizzes       quizStore
	results       quizResultStore
	subjects      subjectLister
	classes       classLister
	classSubjects classSubjectStore
	enrollments   teacherEnrollmentStore
	fanout        fanoutRunner
	queue         fanoutDispatcher
	cache         *CacheService
	events        changePublisher
	exporter      *ResultSheetExporter
	metrics       *MetricsService
	validator     *validator.Validate
	logger        *zap.Logger
	now           func() time.Time
	cfg           QuizServiceConfig
}

// NewQuizService constructs a QuizService with sane defaults.
func NewQuizService(params QuizServiceParams) *QuizService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = NewRequestValidator()
	}
	exporter := params.Exporter
	if exporter == nil {
		exporter = NewResultSheetExporter(nil, nil)
	}
	return &QuizService{
		quizzes:       params.Quizzes,
		results:       params.Results,
		subjects:      params.Subjects,
		classes:       params.Classes,
		classSubjects: params.ClassSubjects,
		enrollments:   params.Enrollments,
		fanout:        params.Fanout,
		queue:         params.Queue,
		cache:         params.Cache,
		events:        params.Events,
		exporter:      exporter,
		metrics:       params.Metrics,
		validator:     validate,
		logger:        logger,
		now:           time.Now,
		cfg:           cfg,
	}
}

// Snapshot loads the collections the result views are computed from, serving from cache when possible.
func (s *QuizService) Snapshot(ctx context.Context, scope QuizScope) (*QuizSnapshot, error) {
	key := scope.cacheKey()
	var cached QuizSnapshot
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	start := time.Now()
	snapshot, err := s.loadSnapshot(ctx, scope)
	s.metrics.ObserveDBQuery("quiz_snapshot", time.Since(start))
	if err != nil {
		s.logger.Error("failed to load quiz data", zap.String("teacher_id", scope.TeacherID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quiz data")
	}
	_ = s.cache.Set(ctx, key, snapshot, s.cfg.CacheTTL)
	return snapshot, nil
}

func (s *QuizService) loadSnapshot(ctx context.Context, scope QuizScope) (*QuizSnapshot, error) {
	subjects, err := s.subjects.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	var assignments []models.ClassSubject
	if scope.TeacherID != "" {
		enrollments, err := s.enrollments.ListActiveByTeacher(ctx, scope.TeacherID)
		if err != nil {
			return nil, err
		}
		assignments = make([]models.ClassSubject, 0, len(enrollments))
		for _, enrollment := range enrollments {
			assignments = append(assignments, enrollment.AsClassSubject())
		}
	} else {
		assignments, err = s.classSubjects.ListActive(ctx)
		if err != nil {
			return nil, err
		}
	}

	quizzes, err := s.quizzes.ListByTeacher(ctx, scope.TeacherID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(quizzes))
	for _, quiz := range quizzes {
		ids = append(ids, quiz.ID)
	}
	results, err := s.results.ListByQuizIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	return &QuizSnapshot{Subjects: subjects, Assignments: assignments, Quizzes: quizzes, Results: results}, nil
}

// ClassOptions returns the classes the caller may pick from. Teachers only see classes they hold
// an active enrollment in.
func (s *QuizService) ClassOptions(ctx context.Context, scope QuizScope) ([]models.Class, error) {
	classes, err := s.classes.List(ctx)
	if err != nil {
		s.logger.Error("failed to list classes", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	if scope.TeacherID == "" {
		return classes, nil
	}
	snapshot, err := s.Snapshot(ctx, scope)
	if err != nil {
		return nil, err
	}
	taught := make(map[string]struct{}, len(snapshot.Assignments))
	for _, assignment := range snapshot.Assignments {
		taught[assignment.ClassID] = struct{}{}
	}
	visible := make([]models.Class, 0, len(taught))
	for _, class := range classes {
		if _, ok := taught[class.ID]; ok {
			visible = append(visible, class)
		}
	}
	return visible, nil
}

// SubjectOptions returns the subject selector entries for classID, headed by "All Subjects".
func (s *QuizService) SubjectOptions(ctx context.Context, scope QuizScope, classID string) ([]models.SubjectOption, error) {
	snapshot, err := s.Snapshot(ctx, scope)
	if err != nil {
		return nil, err
	}
	return SubjectOptions(SubjectsForClass(*snapshot, strings.TrimSpace(classID))), nil
}

// Results returns the filtered results with their derived fields and the summary of that set.
func (s *QuizService) Results(ctx context.Context, scope QuizScope, query dto.QuizResultQuery) (*dto.QuizResultsResponse, error) {
	_, results, err := s.filteredResults(ctx, scope, query)
	if err != nil {
		return nil, err
	}
	return &dto.QuizResultsResponse{Results: results, Stats: ComputeStats(results)}, nil
}

func (s *QuizService) filteredResults(ctx context.Context, scope QuizScope, query dto.QuizResultQuery) (*QuizSnapshot, []models.QuizResult, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, validationError(err, "invalid result filter")
	}
	snapshot, err := s.Snapshot(ctx, scope)
	if err != nil {
		return nil, nil, err
	}
	results := DecorateResults(FilterResults(*snapshot, query.Filter()), snapshot.QuizByID())
	return snapshot, results, nil
}

// List returns quizzes with pagination metadata. Teachers only see their own quizzes.
func (s *QuizService) List(ctx context.Context, scope QuizScope, filter models.QuizFilter) ([]models.Quiz, *models.Pagination, error) {
	if scope.TeacherID != "" {
		filter.TeacherID = scope.TeacherID
	}
	quizzes, total, err := s.quizzes.List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list quizzes", zap.Error(err))
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list quizzes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return quizzes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Create stores a quiz and fans out one pending result per active student of the class. A failed
// fan-out does not undo the quiz: it is logged and handed to the retry queue.
func (s *QuizService) Create(ctx context.Context, actor *models.JWTClaims, req CreateQuizRequest) (*dto.QuizCreatedResponse, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing caller")
	}
	req.Title = strings.TrimSpace(req.Title)
	req.ClassID = strings.TrimSpace(req.ClassID)
	req.SubjectID = strings.TrimSpace(req.SubjectID)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid quiz payload")
	}
	scheduled, err := time.Parse("2006-01-02", req.ScheduledDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid scheduled date")
	}

	assigned, err := s.isAssigned(ctx, actor, req.ClassID, req.SubjectID)
	if err != nil {
		s.logger.Error("failed to check class subject assignment", zap.String("class_id", req.ClassID), zap.String("subject_id", req.SubjectID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify class subject")
	}
	if !assigned {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subject is not actively assigned to the selected class")
	}

	quizType := req.Type
	if quizType == "" {
		quizType = models.QuizTypeQuiz
	}
	quiz := &models.Quiz{
		Title:         req.Title,
		Description:   req.Description,
		SubjectID:     req.SubjectID,
		ClassID:       req.ClassID,
		TeacherID:     actor.UserID,
		ScheduledDate: scheduled,
		Duration:      req.Duration,
		TotalMarks:    req.TotalMarks,
		PassingMarks:  req.PassingMarks,
		Status:        models.QuizStatusScheduled,
		Type:          quizType,
	}
	if err := s.quizzes.Create(ctx, quiz); err != nil {
		s.logger.Error("failed to create quiz", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create quiz")
	}
	s.metrics.IncQuizCreated()

	resp := &dto.QuizCreatedResponse{Quiz: quiz}
	created, err := s.fanout.Run(ctx, *quiz)
	if err != nil {
		s.metrics.IncFanoutFailure()
		s.logger.Error("quiz result fan-out failed", zap.String("quiz_id", quiz.ID), zap.Error(err))
		resp.FanoutPending = s.enqueueFanout(quiz.ID)
	} else {
		resp.ResultsCreated = created
	}

	s.invalidateSnapshots(ctx)
	publishChange(ctx, s.events, s.logger, "quizzes", events.KindInsert)
	if created > 0 {
		publishChange(ctx, s.events, s.logger, "quiz_results", events.KindInsert)
	}
	return resp, nil
}

// SyncResults re-runs the fan-out for a quiz, creating rows for students added since.
func (s *QuizService) SyncResults(ctx context.Context, actor *models.JWTClaims, quizID string) (*dto.ResultSyncResponse, error) {
	quiz, err := s.loadOwnedQuiz(ctx, actor, quizID)
	if err != nil {
		return nil, err
	}
	created, err := s.fanout.Run(ctx, *quiz)
	if err != nil {
		s.logger.Error("quiz result sync failed", zap.String("quiz_id", quiz.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sync quiz results")
	}
	if created > 0 {
		s.invalidateSnapshots(ctx)
		publishChange(ctx, s.events, s.logger, "quiz_results", events.KindInsert)
	}
	return &dto.ResultSyncResponse{QuizID: quiz.ID, ResultsCreated: created}, nil
}

// Grade records the outcome of one result and closes its quiz if it is still scheduled or active.
// A completed quiz is never reopened by later grading.
func (s *QuizService) Grade(ctx context.Context, actor *models.JWTClaims, resultID string, req GradeResultRequest) (*models.QuizResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid grading payload")
	}

	result, err := s.results.FindByID(ctx, resultID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "quiz result not found")
		}
		s.logger.Error("failed to load quiz result", zap.String("result_id", resultID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quiz result")
	}
	quiz, err := s.loadOwnedQuiz(ctx, actor, result.QuizID)
	if err != nil {
		return nil, err
	}
	if quiz.Status == models.QuizStatusCancelled {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot grade a cancelled quiz")
	}

	if req.IsAbsent {
		result.MarksObtained = nil
		result.SubmissionStatus = models.SubmissionAbsent
	} else {
		if req.MarksObtained == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "marks are required unless the student is absent")
		}
		if *req.MarksObtained > float64(result.TotalMarks) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("marks cannot exceed total marks (%d)", result.TotalMarks))
		}
		marks := *req.MarksObtained
		result.MarksObtained = &marks
		result.SubmissionStatus = models.SubmissionSubmitted
	}
	checkedAt := s.now().UTC()
	result.IsChecked = true
	result.CheckedAt = &checkedAt
	result.Remarks = req.Remarks

	if err := s.results.Grade(ctx, result); err != nil {
		s.logger.Error("failed to grade quiz result", zap.String("result_id", result.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grade quiz result")
	}
	s.metrics.IncResultGraded()
	publishChange(ctx, s.events, s.logger, "quiz_results", events.KindUpdate)

	if quiz.Status.Open() {
		completed, err := s.quizzes.CompleteIfOpen(ctx, quiz.ID)
		if err != nil {
			s.invalidateSnapshots(ctx)
			s.logger.Error("failed to complete quiz", zap.String("quiz_id", quiz.ID), zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete quiz")
		}
		if completed {
			quiz.Status = models.QuizStatusCompleted
			publishChange(ctx, s.events, s.logger, "quizzes", events.KindUpdate)
		}
	}
	s.invalidateSnapshots(ctx)

	decorated := DecorateResults([]models.QuizResult{*result}, map[string]models.Quiz{quiz.ID: *quiz})
	return &decorated[0], nil
}

// UpdateStatus applies an explicit lifecycle transition. Completed and cancelled quizzes are final.
func (s *QuizService) UpdateStatus(ctx context.Context, actor *models.JWTClaims, quizID string, req UpdateQuizStatusRequest) (*models.Quiz, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid status payload")
	}
	quiz, err := s.loadOwnedQuiz(ctx, actor, quizID)
	if err != nil {
		return nil, err
	}
	if !quiz.Status.CanTransition(req.Status) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("cannot move quiz from %s to %s", quiz.Status, req.Status))
	}
	if err := s.quizzes.UpdateStatus(ctx, quiz.ID, req.Status); err != nil {
		s.logger.Error("failed to update quiz status", zap.String("quiz_id", quiz.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update quiz status")
	}
	quiz.Status = req.Status
	s.invalidateSnapshots(ctx)
	publishChange(ctx, s.events, s.logger, "quizzes", events.KindUpdate)
	return quiz, nil
}

// ExportResults renders the filtered result sheet as CSV or PDF.
func (s *QuizService) ExportResults(ctx context.Context, scope QuizScope, query dto.QuizResultQuery, format ExportFormat) (*ResultSheet, error) {
	if !s.cfg.ExportsEnabled {
		return nil, appErrors.Clone(appErrors.ErrNotEnabled, "result exports are disabled")
	}
	snapshot, results, err := s.filteredResults(ctx, scope, query)
	if err != nil {
		return nil, err
	}
	return s.exporter.Render(results, snapshot.QuizByID(), ComputeStats(results), format)
}

// HandleChange drops cached snapshots when a change event touches one of their source tables.
func (s *QuizService) HandleChange(ctx context.Context, change events.Change) {
	if _, ok := snapshotTables[change.Table]; !ok {
		return
	}
	s.logger.Debug("quiz snapshot invalidated by change", zap.String("table", change.Table), zap.String("kind", string(change.Kind)))
	s.invalidateSnapshots(ctx)
}

func (s *QuizService) isAssigned(ctx context.Context, actor *models.JWTClaims, classID, subjectID string) (bool, error) {
	if actor.IsTeacher() {
		return s.enrollments.ExistsActive(ctx, actor.UserID, classID, subjectID)
	}
	return s.classSubjects.ExistsActive(ctx, classID, subjectID)
}

func (s *QuizService) loadOwnedQuiz(ctx context.Context, actor *models.JWTClaims, quizID string) (*models.Quiz, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing caller")
	}
	quiz, err := s.quizzes.FindByID(ctx, quizID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "quiz not found")
		}
		s.logger.Error("failed to load quiz", zap.String("quiz_id", quizID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quiz")
	}
	if actor.IsTeacher() && quiz.TeacherID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "quiz belongs to another teacher")
	}
	return quiz, nil
}

func (s *QuizService) enqueueFanout(quizID string) bool {
	if s.queue == nil {
		return false
	}
	if err := s.queue.Enqueue(jobs.Job{ID: quizID, Type: JobTypeQuizFanout}); err != nil {
		s.logger.Error("failed to queue quiz result fan-out", zap.String("quiz_id", quizID), zap.Error(err))
		return false
	}
	return true
}

func (s *QuizService) invalidateSnapshots(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, quizSnapshotPattern)
}
