package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/classroom-api/internal/dto"
	"github.com/noah-isme/classroom-api/internal/models"
	appErrors "github.com/noah-isme/classroom-api/pkg/errors"
	"github.com/noah-isme/classroom-api/pkg/events"
)

const timetableTable = "timetable_entries"

type timetableRepository interface {
	ListByClassAndDay(ctx context.Context, classID, day string) ([]models.TimetableEntry, error)
	ListByClass(ctx context.Context, classID string) ([]models.TimetableEntry, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.TimetableEntry, error)
	FindByID(ctx context.Context, id string) (*models.TimetableEntry, error)
	Create(ctx context.Context, entry *models.TimetableEntry) error
	Update(ctx context.Context, entry *models.TimetableEntry) error
	SoftDelete(ctx context.Context, id string) error
}

// TimetableEntryRequest describes a timetable entry to validate or store. Missing fields are
// reported by the timetable validator rather than by tag validation.
type TimetableEntryRequest struct {
	Day         string `json:"day"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	SubjectName string `json:"subject_name" validate:"omitempty,max=100"`
	RoomNumber  string `json:"room_number" validate:"omitempty,max=50"`
	ClassID     string `json:"class_id"`
	TeacherID   string `json:"teacher_id"`
}

// ValidateTimetableRequest asks for a verdict without storing anything. ExcludeID names the entry
// being edited, if any.
type ValidateTimetableRequest struct {
	TimetableEntryRequest
	ExcludeID string `json:"exclude_id"`
}

func (r TimetableEntryRequest) entry() models.TimetableEntry {
	return models.TimetableEntry{
		Day:         r.Day,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		SubjectName: r.SubjectName,
		RoomNumber:  r.RoomNumber,
		ClassID:     r.ClassID,
		TeacherID:   r.TeacherID,
	}
}

// TimetableService manages class timetables on top of TimetableValidator.
type TimetableService struct {
	repo      timetableRepository
	rules     *TimetableValidator
	events    changePublisher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTimetableService instantiates TimetableService.
func NewTimetableService(repo timetableRepository, rules *TimetableValidator, publisher changePublisher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *TimetableService {
	if rules == nil {
		rules = NewTimetableValidator(nil)
	}
	if validate == nil {
		validate = NewRequestValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableService{repo: repo, rules: rules, events: publisher, metrics: metrics, validator: validate, logger: logger}
}

// Validate returns the verdict for a candidate entry against the stored entries of its class and day.
func (s *TimetableService) Validate(ctx context.Context, req ValidateTimetableRequest) (*models.TimetableValidation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid timetable payload")
	}
	_, verdict, err := s.check(ctx, req.entry(), req.ExcludeID)
	if err != nil {
		return nil, err
	}
	return &verdict, nil
}

// Create stores a new entry. Teachers always create entries for themselves.
func (s *TimetableService) Create(ctx context.Context, actor *models.JWTClaims, req TimetableEntryRequest) (*models.TimetableEntry, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing caller")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid timetable payload")
	}
	candidate := req.entry()
	if actor.IsTeacher() || candidate.TeacherID == "" {
		candidate.TeacherID = actor.UserID
	}

	entry, verdict, err := s.check(ctx, candidate, "")
	if err != nil {
		return nil, err
	}
	if err := rejectVerdict(verdict); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, &entry); err != nil {
		s.logger.Error("failed to create timetable entry", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timetable entry")
	}
	publishChange(ctx, s.events, s.logger, timetableTable, events.KindInsert)
	return &entry, nil
}

// Update replaces an entry. The entry never conflicts with its own previous version.
func (s *TimetableService) Update(ctx context.Context, actor *models.JWTClaims, id string, req TimetableEntryRequest) (*models.TimetableEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid timetable payload")
	}
	existing, err := s.loadOwnedEntry(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	candidate := req.entry()
	candidate.ID = existing.ID
	candidate.CreatedAt = existing.CreatedAt
	candidate.IsActive = existing.IsActive
	if actor.IsTeacher() || candidate.TeacherID == "" {
		candidate.TeacherID = existing.TeacherID
	}

	entry, verdict, err := s.check(ctx, candidate, existing.ID)
	if err != nil {
		return nil, err
	}
	if err := rejectVerdict(verdict); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, &entry); err != nil {
		s.logger.Error("failed to update timetable entry", zap.String("entry_id", id), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update timetable entry")
	}
	publishChange(ctx, s.events, s.logger, timetableTable, events.KindUpdate)
	return &entry, nil
}

// Delete deactivates an entry.
func (s *TimetableService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	if _, err := s.loadOwnedEntry(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		s.logger.Error("failed to delete timetable entry", zap.String("entry_id", id), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable entry")
	}
	publishChange(ctx, s.events, s.logger, timetableTable, events.KindDelete)
	return nil
}

// ListByClass returns the class timetable grouped by teaching day.
func (s *TimetableService) ListByClass(ctx context.Context, classID string) (*dto.ClassTimetableResponse, error) {
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class id is required")
	}
	entries, err := s.repo.ListByClass(ctx, classID)
	if err != nil {
		s.logger.Error("failed to list class timetable", zap.String("class_id", classID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class timetable")
	}
	return &dto.ClassTimetableResponse{ClassID: classID, Days: s.rules.GroupByDay(entries)}, nil
}

// ListMine returns the caller's own entries grouped by teaching day.
func (s *TimetableService) ListMine(ctx context.Context, actor *models.JWTClaims) ([]models.TimetableDay, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing caller")
	}
	entries, err := s.repo.ListByTeacher(ctx, actor.UserID)
	if err != nil {
		s.logger.Error("failed to list teacher timetable", zap.String("teacher_id", actor.UserID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teacher timetable")
	}
	return s.rules.GroupByDay(entries), nil
}

// check normalises the candidate and validates it. Structural problems are reported without
// touching storage; otherwise the candidate is compared with the stored entries of its class and day.
func (s *TimetableService) check(ctx context.Context, candidate models.TimetableEntry, excludeID string) (models.TimetableEntry, models.TimetableValidation, error) {
	candidate = s.rules.Normalize(candidate)

	verdict := s.rules.Validate(candidate, nil, excludeID)
	if len(verdict.Errors) > 0 {
		s.metrics.ObserveTimetableValidation(ValidationOutcomeMalformed)
		return candidate, verdict, nil
	}

	existing, err := s.repo.ListByClassAndDay(ctx, candidate.ClassID, candidate.Day)
	if err != nil {
		s.logger.Error("failed to load timetable entries", zap.String("class_id", candidate.ClassID), zap.String("day", candidate.Day), zap.Error(err))
		return candidate, models.TimetableValidation{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable entries")
	}

	verdict = s.rules.Validate(candidate, existing, excludeID)
	if verdict.IsValid {
		s.metrics.ObserveTimetableValidation(ValidationOutcomeValid)
	} else {
		s.metrics.ObserveTimetableValidation(ValidationOutcomeConflict)
	}
	return candidate, verdict, nil
}

func rejectVerdict(verdict models.TimetableValidation) error {
	if len(verdict.Errors) > 0 {
		return appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, verdict.Errors[0]), verdict)
	}
	if len(verdict.Conflicts) > 0 {
		return appErrors.WithDetails(appErrors.Clone(appErrors.ErrConflict, "timetable entry overlaps an existing entry"), verdict)
	}
	return nil
}

func (s *TimetableService) loadOwnedEntry(ctx context.Context, actor *models.JWTClaims, id string) (*models.TimetableEntry, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing caller")
	}
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable entry not found")
		}
		s.logger.Error("failed to load timetable entry", zap.String("entry_id", id), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable entry")
	}
	if actor.IsTeacher() && entry.TeacherID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "timetable entry belongs to another teacher")
	}
	return entry, nil
}
