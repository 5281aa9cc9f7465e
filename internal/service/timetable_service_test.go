package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/classroom-api/internal/models"
	appErrors "github.com/noah-isme/classroom-api/pkg/errors"
)

type fakeTimetableRepo struct {
	entries  map[string]*models.TimetableEntry
	order    []string
	listErr  error
	lookups  int
	seq      int
	updated  []string
	disabled []string
}

func newFakeTimetableRepo(entries ...models.TimetableEntry) *fakeTimetableRepo {
	repo := &fakeTimetableRepo{entries: make(map[string]*models.TimetableEntry)}
	for i := range entries {
		entry := entries[i]
		entry.IsActive = true
		repo.entries[entry.ID] = &entry
		repo.order = append(repo.order, entry.ID)
	}
	return repo
}

func (f *fakeTimetableRepo) active(match func(models.TimetableEntry) bool) []models.TimetableEntry {
	var out []models.TimetableEntry
	for _, id := range f.order {
		entry := f.entries[id]
		if entry.IsActive && match(*entry) {
			out = append(out, *entry)
		}
	}
	return out
}

func (f *fakeTimetableRepo) ListByClassAndDay(ctx context.Context, classID, day string) ([]models.TimetableEntry, error) {
	f.lookups++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.active(func(e models.TimetableEntry) bool {
		return e.ClassID == classID && strings.EqualFold(e.Day, day)
	}), nil
}

func (f *fakeTimetableRepo) ListByClass(ctx context.Context, classID string) ([]models.TimetableEntry, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.active(func(e models.TimetableEntry) bool { return e.ClassID == classID }), nil
}

func (f *fakeTimetableRepo) ListByTeacher(ctx context.Context, teacherID string) ([]models.TimetableEntry, error) {
	return f.active(func(e models.TimetableEntry) bool { return e.TeacherID == teacherID }), nil
}

func (f *fakeTimetableRepo) FindByID(ctx context.Context, id string) (*models.TimetableEntry, error) {
	entry, ok := f.entries[id]
	if !ok || !entry.IsActive {
		return nil, sql.ErrNoRows
	}
	clone := *entry
	return &clone, nil
}

func (f *fakeTimetableRepo) Create(ctx context.Context, entry *models.TimetableEntry) error {
	f.seq++
	entry.ID = fmt.Sprintf("tt-new-%d", f.seq)
	entry.IsActive = true
	clone := *entry
	f.entries[entry.ID] = &clone
	f.order = append(f.order, entry.ID)
	return nil
}

func (f *fakeTimetableRepo) Update(ctx context.Context, entry *models.TimetableEntry) error {
	clone := *entry
	f.entries[entry.ID] = &clone
	f.updated = append(f.updated, entry.ID)
	return nil
}

func (f *fakeTimetableRepo) SoftDelete(ctx context.Context, id string) error {
	f.entries[id].IsActive = false
	f.disabled = append(f.disabled, id)
	return nil
}

func newTimetableFixture() (*TimetableService, *fakeTimetableRepo, *recordingPublisher, *MetricsService) {
	repo := newFakeTimetableRepo(
		models.TimetableEntry{ID: "tt-1", Day: "Monday", StartTime: "09:00", EndTime: "10:00", SubjectName: "Mathematics", RoomNumber: "101", ClassID: "class-a", TeacherID: "teacher-1"},
		models.TimetableEntry{ID: "tt-2", Day: "Monday", StartTime: "10:00", EndTime: "11:00", SubjectName: "Biology", RoomNumber: "Lab", ClassID: "class-a", TeacherID: "teacher-2"},
		models.TimetableEntry{ID: "tt-3", Day: "Monday", StartTime: "09:00", EndTime: "10:00", SubjectName: "Art", RoomNumber: "101", ClassID: "class-b", TeacherID: "teacher-1"},
		models.TimetableEntry{ID: "tt-4", Day: "Wednesday", StartTime: "07:30", EndTime: "08:15", SubjectName: "History", RoomNumber: "204", ClassID: "class-a", TeacherID: "teacher-1"},
	)
	publisher := &recordingPublisher{}
	metrics := NewMetricsService()
	svc := NewTimetableService(repo, NewTimetableValidator(nil), publisher, metrics, nil, zap.NewNop())
	return svc, repo, publisher, metrics
}

func mondayRequest(start, end string) TimetableEntryRequest {
	return TimetableEntryRequest{Day: "monday", StartTime: start, EndTime: end, SubjectName: "Physics", RoomNumber: "102", ClassID: "class-a"}
}

func TestTimetableServiceValidateDetectsOverlap(t *testing.T) {
	svc, _, _, metrics := newTimetableFixture()

	verdict, err := svc.Validate(context.Background(), ValidateTimetableRequest{TimetableEntryRequest: mondayRequest("09:30", "10:30")})
	require.NoError(t, err)
	assert.False(t, verdict.IsValid)
	require.Len(t, verdict.Conflicts, 2)
	assert.Equal(t, "tt-1", verdict.Conflicts[0].EntryID)
	assert.Equal(t, "tt-2", verdict.Conflicts[1].EntryID)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.timetableValidations.WithLabelValues(ValidationOutcomeConflict)))
}

func TestTimetableServiceValidateTouchingIntervalsAreFree(t *testing.T) {
	svc, _, _, _ := newTimetableFixture()

	verdict, err := svc.Validate(context.Background(), ValidateTimetableRequest{TimetableEntryRequest: mondayRequest("11:00", "12:00")})
	require.NoError(t, err)
	assert.True(t, verdict.IsValid)
	assert.Empty(t, verdict.Conflicts)
	assert.Empty(t, verdict.Errors)
}

func TestTimetableServiceValidateExcludesEditedEntry(t *testing.T) {
	svc, _, _, _ := newTimetableFixture()

	req := mondayRequest("09:00:00", "09:45:00")
	verdict, err := svc.Validate(context.Background(), ValidateTimetableRequest{TimetableEntryRequest: req, ExcludeID: "tt-1"})
	require.NoError(t, err)
	assert.True(t, verdict.IsValid)
}

func TestTimetableServiceValidateStructuralErrorsSkipStorage(t *testing.T) {
	svc, repo, _, metrics := newTimetableFixture()

	req := mondayRequest("10:00", "09:00")
	verdict, err := svc.Validate(context.Background(), ValidateTimetableRequest{TimetableEntryRequest: req})
	require.NoError(t, err)
	assert.False(t, verdict.IsValid)
	assert.Equal(t, []string{"End time must be after start time"}, verdict.Errors)

	req = mondayRequest("09:00", "10:00")
	req.RoomNumber = ""
	verdict, err = svc.Validate(context.Background(), ValidateTimetableRequest{TimetableEntryRequest: req})
	require.NoError(t, err)
	assert.Equal(t, []string{"All fields are required"}, verdict.Errors)

	assert.Zero(t, repo.lookups)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.timetableValidations.WithLabelValues(ValidationOutcomeMalformed)))
}

func TestTimetableServiceValidateGatewayError(t *testing.T) {
	svc, repo, _, _ := newTimetableFixture()
	repo.listErr = errors.New("dial tcp: timeout")

	_, err := svc.Validate(context.Background(), ValidateTimetableRequest{TimetableEntryRequest: mondayRequest("12:00", "13:00")})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceCreate(t *testing.T) {
	svc, repo, publisher, _ := newTimetableFixture()

	entry, err := svc.Create(context.Background(), teacherClaims, mondayRequest("11:00", "11:45:00"))
	require.NoError(t, err)
	assert.Equal(t, "Monday", entry.Day)
	assert.Equal(t, "11:45", entry.EndTime)
	assert.Equal(t, "teacher-1", entry.TeacherID)
	assert.Contains(t, repo.entries, entry.ID)
	assert.Equal(t, []string{"timetable_entries:INSERT"}, publisher.tables())
}

func TestTimetableServiceCreateRejectsConflict(t *testing.T) {
	svc, repo, publisher, _ := newTimetableFixture()

	_, err := svc.Create(context.Background(), adminClaims, mondayRequest("08:30", "09:30"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	verdict, ok := appErr.Details.(models.TimetableValidation)
	require.True(t, ok)
	require.Len(t, verdict.Conflicts, 1)
	assert.Equal(t, "tt-1", verdict.Conflicts[0].EntryID)
	assert.Len(t, repo.entries, 4)
	assert.Empty(t, publisher.changes)
}

func TestTimetableServiceCreateRejectsMalformed(t *testing.T) {
	svc, repo, _, _ := newTimetableFixture()

	req := mondayRequest("9am", "10:00")
	_, err := svc.Create(context.Background(), adminClaims, req)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, "Invalid time format", appErr.Message)

	req = mondayRequest("09:00", "10:00")
	req.Day = "Sunday"
	_, err = svc.Create(context.Background(), adminClaims, req)
	require.Error(t, err)
	assert.Equal(t, "Invalid day", appErrors.FromError(err).Message)
	assert.Len(t, repo.entries, 4)
}

func TestTimetableServiceUpdate(t *testing.T) {
	svc, repo, publisher, _ := newTimetableFixture()

	req := TimetableEntryRequest{Day: "Monday", StartTime: "08:30", EndTime: "09:45", SubjectName: "Mathematics", RoomNumber: "101", ClassID: "class-a"}
	entry, err := svc.Update(context.Background(), teacherClaims, "tt-1", req)
	require.NoError(t, err)
	assert.Equal(t, "08:30", entry.StartTime)
	assert.Equal(t, "teacher-1", entry.TeacherID)
	assert.Equal(t, []string{"tt-1"}, repo.updated)
	assert.Equal(t, []string{"timetable_entries:UPDATE"}, publisher.tables())

	req.EndTime = "10:30"
	_, err = svc.Update(context.Background(), teacherClaims, "tt-1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceUpdateOwnership(t *testing.T) {
	svc, _, _, _ := newTimetableFixture()

	_, err := svc.Update(context.Background(), teacherClaims, "tt-2", mondayRequest("10:00", "11:00"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Update(context.Background(), adminClaims, "missing", mondayRequest("10:00", "11:00"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceDelete(t *testing.T) {
	svc, repo, publisher, _ := newTimetableFixture()

	require.NoError(t, svc.Delete(context.Background(), adminClaims, "tt-2"))
	assert.Equal(t, []string{"tt-2"}, repo.disabled)
	assert.Equal(t, []string{"timetable_entries:DELETE"}, publisher.tables())

	err := svc.Delete(context.Background(), adminClaims, "tt-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	verdict, err := svc.Validate(context.Background(), ValidateTimetableRequest{TimetableEntryRequest: mondayRequest("10:00", "11:00")})
	require.NoError(t, err)
	assert.True(t, verdict.IsValid)
}

func TestTimetableServiceListByClassGroupsDays(t *testing.T) {
	svc, _, _, _ := newTimetableFixture()

	resp, err := svc.ListByClass(context.Background(), "class-a")
	require.NoError(t, err)
	require.Len(t, resp.Days, 6)
	assert.Equal(t, "Monday", resp.Days[0].Day)
	require.Len(t, resp.Days[0].Entries, 2)
	assert.Equal(t, "tt-1", resp.Days[0].Entries[0].ID)
	assert.Empty(t, resp.Days[1].Entries)
	require.Len(t, resp.Days[2].Entries, 1)
	assert.Equal(t, "tt-4", resp.Days[2].Entries[0].ID)

	_, err = svc.ListByClass(context.Background(), "")
	require.Error(t, err)
}

func TestTimetableServiceListMine(t *testing.T) {
	svc, _, _, _ := newTimetableFixture()

	days, err := svc.ListMine(context.Background(), teacherClaims)
	require.NoError(t, err)
	total := 0
	for _, day := range days {
		total += len(day.Entries)
	}
	assert.Equal(t, 3, total)
}
