package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-api/internal/dto"
	"github.com/noah-isme/classroom-api/internal/models"
	"github.com/noah-isme/classroom-api/internal/service"
	appErrors "github.com/noah-isme/classroom-api/pkg/errors"
)

type fakeTimetableService struct {
	validateReq service.ValidateTimetableRequest
	entryReq    service.TimetableEntryRequest
	targetID    string
	actor       *models.JWTClaims
	verdict     *models.TimetableValidation
	err         error
	deleted     bool
}

func (f *fakeTimetableService) Validate(_ context.Context, req service.ValidateTimetableRequest) (*models.TimetableValidation, error) {
	f.validateReq = req
	return f.verdict, f.err
}

func (f *fakeTimetableService) Create(_ context.Context, actor *models.JWTClaims, req service.TimetableEntryRequest) (*models.TimetableEntry, error) {
	f.actor, f.entryReq = actor, req
	if f.err != nil {
		return nil, f.err
	}
	return &models.TimetableEntry{ID: "tt-9", Day: req.Day, ClassID: req.ClassID, TeacherID: actor.UserID}, nil
}

func (f *fakeTimetableService) Update(_ context.Context, actor *models.JWTClaims, id string, req service.TimetableEntryRequest) (*models.TimetableEntry, error) {
	f.actor, f.targetID, f.entryReq = actor, id, req
	if f.err != nil {
		return nil, f.err
	}
	return &models.TimetableEntry{ID: id, Day: req.Day}, nil
}

func (f *fakeTimetableService) Delete(_ context.Context, actor *models.JWTClaims, id string) error {
	f.actor, f.targetID = actor, id
	f.deleted = f.err == nil
	return f.err
}

func (f *fakeTimetableService) ListByClass(_ context.Context, classID string) (*dto.ClassTimetableResponse, error) {
	f.targetID = classID
	if f.err != nil {
		return nil, f.err
	}
	return &dto.ClassTimetableResponse{ClassID: classID, Days: []models.TimetableDay{{Day: "Monday", Entries: []models.TimetableEntry{}}}}, nil
}

func (f *fakeTimetableService) ListMine(_ context.Context, actor *models.JWTClaims) ([]models.TimetableDay, error) {
	f.actor = actor
	return []models.TimetableDay{{Day: "Monday", Entries: []models.TimetableEntry{{ID: "tt-1"}}}}, f.err
}

func TestTimetableHandlerValidateReturnsVerdict(t *testing.T) {
	svc := &fakeTimetableService{verdict: &models.TimetableValidation{
		IsValid:   false,
		Conflicts: []models.TimetableConflict{{EntryID: "tt-1", Message: "Conflicts with Mathematics (09:00-10:00)"}},
		Errors:    []string{},
	}}
	h := NewTimetableHandler(svc)

	body := `{"day":"monday","start_time":"09:30","end_time":"10:30","subject_name":"Physics","room_number":"R1","class_id":"class-a","exclude_id":"tt-7"}`
	c, rec := newTestContext(http.MethodPost, "/timetable/validate", body, teacherCaller)
	h.Validate(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tt-7", svc.validateReq.ExcludeID)
	assert.Equal(t, "monday", svc.validateReq.Day)
	var verdict models.TimetableValidation
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &verdict))
	assert.False(t, verdict.IsValid)
	require.Len(t, verdict.Conflicts, 1)
	assert.Equal(t, "tt-1", verdict.Conflicts[0].EntryID)
}

func TestTimetableHandlerCreate(t *testing.T) {
	svc := &fakeTimetableService{}
	h := NewTimetableHandler(svc)

	body := `{"day":"Tuesday","start_time":"08:00","end_time":"09:00","subject_name":"Biology","room_number":"Lab","class_id":"class-a"}`
	c, rec := newTestContext(http.MethodPost, "/timetable", body, teacherCaller)
	h.Create(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, teacherCaller, svc.actor)
	assert.Equal(t, "Biology", svc.entryReq.SubjectName)
}

func TestTimetableHandlerCreateConflict(t *testing.T) {
	verdict := models.TimetableValidation{Conflicts: []models.TimetableConflict{{EntryID: "tt-1"}}, Errors: []string{}}
	svc := &fakeTimetableService{err: appErrors.WithDetails(appErrors.Clone(appErrors.ErrConflict, "timetable entry overlaps an existing entry"), verdict)}
	h := NewTimetableHandler(svc)

	c, rec := newTestContext(http.MethodPost, "/timetable", `{"day":"Monday"}`, adminCaller)
	h.Create(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrConflict.Code, env.Error.Code)
	assert.NotNil(t, env.Error.Details)
}

func TestTimetableHandlerUpdateAndDelete(t *testing.T) {
	svc := &fakeTimetableService{}
	h := NewTimetableHandler(svc)

	c, rec := newTestContext(http.MethodPut, "/timetable/tt-1", `{"day":"Friday","start_time":"10:00","end_time":"11:00"}`, adminCaller)
	c.Params = gin.Params{{Key: "id", Value: "tt-1"}}
	h.Update(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tt-1", svc.targetID)
	assert.Equal(t, "Friday", svc.entryReq.Day)

	c, rec = newTestContext(http.MethodDelete, "/timetable/tt-1", "", adminCaller)
	c.Params = gin.Params{{Key: "id", Value: "tt-1"}}
	h.Delete(c)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, svc.deleted)
}

func TestTimetableHandlerDeleteForbidden(t *testing.T) {
	svc := &fakeTimetableService{err: appErrors.Clone(appErrors.ErrForbidden, "timetable entry belongs to another teacher")}
	h := NewTimetableHandler(svc)

	c, rec := newTestContext(http.MethodDelete, "/timetable/tt-2", "", teacherCaller)
	c.Params = gin.Params{{Key: "id", Value: "tt-2"}}
	h.Delete(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, svc.deleted)
}

func TestTimetableHandlerListing(t *testing.T) {
	svc := &fakeTimetableService{}
	h := NewTimetableHandler(svc)

	c, rec := newTestContext(http.MethodGet, "/timetable/classes/class-a", "", adminCaller)
	c.Params = gin.Params{{Key: "id", Value: "class-a"}}
	h.ListByClass(c)
	require.Equal(t, http.StatusOK, rec.Code)
	var class dto.ClassTimetableResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &class))
	assert.Equal(t, "class-a", class.ClassID)

	c, rec = newTestContext(http.MethodGet, "/timetable/me", "", teacherCaller)
	h.ListMine(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, teacherCaller, svc.actor)

	c, rec = newTestContext(http.MethodGet, "/timetable/me", "", nil)
	h.ListMine(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
