package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classroom-api/internal/models"
)

func TestSubjectAndClassListing(t *testing.T) {
	db, mock, cleanup := newQuizMock(t)
	defer cleanup()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM subjects WHERE is_active = TRUE ORDER BY name ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "class_id", "is_active", "created_at", "updated_at"}).
			AddRow("math", "Mathematics", "class-a", true, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM classes ORDER BY name ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "created_at", "updated_at"}).
			AddRow("class-a", "X-A", now, now).
			AddRow("class-b", "X-B", now, now))

	subjects, err := NewSubjectRepository(db).ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Equal(t, "Mathematics", subjects[0].Name)

	classes, err := NewClassRepository(db).List(context.Background())
	require.NoError(t, err)
	assert.Len(t, classes, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassSubjectExistsActive(t *testing.T) {
	db, mock, cleanup := newQuizMock(t)
	defer cleanup()
	repo := NewClassSubjectRepository(db)
	query := regexp.QuoteMeta("SELECT 1 FROM class_subjects WHERE class_id = $1 AND subject_id = $2 AND is_active = TRUE LIMIT 1")

	mock.ExpectQuery(query).WithArgs("class-a", "math").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(query).WithArgs("class-a", "art").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(query).WithArgs("class-a", "bio").WillReturnError(errors.New("conn reset"))

	ok, err := repo.ExistsActive(context.Background(), "class-a", "math")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ExistsActive(context.Background(), "class-a", "art")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.ExistsActive(context.Background(), "class-a", "bio")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherEnrollmentRepository(t *testing.T) {
	db, mock, cleanup := newQuizMock(t)
	defer cleanup()
	repo := NewTeacherEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM teacher_subject_enrollments")).
		WithArgs("teacher-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "teacher_id", "class_id", "subject_id", "is_active", "created_at"}).
			AddRow("en-1", "teacher-1", "class-a", "math", true, time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM teacher_subject_enrollments WHERE teacher_id = $1 AND class_id = $2 AND subject_id = $3")).
		WithArgs("teacher-1", "class-b", "math").
		WillReturnError(sql.ErrNoRows)

	enrollments, err := repo.ListActiveByTeacher(context.Background(), "teacher-1")
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	assert.Equal(t, models.ClassSubject{ID: "en-1", ClassID: "class-a", SubjectID: "math", IsActive: true, CreatedAt: enrollments[0].CreatedAt}, enrollments[0].AsClassSubject())

	ok, err := repo.ExistsActive(context.Background(), "teacher-1", "class-b", "math")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListByClass(t *testing.T) {
	db, mock, cleanup := newQuizMock(t)
	defer cleanup()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE class_id = $1 AND active = TRUE ORDER BY roll_number ASC")).
		WithArgs("class-a").
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "roll_number", "class_id", "active", "created_at", "updated_at"}).
			AddRow("s1", "Ana", "01", "class-a", true, now, now))

	students, err := NewStudentRepository(db).ListByClass(context.Background(), "class-a")
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "01", students[0].RollNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryLogin(t *testing.T) {
	db, mock, cleanup := newQuizMock(t)
	defer cleanup()
	repo := NewUserRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1 LIMIT 1")).
		WithArgs("teacher@school.test").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "full_name", "role", "active", "last_login", "created_at", "updated_at"}).
			AddRow("teacher-1", "teacher@school.test", "hash", "Teacher One", "TEACHER", true, nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1 LIMIT 1")).
		WithArgs("missing@school.test").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET last_login = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("teacher-1", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	user, err := repo.FindByEmail(context.Background(), "teacher@school.test")
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, user.Role)
	assert.Nil(t, user.LastLogin)

	_, err = repo.FindByEmail(context.Background(), "missing@school.test")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, repo.UpdateLastLogin(context.Background(), "teacher-1", now))
	assert.NoError(t, mock.ExpectationsWereMet())
}
