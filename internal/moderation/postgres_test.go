package moderation

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flames/api/internal/store"
)

var (
	nominationCols = []string{
		"id", "kind", "full_name", "email", "phone", "linkedin", "instagram", "twitter",
		"details", "approved", "media_url", "version", "created_at", "updated_at",
	}
	publishedCols = []string{
		"id", "kind", "nomination_id", "full_name", "email", "phone", "linkedin", "instagram", "twitter",
		"details", "media_url", "published_at", "updated_at",
	}
)

func newPostgresService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewService(store.NewPostgresStore(db), WithClock(func() time.Time { return fixedNow })), mock
}

func expectApproveReads(mock sqlmock.Sqlmock, created time.Time) {
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM nominations WHERE kind=$1 AND id=$2 FOR UPDATE")).
		WithArgs("volunteer", "nom_1").
		WillReturnRows(sqlmock.NewRows(nominationCols).
			AddRow("nom_1", "volunteer", "Asha Rao", "a@x.com", "9999999999", "", "", "", `{"role":"Logistics"}`, false, "", int64(1), created, created))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE kind=$1 AND nomination_id=$2 ORDER BY id LIMIT 1 FOR UPDATE")).
		WithArgs("volunteer", "nom_1").
		WillReturnRows(sqlmock.NewRows(publishedCols))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE kind=$1 AND email=$2 ORDER BY id LIMIT 1 FOR UPDATE")).
		WithArgs("volunteer", "a@x.com").
		WillReturnRows(sqlmock.NewRows(publishedCols))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE nominations")).
		WithArgs("volunteer", "nom_1", "Asha Rao", "a@x.com", "9999999999", "", "", "", `{"role":"Logistics"}`, true, "").
		WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}).AddRow(int64(2), fixedNow))
}

func TestApproveOverPostgresCommitsOneTransaction(t *testing.T) {
	svc, mock := newPostgresService(t)
	created := fixedNow.Add(-time.Hour)

	expectApproveReads(mock, created)
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (kind, email) DO UPDATE")).
		WithArgs(sqlmock.AnyArg(), "volunteer", "nom_1", "Asha Rao", "a@x.com", "9999999999", "", "", "", `{"role":"Logistics"}`, "", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE kind=$1 AND nomination_id=$2 ORDER BY id LIMIT 1 FOR UPDATE")).
		WithArgs("volunteer", "nom_1").
		WillReturnRows(sqlmock.NewRows(publishedCols).
			AddRow("pub_1", "volunteer", "nom_1", "Asha Rao", "a@x.com", "9999999999", "", "", "", `{"role":"Logistics"}`, "", fixedNow, fixedNow))
	mock.ExpectCommit()

	res, err := svc.Approve(context.Background(), admin, store.KindVolunteer, "nom_1", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Nomination.Version)
	assert.Equal(t, "pub_1", res.Published.ID)
	assert.False(t, res.Notified)
}

func TestApproveOverPostgresRollsBackOnUniqueViolation(t *testing.T) {
	svc, mock := newPostgresService(t)

	expectApproveReads(mock, fixedNow.Add(-time.Hour))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO published_records")).
		WillReturnError(errors.New(`duplicate key value violates unique constraint "published_records_kind_email_key"`))
	mock.ExpectRollback()

	_, err := svc.Approve(context.Background(), admin, store.KindVolunteer, "nom_1", 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrVersionConflict)
}

func TestApproveOverPostgresStaleVersionWritesNothing(t *testing.T) {
	svc, mock := newPostgresService(t)
	created := fixedNow.Add(-time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM nominations WHERE kind=$1 AND id=$2 FOR UPDATE")).
		WithArgs("volunteer", "nom_1").
		WillReturnRows(sqlmock.NewRows(nominationCols).
			AddRow("nom_1", "volunteer", "Asha Rao", "a@x.com", "", "", "", "", "{}", false, "", int64(3), created, created))
	mock.ExpectRollback()

	_, err := svc.Approve(context.Background(), admin, store.KindVolunteer, "nom_1", 1)
	assert.ErrorIs(t, err, ErrVersionConflict)
}
