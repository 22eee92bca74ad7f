package search

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPgSearchQueriesBothTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT count\(\*\) FROM .*FROM nominations n.*UNION ALL.*FROM contact_messages c`).
		WithArgs(`%asha\_r%`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`SELECT type, id, kind, title, snippet FROM .*ORDER BY created_at DESC, id DESC LIMIT 20 OFFSET 0`).
		WithArgs(`%asha\_r%`).
		WillReturnRows(sqlmock.NewRows([]string{"type", "id", "kind", "title", "snippet"}).
			AddRow("nomination", "nom_1", "volunteer", "Asha Rao", "asha@x.com").
			AddRow("contact", "msg_1", "", "Asha R", "Hello there"))

	results, total, err := NewPgSearch(db).Search(context.Background(), Query{Text: " asha_r "})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, results, 2)
	assert.Equal(t, ResultNomination, results[0].Type)
	assert.Equal(t, "volunteer", results[0].Kind)
	assert.Equal(t, ResultContact, results[1].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgSearchKindFilterSkipsContacts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT count\(\*\) FROM .*n\.kind = \$2`).
		WithArgs("%cara%", "speaker").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT type, id, kind, title, snippet`).
		WithArgs("%cara%", "speaker").
		WillReturnRows(sqlmock.NewRows([]string{"type", "id", "kind", "title", "snippet"}))

	results, total, err := NewPgSearch(db).Search(context.Background(), Query{Text: "cara", FilterKind: "speaker"})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, results)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgSearchBlankQuery(t *testing.T) {
	results, total, err := NewPgSearch(nil).Search(context.Background(), Query{Text: "   "})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Nil(t, results)
}

func TestJoinDetails(t *testing.T) {
	got := JoinDetails(map[string]string{"topic": "Edge AI", "bio": "Builder", "empty": "  "})
	assert.Equal(t, "Builder Edge AI", got)
}
