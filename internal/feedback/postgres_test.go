package feedback

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var feedbackColumns = []string{
	"id", "signature", "finding_ids", "suggested_disease_id", "confirmed_disease_id",
	"agreed", "notes", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return store, mock
}

func TestNewPostgresStore_NilDB(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestPostgresStore_Save(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2026, 1, 17, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO diagnosis_feedback").
		WithArgs(testSignature, `["fatigable_weakness"]`, "myasthenia_gravis", "", true, "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), created))

	fb := &Feedback{
		Signature:          testSignature,
		FindingIDs:         []string{"fatigable_weakness"},
		SuggestedDiseaseID: "myasthenia_gravis",
		Agreed:             true,
	}
	err := store.Save(context.Background(), fb)

	require.NoError(t, err)
	assert.Equal(t, int64(7), fb.ID)
	assert.Equal(t, created, fb.CreatedAt)
	assert.False(t, fb.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Save_KeepsCarriedTimestamps(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)
	updated := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO diagnosis_feedback").
		WithArgs(testSignature, `["fatigable_weakness"]`, "myasthenia_gravis", "", true, "", created, updated).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(8), created))

	fb := &Feedback{
		Signature:          testSignature,
		FindingIDs:         []string{"fatigable_weakness"},
		SuggestedDiseaseID: "myasthenia_gravis",
		Agreed:             true,
		CreatedAt:          created,
		UpdatedAt:          updated,
	}
	require.NoError(t, store.Save(context.Background(), fb))

	assert.Equal(t, created, fb.CreatedAt)
	assert.Equal(t, updated, fb.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Save_Error(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO diagnosis_feedback").
		WillReturnError(errors.New("connection reset"))

	err := store.Save(context.Background(), &Feedback{
		Signature:          testSignature,
		SuggestedDiseaseID: "psp",
		Agreed:             true,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save feedback")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Save_InvalidSkipsQuery(t *testing.T) {
	store, mock := newMockStore(t)

	err := store.Save(context.Background(), &Feedback{Signature: testSignature})

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM diagnosis_feedback WHERE signature").
		WithArgs(testSignature, "mca_stroke").
		WillReturnRows(sqlmock.NewRows(feedbackColumns).
			AddRow(int64(3), testSignature, `["motor_arm_left","facial_weakness_left"]`, "mca_stroke", "lacunar_stroke", false, "Pure motor", now, now))

	fb, err := store.Get(context.Background(), testSignature, "mca_stroke")

	require.NoError(t, err)
	require.NotNil(t, fb)
	assert.Equal(t, int64(3), fb.ID)
	assert.Equal(t, []string{"motor_arm_left", "facial_weakness_left"}, fb.FindingIDs)
	assert.Equal(t, "lacunar_stroke", fb.ConfirmedDiseaseID)
	assert.False(t, fb.Agreed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM diagnosis_feedback WHERE signature").
		WithArgs("missing", "psp").
		WillReturnRows(sqlmock.NewRows(feedbackColumns))

	fb, err := store.Get(context.Background(), "missing", "psp")

	assert.NoError(t, err)
	assert.Nil(t, fb)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM diagnosis_feedback ORDER BY created_at DESC").
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows(feedbackColumns).
			AddRow(int64(2), "bbb", `[]`, "psp", "", true, "", now, now).
			AddRow(int64(1), "aaa", `["fatigable_weakness"]`, "myasthenia_gravis", "", true, "", now, now))

	list, err := store.List(context.Background(), 10, 0)

	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(2), list[0].ID)
	assert.Empty(t, list[0].FindingIDs)
	assert.Equal(t, "myasthenia_gravis", list[1].SuggestedDiseaseID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountAndDelete(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(4)))
	mock.ExpectExec("DELETE FROM diagnosis_feedback").
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	require.NoError(t, store.Delete(context.Background(), 4))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ImportJSON_SkipsExisting(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM diagnosis_feedback WHERE signature").
		WithArgs("aaa", "psp").
		WillReturnRows(sqlmock.NewRows(feedbackColumns).
			AddRow(int64(1), "aaa", `[]`, "psp", "", true, "", now, now))
	mock.ExpectQuery("SELECT (.+) FROM diagnosis_feedback WHERE signature").
		WithArgs("bbb", "psp").
		WillReturnRows(sqlmock.NewRows(feedbackColumns))
	mock.ExpectQuery("INSERT INTO diagnosis_feedback").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(2), now))

	data := `{"version":"1.0","count":2,"feedback":[
		{"signature":"aaa","suggested_disease_id":"psp","agreed":true},
		{"signature":"bbb","suggested_disease_id":"psp","agreed":true}
	]}`
	imported, skipped, err := store.ImportJSON(context.Background(), bytes.NewReader([]byte(data)))

	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Equal(t, 1, skipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}
