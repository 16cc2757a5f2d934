package audit

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*ArchiveStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewArchiveStoreFromDB(db), mock
}

func TestArchiveInsertsOnConflictDoNothing(t *testing.T) {
	store, mock := newMockStore(t)
	recordedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO archived_records`).
		WithArgs("sword:goal", "sword:goal:g1", []byte(`{"id":"g1"}`), recordedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Archive(context.Background(), "sword:goal", "sword:goal:g1", []byte(`{"id":"g1"}`), recordedAt)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestArchivePropagatesExecError(t *testing.T) {
	store, mock := newMockStore(t)
	recordedAt := time.Now()

	mock.ExpectExec(`INSERT INTO archived_records`).
		WillReturnError(errConnRefused)

	err := store.Archive(context.Background(), "sword:goal", "k", []byte("{}"), recordedAt)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestListArchivedScansRowsNewestFirst(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"kvs_key", "payload", "recorded_at", "archived_at"}).
		AddRow("sword:goal:g2", []byte(`{"id":"g2"}`), now.Add(-2*time.Hour), now.Add(-1*time.Hour)).
		AddRow("sword:goal:g1", []byte(`{"id":"g1"}`), now.Add(-3*time.Hour), now.Add(-2*time.Hour))

	mock.ExpectQuery(`SELECT kvs_key, payload, recorded_at, archived_at FROM archived_records`).
		WithArgs("sword:goal", 10).
		WillReturnRows(rows)

	got, err := store.ListArchived(context.Background(), "sword:goal", 10)
	if err != nil {
		t.Fatalf("ListArchived: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Key != "sword:goal:g2" {
		t.Fatalf("expected newest-first ordering, got %q first", got[0].Key)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

var errConnRefused = &mockDBError{"connection refused"}

type mockDBError struct{ msg string }

func (e *mockDBError) Error() string { return e.msg }
