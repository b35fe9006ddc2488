package sessions

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/haasonsaas/echodesk/pkg/models"
)

// setupMockDB creates a new mock database for testing.
func setupMockDB(t *testing.T, d Dialect) (*sql.DB, sqlmock.Sqlmock, *SQLStore) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock, NewSQLStoreFromDB(db, d)
}

func TestSQLStoreAppend(t *testing.T) {
	useContent := `[{"type":"tool_use","id":"tu_1","name":"list_chats","input":{}}]`

	tests := []struct {
		name      string
		msg       models.Message
		setupMock func(sqlmock.Sqlmock)
		wantErr   error
	}{
		{
			name: "first message",
			msg:  models.NewTextMessage(models.RoleUser, "hello"),
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery("SELECT role, content, created_at FROM conversation_messages").
					WithArgs("c1").
					WillReturnRows(sqlmock.NewRows([]string{"role", "content", "created_at"}))
				mock.ExpectExec("INSERT INTO conversation_messages").
					WithArgs("c1", 1, "user", sqlmock.AnyArg(), sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "linked tool result",
			msg: models.Message{
				Role:    models.RoleUser,
				Content: []models.ContentBlock{models.ToolResultBlock("tu_1", "ok", false)},
			},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery("SELECT role, content, created_at FROM conversation_messages").
					WithArgs("c1").
					WillReturnRows(sqlmock.NewRows([]string{"role", "content", "created_at"}).
						AddRow("assistant", useContent, time.Now()))
				mock.ExpectExec("INSERT INTO conversation_messages").
					WithArgs("c1", 2, "user", sqlmock.AnyArg(), sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "orphan tool result",
			msg: models.Message{
				Role:    models.RoleUser,
				Content: []models.ContentBlock{models.ToolResultBlock("tu_9", "ok", false)},
			},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery("SELECT role, content, created_at FROM conversation_messages").
					WithArgs("c1").
					WillReturnRows(sqlmock.NewRows([]string{"role", "content", "created_at"}))
				mock.ExpectRollback()
			},
			wantErr: ErrOrphanToolResult,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mock, store := setupMockDB(t, DialectSQLite)
			tt.setupMock(mock)

			err := store.Append(context.Background(), "c1", tt.msg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Append() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestSQLStoreHistory(t *testing.T) {
	_, mock, store := setupMockDB(t, DialectSQLite)
	now := time.Now()
	mock.ExpectQuery("SELECT role, content, created_at FROM conversation_messages").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"role", "content", "created_at"}).
			AddRow("user", `[{"type":"text","text":"hi"}]`, now).
			AddRow("assistant", `[{"type":"text","text":"hello"}]`, now))

	history, err := store.History(context.Background(), "c1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(history))
	}
	if history[0].Role != models.RoleUser || history[0].Text() != "hi" {
		t.Errorf("history[0] = %+v", history[0])
	}
	if history[1].Role != models.RoleAssistant || history[1].Text() != "hello" {
		t.Errorf("history[1] = %+v", history[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSQLStoreHistoryQueryError(t *testing.T) {
	_, mock, store := setupMockDB(t, DialectSQLite)
	mock.ExpectQuery("SELECT role, content, created_at").WillReturnError(errors.New("boom"))

	if _, err := store.History(context.Background(), "c1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSQLStoreClearAndList(t *testing.T) {
	_, mock, store := setupMockDB(t, DialectPostgres)
	mock.ExpectExec(`DELETE FROM conversation_messages WHERE conversation_id = \$1`).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectQuery("SELECT DISTINCT conversation_id").
		WillReturnRows(sqlmock.NewRows([]string{"conversation_id"}).AddRow("a").AddRow("b"))

	ctx := context.Background()
	if err := store.Clear(ctx, "c1"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	ids, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" {
		t.Fatalf("List() = %v", ids)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestBindPlaceholders(t *testing.T) {
	tests := []struct {
		dialect Dialect
		want    string
	}{
		{DialectSQLite, "a = ? AND b = ?"},
		{DialectPostgres, "a = $1 AND b = $2"},
	}
	for _, tt := range tests {
		store := &SQLStore{dialect: tt.dialect}
		if got := store.bind("a = ? AND b = ?"); got != tt.want {
			t.Errorf("bind() = %q, want %q", got, tt.want)
		}
	}
}

func TestDialectFor(t *testing.T) {
	for _, driver := range []string{"sqlite", "sqlite3", "postgres"} {
		if _, err := DialectFor(driver); err != nil {
			t.Errorf("DialectFor(%q) error = %v", driver, err)
		}
	}
	if _, err := DialectFor("mysql"); err == nil {
		t.Error("DialectFor(mysql) expected error")
	}
}
