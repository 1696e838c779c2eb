package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/meertime/dataportal/internal/db/models"
)

var tokenCols = []string{"id", "user_id", "name", "token_hash", "token_prefix", "expires_at", "last_used_at", "created_at"}

func TestAPITokenCreate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAPITokenRepository(db)
	mock.ExpectExec("INSERT INTO api_tokens").WillReturnResult(sqlmock.NewResult(0, 1))

	tok := &models.APIToken{UserID: 5, Name: "ci", TokenHash: "$2a$...", TokenPrefix: "mtp_abcd"}
	if err := repo.Create(context.Background(), tok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.ID == "" || tok.CreatedAt.IsZero() {
		t.Errorf("token = %+v, want ID and CreatedAt set", tok)
	}
}

func TestAPITokenListByPrefix(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAPITokenRepository(db)
	mock.ExpectQuery("SELECT.*FROM api_tokens.*WHERE token_prefix").
		WithArgs("mtp_abcd").
		WillReturnRows(sqlmock.NewRows(tokenCols).
			AddRow("0b7e5b4c-0000-4000-8000-000000000001", int64(5), "ci", "hash", "mtp_abcd", nil, nil, time.Now()))

	tokens, err := repo.ListByPrefix(context.Background(), "mtp_abcd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tokens) != 1 || tokens[0].UserID != 5 || tokens[0].ExpiresAt != nil {
		t.Errorf("tokens = %+v", tokens)
	}
}

func TestAPITokenDelete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAPITokenRepository(db)
	mock.ExpectExec("DELETE FROM api_tokens").
		WithArgs("tok", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Delete(context.Background(), 5, "tok")
	if err != nil || ok {
		t.Errorf("Delete = (%v, %v), want (false, nil)", ok, err)
	}
}
