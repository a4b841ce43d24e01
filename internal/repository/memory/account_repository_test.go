package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Conte777/TeleVault/internal/domain"
)

func account(userID int64, accountID string, createdAt time.Time) *domain.UserAccount {
	return &domain.UserAccount{
		UserID:      userID,
		AccountID:   accountID,
		PhoneNumber: accountID,
		IsActive:    true,
		CreatedAt:   createdAt,
	}
}

func TestUpsertAndList(t *testing.T) {
	repo := NewAccountRepository()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := repo.Upsert(ctx, account(7, "+15551230002", base.Add(time.Hour))); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := repo.Upsert(ctx, account(7, "+15551230001", base)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := repo.Upsert(ctx, account(9, "+15559990001", base)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	accounts, err := repo.ListForUser(ctx, 7)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("accounts = %d, want 2", len(accounts))
	}
	if accounts[0].AccountID != "+15551230001" || accounts[1].AccountID != "+15551230002" {
		t.Errorf("accounts not ordered by creation time: %v, %v", accounts[0].AccountID, accounts[1].AccountID)
	}
}

func TestUpsertRefreshesExisting(t *testing.T) {
	repo := NewAccountRepository()
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := repo.Upsert(ctx, account(7, "+15551230001", created)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	updated := account(7, "+15551230001", created.Add(time.Hour))
	updated.IsActive = false
	updated.LastUsed = created.Add(2 * time.Hour)
	if err := repo.Upsert(ctx, updated); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	accounts, _ := repo.ListForUser(ctx, 7)
	if len(accounts) != 1 {
		t.Fatalf("accounts = %d, want 1", len(accounts))
	}
	if accounts[0].IsActive {
		t.Errorf("IsActive should have been refreshed")
	}
	if !accounts[0].CreatedAt.Equal(created) {
		t.Errorf("CreatedAt should not change on upsert")
	}
	if !accounts[0].LastUsed.Equal(created.Add(2 * time.Hour)) {
		t.Errorf("LastUsed = %v", accounts[0].LastUsed)
	}
}

func TestSetPrimaryClearsOthers(t *testing.T) {
	repo := NewAccountRepository()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := account(7, "+15551230001", base)
	first.IsPrimary = true
	_ = repo.Upsert(ctx, first)
	_ = repo.Upsert(ctx, account(7, "+15551230002", base.Add(time.Minute)))

	if err := repo.SetPrimary(ctx, 7, "+15551230002"); err != nil {
		t.Fatalf("SetPrimary: %v", err)
	}

	accounts, _ := repo.ListForUser(ctx, 7)
	for _, acc := range accounts {
		if acc.IsPrimary != (acc.AccountID == "+15551230002") {
			t.Errorf("account %s primary flag wrong", acc.AccountID)
		}
	}
}

func TestSetPrimaryUnknownAccount(t *testing.T) {
	repo := NewAccountRepository()

	err := repo.SetPrimary(context.Background(), 7, "+15559990000")
	if !errors.Is(err, domain.ErrUnknownAccount) {
		t.Fatalf("expected ErrUnknownAccount, got %v", err)
	}
}

func TestTouch(t *testing.T) {
	repo := NewAccountRepository()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_ = repo.Upsert(ctx, account(7, "+15551230001", base))

	at := base.Add(3 * time.Hour)
	if err := repo.Touch(ctx, 7, "+15551230001", at); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	accounts, _ := repo.ListForUser(ctx, 7)
	if !accounts[0].LastUsed.Equal(at) {
		t.Errorf("LastUsed = %v, want %v", accounts[0].LastUsed, at)
	}
}

func TestDeleteAndDeleteAll(t *testing.T) {
	repo := NewAccountRepository()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_ = repo.Upsert(ctx, account(7, "+15551230001", base))
	_ = repo.Upsert(ctx, account(7, "+15551230002", base))
	_ = repo.Upsert(ctx, account(9, "+15559990001", base))

	if err := repo.Delete(ctx, 7, "+15551230001"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	accounts, _ := repo.ListForUser(ctx, 7)
	if len(accounts) != 1 {
		t.Fatalf("accounts = %d, want 1 after delete", len(accounts))
	}

	if err := repo.DeleteAll(ctx, 7); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	accounts, _ = repo.ListForUser(ctx, 7)
	if len(accounts) != 0 {
		t.Errorf("accounts = %d, want 0 after delete all", len(accounts))
	}

	other, _ := repo.ListForUser(ctx, 9)
	if len(other) != 1 {
		t.Errorf("other user's accounts should be untouched")
	}
}
