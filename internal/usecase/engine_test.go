package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Conte777/TeleVault/internal/domain"
	"github.com/Conte777/TeleVault/internal/infrastructure/metrics"
)

type stubAuth struct {
	state      domain.AuthState
	beginCalls []string
}

func (s *stubAuth) State(userID int64) domain.AuthState { return s.state }
func (s *stubAuth) BeginLogin(ctx context.Context, userID int64, phone string) (domain.AuthState, error) {
	s.beginCalls = append(s.beginCalls, phone)
	return domain.AuthStateCodeSent, nil
}
func (s *stubAuth) SubmitCode(ctx context.Context, userID int64, code string) (domain.AuthState, error) {
	return domain.AuthStateConnected, nil
}
func (s *stubAuth) SubmitPassword(ctx context.Context, userID int64, password string) (domain.AuthState, error) {
	return domain.AuthStateConnected, nil
}
func (s *stubAuth) CancelLogin(userID int64) error                       { return nil }
func (s *stubAuth) Logout(ctx context.Context, userID int64, accountID string) error { return nil }
func (s *stubAuth) LogoutAll(ctx context.Context, userID int64) error    { return nil }
func (s *stubAuth) RestoreAccounts(ctx context.Context, userID int64) (int, error) {
	return 0, nil
}

type stubRegistry struct {
	accounts  []string
	primary   string
	switched  []string
	switchErr error
}

func (s *stubRegistry) Register(ctx context.Context, userID int64, accountID string, handle domain.Transport) error {
	return nil
}
func (s *stubRegistry) Get(userID int64, accountID string) (domain.Transport, error) {
	return nil, domain.ErrUnknownAccount
}
func (s *stubRegistry) GetActive(userID int64) (string, domain.Transport, error) {
	if s.primary == "" {
		return "", nil, domain.ErrNoActiveAccounts
	}
	return s.primary, nil, nil
}
func (s *stubRegistry) Switch(userID int64, accountID string) error {
	if s.switchErr != nil {
		return s.switchErr
	}
	s.switched = append(s.switched, accountID)
	s.primary = accountID
	return nil
}
func (s *stubRegistry) Deregister(ctx context.Context, userID int64, accountID string) error {
	return nil
}
func (s *stubRegistry) DeregisterAll(ctx context.Context, userID int64) error { return nil }
func (s *stubRegistry) ListAccounts(userID int64) []string                    { return s.accounts }
func (s *stubRegistry) Shutdown(ctx context.Context) int                      { return 0 }

type stubOrchestrator struct {
	submitted []domain.TransferSpec
	cancelled []string
	submitErr error
}

func (s *stubOrchestrator) Submit(spec domain.TransferSpec) (string, error) {
	if s.submitErr != nil {
		return "", s.submitErr
	}
	s.submitted = append(s.submitted, spec)
	return "task-1", nil
}
func (s *stubOrchestrator) Cancel(taskID string) error {
	s.cancelled = append(s.cancelled, taskID)
	return nil
}
func (s *stubOrchestrator) Task(taskID string) (domain.TransferTask, error) {
	return domain.TransferTask{TaskID: taskID}, nil
}
func (s *stubOrchestrator) SubscribeProgress(taskID string) (<-chan domain.ProgressEvent, error) {
	ch := make(chan domain.ProgressEvent)
	close(ch)
	return ch, nil
}
func (s *stubOrchestrator) Shutdown(ctx context.Context) {}

type stubAccounts struct {
	records    []domain.UserAccount
	listErr    error
	primarySet []string
	primaryErr error
	touched    []string
}

func (s *stubAccounts) Upsert(ctx context.Context, account *domain.UserAccount) error { return nil }
func (s *stubAccounts) ListForUser(ctx context.Context, userID int64) ([]domain.UserAccount, error) {
	return s.records, s.listErr
}
func (s *stubAccounts) SetPrimary(ctx context.Context, userID int64, accountID string) error {
	if s.primaryErr != nil {
		return s.primaryErr
	}
	s.primarySet = append(s.primarySet, accountID)
	return nil
}
func (s *stubAccounts) Touch(ctx context.Context, userID int64, accountID string, at time.Time) error {
	s.touched = append(s.touched, accountID)
	return nil
}
func (s *stubAccounts) Delete(ctx context.Context, userID int64, accountID string) error { return nil }
func (s *stubAccounts) DeleteAll(ctx context.Context, userID int64) error                { return nil }

func newEngine(auth *stubAuth, reg *stubRegistry, orch *stubOrchestrator, accounts domain.AccountRepository) *Engine {
	return NewEngine(auth, reg, orch, accounts, zerolog.Nop(), metrics.GetDefaultMetrics())
}

func TestSwitchAccountPersistsPrimary(t *testing.T) {
	reg := &stubRegistry{accounts: []string{"+15551230001", "+15551230002"}}
	accounts := &stubAccounts{}
	engine := newEngine(&stubAuth{}, reg, &stubOrchestrator{}, accounts)

	if err := engine.SwitchAccount(context.Background(), 7, "+15551230002"); err != nil {
		t.Fatalf("SwitchAccount: %v", err)
	}

	if len(reg.switched) != 1 || reg.switched[0] != "+15551230002" {
		t.Errorf("registry switch calls = %v", reg.switched)
	}
	if len(accounts.primarySet) != 1 || accounts.primarySet[0] != "+15551230002" {
		t.Errorf("persisted primary = %v", accounts.primarySet)
	}
}

func TestSwitchAccountUnknownAccount(t *testing.T) {
	reg := &stubRegistry{switchErr: domain.ErrUnknownAccount}
	accounts := &stubAccounts{}
	engine := newEngine(&stubAuth{}, reg, &stubOrchestrator{}, accounts)

	err := engine.SwitchAccount(context.Background(), 7, "+15559990000")
	if !errors.Is(err, domain.ErrUnknownAccount) {
		t.Fatalf("expected ErrUnknownAccount, got %v", err)
	}
	if len(accounts.primarySet) != 0 {
		t.Errorf("primary should not be persisted on failed switch")
	}
}

func TestSwitchAccountSurvivesPersistFailure(t *testing.T) {
	reg := &stubRegistry{}
	accounts := &stubAccounts{primaryErr: errors.New("db down")}
	engine := newEngine(&stubAuth{}, reg, &stubOrchestrator{}, accounts)

	if err := engine.SwitchAccount(context.Background(), 7, "+15551230001"); err != nil {
		t.Fatalf("in-memory switch should survive persistence failure, got %v", err)
	}
}

func TestListAccountsWithoutRepository(t *testing.T) {
	reg := &stubRegistry{
		accounts: []string{"+15551230001", "+15551230002"},
		primary:  "+15551230002",
	}
	engine := newEngine(&stubAuth{}, reg, &stubOrchestrator{}, nil)

	accounts, err := engine.ListAccounts(context.Background(), 7)
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}

	if len(accounts) != 2 {
		t.Fatalf("accounts = %d, want 2", len(accounts))
	}
	for _, acc := range accounts {
		if !acc.IsActive {
			t.Errorf("account %s should be active", acc.AccountID)
		}
		if acc.IsPrimary != (acc.AccountID == "+15551230002") {
			t.Errorf("account %s primary flag wrong", acc.AccountID)
		}
	}
}

func TestListAccountsMergesPersistedAndLive(t *testing.T) {
	reg := &stubRegistry{accounts: []string{"+15551230001", "+15551230003"}}
	accounts := &stubAccounts{records: []domain.UserAccount{
		{UserID: 7, AccountID: "+15551230001", PhoneNumber: "+15551230001", IsPrimary: true},
		{UserID: 7, AccountID: "+15551230002", PhoneNumber: "+15551230002"},
	}}
	engine := newEngine(&stubAuth{}, reg, &stubOrchestrator{}, accounts)

	list, err := engine.ListAccounts(context.Background(), 7)
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("accounts = %d, want 3", len(list))
	}

	byID := make(map[string]domain.UserAccount, len(list))
	for _, acc := range list {
		byID[acc.AccountID] = acc
	}
	if !byID["+15551230001"].IsActive {
		t.Errorf("connected persisted account should be active")
	}
	if byID["+15551230002"].IsActive {
		t.Errorf("disconnected persisted account should be inactive")
	}
	if !byID["+15551230003"].IsActive {
		t.Errorf("registry-only account should be active")
	}
}

func TestListAccountsRepositoryFailure(t *testing.T) {
	accounts := &stubAccounts{listErr: errors.New("db down")}
	engine := newEngine(&stubAuth{}, &stubRegistry{}, &stubOrchestrator{}, accounts)

	if _, err := engine.ListAccounts(context.Background(), 7); err == nil {
		t.Fatal("expected error when repository fails")
	}
}

func TestSubmitTransferTouchesAccount(t *testing.T) {
	orch := &stubOrchestrator{}
	accounts := &stubAccounts{}
	engine := newEngine(&stubAuth{}, &stubRegistry{}, orch, accounts)

	spec := domain.TransferSpec{
		UserID:    7,
		AccountID: "+15551230001",
		Direction: domain.DirectionDownload,
		Source:    domain.MediaRef{Peer: "@files", MessageID: 10},
	}
	taskID, err := engine.SubmitTransfer(context.Background(), spec)
	if err != nil {
		t.Fatalf("SubmitTransfer: %v", err)
	}
	if taskID != "task-1" {
		t.Errorf("taskID = %s", taskID)
	}
	if len(accounts.touched) != 1 || accounts.touched[0] != "+15551230001" {
		t.Errorf("touched = %v", accounts.touched)
	}
}

func TestSubmitTransferPropagatesError(t *testing.T) {
	orch := &stubOrchestrator{submitErr: errors.New("queue closed")}
	accounts := &stubAccounts{}
	engine := newEngine(&stubAuth{}, &stubRegistry{}, orch, accounts)

	if _, err := engine.SubmitTransfer(context.Background(), domain.TransferSpec{}); err == nil {
		t.Fatal("expected submit error")
	}
	if len(accounts.touched) != 0 {
		t.Errorf("account should not be touched on failed submit")
	}
}

func TestLoginDelegation(t *testing.T) {
	authStub := &stubAuth{state: domain.AuthStateDisconnected}
	engine := newEngine(authStub, &stubRegistry{}, &stubOrchestrator{}, nil)

	state, err := engine.BeginLogin(context.Background(), 7, "+15551234567")
	if err != nil {
		t.Fatalf("BeginLogin: %v", err)
	}
	if state != domain.AuthStateCodeSent {
		t.Errorf("state = %s, want %s", state, domain.AuthStateCodeSent)
	}
	if len(authStub.beginCalls) != 1 {
		t.Errorf("begin calls = %v", authStub.beginCalls)
	}
	if engine.AuthState(7) != domain.AuthStateDisconnected {
		t.Errorf("AuthState should delegate to the login manager")
	}
}
