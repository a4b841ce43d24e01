package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Conte777/TeleVault/internal/domain"
)

// mockTransport is a minimal connected handle for registry tests
type mockTransport struct {
	mu        sync.Mutex
	accountID string
	connected bool
}

func newMockTransport(accountID string) *mockTransport {
	return &mockTransport{accountID: accountID, connected: true}
}

func (m *mockTransport) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

func (m *mockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockTransport) AccountID() string   { return m.accountID }
func (m *mockTransport) PhoneNumber() string { return m.accountID }

func (m *mockTransport) SendCode(ctx context.Context) (string, error) { return "", nil }
func (m *mockTransport) SignIn(ctx context.Context, code, codeHash string) error {
	return nil
}
func (m *mockTransport) CheckPassword(ctx context.Context, password string) error { return nil }
func (m *mockTransport) ExportSession(ctx context.Context) (string, error)        { return "", nil }
func (m *mockTransport) ResolveMedia(ctx context.Context, ref domain.MediaRef) (domain.MediaInfo, error) {
	return domain.MediaInfo{}, nil
}
func (m *mockTransport) DownloadChunk(ctx context.Context, ref domain.MediaRef, offset int64, limit int) ([]byte, error) {
	return nil, nil
}
func (m *mockTransport) BeginUpload(ctx context.Context, size int64) (int64, error) { return 0, nil }
func (m *mockTransport) UploadPart(ctx context.Context, uploadID int64, part int, data []byte) error {
	return nil
}
func (m *mockTransport) FinishUpload(ctx context.Context, uploadID int64, parts int, peer, filename, caption string, size int64) error {
	return nil
}
func (m *mockTransport) SendChatAction(ctx context.Context, peer string, progress int) error {
	return nil
}

func newTestRegistry() *Registry {
	return New(zerolog.Nop())
}

func TestRegisterAndGet(t *testing.T) {
	r := newTestRegistry()
	handle := newMockTransport("+1234567890")

	if err := r.Register(context.Background(), 1, "+1234567890", handle); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, err := r.Get(1, "+1234567890")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != handle {
		t.Error("Get returned a different handle")
	}
}

func TestGetUnknownAccount(t *testing.T) {
	r := newTestRegistry()

	if _, err := r.Get(1, "+1234567890"); err != domain.ErrUnknownAccount {
		t.Errorf("expected ErrUnknownAccount, got %v", err)
	}

	r.Register(context.Background(), 1, "+1234567890", newMockTransport("+1234567890"))
	if _, err := r.Get(1, "+9999999999"); err != domain.ErrUnknownAccount {
		t.Errorf("expected ErrUnknownAccount for unregistered account, got %v", err)
	}
}

func TestRegisterReplacesAndDisconnectsOldHandle(t *testing.T) {
	r := newTestRegistry()
	old := newMockTransport("+1234567890")
	replacement := newMockTransport("+1234567890")

	r.Register(context.Background(), 1, "+1234567890", old)
	r.Register(context.Background(), 1, "+1234567890", replacement)

	if old.IsConnected() {
		t.Error("replaced handle was not disconnected")
	}

	got, err := r.Get(1, "+1234567890")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != replacement {
		t.Error("registry did not keep the replacement handle")
	}
	if ids := r.ListAccounts(1); len(ids) != 1 {
		t.Errorf("expected 1 account after re-register, got %d", len(ids))
	}
}

func TestGetActiveFallsBackToFirstRegistered(t *testing.T) {
	r := newTestRegistry()
	first := newMockTransport("+1111111111")

	r.Register(context.Background(), 1, "+1111111111", first)
	r.Register(context.Background(), 1, "+2222222222", newMockTransport("+2222222222"))

	accountID, handle, err := r.GetActive(1)
	if err != nil {
		t.Fatalf("GetActive failed: %v", err)
	}
	if accountID != "+1111111111" || handle != first {
		t.Errorf("expected first registered account, got %s", accountID)
	}
}

func TestSwitchChangesActiveAccount(t *testing.T) {
	r := newTestRegistry()
	second := newMockTransport("+2222222222")

	r.Register(context.Background(), 1, "+1111111111", newMockTransport("+1111111111"))
	r.Register(context.Background(), 1, "+2222222222", second)

	if err := r.Switch(1, "+2222222222"); err != nil {
		t.Fatalf("Switch failed: %v", err)
	}

	accountID, handle, err := r.GetActive(1)
	if err != nil {
		t.Fatalf("GetActive failed: %v", err)
	}
	if accountID != "+2222222222" || handle != second {
		t.Errorf("expected switched account, got %s", accountID)
	}
}

func TestSwitchUnknownAccount(t *testing.T) {
	r := newTestRegistry()
	r.Register(context.Background(), 1, "+1111111111", newMockTransport("+1111111111"))

	if err := r.Switch(1, "+9999999999"); err != domain.ErrUnknownAccount {
		t.Errorf("expected ErrUnknownAccount, got %v", err)
	}
	if err := r.Switch(2, "+1111111111"); err != domain.ErrUnknownAccount {
		t.Errorf("expected ErrUnknownAccount for unknown user, got %v", err)
	}
}

func TestGetActiveNoAccounts(t *testing.T) {
	r := newTestRegistry()

	if _, _, err := r.GetActive(1); err != domain.ErrNoActiveAccounts {
		t.Errorf("expected ErrNoActiveAccounts, got %v", err)
	}
}

func TestDeregister(t *testing.T) {
	r := newTestRegistry()
	handle := newMockTransport("+1234567890")
	r.Register(context.Background(), 1, "+1234567890", handle)

	if err := r.Deregister(context.Background(), 1, "+1234567890"); err != nil {
		t.Fatalf("Deregister failed: %v", err)
	}
	if handle.IsConnected() {
		t.Error("deregistered handle was not disconnected")
	}
	if _, err := r.Get(1, "+1234567890"); err != domain.ErrUnknownAccount {
		t.Errorf("expected ErrUnknownAccount after deregister, got %v", err)
	}

	// Deregistering again must not fail
	if err := r.Deregister(context.Background(), 1, "+1234567890"); err != nil {
		t.Errorf("repeated Deregister failed: %v", err)
	}
}

func TestDeregisterPrimaryResetsFallback(t *testing.T) {
	r := newTestRegistry()
	r.Register(context.Background(), 1, "+1111111111", newMockTransport("+1111111111"))
	r.Register(context.Background(), 1, "+2222222222", newMockTransport("+2222222222"))
	r.Switch(1, "+2222222222")

	r.Deregister(context.Background(), 1, "+2222222222")

	accountID, _, err := r.GetActive(1)
	if err != nil {
		t.Fatalf("GetActive failed: %v", err)
	}
	if accountID != "+1111111111" {
		t.Errorf("expected fallback to remaining account, got %s", accountID)
	}
}

func TestDeregisterAll(t *testing.T) {
	r := newTestRegistry()
	a := newMockTransport("+1111111111")
	b := newMockTransport("+2222222222")
	r.Register(context.Background(), 1, "+1111111111", a)
	r.Register(context.Background(), 1, "+2222222222", b)

	if err := r.DeregisterAll(context.Background(), 1); err != nil {
		t.Fatalf("DeregisterAll failed: %v", err)
	}
	if a.IsConnected() || b.IsConnected() {
		t.Error("handles were not disconnected")
	}
	if ids := r.ListAccounts(1); len(ids) != 0 {
		t.Errorf("expected no accounts, got %v", ids)
	}
}

func TestListAccountsOrder(t *testing.T) {
	r := newTestRegistry()
	r.Register(context.Background(), 1, "+1111111111", newMockTransport("+1111111111"))
	r.Register(context.Background(), 1, "+2222222222", newMockTransport("+2222222222"))
	r.Register(context.Background(), 1, "+3333333333", newMockTransport("+3333333333"))

	ids := r.ListAccounts(1)
	want := []string{"+1111111111", "+2222222222", "+3333333333"}
	if len(ids) != len(want) {
		t.Fatalf("expected %d accounts, got %d", len(want), len(ids))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], ids[i])
		}
	}
}

func TestUsersAreIsolated(t *testing.T) {
	r := newTestRegistry()
	r.Register(context.Background(), 1, "+1111111111", newMockTransport("+1111111111"))
	r.Register(context.Background(), 2, "+2222222222", newMockTransport("+2222222222"))

	if _, err := r.Get(1, "+2222222222"); err != domain.ErrUnknownAccount {
		t.Errorf("user 1 should not see user 2's account")
	}
	if ids := r.ListAccounts(2); len(ids) != 1 || ids[0] != "+2222222222" {
		t.Errorf("unexpected accounts for user 2: %v", ids)
	}
}

func TestShutdownDisconnectsEverything(t *testing.T) {
	r := newTestRegistry()
	handles := []*mockTransport{
		newMockTransport("+1111111111"),
		newMockTransport("+2222222222"),
		newMockTransport("+3333333333"),
	}
	r.Register(context.Background(), 1, "+1111111111", handles[0])
	r.Register(context.Background(), 1, "+2222222222", handles[1])
	r.Register(context.Background(), 2, "+3333333333", handles[2])

	closed := r.Shutdown(context.Background())
	if closed != 3 {
		t.Errorf("expected 3 handles closed, got %d", closed)
	}
	for _, h := range handles {
		if h.IsConnected() {
			t.Errorf("handle %s still connected after shutdown", h.AccountID())
		}
	}
	if _, _, err := r.GetActive(1); err != domain.ErrNoActiveAccounts {
		t.Errorf("expected empty registry after shutdown, got %v", err)
	}
}

func TestActiveCount(t *testing.T) {
	r := newTestRegistry()
	a := newMockTransport("+1111111111")
	b := newMockTransport("+2222222222")
	r.Register(context.Background(), 1, "+1111111111", a)
	r.Register(context.Background(), 2, "+2222222222", b)

	if got := r.ActiveCount(); got != 2 {
		t.Errorf("expected 2 active handles, got %d", got)
	}

	a.Disconnect(context.Background())
	if got := r.ActiveCount(); got != 1 {
		t.Errorf("expected 1 active handle, got %d", got)
	}
}

func TestConcurrentRegisterAndGet(t *testing.T) {
	r := newTestRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			account := "+1000000000"
			r.Register(context.Background(), userID, account, newMockTransport(account))
			r.Get(userID, account)
			r.ListAccounts(userID)
			r.GetActive(userID)
		}(int64(i % 4))
	}
	wg.Wait()

	for userID := int64(0); userID < 4; userID++ {
		if _, err := r.Get(userID, "+1000000000"); err != nil {
			t.Errorf("user %d lost its account: %v", userID, err)
		}
	}
}
