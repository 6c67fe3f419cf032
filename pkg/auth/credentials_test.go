package auth

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fedicaption/pkg/config"

	"github.com/zalando/go-keyring"
)

func testAccount(name string) *Account {
	return &Account{
		Name:        name,
		Platform:    "mastodon",
		InstanceURL: "https://mastodon.social",
		AccessToken: "token_" + name + "_0123456789",
	}
}

func TestCredentialManager(t *testing.T) {
	manager, store := NewMemoryManager()

	account := testAccount("alice@mastodon.social")
	if err := manager.Store(account); err != nil {
		t.Fatalf("Failed to store account: %v", err)
	}
	if account.LastModified.IsZero() {
		t.Error("Store should stamp LastModified")
	}

	retrieved, err := manager.Retrieve("alice@mastodon.social")
	if err != nil {
		t.Fatalf("Failed to retrieve account: %v", err)
	}
	if retrieved.AccessToken != account.AccessToken {
		t.Errorf("AccessToken mismatch: got %s, want %s", retrieved.AccessToken, account.AccessToken)
	}

	accounts, err := manager.List()
	if err != nil || len(accounts) != 1 {
		t.Fatalf("List() = %d accounts, %v; want 1", len(accounts), err)
	}

	if err := manager.Delete("alice@mastodon.social"); err != nil {
		t.Errorf("Failed to delete account: %v", err)
	}
	if _, err := manager.Retrieve("alice@mastodon.social"); !errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("Retrieve after delete = %v, want ErrCredentialsNotFound", err)
	}
	if store.Count() != 0 {
		t.Errorf("Expected 0 accounts after deletion, got %d", store.Count())
	}
}

func TestManagerValidation(t *testing.T) {
	manager, _ := NewMemoryManager()

	tests := []struct {
		name    string
		account *Account
	}{
		{"nil", nil},
		{"missing name", &Account{InstanceURL: "https://a", AccessToken: "t"}},
		{"missing instance", &Account{Name: "a", AccessToken: "t"}},
		{"missing token", &Account{Name: "a", InstanceURL: "https://a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := manager.Store(tt.account); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestManagerFallsBackToNextStore(t *testing.T) {
	broken := NewMemoryStore()
	broken.StoreError = errors.New("keyring locked")
	working := NewMemoryStore()

	manager := NewManagerWithStores(broken, working)
	if err := manager.Store(testAccount("bob@pixelfed.social")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if !working.Exists("bob@pixelfed.social") {
		t.Error("account should have landed in the second store")
	}
}

func TestManagerListPrefersNewest(t *testing.T) {
	older, newer := NewMemoryStore(), NewMemoryStore()

	a := testAccount("carol@example.social")
	a.AccessToken = "old-token"
	a.LastModified = time.Now().Add(-time.Hour)
	_ = older.Store(a)

	b := testAccount("carol@example.social")
	b.AccessToken = "new-token"
	b.LastModified = time.Now()
	_ = newer.Store(b)

	manager := NewManagerWithStores(older, newer)
	accounts, _ := manager.List()
	if len(accounts) != 1 || accounts[0].AccessToken != "new-token" {
		t.Errorf("List() = %+v, want the newest copy only", accounts)
	}

	def, err := manager.RetrieveDefault()
	if err != nil || def.AccessToken != "new-token" {
		t.Errorf("RetrieveDefault() = %+v, %v", def, err)
	}
}

func TestEncryptedFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds", "credentials.enc")
	store, err := NewEncryptedFileStoreWithPassphrase(path, "correct horse")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.Store(testAccount("a@x")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := store.Store(testAccount("b@x")); err != nil {
		t.Fatalf("Store: %v", err)
	}

	content, _ := os.ReadFile(path)
	if strings.Contains(string(content), "token_a@x") {
		t.Error("file must not contain plaintext tokens")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("file mode = %v, want 0600", info.Mode().Perm())
	}

	got, err := store.Retrieve("b@x")
	if err != nil || got.AccessToken != "token_b@x_0123456789" {
		t.Errorf("Retrieve = %+v, %v", got, err)
	}

	other, _ := NewEncryptedFileStoreWithPassphrase(path, "wrong")
	if _, err := other.Retrieve("a@x"); err == nil {
		t.Error("a wrong passphrase must not decrypt the file")
	}

	_ = store.Delete("a@x")
	_ = store.Delete("b@x")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file should be removed with the last account")
	}
	if err := store.Delete("b@x"); !errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("Delete missing = %v", err)
	}
}

func TestEncryptedFileStoreGeneratesPassphrase(t *testing.T) {
	t.Setenv(EnvPassphrase, "")
	dir := t.TempDir()

	store, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	if err != nil {
		t.Fatalf("NewEncryptedFileStore: %v", err)
	}
	if err := store.Store(testAccount("d@x")); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, ".passphrase")); err != nil {
		t.Errorf("passphrase file missing: %v", err)
	}

	reopened, _ := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	if !reopened.Exists("d@x") {
		t.Error("reopened store should read the same file")
	}
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv(EnvInstanceURL, "https://pixelfed.social/")
	t.Setenv(EnvAccessToken, "env-token")
	t.Setenv(EnvPlatform, "pixelfed")

	store := NewEnvironmentStore()
	account, err := store.Retrieve("")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if account.Name != "env@pixelfed.social" || account.Platform != "pixelfed" {
		t.Errorf("unexpected account %+v", account)
	}
	if !store.Exists("env@pixelfed.social") || store.Exists("other") {
		t.Error("Exists should only match the derived name")
	}
	if err := store.Store(account); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Store = %v, want ErrStoreUnavailable", err)
	}

	manager, _ := NewMemoryManager()
	manager.stores = append(manager.stores, store)
	def, err := manager.RetrieveDefault()
	if err != nil || def.AccessToken != "env-token" {
		t.Errorf("RetrieveDefault should prefer the environment, got %+v, %v", def, err)
	}
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore()
	if err != nil {
		t.Fatalf("NewKeyringStore: %v", err)
	}

	_ = store.Store(testAccount("z@x"))
	_ = store.Store(testAccount("y@x"))

	accounts, _ := store.List()
	if len(accounts) != 2 || accounts[0].Name != "y@x" {
		t.Fatalf("List() = %+v", accounts)
	}

	if err := store.Delete("y@x"); err != nil {
		t.Errorf("Delete: %v", err)
	}
	if store.Exists("y@x") {
		t.Error("deleted account still exists")
	}
	if err := store.Delete("y@x"); !errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("Delete missing = %v", err)
	}
	accounts, _ = store.List()
	if len(accounts) != 1 {
		t.Errorf("index not updated, List() = %d accounts", len(accounts))
	}
}

func TestSanitizeAccount(t *testing.T) {
	account := testAccount("e@x")
	account.ClientSecret = "supersecretvalue"

	sanitized := SanitizeAccount(account)
	if sanitized.AccessToken == account.AccessToken || sanitized.ClientSecret == account.ClientSecret {
		t.Error("secrets should be masked")
	}
	if sanitized.Name != account.Name || sanitized.InstanceURL != account.InstanceURL {
		t.Error("identifying fields should not be masked")
	}
	if SanitizeAccount(nil) != nil {
		t.Error("nil in, nil out")
	}
}

func TestApplyTo(t *testing.T) {
	pc := config.PlatformConfig{InstanceURL: "https://override.example"}
	testAccount("f@x").ApplyTo(&pc)

	if pc.InstanceURL != "https://override.example" {
		t.Error("explicit instance URL should win")
	}
	if pc.Type != "mastodon" || pc.AccessToken != "token_f@x_0123456789" {
		t.Errorf("unexpected platform config %+v", pc)
	}
}

func TestAccountName(t *testing.T) {
	if got := AccountName("@alice", "https://mastodon.social/"); got != "alice@mastodon.social" {
		t.Errorf("AccountName = %s", got)
	}
	if got := AccountName("", "https://mastodon.social"); got != "mastodon.social" {
		t.Errorf("AccountName = %s", got)
	}
}

func TestShowTokenGuide(t *testing.T) {
	var buf bytes.Buffer
	ShowTokenGuide(&buf, "mastodon", "https://mastodon.social/")
	if !strings.Contains(buf.String(), "https://mastodon.social/settings/applications") {
		t.Errorf("guide should link the settings page:\n%s", buf.String())
	}

	buf.Reset()
	ShowTokenGuide(&buf, "pleroma", "https://pleroma.example")
	if !strings.Contains(buf.String(), "/api/v1/apps") {
		t.Error("pleroma guide should describe app registration")
	}
}
