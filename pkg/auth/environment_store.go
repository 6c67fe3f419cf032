package auth

import (
	"os"
	"time"
)

// Environment variables read by EnvironmentStore.
const (
	EnvInstanceURL = "FEDICAPTION_INSTANCE_URL"
	EnvAccessToken = "FEDICAPTION_ACCESS_TOKEN"
	EnvPlatform    = "FEDICAPTION_PLATFORM"
)

// EnvironmentStore is a read-only CredentialStore over environment
// variables, for CI and containers.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(*Account) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment account under name, or under its
// derived name when name is empty.
func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	instance := os.Getenv(EnvInstanceURL)
	token := os.Getenv(EnvAccessToken)
	if instance == "" || token == "" {
		return nil, ErrCredentialsNotFound
	}

	envName := AccountName("env", instance)
	if name != "" && name != envName {
		return nil, ErrCredentialsNotFound
	}

	return &Account{
		Name:         envName,
		Platform:     os.Getenv(EnvPlatform),
		InstanceURL:  instance,
		AccessToken:  token,
		LastModified: time.Now(),
	}, nil
}

// List returns a single account if environment variables are set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(name string) bool {
	_, err := e.Retrieve(name)
	return err == nil
}
