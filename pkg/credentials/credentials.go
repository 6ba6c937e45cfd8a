// Package credentials stores generation provider API keys in
// credentials.toml next to config.toml. A stored key takes precedence over
// the provider's environment variable.
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/frames/pkg/dotdir"
)

const currentVersion = 0

// envVars maps providers that need a key to the variable their SDK reads.
var envVars = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
}

// ErrUnsupportedProvider is returned for providers that take no API key.
var ErrUnsupportedProvider = errors.New("provider does not use an API key")

// Credentials is the content of credentials.toml.
type Credentials struct {
	Version   int                           `toml:"version"`
	Providers map[string]ProviderCredential `toml:"providers"`
}

// ProviderCredential is one provider's stored key.
type ProviderCredential struct {
	APIKey   string    `toml:"api_key"`
	StoredAt time.Time `toml:"stored_at,omitzero"`
}

type Manager struct {
	targetPath string
}

// NewManager resolves the credentials file inside the frames directory.
// override behaves like the --config-dir flag.
func NewManager(override string) (*Manager, error) {
	path, err := dotdir.NewManager().Path(override, dotdir.CredentialsFile)
	if err != nil {
		return nil, err
	}
	return &Manager{targetPath: path}, nil
}

// GetTarget returns the path of credentials.toml.
func (m *Manager) GetTarget() string {
	return m.targetPath
}

// Load reads the credentials file. A missing file yields empty credentials.
func (m *Manager) Load() (*Credentials, error) {
	creds := &Credentials{Version: currentVersion}

	data, err := os.ReadFile(m.targetPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading credentials: %w", err)
	default:
		if err := toml.Unmarshal(data, creds); err != nil {
			return nil, fmt.Errorf("parsing credentials: %w", err)
		}
	}

	if creds.Providers == nil {
		creds.Providers = make(map[string]ProviderCredential)
	}
	return creds, nil
}

// Save writes creds readable only by the owner.
func (m *Manager) Save(creds *Credentials) error {
	if creds == nil {
		return errors.New("cannot save nil credentials")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(creds); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}
	if err := os.WriteFile(m.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	return nil
}

// SetKey stores key for provider.
func (m *Manager) SetKey(provider, key string) error {
	if !IsSupportedProvider(provider) {
		return fmt.Errorf("%q: %w", provider, ErrUnsupportedProvider)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("API key cannot be empty")
	}

	creds, err := m.Load()
	if err != nil {
		return err
	}
	creds.Providers[provider] = ProviderCredential{APIKey: key, StoredAt: time.Now().UTC()}
	return m.Save(creds)
}

// GetKey returns the stored key for provider, or "".
func (m *Manager) GetKey(provider string) (string, error) {
	creds, err := m.Load()
	if err != nil {
		return "", err
	}
	return creds.Providers[provider].APIKey, nil
}

// RemoveKey deletes the stored key for provider. Removing an absent key is
// not an error.
func (m *Manager) RemoveKey(provider string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}
	if _, ok := creds.Providers[provider]; !ok {
		return nil
	}
	delete(creds.Providers, provider)
	return m.Save(creds)
}

// ListProviders returns providers with a stored key, sorted.
func (m *Manager) ListProviders() ([]string, error) {
	creds, err := m.Load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(creds.Providers))
	for name := range creds.Providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Resolve returns the key for provider: the stored key, else its
// environment variable, else "".
func (m *Manager) Resolve(provider string) (string, error) {
	key, err := m.GetKey(provider)
	if err != nil || key != "" {
		return key, err
	}
	if env := EnvVarForProvider(provider); env != "" {
		return os.Getenv(env), nil
	}
	return "", nil
}

// EnvVarForProvider returns the environment variable read for provider, or
// "" when it takes no key.
func EnvVarForProvider(provider string) string {
	return envVars[provider]
}

// SupportedProviders lists providers that take an API key.
func SupportedProviders() []string {
	return []string{"anthropic", "openai"}
}

func IsSupportedProvider(provider string) bool {
	return slices.Contains(SupportedProviders(), provider)
}
