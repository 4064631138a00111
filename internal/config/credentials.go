package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Credentials are the provider API keys
type Credentials struct {
	ClearCompanyAPIKey string `json:"clearCompanyApiKey"`
	PaylocityAPIKey    string `json:"paylocityApiKey"`
}

// CredentialSource resolves provider API keys at adapter construction time
type CredentialSource interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// FileCredentialSource reads a JSON credentials file and falls back to the
// environment-provided keys for anything the file leaves empty.
type FileCredentialSource struct {
	Path     string
	Fallback Credentials
}

// Credentials implements CredentialSource
func (s *FileCredentialSource) Credentials(ctx context.Context) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}

	creds := s.Fallback
	if s.Path == "" {
		return creds, nil
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var fromFile Credentials
	if err := json.Unmarshal(data, &fromFile); err != nil {
		return Credentials{}, fmt.Errorf("failed to parse credentials file: %w", err)
	}

	if fromFile.ClearCompanyAPIKey != "" {
		creds.ClearCompanyAPIKey = fromFile.ClearCompanyAPIKey
	}
	if fromFile.PaylocityAPIKey != "" {
		creds.PaylocityAPIKey = fromFile.PaylocityAPIKey
	}

	return creds, nil
}

// CredentialSource returns the source configured by API_CREDENTIALS_FILE and
// the *_API_KEY variables.
func (c *Config) CredentialSource() CredentialSource {
	return &FileCredentialSource{
		Path: c.CredentialsFile,
		Fallback: Credentials{
			ClearCompanyAPIKey: c.ClearCompanyAPIKey,
			PaylocityAPIKey:    c.PaylocityAPIKey,
		},
	}
}
