package config

import "context"

// SecretProvider resolves secret values (the tracker API key, in practice)
// from a backing store. SSMProvider serves deployed environments and
// EnvVarProvider serves local runs and tests.
type SecretProvider interface {
	// GetParametersBatch returns path -> plaintext for every key it could
	// resolve. Keys it cannot find are omitted; the caller reports them.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
