// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Load .env file via godotenv (non-fatal if absent).
//  2. If APP_ENV != "local", resolve _SSM_PARAM pointer variables via the
//     SecretProvider and inject the resolved values into the environment.
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Populate BuildInfo from linker-injected variables.
//  5. Validate the struct using go-playground/validator.
//  6. Reject an explicit report template path that does not exist.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ssmParamSuffix identifies SSM pointer variables. TRACKER_API_KEY_SSM_PARAM
// points to the SSM path holding TRACKER_API_KEY.
const ssmParamSuffix = "_SSM_PARAM"

// localEnv is the APP_ENV value that bypasses SSM resolution.
const localEnv = "local"

type (
	envLookup func(key string) (string, bool)
	envSet    func(key, value string) error
	environ   func() []string
	statFile  func(name string) (os.FileInfo, error)
)

// loaderDeps holds the injectable dependencies for the loader.
type loaderDeps struct {
	lookupEnv envLookup
	setEnv    envSet
	environ   environ
	stat      statFile
	dotenv    func() error
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
		stat:      os.Stat,
		dotenv:    func() error { return godotenv.Load() },
	}
}

// LoadConfig loads and validates the notifier configuration.
//
// The provider is only consulted when APP_ENV is not "local" and at least
// one _SSM_PARAM variable is present; it may be nil otherwise.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	// godotenv never overrides variables that are already set.
	if deps.dotenv != nil {
		_ = deps.dotenv()
	}

	appEnv, _ := deps.lookupEnv("APP_ENV")
	if appEnv != localEnv && appEnv != "" {
		if err := resolveSSMParams(provider, deps); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	if err := checkTemplatePath(cfg.Report.TemplatePath, deps.stat); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate runs the struct validation rules against cfg. It is exported so
// programmatic callers that build a Config by hand get the same checks.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	return nil
}

// checkTemplatePath distinguishes "unset" (blank, use the bundled default)
// from "invalid" (set but missing).
func checkTemplatePath(path string, stat statFile) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	info, err := stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &ConfigError{
				Type:    ErrTemplateMissing,
				Message: fmt.Sprintf("report template %q does not exist", path),
				Err:     err,
			}
		}
		return &ConfigError{
			Type:    ErrTemplateMissing,
			Message: fmt.Sprintf("report template %q is not readable", path),
			Err:     err,
		}
	}
	if info.IsDir() {
		return &ConfigError{
			Type:    ErrTemplateMissing,
			Message: fmt.Sprintf("report template %q is a directory", path),
		}
	}
	return nil
}

// ResolveSecrets performs only the SSM resolution step. Lambda entry points
// call it before reading individual variables.
func ResolveSecrets(provider SecretProvider) error {
	appEnv, _ := os.LookupEnv("APP_ENV")
	if appEnv == localEnv {
		return nil
	}
	return resolveSSMParams(provider, defaultDeps())
}

// resolveSSMParams scans the environment for *_SSM_PARAM variables, fetches
// their values in one batch, and sets the target variables. Targets already
// present in the environment are left alone (Env > Dotenv > SSM).
func resolveSSMParams(provider SecretProvider, deps loaderDeps) error {
	// ssmPath -> target env var
	bindings := make(map[string]string)
	var order []string

	for _, entry := range deps.environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasSuffix(key, ssmParamSuffix) || value == "" {
			continue
		}
		target := strings.TrimSuffix(key, ssmParamSuffix)
		if _, exists := deps.lookupEnv(target); exists {
			continue
		}
		if _, dup := bindings[value]; !dup {
			order = append(order, value)
		}
		bindings[value] = target
	}

	if len(bindings) == 0 {
		return nil
	}

	if provider == nil {
		targets := make([]string, 0, len(order))
		for _, p := range order {
			targets = append(targets, bindings[p])
		}
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SecretProvider is required for non-local environments (need to resolve: %s)", strings.Join(targets, ", ")),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, order)
	if err != nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("failed to resolve %d SSM parameters", len(order)),
			Err:     err,
		}
	}

	var missing []string
	for _, path := range order {
		target := bindings[path]
		value, ok := resolved[path]
		if !ok {
			missing = append(missing, target)
			continue
		}
		if err := deps.setEnv(target, value); err != nil {
			return &ConfigError{
				Type:    ErrSSMResolution,
				Message: fmt.Sprintf("failed to set resolved value for %s", target),
				Err:     err,
			}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SSM parameters not found for: %s", strings.Join(missing, ", ")),
		}
	}

	return nil
}
