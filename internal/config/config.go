// Package config resolves the endpoint, credentials and model name used to
// reach the chat service. Settings come from an ordered chain of secret
// sources, typically the process environment followed by a local secrets
// file, and the first non-empty value for each key wins.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-qualitygate/internal/domain"
	"github.com/ahrav/go-qualitygate/internal/ports"
)

// Setting keys in their canonical environment-variable spelling.
const (
	KeyEndpoint    = "FOUNDRY_URL_ENDPOINT"
	KeyAPIKey      = "FOUNDRY_API_KEY"
	KeyModel       = "DEPLOYED_MODEL_NAME"
	KeyProvider    = "QUALITYGATE_PROVIDER"
	KeyAPIVersion  = "FOUNDRY_API_VERSION"
	KeySecretsPath = "QUALITYGATE_SECRETS_PATH"
)

// Defaults applied to optional settings.
const (
	DefaultProvider   = "azure"
	DefaultAPIVersion = "2024-10-21"
)

// requiredKeys lists the settings that must resolve to a non-empty value.
var requiredKeys = []string{KeyEndpoint, KeyAPIKey, KeyModel}

// Settings holds the resolved chat service configuration.
type Settings struct {
	// Endpoint is the base URL of the chat service.
	Endpoint string `validate:"required,http_url"`

	// APIKey authenticates requests. It is never logged.
	APIKey string `validate:"required"`

	// Model is the deployed model name.
	Model string `validate:"required"`

	// Provider selects the chat client implementation.
	Provider string `validate:"required,oneof=azure openai anthropic google"`

	// APIVersion is the service API version used by Azure-style endpoints.
	APIVersion string
}

// String returns a printable form of the settings with the API key redacted.
func (s Settings) String() string {
	return fmt.Sprintf("Settings{Endpoint:%s Model:%s Provider:%s APIVersion:%s APIKey:%s}",
		s.Endpoint, s.Model, s.Provider, s.APIVersion, redact(s.APIKey))
}

// LogValue implements slog.LogValuer so settings can be logged safely.
func (s Settings) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("endpoint", s.Endpoint),
		slog.String("model", s.Model),
		slog.String("provider", s.Provider),
		slog.String("api_version", s.APIVersion),
		slog.String("api_key", redact(s.APIKey)),
	)
}

func redact(secret string) string {
	if secret == "" {
		return "<unset>"
	}
	return "<redacted>"
}

// Loader resolves Settings from an ordered list of secret sources.
type Loader struct {
	sources  []ports.SecretSource
	validate *validator.Validate
	logger   *slog.Logger
}

// NewLoader creates a Loader that consults sources in order.
// A nil logger discards log output.
func NewLoader(logger *slog.Logger, sources ...ports.SecretSource) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{
		sources:  sources,
		validate: validator.New(),
		logger:   logger,
	}
}

// NewDefaultLoader creates a Loader over the process environment followed by
// the local secrets file at DefaultSecretsPath.
func NewDefaultLoader(logger *slog.Logger) *Loader {
	return NewLoader(logger, NewEnvSource(), NewFileSource(DefaultSecretsPath()))
}

// Load resolves every setting. It fails with *domain.MissingConfigurationError
// naming all absent required keys, so callers can abort before any chat call.
// No retries are attempted.
func (l *Loader) Load(ctx context.Context) (Settings, error) {
	values := make(map[string]string, len(requiredKeys)+2)
	for _, key := range []string{KeyEndpoint, KeyAPIKey, KeyModel, KeyProvider, KeyAPIVersion} {
		val, source, err := l.lookup(ctx, key)
		if err != nil {
			return Settings{}, err
		}
		if val != "" {
			l.logger.Debug("resolved setting", "key", key, "source", source)
		}
		values[key] = val
	}

	var missing []string
	for _, key := range requiredKeys {
		if values[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Settings{}, &domain.MissingConfigurationError{Keys: missing}
	}

	settings := Settings{
		Endpoint:   values[KeyEndpoint],
		APIKey:     values[KeyAPIKey],
		Model:      values[KeyModel],
		Provider:   strings.ToLower(values[KeyProvider]),
		APIVersion: values[KeyAPIVersion],
	}
	if settings.Provider == "" {
		settings.Provider = DefaultProvider
	}
	if settings.APIVersion == "" && settings.Provider == DefaultProvider {
		settings.APIVersion = DefaultAPIVersion
	}

	if err := l.validate.Struct(settings); err != nil {
		return Settings{}, toValidationError(err)
	}

	l.logger.Info("configuration loaded", "settings", settings)
	return settings, nil
}

// lookup returns the first non-empty value for key across all sources.
func (l *Loader) lookup(ctx context.Context, key string) (string, string, error) {
	for _, src := range l.sources {
		val, ok, err := src.Lookup(ctx, key)
		if err != nil {
			return "", "", ports.NewConfigError(src.Name(), err)
		}
		if ok && strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val), src.Name(), nil
		}
	}
	return "", "", nil
}

// toValidationError converts validator failures into a domain.ValidationError
// that names each offending field without echoing its value.
func toValidationError(err error) error {
	verr := domain.NewValidationError("settings")
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.AddError(err.Error())
		return verr
	}
	for _, fe := range fieldErrs {
		verr.AddError(fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag()))
	}
	return verr
}
