// Package setup validates credentials and normalizes capability selections
// before the refresh loop starts.
package setup

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/smallbiznis/simwatch/internal/config"
	"github.com/smallbiznis/simwatch/internal/fields"
	"github.com/smallbiznis/simwatch/internal/simbase"
)

var (
	// ErrInvalidAuth means the API key was rejected by the remote service.
	ErrInvalidAuth = errors.New("setup: invalid credentials")
	// ErrCannotConnect means the remote service could not be reached at all.
	ErrCannotConnect = errors.New("setup: cannot connect")
)

// Verifier probes whether credentials are accepted.
type Verifier interface {
	ValidateAPIKey(ctx context.Context) (bool, error)
}

// ValidateCredentials runs a cheap authenticated probe. A rejected key maps to
// ErrInvalidAuth and an unreachable host to ErrCannotConnect; any other remote
// error is tolerated so a degraded service does not block setup.
func ValidateCredentials(ctx context.Context, api Verifier, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	ok, err := api.ValidateAPIKey(ctx)
	if err != nil {
		var apiErr *simbase.APIError
		if errors.As(err, &apiErr) && apiErr.ConnectionFailure() {
			log.Warn("credential probe could not reach remote", zap.Error(err))
			return fmt.Errorf("%w: %v", ErrCannotConnect, err)
		}
		log.Warn("credential probe degraded, accepting key", zap.Error(err))
		return nil
	}
	if !ok {
		log.Info("credential probe rejected api key")
		return ErrInvalidAuth
	}
	return nil
}

// NormalizeOptions clamps and filters raw selections against the known field
// tables, substituting defaults when a list comes back empty.
func NormalizeOptions(opts config.Options, log *zap.Logger) config.Options {
	if log == nil {
		log = zap.NewNop()
	}
	defaults := config.DefaultOptions()

	if opts.ScanIntervalSeconds <= 0 {
		opts.ScanIntervalSeconds = defaults.ScanIntervalSeconds
	}
	if opts.ScanIntervalSeconds < 30 {
		log.Warn("scan interval below minimum, clamping",
			zap.Int("requested_seconds", opts.ScanIntervalSeconds))
		opts.ScanIntervalSeconds = 30
	}

	opts.DeviceFields = filterKnown(opts.DeviceFields, fields.DeviceFieldKeys(), "device", log)
	if len(opts.DeviceFields) == 0 {
		opts.DeviceFields = defaults.DeviceFields
	}

	opts.AccountFields = filterKnown(opts.AccountFields, fields.AccountFieldKeys(), "account", log)
	if len(opts.AccountFields) == 0 {
		opts.AccountFields = defaults.AccountFields
	}

	return opts
}

func filterKnown(selected, known []string, kind string, log *zap.Logger) []string {
	kept := lo.Filter(selected, func(key string, _ int) bool {
		return lo.Contains(known, key)
	})
	if dropped := len(selected) - len(kept); dropped > 0 {
		log.Warn("dropping unknown field selections",
			zap.String("kind", kind),
			zap.Strings("unknown", lo.Without(selected, kept...)))
	}
	return lo.Uniq(kept)
}
