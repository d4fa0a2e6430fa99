package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flowchartsman/retry"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Open connects to the configured backend, retrying with backoff while the
// store is unreachable. With Transactions disabled the returned store does
// not expose Txn.
func Open(ctx context.Context, config Config, logger *zap.Logger) (Store, error) {
	config.Sanitize()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var store Store
	retrier := retry.NewRetrier(config.ConnectRetries, 100*time.Millisecond, config.DialTimeout)
	attempt := 0
	err := retrier.RunContext(ctx, func(ctx context.Context) error {
		attempt++
		s, err := dial(ctx, config)
		if err != nil {
			logger.Warn("Store connection failed",
				zap.String("backend", config.Backend),
				zap.Strings("endpoints", config.Endpoints),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		store = s
		return nil
	})
	if err != nil {
		return nil, ErrNotConnected.Wrap(err)
	}

	logger.Info("Connected to store",
		zap.String("backend", config.Backend),
		zap.String("namespace", config.Namespace),
		zap.Bool("transactions", config.Transactions))
	if !config.Transactions {
		return WithoutTxn(store), nil
	}
	return store, nil
}

func dial(ctx context.Context, config Config) (Store, error) {
	switch config.Backend {
	case BackendEtcd:
		return NewEtcdStore(ctx, config)
	case BackendConsul:
		return NewConsulStore(ctx, config)
	case BackendRedis:
		return NewRedisStore(ctx, config)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, ErrUnknownBackend.WithDetails(config.Backend)
	}
}

// dialEach tries endpoints in order and returns the first one that connects.
// The error lists every endpoint that failed.
func dialEach[T any](ctx context.Context, endpoints []string, connect func(ctx context.Context, endpoint string) (T, error)) (T, error) {
	var (
		zero T
		errs error
	)
	for _, endpoint := range endpoints {
		c, err := connect(ctx, endpoint)
		if err == nil {
			return c, nil
		}
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", endpoint, err))
		if ctx.Err() != nil {
			break
		}
	}
	if errs == nil {
		errs = errors.New("no endpoints")
	}
	return zero, errs
}
