package linereader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// Assembler turns a byte source into console lines.
type Assembler struct {
	src    ByteSource
	policy RetryPolicy
	logger *zap.Logger
	buf    []byte
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithRetryPolicy sets the transient read retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(a *Assembler) {
		a.policy = p
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Assembler) {
		a.logger = logger
	}
}

// New creates an Assembler reading from src.
func New(src ByteSource, opts ...Option) *Assembler {
	a := &Assembler{
		src:    src,
		policy: DefaultRetryPolicy(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ReadLine returns the next line without its '\n'. Carriage returns are
// dropped wherever they appear. A final fragment without a newline is
// returned once before io.EOF. There is no bound on line length.
func (a *Assembler) ReadLine(ctx context.Context) (string, error) {
	a.buf = a.buf[:0]

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		b, err := a.readByte(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) && len(a.buf) > 0 {
				return string(a.buf), nil
			}
			return "", err
		}

		switch b {
		case '\n':
			return string(a.buf), nil
		case '\r':
		default:
			a.buf = append(a.buf, b)
		}
	}
}

// readByte reads one byte, retrying transient failures per the policy.
func (a *Assembler) readByte(ctx context.Context) (byte, error) {
	retries := 0
	for {
		b, err := a.src.ReadByte()
		if err == nil {
			if retries > 0 {
				a.logger.Debug("source recovered", zap.Int("retries", retries))
			}
			return b, nil
		}
		if !IsTransient(err) {
			return 0, err
		}

		retries++
		if a.policy.exhausted(retries) {
			return 0, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, retries, err)
		}
		if retries == 1 {
			a.logger.Debug("transient read failure, retrying", zap.Error(err))
		}

		if err := wait(ctx, a.policy.Backoff); err != nil {
			return 0, err
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
