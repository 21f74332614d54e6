// Package numbering allocates human-readable invoice numbers.
package numbering

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stockplus/stockplus/internal/shared"
)

const (
	defaultMaxAttempts = 5
	suffixSpace        = 1_000_000
	sequenceTTL        = 62 * 24 * time.Hour
)

// ErrGenerationExhausted is returned when every attempt produced a number already in use.
var ErrGenerationExhausted = errors.New("numbering: invoice number generation exhausted")

// ExistsFunc reports whether a candidate number is already taken. It runs inside
// the caller's transaction.
type ExistsFunc func(ctx context.Context, number string) (bool, error)

// Sequence hands out monotonically increasing suffixes per scope and period.
type Sequence interface {
	Next(ctx context.Context, scopeID int64, period string) (int64, error)
}

// Skipper is implemented by sequences that can jump over suffixes already in use,
// for example after the counter was lost and restarted behind existing rows.
type Skipper interface {
	Skip(ctx context.Context, scopeID int64, period string, by int64) error
}

// RedisSequence is a Sequence backed by Redis INCR.
type RedisSequence struct {
	client *redis.Client
}

// NewRedisSequence wraps a redis client.
func NewRedisSequence(client *redis.Client) *RedisSequence {
	return &RedisSequence{client: client}
}

// Next increments the counter for scope and period.
func (s *RedisSequence) Next(ctx context.Context, scopeID int64, period string) (int64, error) {
	key := shared.InvoiceSequenceKey(scopeID, period)
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, sequenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Skip advances the counter for scope and period by the given amount.
func (s *RedisSequence) Skip(ctx context.Context, scopeID int64, period string, by int64) error {
	if by <= 0 {
		return nil
	}
	key := shared.InvoiceSequenceKey(scopeID, period)
	pipe := s.client.TxPipeline()
	pipe.IncrBy(ctx, key, by)
	pipe.Expire(ctx, key, sequenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Options configures a Generator.
type Options struct {
	Sequence    Sequence
	MaxAttempts int
	Now         func() time.Time
	Logger      *slog.Logger
}

// Generator produces numbers shaped INV-{YYYYMM}-{scope}-{suffix}.
type Generator struct {
	seq         Sequence
	maxAttempts int
	now         func() time.Time
	logger      *slog.Logger
}

// NewGenerator builds a generator. Without a Sequence every suffix is random.
func NewGenerator(opts Options) *Generator {
	g := &Generator{
		seq:         opts.Sequence,
		maxAttempts: opts.MaxAttempts,
		now:         opts.Now,
		logger:      opts.Logger,
	}
	if g.maxAttempts <= 0 {
		g.maxAttempts = defaultMaxAttempts
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// Generate returns a number for scopeID that exists reports as free. Once a
// sequence suffix collides, the rest of the call draws random suffixes and the
// sequence is pushed ahead by the colliding value, so a counter that restarted
// behind existing numbers catches up within a few calls.
func (g *Generator) Generate(ctx context.Context, scopeID int64, exists ExistsFunc) (string, error) {
	period := g.now().UTC().Format("200601")
	sequential := g.seq != nil
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		suffix, fromSeq, err := g.suffix(ctx, scopeID, period, sequential)
		if err != nil {
			return "", err
		}
		candidate := Format(period, scopeID, suffix)
		if exists == nil {
			return candidate, nil
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("numbering: check %s: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		g.logger.Debug("invoice number collision", slog.String("number", candidate), slog.Int("attempt", attempt))
		if fromSeq {
			sequential = false
			g.skip(ctx, scopeID, period, suffix)
		}
	}
	return "", ErrGenerationExhausted
}

// Format renders the canonical invoice number.
func Format(period string, scopeID, suffix int64) string {
	return fmt.Sprintf("INV-%s-%d-%06d", period, scopeID, suffix)
}

// suffix reports whether the value came from the sequence.
func (g *Generator) suffix(ctx context.Context, scopeID int64, period string, sequential bool) (int64, bool, error) {
	if sequential {
		n, err := g.seq.Next(ctx, scopeID, period)
		if err == nil {
			return n, true, nil
		}
		g.logger.Warn("invoice sequence unavailable, using random suffix", slog.Any("error", err))
	}
	n, err := rand.Int(rand.Reader, big.NewInt(suffixSpace))
	if err != nil {
		return 0, false, fmt.Errorf("numbering: random suffix: %w", err)
	}
	return n.Int64(), false, nil
}

func (g *Generator) skip(ctx context.Context, scopeID int64, period string, by int64) {
	skipper, ok := g.seq.(Skipper)
	if !ok {
		return
	}
	if err := skipper.Skip(ctx, scopeID, period, by); err != nil {
		g.logger.Warn("invoice sequence skip failed", slog.Int64("scope_id", scopeID), slog.Any("error", err))
		return
	}
	g.logger.Warn("invoice sequence behind existing numbers, skipped ahead",
		slog.Int64("scope_id", scopeID), slog.String("period", period), slog.Int64("by", by))
}
