package chaos

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Chaos makes seeded, repeatable decisions about delaying and dropping appends
type Chaos struct {
	cfg    Config
	logger *zap.Logger
	rng    *rand.Rand
	mu     sync.Mutex
	start  time.Time
	now    func() time.Time
}

// New creates a new Chaos instance. A valid Profile overrides the drop and delay settings.
func New(cfg *Config, logger *zap.Logger) *Chaos {
	c := &Chaos{
		cfg:    *cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		start:  time.Now(),
		now:    time.Now,
	}

	if c.cfg.Profile != "" {
		dropPct, delayMin, delayMax, err := ParseProfile(c.cfg.Profile)
		if err != nil {
			logger.Warn("failed to parse chaos profile", zap.String("profile", c.cfg.Profile), zap.Error(err))
		} else {
			if dropPct > 0 {
				c.cfg.DropPct = dropPct
			}
			if delayMin > 0 || delayMax > 0 {
				c.cfg.DelayMsMin = delayMin
				c.cfg.DelayMsMax = delayMax
			}
		}
	}

	return c
}

// EnabledFor checks if faults apply to a stream right now
func (c *Chaos) EnabledFor(stream string) bool {
	if !c.cfg.Enabled {
		return false
	}
	if c.cfg.WindowMs > 0 && c.now().Sub(c.start).Milliseconds() > int64(c.cfg.WindowMs) {
		return false
	}
	if c.cfg.TargetStream != "" && c.cfg.TargetStream != stream {
		return false
	}
	return true
}

// MaybeDelay sleeps for a random delay in the configured range
func (c *Chaos) MaybeDelay(ctx context.Context, stream, op string) error {
	if !c.EnabledFor(stream) {
		return nil
	}
	if c.cfg.DelayMsMin == 0 && c.cfg.DelayMsMax == 0 {
		return nil
	}

	c.mu.Lock()
	delayMs := c.cfg.DelayMsMin
	if c.cfg.DelayMsMax > c.cfg.DelayMsMin {
		delayMs += c.rng.Intn(c.cfg.DelayMsMax - c.cfg.DelayMsMin + 1)
	}
	c.mu.Unlock()

	if delayMs <= 0 {
		return nil
	}

	c.logger.Info("chaos delay injected",
		zap.String("stream", stream),
		zap.String("op", op),
		zap.Int("delay_ms", delayMs),
	)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(delayMs) * time.Millisecond):
		return nil
	}
}

// MaybeDrop returns true if the append should be silently discarded
func (c *Chaos) MaybeDrop(stream, op string) bool {
	if !c.EnabledFor(stream) || c.cfg.DropPct == 0 {
		return false
	}

	c.mu.Lock()
	drop := c.rng.Intn(100) < c.cfg.DropPct
	c.mu.Unlock()

	if drop {
		c.logger.Info("chaos drop injected",
			zap.String("stream", stream),
			zap.String("op", op),
		)
	}
	return drop
}
