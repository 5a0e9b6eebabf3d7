package correlator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ismaiel54/margin-exchange/internal/msg"
	"github.com/ismaiel54/margin-exchange/internal/protocol"
	"go.uber.org/zap"
)

var (
	// ErrTimeout is returned when no reply arrives within the reply timeout
	ErrTimeout = errors.New("timed out waiting for reply")
	// ErrNotStarted is returned by Send before Start
	ErrNotStarted = errors.New("correlator not started")
)

// DefaultTimeout is the reply timeout used when none is configured
const DefaultTimeout = 5 * time.Second

// Options configures a Correlator
type Options struct {
	CommandStream string
	ReplyStream   string
	Timeout       time.Duration
}

type waiter struct {
	ch    chan protocol.Reply
	timer *time.Timer
}

// Correlator sends commands on the command stream and matches replies by correlation id
type Correlator struct {
	log      msg.Log
	producer *msg.Producer
	opts     Options
	logger   *zap.Logger

	mu      sync.Mutex
	waiters map[string]*waiter

	tailer *msg.Tailer
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a correlator; call Start before sending
func New(log msg.Log, producer *msg.Producer, opts Options, logger *zap.Logger) *Correlator {
	if opts.CommandStream == "" {
		opts.CommandStream = msg.StreamCommands
	}
	if opts.ReplyStream == "" {
		opts.ReplyStream = msg.StreamReplies
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Correlator{
		log:      log,
		producer: producer,
		opts:     opts,
		logger:   logger,
		waiters:  make(map[string]*waiter),
	}
}

// Start tails the reply stream from its current end. Replies written before Start are never seen.
func (c *Correlator) Start(ctx context.Context) error {
	last, err := c.log.Last(ctx, c.opts.ReplyStream)
	if err != nil {
		return fmt.Errorf("failed to read reply stream end: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	tailer := msg.NewTailer(c.log, c.opts.ReplyStream, last, c.logger)
	done := make(chan struct{})

	c.mu.Lock()
	c.tailer = tailer
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		if err := tailer.Run(runCtx, c.handleReply); err != nil && runCtx.Err() == nil {
			c.logger.Error("reply tailer stopped", zap.Error(err))
		}
	}()

	c.logger.Info("correlator started",
		zap.String("command_stream", c.opts.CommandStream),
		zap.String("reply_stream", c.opts.ReplyStream),
		zap.Int64("after", last),
		zap.Duration("timeout", c.opts.Timeout),
	)
	return nil
}

// IsRunning reports whether the reply tailer is running
func (c *Correlator) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tailer != nil && c.tailer.IsRunning()
}

// Send assigns cmd a fresh correlation id, appends it and waits for the matching reply
func (c *Correlator) Send(ctx context.Context, cmd protocol.Command) (protocol.Reply, error) {
	c.mu.Lock()
	started := c.tailer != nil
	c.mu.Unlock()
	if !started {
		return protocol.Reply{}, ErrNotStarted
	}

	id := uuid.NewString()
	cmd.SetCommandID(id)

	fields, err := protocol.CommandFields(cmd)
	if err != nil {
		return protocol.Reply{}, err
	}

	w := c.register(id)
	if _, err := c.producer.Send(ctx, c.opts.CommandStream, fields); err != nil {
		c.remove(id)
		return protocol.Reply{}, err
	}

	select {
	case rep, ok := <-w.ch:
		if !ok {
			return protocol.Reply{}, fmt.Errorf("%w: %s %s", ErrTimeout, cmd.Kind(), id)
		}
		return rep, nil
	case <-ctx.Done():
		c.remove(id)
		return protocol.Reply{}, ctx.Err()
	}
}

// Call sends cmd and decodes a successful reply into out (which may be nil).
// A failed reply is returned as *protocol.ReplyError.
func (c *Correlator) Call(ctx context.Context, cmd protocol.Command, out any) error {
	rep, err := c.Send(ctx, cmd)
	if err != nil {
		return err
	}
	if err := rep.Err(); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return rep.Decode(out)
}

// Pending returns the number of commands waiting for a reply
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Close stops the reply tailer. Waiters still pending run into their timeout.
func (c *Correlator) Close() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *Correlator) register(id string) *waiter {
	w := &waiter{ch: make(chan protocol.Reply, 1)}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.waiters[id] = w
	w.timer = time.AfterFunc(c.opts.Timeout, func() { c.expire(id) })
	return w
}

// take removes a waiter; only the first caller for an id gets it
func (c *Correlator) take(id string) (*waiter, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.waiters[id]
	if ok {
		delete(c.waiters, id)
	}
	return w, ok
}

func (c *Correlator) expire(id string) {
	if w, ok := c.take(id); ok {
		close(w.ch)
	}
}

func (c *Correlator) remove(id string) {
	if w, ok := c.take(id); ok {
		w.timer.Stop()
	}
}

func (c *Correlator) handleReply(ctx context.Context, rec msg.Record) error {
	rep, err := protocol.ReplyFromFields(rec.Fields)
	if err != nil {
		c.logger.Warn("malformed reply", zap.Int64("offset", rec.Offset), zap.Error(err))
		// a readable id still settles its waiter, as a failure
		id := rec.Fields[msg.FieldID]
		if id == "" {
			return nil
		}
		rep = protocol.NewErrorReply(id, http.StatusInternalServerError, "malformed reply")
	}

	w, ok := c.take(rep.ID)
	if !ok {
		c.logger.Debug("dropping unmatched reply",
			zap.String("command_id", rep.ID),
			zap.Int64("offset", rec.Offset),
		)
		return nil
	}

	w.timer.Stop()
	w.ch <- rep
	return nil
}
