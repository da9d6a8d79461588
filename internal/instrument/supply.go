package instrument

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DefaultTimeout bounds each command when no other deadline applies.
const DefaultTimeout = 2 * time.Second

// Supply is a shared session with one power supply. Several results (the
// supply's voltage and current) read and command through the same session.
type Supply struct {
	dial         Dialer
	currentLimit float64
	timeout      time.Duration
	log          *zap.Logger

	mu   sync.Mutex
	inst Instrument
}

// SupplyOption configures a Supply.
type SupplyOption func(*Supply)

// WithTimeout bounds every command sent to the supply.
func WithTimeout(d time.Duration) SupplyOption {
	return func(s *Supply) { s.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) SupplyOption {
	return func(s *Supply) { s.log = log }
}

// NewSupply returns a closed session that will connect through dial and
// arm the given current limit on Open.
func NewSupply(dial Dialer, currentLimit float64, opts ...SupplyOption) *Supply {
	s := &Supply{
		dial:         dial,
		currentLimit: currentLimit,
		timeout:      DefaultTimeout,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsOpen reports whether the session holds a live connection.
func (s *Supply) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inst != nil
}

// Open connects, turns the output on and sets the current limit. Opening an
// open session is a no-op.
func (s *Supply) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inst != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	inst, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("open supply: %w", err)
	}
	for _, cmd := range []string{
		"output:state on",
		"source:current " + format(s.currentLimit),
	} {
		if err := inst.Write(ctx, cmd); err != nil {
			return multierr.Append(fmt.Errorf("arm supply: %w", err), inst.Close())
		}
	}
	s.inst = inst
	s.log.Info("supply opened", zap.Float64("current_limit", s.currentLimit))
	return nil
}

// Close turns the output off and releases the connection. Closing a closed
// or never-opened session is a no-op. The voltage setpoint is left as is so
// a resumed run can read it back.
func (s *Supply) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inst == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.inst.Write(ctx, "output:state off")
	err = multierr.Append(err, s.inst.Close())
	s.inst = nil
	s.log.Info("supply closed")
	return err
}

// Measure queries the present value of q.
func (s *Supply) Measure(ctx context.Context, q Quantity) (float64, error) {
	word, err := q.word()
	if err != nil {
		return 0, err
	}
	cmd := "measure:" + word + "?"

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inst == nil {
		return 0, &IOError{Command: cmd, Err: ErrClosed}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.inst.Query(ctx, cmd)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(resp), 64)
	if err != nil {
		return 0, &IOError{Command: cmd, Err: err}
	}
	return v, nil
}

// Set commands the supply to source v of q.
func (s *Supply) Set(ctx context.Context, q Quantity, v float64) error {
	word, err := q.word()
	if err != nil {
		return err
	}
	return s.Send(ctx, "source:"+word+" "+format(v))
}

// Send writes a raw command through the session.
func (s *Supply) Send(ctx context.Context, cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inst == nil {
		return &IOError{Command: cmd, Err: ErrClosed}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inst.Write(ctx, cmd)
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
