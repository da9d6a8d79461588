package instrument

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Sim is an in-memory power supply. It keeps the last sourced voltage and
// current and reports them back when output is on, and zero when it is off.
type Sim struct {
	mu      sync.Mutex
	voltage float64
	current float64
	output  bool
	closed  bool
	log     []string

	// Fail, if set, is returned by every command whose text has the prefix
	// FailPrefix (all commands if FailPrefix is empty).
	Fail       error
	FailPrefix string
}

// NewSim returns a simulated supply with output off.
func NewSim() *Sim { return &Sim{} }

// Dialer returns a Dialer that always reconnects to this simulator.
func (s *Sim) Dialer() Dialer {
	return func(ctx context.Context) (Instrument, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = false
		return s, ctx.Err()
	}
}

// Log returns every command received, in order.
func (s *Sim) Log() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.log...)
}

// Output reports whether the output is armed.
func (s *Sim) Output() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output
}

// Setpoint returns the last sourced value of q.
func (s *Sim) Setpoint(q Quantity) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q == Current {
		return s.current
	}
	return s.voltage
}

// Closed reports whether the last connection was closed.
func (s *Sim) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Sim) check(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return &IOError{Command: cmd, Err: err}
	}
	if s.closed {
		return &IOError{Command: cmd, Err: ErrClosed}
	}
	if s.Fail != nil && strings.HasPrefix(cmd, s.FailPrefix) {
		return &IOError{Command: cmd, Err: s.Fail}
	}
	return nil
}

func (s *Sim) Write(ctx context.Context, cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd = strings.ToLower(strings.TrimSpace(cmd))
	if err := s.check(ctx, cmd); err != nil {
		return err
	}
	s.log = append(s.log, cmd)

	fields := strings.Fields(cmd)
	if len(fields) != 2 {
		return &IOError{Command: cmd, Err: fmt.Errorf("malformed command")}
	}
	switch fields[0] {
	case "output:state":
		s.output = fields[1] == "on" || fields[1] == "1"
	case "source:voltage", "source:current":
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return &IOError{Command: cmd, Err: err}
		}
		if fields[0] == "source:voltage" {
			s.voltage = v
		} else {
			s.current = v
		}
	default:
		return &IOError{Command: cmd, Err: fmt.Errorf("unknown command")}
	}
	return nil
}

func (s *Sim) Query(ctx context.Context, cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd = strings.ToLower(strings.TrimSpace(cmd))
	if err := s.check(ctx, cmd); err != nil {
		return "", err
	}
	s.log = append(s.log, cmd)

	var v float64
	switch cmd {
	case "measure:voltage?":
		v = s.voltage
	case "measure:current?":
		v = s.current
	default:
		return "", &IOError{Command: cmd, Err: fmt.Errorf("unknown query")}
	}
	if !s.output {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64), nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
