package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/softboiler/boilerdaq/internal/config"
	"github.com/softboiler/boilerdaq/internal/controller"
	"github.com/softboiler/boilerdaq/internal/fit"
	"github.com/softboiler/boilerdaq/internal/instrument"
	"github.com/softboiler/boilerdaq/internal/looper"
	"github.com/softboiler/boilerdaq/internal/monitor"
	"github.com/softboiler/boilerdaq/internal/param"
	"github.com/softboiler/boilerdaq/internal/result"
	"github.com/softboiler/boilerdaq/internal/sensor"
	"github.com/softboiler/boilerdaq/internal/store"
	"github.com/softboiler/boilerdaq/internal/telemetry"
)

var headless bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Acquire, control and record until stopped",
	Long: `Builds the result graph from the configured tables, starts a new results
file and ticks at the poll interval. The live display shows every result
grouped as configured; quitting it ends the run, turns the supply output off
and closes the results file.

With --headless there is no display and the run ends on SIGINT or SIGTERM.`,
	RunE: runAcquisition,
}

func init() {
	runCmd.Flags().BoolVar(&headless, "headless", false, "run without the terminal display")
}

// rig is a run ready to start.
type rig struct {
	id          string
	graph       *result.Graph
	writer      *store.Writer
	controllers []*controller.Controller
	publisher   *telemetry.Publisher
	looper      *looper.Looper
	path        string
	panels      []monitor.Panel
}

func (r *rig) closePublisher() error {
	if r.publisher == nil {
		return nil
	}
	return r.publisher.Close()
}

func runAcquisition(cmd *cobra.Command, args []string) error {
	id := uuid.NewString()
	log, err := newLogger(!headless)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	log = log.With(zap.String("run", id))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := setup(ctx, cfg, id, log)
	if err != nil {
		log.Error("setup failed", zap.Error(err))
		return err
	}
	defer func() { _ = r.closePublisher() }()

	if headless {
		fmt.Fprintf(cmd.OutOrStdout(), "recording to %s\n", r.path)
		return r.looper.Run(ctx)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := monitor.Options{
		RunID:     id,
		Recording: r.writer.Paths(),
		Panels:    r.panels,
		Cancel:    cancel,
	}
	for _, c := range r.controllers {
		opts.Feedback, opts.Setpoint, opts.HasSetpoint = c.Feedback().Name(), c.PID().Setpoint, true
	}

	var eg errgroup.Group
	eg.Go(func() error {
		return r.looper.Run(runCtx)
	})
	eg.Go(func() error {
		defer cancel()
		p := tea.NewProgram(monitor.New(r.looper, opts), tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("display: %w", err)
		}
		return nil
	})
	return eg.Wait()
}

// setup builds the graph, opens the results file and wires controllers and
// sinks into a looper. Nothing ticks until the looper starts.
func setup(ctx context.Context, cfg *config.Config, id string, log *zap.Logger) (*rig, error) {
	params, err := loadParams(cfg.Tables)
	if err != nil {
		return nil, err
	}

	hw := result.Hardware{
		Board:        newBoard(cfg),
		ReadTimeout:  cfg.Board.ReadTimeout,
		RiseWindow:   cfg.Rise.Window,
		RiseFraction: cfg.Rise.Fraction,
	}
	if len(params.Power) > 0 {
		hw.Supply = newSupply(cfg, log)
	}
	if h, ok := hw.Board.(*sensor.Hwmon); ok {
		chips, err := h.Chips()
		if err != nil {
			return nil, fmt.Errorf("list hwmon chips: %w", err)
		}
		for _, c := range chips {
			log.Info("hwmon board", zap.Int("board", c.Board), zap.String("chip", c.Name))
		}
	}

	g := result.NewGraph(cfg.HistoryLength(), log)
	if err := result.Build(g, params, hw, fitSpecs(cfg.Fits)); err != nil {
		return nil, err
	}

	specs := make([]result.GroupSpec, len(cfg.Groups))
	for i, grp := range cfg.Groups {
		specs[i] = result.GroupSpec{Name: grp.Name, Members: grp.Members}
	}
	groups, err := result.NewGroups(specs, g.Results())
	if err != nil {
		return nil, err
	}

	r := &rig{id: id, graph: g, panels: panels(groups)}

	// Everything that can be rejected is checked before the first Add
	// primes the graph, which opens the supply and creates the results
	// file.
	var plan *controlPlan
	var resume *float64
	if c := cfg.Control; c != nil {
		if plan, err = resolveControl(g, *c); err != nil {
			return nil, err
		}
		// The previous run has to be read before a new results file
		// becomes the newest one.
		if c.ContinueFromLast {
			last, err := store.LastValue(cfg.Results, result.Label(plan.control))
			switch {
			case errors.Is(err, store.ErrNoRuns):
				log.Info("no previous run to continue from")
			case err != nil:
				return nil, fmt.Errorf("continue from last: %w", err)
			default:
				resume = &last
			}
		}
	}

	var sinks []looper.Sink
	if cfg.Telemetry.Enabled {
		r.publisher, err = telemetry.Dial(ctx, telemetry.Config{
			Broker:         cfg.Telemetry.Broker,
			Topic:          cfg.Telemetry.Topic,
			ClientID:       "boilerdaq-" + id[:8],
			KeepAlive:      cfg.Telemetry.KeepAlive,
			QoS:            cfg.Telemetry.QoS,
			PublishTimeout: cfg.Telemetry.PublishTimeout,
		}, id, log)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, r.publisher)
	}

	r.writer = store.NewWriter(g, log)
	if r.path, err = r.writer.Add(ctx, cfg.Results, g.Results()); err != nil {
		return nil, multierr.Append(err, r.closePublisher())
	}

	if plan != nil {
		// The PID starts from the value the first Add just primed.
		ctl, err := controller.New(plan.control, plan.feedback, plan.cfg, log)
		if err != nil {
			return nil, multierr.Combine(err, r.writer.Close(), r.closePublisher())
		}
		log.Info("control enabled",
			zap.String("control", ctl.Control().Name()),
			zap.String("feedback", ctl.Feedback().Name()),
			zap.Float64("setpoint", plan.cfg.Setpoint),
		)
		if resume != nil {
			ctl.Resume(*resume)
		}
		r.controllers = append(r.controllers, ctl)
	}

	r.looper = looper.New(g, r.writer, cfg.Interval(),
		looper.WithControllers(r.controllers...),
		looper.WithSinks(sinks...),
		looper.WithLogger(log),
	)
	log.Info("run ready",
		zap.String("results", r.path),
		zap.Int("results_count", g.Len()),
		zap.Duration("interval", cfg.Interval()),
		zap.Bool("debug", cfg.Debug),
	)
	return r, nil
}

func loadParams(t config.Tables) (result.Params, error) {
	var p result.Params
	var err error
	if p.Sensors, err = param.LoadSensors(t.Sensors); err != nil {
		return p, err
	}
	if t.Power != "" {
		if p.Power, err = param.LoadPower(t.Power); err != nil {
			return p, err
		}
	}
	if t.Scaled != "" {
		if p.Scaled, err = param.LoadScaled(t.Scaled); err != nil {
			return p, err
		}
	}
	if t.Flux != "" {
		if p.Flux, err = param.LoadFlux(t.Flux); err != nil {
			return p, err
		}
	}
	if t.Extrap != "" {
		if p.Extrap, err = param.LoadExtrap(t.Extrap); err != nil {
			return p, err
		}
	}
	return p, nil
}

func newBoard(cfg *config.Config) sensor.Board {
	switch cfg.BoardKind() {
	case "hwmon":
		return sensor.NewHwmon(cfg.Board.Root)
	case "ramp":
		return sensor.NewRamp(cfg.Board.Gain, cfg.Board.Tau, cfg.Board.Noise)
	default:
		return sensor.Constant(cfg.Board.Value)
	}
}

func newSupply(cfg *config.Config, log *zap.Logger) *instrument.Supply {
	var dial instrument.Dialer
	if cfg.Instrument.Simulated || cfg.Debug || cfg.Instrument.Address == "" {
		dial = instrument.NewSim().Dialer()
	} else {
		dial = instrument.TCPDialer(cfg.Instrument.Address)
	}
	return instrument.NewSupply(dial, cfg.Instrument.CurrentLimit,
		instrument.WithTimeout(cfg.Instrument.Timeout),
		instrument.WithLogger(log),
	)
}

// controlPlan is a resolved control section, ready to become a controller
// once the graph has been primed.
type controlPlan struct {
	control  result.Controllable
	feedback result.Result
	cfg      controller.Config
}

func resolveControl(g *result.Graph, c config.ControlConfig) (*controlPlan, error) {
	r, err := g.Get(c.Control)
	if err != nil {
		return nil, fmt.Errorf("control: %w", err)
	}
	control, ok := r.(result.Controllable)
	if !ok {
		var names []string
		for _, cr := range g.Controllables() {
			names = append(names, cr.Name())
		}
		return nil, fmt.Errorf("control: %s cannot be commanded, choose one of %v", c.Control, names)
	}
	feedback, err := g.Get(c.Feedback)
	if err != nil {
		return nil, fmt.Errorf("feedback: %w", err)
	}
	cfg := controller.Config{
		Setpoint:  c.Setpoint,
		Gains:     controller.Gains{P: c.Gains[0], I: c.Gains[1], D: c.Gains[2]},
		Min:       c.OutputLimits[0],
		Max:       c.OutputLimits[1],
		MaxJump:   c.MaxJump,
		MaxMissed: c.MaxMissed,
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("controller %s: %w", c.Control, err)
	}
	return &controlPlan{control: control, feedback: feedback, cfg: cfg}, nil
}

func fitSpecs(fits []config.FitConfig) []result.FitSpec {
	specs := make([]result.FitSpec, len(fits))
	for i, f := range fits {
		params := make(map[string]fit.Param, len(f.Params))
		for name, p := range f.Params {
			params[name] = fit.Param{Guess: p.Guess, Fixed: p.Fixed}
		}
		specs[i] = result.FitSpec{
			Name:         f.Name,
			Unit:         f.Unit,
			Model:        f.Model,
			Output:       f.Output,
			Inputs:       f.Inputs,
			Positions:    f.Positions,
			Conductivity: f.Conductivity,
			Params:       params,
		}
	}
	return specs
}

func panels(groups *result.Groups) []monitor.Panel {
	var out []monitor.Panel
	for _, name := range groups.Names() {
		members, _ := groups.Get(name)
		p := monitor.Panel{Name: name}
		for _, m := range members {
			p.Members = append(p.Members, m.Name())
		}
		out = append(out, p)
	}
	return out
}

