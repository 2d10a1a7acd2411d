package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"reflect"
	"runtime"
	"syscall"
	"time"

	"github.com/encodeous/dvr/state"
	"github.com/encodeous/tint"
	"github.com/goccy/go-yaml"
	slogmulti "github.com/samber/slog-multi"
)

var (
	ErrTickBudget = errors.New("tick budget exhausted")
	errShutdown   = errors.New("received shutdown signal")
)

type RunOptions struct {
	// Ticks stops the simulation after this many ticks, 0 runs until cancelled
	Ticks state.Tick
	// TickDuration is the wall time between ticks. When it is 0 ticks run as fast as possible, which requires Ticks.
	TickDuration time.Duration
	LogLevel     slog.Level
	LogPath      string
	// MetricsAddr exports prometheus and expvar metrics over http when set
	MetricsAddr string
	// Watch logs every routing table change
	Watch bool
	// ShowRoutes receives a dump of every route table when the simulation stops
	ShowRoutes io.Writer
}

func ReadConfig(cfgPath string) (*state.SimCfg, error) {
	var cfg state.SimCfg
	file, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, err
	}
	err = yaml.Unmarshal(file, &cfg)
	if err != nil {
		return nil, err
	}
	state.ExpandConfig(&cfg)
	err = state.ConfigValidator(&cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newLogger(opts RunOptions) (*slog.Logger, func(), error) {
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        opts.LogLevel,
			AddSource:    false,
			CustomPrefix: "dvr",
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}))

	closer := func() {}
	if opts.LogPath != "" {
		err := os.MkdirAll(path.Dir(opts.LogPath), 0700)
		if err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(opts.LogPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			return nil, nil, err
		}
		closer = func() {
			_ = f.Close()
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: opts.LogLevel}))
	}
	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}

// Start runs the simulation until the tick budget is used up, the process is interrupted or a dispatched task fails
func Start(cfg state.SimCfg, opts RunOptions) error {
	if opts.Ticks <= 0 && opts.TickDuration <= 0 {
		return errors.New("a tick duration is required when running without a tick budget")
	}
	logger, closeLog, err := newLogger(opts)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	dispatch := make(chan func(env *state.State) error, 128)

	s := state.State{
		Modules: make(map[string]state.NyModule),
		Env: &state.Env{
			Context:         ctx,
			Cancel:          cancel,
			DispatchChannel: dispatch,
			SimCfg:          cfg,
			Log:             logger,
		},
	}

	s.Log.Info("init modules")
	err = initModules(&s, opts)
	if err != nil {
		Stop(&s)
		return err
	}
	s.Log.Info("init modules complete")

	s.Log.Info("simulation started. To gracefully exit, send SIGINT or Ctrl+C.", "nodes", len(cfg.Nodes))

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)
	go func() {
		select {
		case <-c:
			s.Cancel(errShutdown)
		case <-ctx.Done():
			return
		}
	}()

	err = MainLoop(&s, dispatch)
	if err != nil {
		return err
	}
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrTickBudget) || errors.Is(cause, errShutdown) || errors.Is(cause, context.Canceled) {
		return nil
	}
	return cause
}

func initModules(s *state.State, opts RunOptions) error {
	var modules []state.NyModule
	modules = append(modules, &SimModule{opts: opts})
	modules = append(modules, &MetricsModule{addr: opts.MetricsAddr})

	for _, module := range modules {
		s.Modules[reflect.TypeOf(module).String()] = module
		if err := module.Init(s); err != nil {
			return err
		}
	}
	return nil
}

func MainLoop(s *state.State, dispatch <-chan func(*state.State) error) error {
	s.Log.Debug("started main loop")
	s.Started.Store(true)
	for {
		select {
		case fun := <-dispatch:
			if fun == nil {
				goto endLoop
			}
			start := time.Now()
			err := fun(s)
			if err != nil {
				s.Log.Error("error occurred during dispatch: ", "error", err)
				s.Cancel(err)
			}
			elapsed := time.Since(start)
			if elapsed > state.SlowTick {
				s.Log.Warn("dispatch took a long time!", "fun", runtime.FuncForPC(reflect.ValueOf(fun).Pointer()).Name(), "elapsed", elapsed, "len", len(dispatch))
			}
		case <-s.Context.Done():
			goto endLoop
		}
	}
endLoop:
	s.Log.Info("stopped main loop", "reason", context.Cause(s.Context).Error())
	Stop(s)
	return nil
}

func Stop(s *state.State) {
	if s.Stopping.Swap(true) {
		return // don't stop twice
	}
	s.Cancel(context.Canceled)
	if s.DispatchChannel != nil {
		close(s.DispatchChannel)
		s.DispatchChannel = nil
	}
	s.Log.Info("cleaning up modules")
	for moduleName, module := range s.Modules {
		err := module.Cleanup(s)
		if err != nil {
			s.Log.Error("error occurred during Stop: ", "module", moduleName, "error", err)
		}
	}
	s.Log.Info("stopped")
}
