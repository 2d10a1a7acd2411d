package core

import (
	"errors"

	"github.com/encodeous/dvr/perf"
	"github.com/encodeous/dvr/state"
)

// SimModule owns the simulated network and advances it on the main loop
type SimModule struct {
	opts    RunOptions
	Network *Network
	watch   chan interface{}
	stop    chan struct{}
	done    chan struct{}
}

func (m *SimModule) Init(s *state.State) error {
	n, err := NewNetwork(s.SimCfg, s.Log)
	if err != nil {
		return err
	}
	m.Network = n

	if m.opts.Watch {
		m.watch = make(chan interface{}, 128)
		m.stop = make(chan struct{})
		m.done = make(chan struct{})
		n.Subscribe(m.watch)
		go m.watchChanges(s)
	}

	if m.opts.TickDuration > 0 {
		s.RepeatTask(m.step, m.opts.TickDuration)
	} else {
		go func() {
			for s.Context.Err() == nil {
				_, err := s.DispatchWait(func(s *state.State) (any, error) {
					return nil, m.step(s)
				})
				if err != nil {
					return
				}
			}
		}()
	}
	return nil
}

func (m *SimModule) step(s *state.State) error {
	if m.opts.Ticks > 0 && m.Network.Tick() >= m.opts.Ticks {
		s.Cancel(ErrTickBudget)
		return nil
	}
	err := m.Network.Step()
	if err != nil {
		return err
	}
	if m.opts.Ticks > 0 && m.Network.Tick() >= m.opts.Ticks {
		s.Log.Info("tick budget reached", "tick", m.Network.Tick())
		s.Cancel(ErrTickBudget)
	}
	return nil
}

func (m *SimModule) watchChanges(s *state.State) {
	defer close(m.done)
	for {
		select {
		case msg := <-m.watch:
			logChange(s, msg)
		case <-m.stop:
			for {
				select {
				case msg := <-m.watch:
					logChange(s, msg)
				default:
					return
				}
			}
		}
	}
}

func logChange(s *state.State, msg interface{}) {
	c, ok := msg.(RouteChange)
	if !ok {
		return
	}
	s.Log.Info("route changed", "tick", c.Tick, "node", c.Node, "event", c.Event.String(), "desc", c.Desc)
}

func (m *SimModule) Cleanup(s *state.State) error {
	if m.Network == nil {
		return nil
	}
	if m.watch != nil {
		// the watcher keeps draining until the broadcaster lets go of the channel
		m.Network.Unsubscribe(m.watch)
		close(m.stop)
		<-m.done
	}
	var err error
	if m.opts.ShowRoutes != nil {
		err = m.Network.ShowRoutes(m.opts.ShowRoutes)
	}
	return errors.Join(err, m.Network.Close())
}

// MetricsModule exports prometheus and expvar metrics while the simulation runs
type MetricsModule struct {
	addr string
}

func (m *MetricsModule) Init(s *state.State) error {
	if m.addr == "" {
		return nil
	}
	return perf.Serve(s.Context, m.addr, s.Log)
}

func (m *MetricsModule) Cleanup(s *state.State) error {
	// the server shuts down with the context
	return nil
}
