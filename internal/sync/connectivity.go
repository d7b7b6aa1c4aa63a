package sync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"kashflow-sync/internal/logger"
)

// Signal is the observable online/offline state. Subscribers receive the
// new state on every transition; repeated Sets of the same value are silent.
type Signal struct {
	mu     sync.Mutex
	online bool
	subs   map[<-chan bool]chan bool
}

func NewSignal(online bool) *Signal {
	return &Signal{
		online: online,
		subs:   make(map[<-chan bool]chan bool),
	}
}

func (s *Signal) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Set records the state and reports whether it changed.
func (s *Signal) Set(online bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.online == online {
		return false
	}
	s.online = online
	for _, ch := range s.subs {
		// A slow subscriber only needs the latest state.
		select {
		case ch <- online:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- online
		}
	}
	logger.Log.Info("Connectivity changed", zap.Bool("online", online))
	return true
}

// Subscribe returns a channel receiving each transition.
func (s *Signal) Subscribe() <-chan bool {
	ch := make(chan bool, 1)
	s.mu.Lock()
	s.subs[ch] = ch
	s.mu.Unlock()
	return ch
}

func (s *Signal) Unsubscribe(ch <-chan bool) {
	s.mu.Lock()
	delete(s.subs, ch)
	s.mu.Unlock()
}

// Pinger checks that the remote service answers.
type Pinger interface {
	Ping(ctx context.Context, path string) error
}

// Monitor probes the remote service and feeds the result into a Signal.
type Monitor struct {
	pinger   Pinger
	path     string
	interval time.Duration
	timeout  time.Duration
	signal   *Signal
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewMonitor(pinger Pinger, path string, interval time.Duration, signal *Signal) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	timeout := interval / 2
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Monitor{
		pinger:   pinger,
		path:     path,
		interval: interval,
		timeout:  timeout,
		signal:   signal,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start probes once right away and then on every interval until Stop.
func (m *Monitor) Start() {
	logger.Log.Info("Starting connectivity monitor",
		zap.String("path", m.path),
		zap.Duration("interval", m.interval))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.probe()
		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.probe()
			}
		}
	}()
}

func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
	logger.Log.Info("Stopped connectivity monitor")
}

func (m *Monitor) probe() {
	ctx, cancel := context.WithTimeout(m.ctx, m.timeout)
	defer cancel()

	err := m.pinger.Ping(ctx, m.path)
	if err != nil && m.ctx.Err() != nil {
		return
	}
	if err != nil {
		logger.Log.Debug("Connectivity probe failed", zap.Error(err))
	}
	m.signal.Set(err == nil)
}
