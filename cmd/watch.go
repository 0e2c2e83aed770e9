// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/ergostat/pkg/csafe"
	"github.com/Thermoquad/ergostat/pkg/pm"
)

var (
	watchInterval    time.Duration
	watchForcePlot   bool
	watchMetricsAddr string
)

// transportFailureLimit is the number of consecutive link failures that
// trigger a reconnect
const transportFailureLimit = 3

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Interactive TUI for watching and pacing a workout",
	Long: `Watch a workout via an interactive terminal UI.

Features:
  - Live time, distance, stroke rate, power, pace and heart rate
  - Power bar and force curve of the last stroke (--forceplot)
  - Set a pace target for a just-row workout
  - Link statistics and event logging
  - Prometheus metrics on --metrics-addr
  - Automatic reconnection on connection loss

Tab switches between the pace input and the Set Pace button, Enter applies.

Supports serial, WebSocket and simulated connections.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", 500*time.Millisecond, "Time between polls")
	watchCmd.Flags().BoolVar(&watchForcePlot, "forceplot", false, "Capture the force curve of every stroke")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")
	rootCmd.AddCommand(watchCmd)
}

// sessionManager handles session lifecycle and reconnection
type sessionManager struct {
	session  *pm.Session
	connInfo string
	metrics  *pm.Metrics
	mu       sync.RWMutex
	p        *tea.Program
	done     chan struct{}
}

func (sm *sessionManager) getSession() *pm.Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.session
}

func (sm *sessionManager) setSession(s *pm.Session, connInfo string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.session = s
	sm.connInfo = connInfo
}

func (sm *sessionManager) open() (*pm.Session, string, error) {
	return OpenSession(cfg, logger, pm.WithMetrics(sm.metrics))
}

func runWatch(cmd *cobra.Command, args []string) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := pm.NewMetrics(reg)

	sm := &sessionManager{
		metrics: metrics,
		done:    make(chan struct{}),
	}
	s, connInfo, err := sm.open()
	if err != nil {
		return err
	}
	sm.setSession(s, connInfo)

	if watchMetricsAddr != "" {
		srv := &http.Server{
			Addr:              watchMetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	m := initialWatchModel(sm, connInfo)

	p := tea.NewProgram(m, tea.WithAltScreen())
	sm.p = p

	go sm.pollLoop()

	_, runErr := p.Run()
	close(sm.done)
	if s := sm.getSession(); s != nil {
		s.Close()
	}
	if runErr != nil {
		return fmt.Errorf("TUI error: %v", runErr)
	}
	return nil
}

// pollLoop polls the monitor until shutdown, reconnecting after repeated
// link failures
func (sm *sessionManager) pollLoop() {
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-sm.done:
			return
		case <-ticker.C:
		}

		s := sm.getSession()
		ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.ReadTimeout+watchInterval)
		mon, err := s.GetMonitor(ctx, false)
		cancel()
		if err == nil && watchForcePlot && mon.Status == csafe.MachineInUse {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			mon.ForceCurve, err = s.ForceCurve(ctx)
			cancel()
		}

		sm.p.Send(watchPollMsg{at: time.Now(), monitor: mon, err: err, stats: s.Stats()})

		var terr *pm.TransportError
		if errors.As(err, &terr) {
			failures++
		} else {
			failures = 0
		}
		if failures >= transportFailureLimit {
			sm.p.Send(connectionLostMsg{})
			if !sm.reconnect() {
				return
			}
			failures = 0
		}
	}
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (sm *sessionManager) reconnect() bool {
	if s := sm.getSession(); s != nil {
		s.Close()
	}

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-sm.done:
			return false
		case <-time.After(backoff):
		}

		s, connInfo, err := sm.open()
		if err == nil {
			sm.setSession(s, connInfo)
			sm.p.Send(reconnectedMsg{connInfo: connInfo})
			return true
		}
		logger.Info("reconnect failed", zap.Error(err), zap.Duration("backoff", backoff))

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// setPace programs a just-row workout with a pace target
func (sm *sessionManager) setPace(pace float64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := sm.getSession().SetWorkout(ctx, pm.WorkoutParams{Goal: pm.GoalNone, Pace: pace})
		return workoutResultMsg{pace: pace, err: err}
	}
}
