// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package controller wires the Policy Parser, Classifier Programmer, Event
// Dispatcher and Timer Service into the agent's three concurrent workers
// (packet-log/dispatch loop, timer worker, signal handler) and drives the
// orderly-shutdown path. Controller implements services.Service, though
// unlike the teacher's hot-reloadable services it never restarts once
// stopped: policy is immutable for the life of the process, so Start may
// only be called once per Controller.
package controller

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/matislovas/netcontrol-go/internal/classifier"
	"github.com/matislovas/netcontrol-go/internal/logging"
	"github.com/matislovas/netcontrol-go/internal/nflog"
	"github.com/matislovas/netcontrol-go/internal/policy"
	"github.com/matislovas/netcontrol-go/internal/quota"
	"github.com/matislovas/netcontrol-go/internal/runtimeconfig"
	"github.com/matislovas/netcontrol-go/internal/services"
	"github.com/matislovas/netcontrol-go/internal/timer"
)

// shutdownSignals mirrors the original implementation's signal set: every
// one of these, not just the conventional termination signals, triggers an
// orderly deinit and exit. SIGWINCH/SIGCHLD/SIGCONT are included because the
// original agent never distinguished signal cause from signal arrival.
var shutdownSignals = []os.Signal{
	syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT, syscall.SIGTSTP,
	syscall.SIGWINCH, syscall.SIGHUP, syscall.SIGCHLD, syscall.SIGCONT,
}

// logOpener binds the packet-log channel. Production Controllers use
// nflog.Open; tests substitute a fake so Run can be exercised without a
// real NFLOG socket.
type logOpener func(ctx context.Context, groups []uint16, logger *logging.Logger) (nflog.Channel, error)

// Controller owns the lifetime of the three concurrent agents: the Event
// Dispatcher (also the packet-log consumer), the Timer Service, and the
// signal handler. Start launches them and returns once they are running;
// Stop tears them down; Run is the common Start-then-wait-for-shutdown
// path used by cmd/netcontrold.
type Controller struct {
	logger  *logging.Logger
	openLog logOpener

	conn classifier.Conn
	cfg  runtimeconfig.Config

	programmer *classifier.Programmer
	dispatcher *quota.Dispatcher
	timerSvc   *timer.Service
	logChannel nflog.Channel

	mu        sync.Mutex
	running   bool
	lastErr   error
	runCancel context.CancelFunc
	stopped   chan struct{}
}

var _ services.Service = (*Controller)(nil)

// New constructs a Controller around the production Linux implementations
// of the classifier connection and packet-log channel. Call Run, or
// Start/Stop, to parse cfg's policy file and serve it.
func New(logger *logging.Logger) *Controller {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &Controller{
		logger:  logger.WithComponent("controller"),
		openLog: nflog.Open,
	}
}

// Name satisfies services.Service.
func (c *Controller) Name() string { return "controller" }

// Status satisfies services.Service.
func (c *Controller) Status() services.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := services.Status{Name: "controller", Running: c.running}
	if c.lastErr != nil {
		st.Error = c.lastErr.Error()
	}
	return st
}

// Degraded reports the names of policy entries the Classifier Programmer
// could not enforce against after a runtime BatchRejected failure
// (spec.md §7: "the offending entry is marked Degraded (its enforcement
// is best-effort)"). An empty slice means every entry is fully enforced.
// It returns nil before Start/Run has programmed the classifier.
func (c *Controller) Degraded() []string {
	c.mu.Lock()
	programmer := c.programmer
	c.mu.Unlock()
	if programmer == nil {
		return nil
	}
	return programmer.Degraded()
}

// Configure sets the classifier connection and runtime configuration Start
// needs. Run calls it automatically; callers driving the Start/Stop
// lifecycle directly (the services.Service contract, which takes no
// connection or config) must call it before Start.
func (c *Controller) Configure(conn classifier.Conn, cfg runtimeconfig.Config) {
	c.conn = conn
	c.cfg = cfg
}

// Run parses the policy file named by cfg, programs the classifier, binds
// the packet-log groups, and blocks until a shutdown signal arrives or ctx
// is canceled. It is Configure, then Start, then a wait for the resulting
// shutdown to finish; cmd/netcontrold uses it as the single top-level
// call, while Start/Stop exist for callers (and tests) that need to
// control shutdown independently of ctx, per services.Service.
func (c *Controller) Run(ctx context.Context, conn classifier.Conn, cfg runtimeconfig.Config) error {
	c.Configure(conn, cfg)
	if err := c.Start(ctx); err != nil {
		return err
	}
	<-c.stopped
	return nil
}

// Start satisfies services.Service: it parses the policy file, programs
// the classifier, binds the packet-log channel, and launches the
// dispatcher, timer and signal-handling goroutines, then returns. It does
// not block waiting for shutdown; call Stop, cancel ctx, or send one of
// shutdownSignals to end the run. Callers that only use the Start/Stop
// lifecycle (rather than Run) must call Configure first.
func (c *Controller) Start(ctx context.Context) error {
	if c.conn == nil {
		return fmt.Errorf("netcontrol: controller has no classifier connection configured")
	}

	parser := policy.NewParser(nil, c.logger)
	pol, err := parser.ParseFile(c.cfg.PolicyPath)
	if err != nil {
		err = fmt.Errorf("netcontrol: loading policy: %w", err)
		c.setLastErr(err)
		return err
	}
	c.logger.Info("policy loaded", "data_entries", len(pol.Data), "time_entries", len(pol.Time))

	programmer := classifier.NewProgrammerWithTable(c.conn, c.logger, c.cfg.TableName)
	if err := programmer.Init(pol); err != nil {
		err = fmt.Errorf("netcontrol: programming classifier: %w", err)
		c.setLastErr(err)
		return err
	}
	c.mu.Lock()
	c.programmer = programmer
	c.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	logChannel, err := c.openLog(runCtx, []uint16{classifier.DataQuotaGroup, classifier.TimeQuotaGroup}, c.logger)
	if err != nil {
		cancel()
		if derr := c.programmer.Deinit(); derr != nil {
			c.logger.Error("deinit failed", "error", derr)
		}
		err = fmt.Errorf("netcontrol: binding packet-log channel: %w", err)
		c.setLastErr(err)
		return err
	}
	c.logChannel = logChannel

	// The Timer Service's onFire callback needs the Dispatcher's mailbox,
	// and the Dispatcher needs the Timer Service as its Scheduler: break the
	// cycle by capturing the not-yet-assigned dispatcher pointer in a
	// closure, since the callback is only ever invoked well after both are
	// constructed below.
	var dispatcher *quota.Dispatcher
	c.timerSvc = timer.New(func(name string) { dispatcher.PostTimerFired(name) }, c.logger)
	c.dispatcher = quota.NewDispatcher(programmer, c.timerSvc, c.logger)
	dispatcher = c.dispatcher
	c.dispatcher.LoadPolicy(pol)

	c.mu.Lock()
	c.runCancel = cancel
	c.stopped = make(chan struct{})
	c.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.timerSvc.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, shutdownSignals...)

	c.setRunning(true)
	c.logger.Info("netcontrol running")

	dispatchDone := make(chan struct{})
	go func() {
		c.dispatcher.Run(runCtx, logChannel.Events())
		close(dispatchDone)
	}()

	go func() {
		select {
		case <-runCtx.Done():
			c.logger.Info("context canceled, shutting down")
		case sig := <-sigCh:
			c.logger.Info("signal received, shutting down", "signal", sig.String())
			c.dispatcher.PostShutdown()
		case <-dispatchDone:
			c.logger.Warn("dispatcher exited unexpectedly")
		}

		signal.Stop(sigCh)
		c.timerSvc.Stop()
		<-dispatchDone
		wg.Wait()
		if err := c.programmer.Deinit(); err != nil {
			c.logger.Error("deinit failed", "error", err)
		}
		logChannel.Close()

		c.setRunning(false)
		close(c.stopped)
	}()

	return nil
}

// Stop satisfies services.Service: it cancels the run started by Start or
// Run and waits for its goroutines to exit, bounded by ctx.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, stopped := c.runCancel, c.stopped
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) setRunning(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = v
}

func (c *Controller) setLastErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
}
