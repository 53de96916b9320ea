package app

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("network", a.cfg.Network),
		zap.Int("markets", len(a.pollers)),
		zap.Bool("wallet", a.provider != nil),
		zap.String("log-level", a.cfg.LogLevel))

	err := a.startComponents()
	if err != nil {
		_ = a.Shutdown()
		return err
	}

	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready", zap.String("http-addr", ":"+a.cfg.HTTPPort))

	return a.waitForShutdown()
}

func (a *App) startComponents() error {
	a.wg.Add(1)
	go a.runHTTPServer()

	for _, poller := range a.pollers {
		err := poller.Start(a.ctx)
		if err != nil {
			return fmt.Errorf("start book poller: %w", err)
		}
	}

	if a.provider == nil {
		a.logger.Info("wallet-components-not-started", zap.String("reason", "no private key"))
		return nil
	}

	if a.api.Token() == "" {
		_, err := a.EnsureToken(a.ctx)
		if err != nil {
			a.logger.Warn("login-failed-positions-unavailable", zap.Error(err))
		}
	}

	err := a.positions.Start(a.ctx)
	if err != nil {
		return fmt.Errorf("start positions tracker: %w", err)
	}
	a.healthChecker.Register("positions", a.positionsCheck)

	a.wg.Add(1)
	go a.runBalanceTracker()
	a.healthChecker.Register("balances", a.balancesCheck)

	return nil
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) runBalanceTracker() {
	defer a.wg.Done()
	err := a.balances.Run(a.ctx)
	if err != nil && !errors.Is(err, a.ctx.Err()) {
		a.logger.Error("balance-tracker-error", zap.Error(err))
	}
}

// positionsCheck fails when the positions snapshot is missing or older than three
// poll intervals.
func (a *App) positionsCheck() error {
	updated := a.positions.UpdatedAt()
	if updated.IsZero() {
		return errors.New("no positions snapshot yet")
	}
	if age := time.Since(updated); age > 3*a.cfg.PositionPollInterval {
		return fmt.Errorf("positions snapshot is %s old", age.Round(time.Second))
	}
	return nil
}

func (a *App) balancesCheck() error {
	if a.balances.Latest() == nil {
		return errors.New("no balance snapshot yet")
	}
	return nil
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
