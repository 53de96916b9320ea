package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	// Cancel context to signal all components
	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	err := a.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	if a.positions != nil {
		a.positions.Stop()
	}

	for _, poller := range a.pollers {
		poller.Stop()
	}

	a.wg.Wait()

	a.closeResources()

	a.logger.Info("application-shutdown-complete")

	return nil
}

// closeResources releases the cache and the RPC connection.
func (a *App) closeResources() {
	if a.marketCache != nil {
		a.marketCache.Close()
	}
	if a.provider != nil {
		a.provider.Close()
	}
}
