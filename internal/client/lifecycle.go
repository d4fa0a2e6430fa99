package client

import (
	"go.uber.org/zap"
)

// Shutdown stops background work and closes the session. It is safe to call
// more than once.
func (a *App) Shutdown() error {
	a.cancel()
	a.wg.Wait()

	a.mu.Lock()
	s := a.session
	a.session = nil
	a.room = nil
	a.mu.Unlock()
	if s == nil {
		return nil
	}
	a.logger.Info("Shutting down", zap.String("user", s.Username))
	return s.Close()
}
