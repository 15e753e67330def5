package paywall

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Janitor runs the cleanup sweep on a fixed interval. It is owned by the
// process lifecycle: Start launches the loop and Stop cancels it and joins
// any in-flight sweep.
type Janitor struct {
	service  *Service
	interval time.Duration
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJanitor creates a janitor over the given service.
func NewJanitor(service *Service, interval time.Duration, logger *zap.Logger) *Janitor {
	return &Janitor{
		service:  service,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the sweep loop. Calling Start more than once is invalid.
func (j *Janitor) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				expired, err := j.service.Cleanup(ctx)
				if err != nil {
					j.logger.Error("cleanup sweep failed", zap.Error(err))
					continue
				}
				if expired > 0 {
					j.logger.Info("cleanup sweep expired requests",
						zap.Int("expired", expired),
					)
				}
			}
		}
	}()

	j.logger.Info("started payment request janitor",
		zap.Duration("interval", j.interval),
	)
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
}
