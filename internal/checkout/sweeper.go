package checkout

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultSweepInterval = time.Minute

// RunSweeper calls ExpireStalePayments every interval until ctx is done.
func RunSweeper(ctx context.Context, svc Service, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("checkout: payment expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("checkout: payment expiry sweeper stopped")
			return
		case <-ticker.C:
			n, err := svc.ExpireStalePayments(ctx)
			if err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("checkout: payment expiry sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int("expired", n).Msg("checkout: payment expiry sweep finished")
			}
		}
	}
}
