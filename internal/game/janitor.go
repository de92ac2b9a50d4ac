package game

import (
	"context"
	"time"
)

// RunJanitor deletes rooms older than the room TTL once at startup and then
// every interval, until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) error {
	if s.opts.RoomTTL <= 0 || interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	n, err := s.store.DeleteExpired(ctx, s.now().Add(-s.opts.RoomTTL))
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("deleting expired rooms", "error", err)
		}
		return
	}
	if n > 0 {
		roomsExpired.Add(float64(n))
		s.logger.Info("deleted expired rooms", "count", n)
	}
}
