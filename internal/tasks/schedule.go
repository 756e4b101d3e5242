package tasks

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// RunAnnouncementTicker refreshes the announcement once at start and then
// every interval until ctx is cancelled. A non-positive interval disables it.
func RunAnnouncementTicker(ctx context.Context, r announcementRefresher, interval time.Duration, logger *log.Logger) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	refresh := func() {
		msg, err := r.Refresh(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.WithError(err).Warn("refresh announcement")
			}
			return
		}
		logger.WithField("announced", msg != "").Debug("announcement refreshed")
	}

	refresh()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
