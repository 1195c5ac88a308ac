package job

import (
	"context"
	"log"
	"time"

	"coinledger/internal/config"
	"coinledger/internal/ledger"
)

// SquashJob periodically compacts the journal so transaction history does not
// grow without bound.
type SquashJob struct {
	ledger   *ledger.Ledger
	interval time.Duration
}

func NewSquashJob(l *ledger.Ledger, cfg *config.Config) *SquashJob {
	return &SquashJob{
		ledger:   l,
		interval: time.Duration(cfg.Business.SquashIntervalMinutes) * time.Minute,
	}
}

func (j *SquashJob) Start(ctx context.Context) {
	if j.interval <= 0 {
		log.Println("[SquashJob] disabled by configuration")
		return
	}

	log.Printf("[SquashJob] started, interval %v", j.interval)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[SquashJob] stopping")
			return
		case <-ticker.C:
			if err := j.ledger.Squash(ctx); err != nil {
				log.Printf("[SquashJob] squash failed: %v", err)
			}
		}
	}
}
