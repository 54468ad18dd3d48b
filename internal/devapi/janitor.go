package devapi

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Sweeper drops expired entries and returns how many it removed.
type Sweeper interface {
	Sweep() int
}

// Janitor periodically sweeps expired tokens, codes and rate limit records.
type Janitor struct {
	cron     *cron.Cron
	schedule string
	targets  map[string]Sweeper
	metrics  *Metrics

	mu        sync.Mutex
	isRunning bool
}

// NewJanitor creates a janitor that runs on schedule, which accepts the
// standard five cron fields and descriptors such as "@every 1m".
func NewJanitor(schedule string, targets map[string]Sweeper, metrics *Metrics) *Janitor {
	return &Janitor{
		cron:     cron.New(),
		schedule: schedule,
		targets:  targets,
		metrics:  metrics,
	}
}

// Start schedules the sweep and starts the cron runner.
func (j *Janitor) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.isRunning {
		return nil
	}

	if _, err := j.cron.AddFunc(j.schedule, j.RunOnce); err != nil {
		return fmt.Errorf("invalid janitor schedule '%s': %w", j.schedule, err)
	}

	j.cron.Start()
	j.isRunning = true
	log.Info().Str("schedule", j.schedule).Msg("Janitor started")
	return nil
}

// Stop waits for a running sweep to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.isRunning {
		return
	}

	ctx := j.cron.Stop()
	<-ctx.Done()
	j.isRunning = false
	log.Info().Msg("Janitor stopped")
}

// RunOnce sweeps every target.
func (j *Janitor) RunOnce() {
	total := 0
	for kind, target := range j.targets {
		n := target.Sweep()
		if n > 0 {
			j.metrics.Swept.WithLabelValues(kind).Add(float64(n))
		}
		total += n
	}
	if total > 0 {
		log.Debug().Int("removed", total).Msg("Janitor swept expired records")
	}
}
