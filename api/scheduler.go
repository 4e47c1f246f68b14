/*
scheduler.go - Automated KPI recomputation scheduler

PURPOSE:
  Periodically recomputes the current-period KPI snapshot for every
  provider with published resources, so dashboards read a warm cache
  instead of aggregating on demand.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Recomputes the current calendar month per provider
  - Upserts are idempotent: repeated runs overwrite the same snapshot

CONFIGURATION:
  - CheckInterval: How often to recompute (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewKPIScheduler(resources, kpis)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: CalculateKPIs endpoint (manual recomputation)
  - engine/kpi.go: KPIAggregator
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/buildwise/resource-engine/engine"
)

// KPIScheduler handles automated KPI snapshot refreshes.
type KPIScheduler struct {
	Resources     *engine.ResourceService
	KPIs          *engine.KPIAggregator
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewKPIScheduler creates a new scheduler.
func NewKPIScheduler(resources *engine.ResourceService, kpis *engine.KPIAggregator) *KPIScheduler {
	return &KPIScheduler{
		Resources:     resources,
		KPIs:          kpis,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ks *KPIScheduler) Start() {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if !ks.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ks.ticker = time.NewTicker(ks.CheckInterval)
	ks.wg.Add(1)

	go ks.run()

	log.Printf("[Scheduler] Started with check interval: %v", ks.CheckInterval)
}

// Stop stops the scheduler.
func (ks *KPIScheduler) Stop() {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if ks.ticker != nil {
		ks.ticker.Stop()
		close(ks.stop)
		ks.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (ks *KPIScheduler) run() {
	defer ks.wg.Done()

	// Run immediately on start
	ks.recomputeAll()

	for {
		select {
		case <-ks.ticker.C:
			ks.recomputeAll()
		case <-ks.stop:
			return
		}
	}
}

func (ks *KPIScheduler) recomputeAll() {
	ctx := context.Background()
	period := currentMonth(time.Now().UTC())

	resources, err := ks.Resources.List(ctx, engine.ResourceFilter{})
	if err != nil {
		log.Printf("[Scheduler] Error listing resources: %v", err)
		return
	}

	providers := make(map[engine.ProviderID]bool)
	for _, r := range resources {
		providers[r.ProviderID] = true
	}

	computed := 0
	for provider := range providers {
		if _, err := ks.KPIs.Compute(ctx, provider, period); err != nil {
			log.Printf("[Scheduler] Error computing KPIs for %s: %v", provider, err)
			continue
		}
		computed++
	}

	if computed > 0 {
		log.Printf("[Scheduler] Refreshed KPI snapshots for %d providers (%s)", computed, period)
	}
}

// RunNow triggers an immediate refresh (for testing/admin).
func (ks *KPIScheduler) RunNow() {
	ks.recomputeAll()
}

// GetNextRunTime returns when the next scheduled refresh will occur.
func (ks *KPIScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(ks.CheckInterval)
}

// currentMonth returns the calendar month containing t as an inclusive
// day range.
func currentMonth(t time.Time) engine.DateRange {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return engine.DateRange{Start: engine.DayOf(start), End: engine.DayOf(end)}
}
