// Package orchestrator wires every pipeline component into one runnable
// simulation: Ingestor -> Clearinghouse -> per-payer Adjudicators ->
// BillingAggregator, with CorrelationRegistry and ARAgingService
// observing throughout.
//
// Grounded on cmd/orders/main.go's construction order and
// internal/risk.Engine's start/stop lifecycle, generalized from a
// single-service wiring to an N-stage pipeline.
package orchestrator

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridianhealth/claimsim/internal/adjudication"
	"github.com/meridianhealth/claimsim/internal/aging"
	"github.com/meridianhealth/claimsim/internal/billing"
	"github.com/meridianhealth/claimsim/internal/cache"
	"github.com/meridianhealth/claimsim/internal/claims"
	"github.com/meridianhealth/claimsim/internal/clearinghouse"
	"github.com/meridianhealth/claimsim/internal/config"
	"github.com/meridianhealth/claimsim/internal/denial"
	"github.com/meridianhealth/claimsim/internal/ingest"
	"github.com/meridianhealth/claimsim/internal/jobqueue"
	"github.com/meridianhealth/claimsim/internal/metrics"
	"github.com/meridianhealth/claimsim/internal/notify"
	"github.com/meridianhealth/claimsim/internal/ratelimit"
	"github.com/meridianhealth/claimsim/internal/registry"
	"github.com/meridianhealth/claimsim/internal/store"
	"github.com/meridianhealth/claimsim/shared/events"
)

// Default queue concurrency. Q_claims and Q_remittance default to a
// single worker each to preserve submission order and serialize billing
// writes; per-payer queues default to payerConcurrencyFor's
// delay-scaling rule unless a payer overrides it explicitly.
const (
	defaultClaimsConcurrency     = 1
	defaultRemittanceConcurrency = 1

	breakerMaxFailures = 5
	breakerCooldown    = 30 * time.Second
)

// payerConcurrencyFor scales a payer queue's worker count with its
// configured average delay, so end-to-end throughput stays roughly
// independent of how slow any one payer is simulated to be. The
// bottleneck is the simulated-delay sleep, not CPU work, so a slower
// payer needs more concurrent workers to match a faster one's
// throughput.
func payerConcurrencyFor(delay claims.DelayRange) int {
	avgMS := float64(delay.MinMS+delay.MaxMS) / 2
	avg := time.Duration(avgMS) * time.Millisecond
	switch {
	case avg > 10*time.Second:
		return 20
	case avg > 5*time.Second:
		return 15
	case avg > 2*time.Second:
		return 10
	default:
		return 5
	}
}

// RunState is the orchestrator's coarse lifecycle state.
type RunState string

const (
	StateIdle    RunState = "idle"
	StateRunning RunState = "running"
	StateStopped RunState = "stopped"
)

// Orchestrator owns every queue, service and adapter in one simulation
// run and coordinates their startup/shutdown order.
type Orchestrator struct {
	log *zap.Logger

	claimStore  store.ClaimStore
	notifier    notify.Notifier
	reportCache *cache.ReportCache
	metrics     *metrics.Sink

	registry *registry.Registry
	aging    *aging.Service
	billing  *billing.Aggregator

	qClaims *jobqueue.Queue[claims.ClaimEnvelope]
	qPayers map[string]*jobqueue.Queue[claims.ClaimEnvelope]
	qRemit  *jobqueue.Queue[adjudication.RemittanceMsg]

	adjudicators  map[string]*adjudication.Adjudicator
	clearinghouse *clearinghouse.Clearinghouse
	ingestor      *ingest.Ingestor

	billingInterval time.Duration
	agingInterval   time.Duration

	mu    sync.Mutex
	state RunState

	cancel context.CancelFunc
	eg     *errgroup.Group

	startedAt time.Time
}

// New builds every component from cfg and source, without starting
// anything. Call Start to begin the pipeline.
func New(cfg *config.Config, source ingest.ClaimSource, totalHint int64, log *zap.Logger) (*Orchestrator, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	claimStore := store.ClaimStore(store.NoopStore{})
	if cfg.Store.PostgresDSN != "" {
		pg, err := store.Open(cfg.Store.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: connect claim store: %w", err)
		}
		claimStore = pg
	}
	claimStore = store.WithBreaker(claimStore, breakerMaxFailures, breakerCooldown)

	notifier := notify.Notifier(notify.Noop{})
	if cfg.Notify.NATSURL != "" {
		n, err := notify.DialNATS(cfg.Notify.NATSURL, log)
		if err != nil {
			log.Warn("orchestrator: NATS unavailable, falling back to no-op notifier", zap.Error(err))
		} else {
			notifier = n
		}
	}
	notifier = notify.WithBreaker(notifier, breakerMaxFailures, breakerCooldown)

	var redisClient *redis.Client
	if cfg.Cache.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
	}
	reportCache := cache.New(redisClient, 30*time.Second)

	var metricsSink *metrics.Sink
	if cfg.Metrics.InfluxURL != "" {
		metricsSink = metrics.New(cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket)
	}

	agingThresholds := aging.Thresholds{
		CriticalAgeMinutes:  cfg.Aging.CriticalAgeMinutes,
		HighVolumeThreshold: cfg.Aging.HighVolumeThreshold,
		PayerDelayThreshold: cfg.Aging.PayerDelayThreshold,
	}
	agingSvc := aging.New(agingThresholds, log.Named("aging"))
	agingSvc.OnAlert(func(a aging.Alert) {
		_ = notifier.Publish(context.Background(), events.AgingAlertType, events.AgingAlertData{
			Type:       string(a.Type),
			Severity:   string(a.Severity),
			Message:    a.Message,
			PayerID:    a.PayerID,
			ClaimCount: a.ClaimCount,
			Timestamp:  a.Timestamp,
		})
	})

	reg := registry.New(log.Named("registry"))

	billingInterval := time.Duration(cfg.Billing.ReportingIntervalSeconds) * time.Second
	billingAgg := billing.New(reg, agingSvc, claimStore, billingInterval, log.Named("billing"))
	billingAgg.OnClaimProcessed(func(rem claims.Remittance) {
		_, paid, _ := rem.Totals()
		_ = notifier.Publish(context.Background(), events.RemittanceIssued, events.RemittanceData{
			CorrelationID: rem.CorrelationID,
			ClaimID:       rem.ClaimID,
			PayerID:       rem.PayerID,
			OverallStatus: string(rem.OverallStatus),
			TotalPaid:     paid.String(),
			ProcessedAt:   rem.ProcessedAt,
		})
	})

	remitConcurrency := cfg.Queues.RemittanceConcurrency
	if remitConcurrency <= 0 {
		remitConcurrency = defaultRemittanceConcurrency
	}
	qRemit := jobqueue.New[adjudication.RemittanceMsg]("remittance", remitConcurrency)

	catalog := denial.New()

	qPayers := make(map[string]*jobqueue.Queue[claims.ClaimEnvelope], len(cfg.Payers))
	payerNames := make(map[string]string, len(cfg.Payers))
	adjudicators := make(map[string]*adjudication.Adjudicator, len(cfg.Payers))
	firstPayerID := ""

	for i, p := range cfg.Payers {
		if i == 0 {
			firstPayerID = p.PayerID
		}
		payerNames[p.PayerID] = p.Name

		delay := claims.DelayRange{MinMS: p.ProcessingDelayMS.Min, MaxMS: p.ProcessingDelayMS.Max}
		pc := claims.PayerConfig{
			PayerID:                   p.PayerID,
			Name:                      p.Name,
			Delay:                     delay,
			PayerPercentage:           p.AdjudicationRules.PayerPercentage,
			CopayFixed:                p.AdjudicationRules.CopayFixedAmount,
			DeductiblePercentage:      p.AdjudicationRules.DeductiblePercentage,
			DenialRate:                p.DenialSettings.DenialRate,
			HardDenialRate:            p.DenialSettings.HardDenialRate,
			PreferredDenialCategories: p.DenialSettings.PreferredCategories,
		}

		payerQueueConcurrency := p.Concurrency
		if payerQueueConcurrency <= 0 {
			payerQueueConcurrency = payerConcurrencyFor(delay)
		}

		adjudicators[p.PayerID] = adjudication.New(pc, catalog, claimStore, qRemit, log.Named("adjudicator."+p.PayerID))
		qPayers[p.PayerID] = jobqueue.New[claims.ClaimEnvelope]("payer."+p.PayerID, payerQueueConcurrency)
	}

	ch := clearinghouse.New(qPayers, payerNames, firstPayerID, reg, agingSvc, claimStore, log.Named("clearinghouse"))

	claimsConcurrency := cfg.Queues.ClaimsConcurrency
	if claimsConcurrency <= 0 {
		claimsConcurrency = defaultClaimsConcurrency
	}
	qClaims := jobqueue.New[claims.ClaimEnvelope]("claims", claimsConcurrency)

	limiter := ratelimit.New(cfg.Ingestion.RateLimit)
	ingestor := ingest.New(source, limiter, qClaims, totalHint, claimStore, log.Named("ingestor"))

	return &Orchestrator{
		log:             log,
		claimStore:      claimStore,
		notifier:        notifier,
		reportCache:     reportCache,
		metrics:         metricsSink,
		registry:        reg,
		aging:           agingSvc,
		billing:         billingAgg,
		qClaims:         qClaims,
		qPayers:         qPayers,
		qRemit:          qRemit,
		adjudicators:    adjudicators,
		clearinghouse:   ch,
		ingestor:        ingestor,
		billingInterval: billingInterval,
		agingInterval:   time.Duration(cfg.Aging.ReportingIntervalSeconds) * time.Second,
		state:           StateIdle,
	}, nil
}

// Start wires the pipeline's queue handlers leaf-first (remittance
// consumer before payer queues before the claims queue) and begins
// ingestion. Start is not re-entrant; call it exactly once per
// Orchestrator.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateIdle {
		return fmt.Errorf("orchestrator: Start called in state %s", o.state)
	}

	runCtx, cancel := context.WithCancel(ctx)
	eg, runCtx := errgroup.WithContext(runCtx)
	o.cancel = cancel
	o.eg = eg

	o.qRemit.Process(runCtx, o.billing.Handle)

	for payerID, q := range o.qPayers {
		adj := o.adjudicators[payerID]
		q.Process(runCtx, adj.Handle)
	}

	o.qClaims.Process(runCtx, o.clearinghouse.Handle)

	if o.billingInterval > 0 {
		o.billing.StartPeriodicReports(runCtx, o.billingInterval)
	}
	if o.agingInterval > 0 {
		o.aging.StartPeriodicReports(runCtx, o.agingInterval)
	}
	if o.metrics != nil {
		o.startMetricsReporting(runCtx)
	}

	o.ingestor.Start()

	o.startedAt = time.Now()
	o.state = StateRunning
	o.log.Info("orchestrator: started", zap.Int("payers", len(o.qPayers)))
	return nil
}

// Stop halts ingestion, gives in-flight work a chance to drain, then
// stops every queue in data-flow order (claims -> payers ->
// remittance), the reverse of Start's leaf-first wiring.
func (o *Orchestrator) Stop(drain time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateRunning {
		return fmt.Errorf("orchestrator: Stop called in state %s", o.state)
	}

	o.ingestor.Stop()

	if drain > 0 {
		time.Sleep(drain)
	}

	o.qClaims.Stop()
	for _, q := range o.qPayers {
		q.Stop()
	}
	o.qRemit.Stop()

	o.cancel()
	if err := o.eg.Wait(); err != nil {
		o.log.Warn("orchestrator: shutdown group returned error", zap.Error(err))
	}

	o.notifier.Close()
	o.metrics.Close()

	o.state = StateStopped
	o.log.Info("orchestrator: stopped")
	return nil
}

// startMetricsReporting writes a billing snapshot and one aging
// snapshot per payer to the InfluxDB sink every reporting interval
// until ctx is cancelled.
func (o *Orchestrator) startMetricsReporting(ctx context.Context) {
	interval := o.billingInterval
	if interval <= 0 {
		interval = o.agingInterval
	}
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap := o.billing.Snapshot()
				if err := o.metrics.WriteBillingSnapshot(ctx, snap.Totals.TotalClaims, snap.Totals.TotalBilled.Float64(), snap.Totals.TotalPaid.Float64()); err != nil {
					o.log.Warn("metrics: write billing snapshot failed", zap.Error(err))
				}

				for payerID, report := range o.aging.GenerateReport() {
					if err := o.metrics.WriteAgingSnapshot(ctx, payerID, report.OutstandingCount, report.AverageAgeMinutes); err != nil {
						o.log.Warn("metrics: write aging snapshot failed", zap.Error(err))
					}
				}
			}
		}
	}()
}

// Status is the control-surface snapshot returned by status().
type Status struct {
	State   RunState
	Elapsed time.Duration
	Ingest  ingest.Status
}

// Status reports the orchestrator's current run state and ingest
// progress.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	state := o.state
	started := o.startedAt
	o.mu.Unlock()

	var elapsed time.Duration
	if !started.IsZero() {
		elapsed = time.Since(started)
	}

	return Status{State: state, Elapsed: elapsed, Ingest: o.ingestor.Status()}
}

// Stats is the control-surface snapshot returned by stats(), combining
// every component's metrics into one payload.
type Stats struct {
	Queues      map[string]jobqueue.Stats
	Billing     billing.Snapshot
	Aging       map[string]aging.PayerReport
	Correlation registry.StateStats
}

// Stats gathers a point-in-time snapshot across every component and
// refreshes the ReportCache for subsequent reads.
func (o *Orchestrator) Stats() Stats {
	queueStats := make(map[string]jobqueue.Stats, len(o.qPayers)+2)
	queueStats["claims"] = o.qClaims.Stats()
	queueStats["remittance"] = o.qRemit.Stats()
	for payerID, q := range o.qPayers {
		queueStats["payer."+payerID] = q.Stats()
	}

	snap := Stats{
		Queues:      queueStats,
		Billing:     o.billing.Snapshot(),
		Aging:       o.aging.GenerateReport(),
		Correlation: o.registry.StateStats(),
	}

	if o.reportCache != nil {
		_ = o.reportCache.Set(context.Background(), snap)
	}
	return snap
}

// SystemInfo is the control-surface snapshot returned by system_info().
type SystemInfo struct {
	CPUCount         int
	WorkerThreads    int
	MemoryAllocBytes uint64
	MemorySysBytes   uint64
	Uptime           time.Duration
}

// SystemInfo reports host CPU count, live goroutine count (the
// simulator's worker thread count), current memory usage, and the
// run's uptime.
func (o *Orchestrator) SystemInfo() SystemInfo {
	o.mu.Lock()
	started := o.startedAt
	o.mu.Unlock()

	var uptime time.Duration
	if !started.IsZero() {
		uptime = time.Since(started)
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return SystemInfo{
		CPUCount:         runtime.NumCPU(),
		WorkerThreads:    runtime.NumGoroutine(),
		MemoryAllocBytes: mem.Alloc,
		MemorySysBytes:   mem.Sys,
		Uptime:           uptime,
	}
}
