package checker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"uptimizer/internal/models"
	"uptimizer/internal/state"
	"uptimizer/internal/storage"
)

// Runner drives the check cycle: once per tick it snapshots live
// state, probes due local endpoints and fetches due linked clients,
// persists meaningful local transitions, and applies all results back
// to live state as one batch.
type Runner struct {
	state          *state.State
	store          storage.HistoryStore
	prober         *Prober
	fetcher        *RemoteFetcher
	cache          *SavedCache
	logger         *zap.Logger
	maxConcurrency int

	inFlight atomic.Bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewRunner creates a Runner.
func NewRunner(st *state.State, store storage.HistoryStore, maxConcurrency int, logger *zap.Logger) *Runner {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Runner{
		state:          st,
		store:          store,
		prober:         NewProber(logger),
		fetcher:        NewRemoteFetcher(logger),
		cache:          NewSavedCache(),
		logger:         logger,
		maxConcurrency: maxConcurrency,
		stopChan:       make(chan struct{}),
	}
}

// Start runs the recurring cycle on the global interval. The interval
// is re-read from live state every tick, so a settings change takes
// effect without restarting the loop.
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		interval := r.tickInterval()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		r.logger.Info("check scheduler started", zap.Duration("interval", interval))
		for {
			select {
			case <-ticker.C:
				r.RunCycle(ctx)
				if next := r.tickInterval(); next != interval {
					interval = next
					ticker.Reset(interval)
					r.logger.Info("check interval changed", zap.Duration("interval", interval))
				}
			case <-r.stopChan:
				r.logger.Info("check scheduler stopped")
				return
			}
		}
	}()
}

// Stop shuts the scheduler loop down and waits for it.
func (r *Runner) Stop() {
	close(r.stopChan)
	r.wg.Wait()
}

func (r *Runner) tickInterval() time.Duration {
	interval := r.state.Settings().CheckIntervalSeconds
	if interval < models.MinCheckInterval {
		interval = models.MinCheckInterval
	}
	return time.Duration(interval) * time.Second
}

type probeJob struct {
	clientID string
	endpoint models.Endpoint
}

type probeOutcome struct {
	clientID   string
	endpointID string
	result     models.CheckResult
}

type fetchJob struct {
	client   models.Client
	knownIDs []string
}

type fetchOutcome struct {
	clientID string
	knownIDs []string
	statuses map[string]models.LiveStatus
	err      error
}

// RunCycle executes one full check cycle. Cycles never overlap: a tick
// arriving while one is in flight is skipped, not queued.
func (r *Runner) RunCycle(ctx context.Context) {
	if !r.inFlight.CompareAndSwap(false, true) {
		r.logger.Warn("previous check cycle still running, skipping tick")
		return
	}
	defer r.inFlight.Store(false)

	now := time.Now()
	nowTS := now.Unix()
	snap := r.state.Snapshot()

	globalInterval := snap.Settings.CheckIntervalSeconds
	if globalInterval < models.MinCheckInterval {
		globalInterval = models.MinCheckInterval
	}

	probes, fetches := r.dueTargets(snap, nowTS, globalInterval)
	if len(probes) == 0 && len(fetches) == 0 {
		r.logger.Debug("no targets due this cycle")
		return
	}
	r.logger.Info("check cycle starting",
		zap.Int("due_endpoints", len(probes)),
		zap.Int("due_links", len(fetches)))

	probeResults, fetchResults := r.execute(snap.Settings, probes, fetches)

	batch := state.Batch{
		Updates:      make(map[string]map[string]models.LiveStatus),
		Replacements: make(map[string]map[string]models.LiveStatus),
		Timestamp:    nowTS,
	}

	for _, out := range probeResults {
		r.persistLocal(ctx, out.endpointID, out.result)
		res := out.result
		if batch.Updates[out.clientID] == nil {
			batch.Updates[out.clientID] = make(map[string]models.LiveStatus)
		}
		batch.Updates[out.clientID][out.endpointID] = models.LiveStatus{
			Status:      res.Status,
			LastCheckTS: nowTS,
			Details:     &res,
		}
	}

	for _, out := range fetchResults {
		if out.err != nil {
			r.logger.Warn("linked client fetch failed",
				zap.String("client_id", out.clientID),
				zap.Error(out.err))
			// Surface the link failure on every endpoint currently
			// known for the client, keeping the endpoint list intact.
			// Remote-fetched data is never written to history.
			failed := make(map[string]models.LiveStatus, len(out.knownIDs))
			detail := "Link Error: " + out.err.Error()
			for _, id := range out.knownIDs {
				failed[id] = models.LiveStatus{
					Status:      models.StatusError,
					LastCheckTS: nowTS,
					Details:     &models.CheckResult{Status: models.StatusError, Details: detail},
				}
			}
			batch.Replacements[out.clientID] = failed
			continue
		}
		replaced := make(map[string]models.LiveStatus, len(out.statuses))
		for id, st := range out.statuses {
			status := st.Status
			if status == "" {
				status = models.StatusUnknown
			}
			// The remote's own timestamps are not trusted for local
			// staleness reasoning.
			replaced[id] = models.LiveStatus{
				Status:      status,
				LastCheckTS: nowTS,
				Details:     st.Details,
			}
		}
		batch.Replacements[out.clientID] = replaced
	}

	r.state.Apply(batch)

	duration := time.Since(now)
	r.logger.Info("check cycle complete",
		zap.Int("checked", len(probeResults)),
		zap.Int("links", len(fetchResults)),
		zap.Duration("duration", duration))
	if duration > time.Duration(globalInterval)*time.Second {
		r.logger.Warn("check cycle exceeded global interval",
			zap.Duration("duration", duration),
			zap.Int("interval_seconds", globalInterval))
	}
}

// dueTargets resolves which endpoints and linked clients are due,
// using one consistent snapshot.
func (r *Runner) dueTargets(snap state.Snapshot, nowTS int64, globalInterval int) ([]probeJob, []fetchJob) {
	var probes []probeJob
	var fetches []fetchJob

	for _, cs := range snap.Clients {
		switch cs.Client.Type {
		case models.ClientLinked:
			var latest int64
			for _, st := range cs.Statuses {
				if st.LastCheckTS > latest {
					latest = st.LastCheckTS
				}
			}
			// Linked clients follow the global cadence uniformly.
			if nowTS-latest >= int64(globalInterval) {
				knownIDs := make([]string, 0, len(cs.Statuses))
				for id := range cs.Statuses {
					knownIDs = append(knownIDs, id)
				}
				fetches = append(fetches, fetchJob{client: cs.Client, knownIDs: knownIDs})
			}
		default:
			for _, ep := range cs.Client.Endpoints {
				if ep.ID == "" {
					// Invariant breach on one record never aborts the
					// cycle for the rest.
					r.logger.Warn("skipping endpoint without id",
						zap.String("client_id", cs.Client.ID),
						zap.String("url", ep.URL))
					continue
				}
				last := cs.Statuses[ep.ID].LastCheckTS
				if nowTS-last >= int64(ep.EffectiveInterval(globalInterval)) {
					probes = append(probes, probeJob{clientID: cs.Client.ID, endpoint: ep})
				}
			}
		}
	}
	return probes, fetches
}

// execute runs all due probes and fetches with bounded concurrency and
// collects their outcomes. All network I/O happens here, outside the
// state lock.
func (r *Runner) execute(settings models.Settings, probes []probeJob, fetches []fetchJob) ([]probeOutcome, []fetchOutcome) {
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		probeResults []probeOutcome
		fetchResults []fetchOutcome
	)
	sem := make(chan struct{}, r.maxConcurrency)

	for _, job := range probes {
		wg.Add(1)
		go func(job probeJob) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			res := r.prober.Probe(job.endpoint, settings)
			mu.Lock()
			probeResults = append(probeResults, probeOutcome{
				clientID:   job.clientID,
				endpointID: job.endpoint.ID,
				result:     res,
			})
			mu.Unlock()
		}(job)
	}

	for _, job := range fetches {
		wg.Add(1)
		go func(job fetchJob) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			statuses, err := r.fetcher.Fetch(
				job.client.RemoteURL,
				job.client.APIToken,
				job.client.ID,
				settings.CheckTimeoutSeconds,
			)
			mu.Lock()
			fetchResults = append(fetchResults, fetchOutcome{
				clientID: job.client.ID,
				knownIDs: job.knownIDs,
				statuses: statuses,
				err:      err,
			})
			mu.Unlock()
		}(job)
	}

	wg.Wait()
	return probeResults, fetchResults
}

// persistLocal writes one local probe result through the change
// filter. Persistence failures degrade statistics but never fail the
// cycle.
func (r *Runner) persistLocal(ctx context.Context, endpointID string, res models.CheckResult) {
	if !ShouldPersist(r.cache.Get(endpointID), res) {
		return
	}
	if !r.store.Ready() {
		return
	}
	rec := models.HistoryRecord{
		EndpointID:     endpointID,
		Timestamp:      time.Now().UTC(),
		Status:         res.Status,
		StatusCode:     res.StatusCode,
		ResponseTimeMS: res.ResponseTimeMS,
		Details:        res.Details,
	}
	if err := r.store.Append(ctx, rec); err != nil {
		r.logger.Warn("history write failed",
			zap.String("endpoint_id", endpointID),
			zap.Error(err))
		return
	}
	r.cache.Mark(endpointID, res)
}

// PurgeHistory deletes an endpoint's history and forgets its cached
// last-saved observation, so the next check persists a fresh record.
func (r *Runner) PurgeHistory(ctx context.Context, endpointID string) (bool, error) {
	removed, err := r.store.Purge(ctx, endpointID)
	if err != nil {
		return false, err
	}
	r.cache.Forget(endpointID)
	return removed, nil
}
