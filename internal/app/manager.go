// Package app ties the pieces together at runtime: one ingestion runtime per
// configured bot entry, rebuilt when the config changes.
package app

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kai-zer-ru/max-notify-ha/internal/config"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/model"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/ports"
	"github.com/kai-zer-ru/max-notify-ha/internal/infra/dedup"
	"github.com/kai-zer-ru/max-notify-ha/internal/infra/poller"
	"github.com/kai-zer-ru/max-notify-ha/internal/infra/worker"
	"github.com/kai-zer-ru/max-notify-ha/internal/registry"
	"github.com/kai-zer-ru/max-notify-ha/internal/usecase"
)

const startupCallTimeout = 15 * time.Second

// DedupFactory builds the dedup window for one entry. Swapped for a
// Redis-backed one when Redis is configured.
type DedupFactory func(entryID string) ports.Deduplicator

type entryRuntime struct {
	entry    *model.BotEntry
	pipeline *usecase.Pipeline
	cancel   context.CancelFunc
	done     chan struct{}
	poll     *poller.Poller
	hookURL  string
}

// Manager owns the per-entry ingestion runtimes: polling loops, webhook
// subscriptions and their shared dedup windows. Dedup windows outlive
// reloads so a config change never re-admits updates already seen.
type Manager struct {
	api      ports.BotAPI
	reg      *registry.Registry
	sink     ports.EventSink
	pool     *worker.Pool
	newDedup DedupFactory
	log      *zerolog.Logger

	serverCfg config.ServerConfig
	dedupCfg  config.DedupConfig

	mu       sync.Mutex
	ctx      context.Context
	runtimes map[string]*entryRuntime
	dedupers map[string]ports.Deduplicator
}

func NewManager(cfg *config.Config, api ports.BotAPI, reg *registry.Registry, sink ports.EventSink, pool *worker.Pool, newDedup DedupFactory, logger *zerolog.Logger) *Manager {
	l := logger.With().Str("component", "manager").Logger()
	m := &Manager{
		api:       api,
		reg:       reg,
		sink:      sink,
		pool:      pool,
		newDedup:  newDedup,
		log:       &l,
		serverCfg: cfg.Server,
		dedupCfg:  cfg.Dedup,
		runtimes:  make(map[string]*entryRuntime),
		dedupers:  make(map[string]ports.Deduplicator),
	}
	if m.newDedup == nil {
		m.newDedup = func(string) ports.Deduplicator { return dedup.NewWindow(cfg.Dedup.Capacity) }
	}
	return m
}

// Start brings all configured entries up. Runs until Stop.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	m.pool.Start(ctx)
	for _, e := range m.reg.List() {
		m.startEntry(e)
	}
}

// Stop tears all runtimes down and waits for the loops to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	runtimes := m.runtimes
	m.runtimes = make(map[string]*entryRuntime)
	m.mu.Unlock()

	for _, rt := range runtimes {
		m.stopRuntime(rt)
	}
	m.pool.Stop()
}

// Reload applies a changed config. Runtimes of entries whose configuration
// did not change keep running; added, removed and modified entries have
// their runtimes started, stopped or restarted. Dedup windows are kept per
// entry id either way.
func (m *Manager) Reload(cfg *config.Config) {
	m.log.Info().Int("bots", len(cfg.Bots)).Msg("applying reloaded config")

	m.mu.Lock()
	old := m.runtimes
	m.runtimes = make(map[string]*entryRuntime)
	m.serverCfg = cfg.Server
	m.dedupCfg = cfg.Dedup
	m.mu.Unlock()

	m.reg.Replace(cfg.Bots)
	for _, e := range m.reg.List() {
		rt, existed := old[e.ID]
		if existed && reflect.DeepEqual(rt.entry, e) {
			m.mu.Lock()
			m.runtimes[e.ID] = rt
			m.mu.Unlock()
			delete(old, e.ID)
			continue
		}
		if existed {
			m.stopRuntime(rt)
			delete(old, e.ID)
		}
		m.startEntry(e)
	}
	for id, rt := range old {
		m.log.Info().Str("entry_id", id).Msg("entry removed")
		m.stopRuntime(rt)
	}
}

// Submit hands a webhook update to the entry's pipeline via the worker pool.
func (m *Manager) Submit(entryID string, u *model.InboundUpdate) bool {
	m.mu.Lock()
	rt, ok := m.runtimes[entryID]
	m.mu.Unlock()
	if !ok || rt.entry.ReceiveMode != model.ReceiveWebhook {
		return false
	}
	err := m.pool.Submit(func(ctx context.Context) error {
		return rt.pipeline.Process(ctx, u, "webhook")
	})
	if err != nil {
		m.log.Warn().Err(err).Str("entry_id", entryID).Msg("webhook update not queued")
		return false
	}
	return true
}

func (m *Manager) deduper(entryID string) ports.Deduplicator {
	if d, ok := m.dedupers[entryID]; ok {
		return d
	}
	d := m.newDedup(entryID)
	m.dedupers[entryID] = d
	return d
}

func (m *Manager) startEntry(e *model.BotEntry) {
	m.mu.Lock()
	ctx := m.ctx
	pl := usecase.NewPipeline(e.ID, m.deduper(e.ID), m.sink, m.dedupCfg.TTL, m.dedupCfg.CallbackTTL, m.log)
	entryCtx, cancel := context.WithCancel(ctx)
	rt := &entryRuntime{entry: e, pipeline: pl, cancel: cancel, done: make(chan struct{})}
	m.runtimes[e.ID] = rt
	m.mu.Unlock()

	go func() {
		defer close(rt.done)
		m.runEntry(entryCtx, rt)
	}()
}

func (m *Manager) runEntry(ctx context.Context, rt *entryRuntime) {
	e := rt.entry
	log := m.log.With().Str("entry_id", e.ID).Logger()

	callCtx, cancel := context.WithTimeout(ctx, startupCallTimeout)
	err := m.api.ValidateToken(callCtx, e.AccessToken)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrAuthentication) {
			log.Error().Msg("access token rejected, ingestion disabled for entry")
			return
		}
		// Platform unreachable at startup is not fatal; polling has its own
		// retry and sends validate on use.
		log.Warn().Err(err).Msg("token validation inconclusive")
	}

	if len(e.Commands) > 0 {
		callCtx, cancel := context.WithTimeout(ctx, startupCallTimeout)
		if err := m.api.SetCommands(callCtx, e.AccessToken, e.Commands); err != nil {
			log.Warn().Err(err).Msg("command sync failed")
		}
		cancel()
	}

	switch e.ReceiveMode {
	case model.ReceiveLongPolling:
		m.dropSubscription(ctx, rt)
		fetch := func(ctx context.Context, marker int64, timeout time.Duration) (ports.UpdateBatch, error) {
			return m.api.GetUpdates(ctx, e.AccessToken, marker, timeout)
		}
		handle := func(ctx context.Context, u *model.InboundUpdate) {
			if perr := rt.pipeline.Process(ctx, u, "long_polling"); perr != nil {
				log.Debug().Err(perr).Msg("update not emitted")
			}
		}
		p := poller.New(e.ID, fetch, handle, m.log)
		m.mu.Lock()
		rt.poll = p
		m.mu.Unlock()
		if err := p.Run(ctx); err != nil {
			log.Error().Err(err).Msg("polling terminated")
		}

	case model.ReceiveWebhook:
		url := m.webhookURL(e.ID)
		if url == "" {
			log.Error().Msg("webhook mode needs server.public_url")
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, startupCallTimeout)
		err := m.api.Subscribe(callCtx, e.AccessToken, url, e.WebhookSecret)
		cancel()
		if err != nil {
			log.Error().Err(err).Str("url", url).Msg("webhook subscription failed")
			return
		}
		m.mu.Lock()
		rt.hookURL = url
		m.mu.Unlock()
		log.Info().Str("url", url).Msg("webhook subscribed")
		<-ctx.Done()

	default:
		log.Info().Msg("ingestion disabled for entry")
	}
}

func (m *Manager) webhookURL(entryID string) string {
	base := strings.TrimRight(m.serverCfg.PublicURL, "/")
	if base == "" {
		return ""
	}
	return base + "/api/max_notify/" + entryID
}

// dropSubscription removes a stale webhook subscription when an entry runs
// in polling mode, so the platform does not deliver twice.
func (m *Manager) dropSubscription(ctx context.Context, rt *entryRuntime) {
	url := m.webhookURL(rt.entry.ID)
	if url == "" {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, startupCallTimeout)
	defer cancel()
	if err := m.api.Unsubscribe(callCtx, rt.entry.AccessToken, url); err != nil {
		m.log.Debug().Err(err).Str("entry_id", rt.entry.ID).Msg("webhook unsubscribe skipped")
	}
}

func (m *Manager) stopRuntime(rt *entryRuntime) {
	rt.cancel()
	select {
	case <-rt.done:
	case <-time.After(10 * time.Second):
		m.log.Warn().Str("entry_id", rt.entry.ID).Msg("runtime slow to stop")
	}
	m.mu.Lock()
	hookURL := rt.hookURL
	m.mu.Unlock()
	if hookURL != "" {
		// The runtime ctx is already cancelled; give the unsubscribe its own
		// short deadline.
		callCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.api.Unsubscribe(callCtx, rt.entry.AccessToken, hookURL); err != nil {
			m.log.Debug().Err(err).Str("entry_id", rt.entry.ID).Msg("webhook unsubscribe failed")
		}
		cancel()
	}
}
