// Package orchestrator owns every component's lifecycle per spec.md
// §4.7: construct in startup order, run, and shut down in reverse.
// Modeled on the teacher's cmd/fanet-api/main.go skeleton, completed —
// that file wires nothing beyond an http.ServeMux with TODO comments
// where every real component belongs; this is those TODOs filled in.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/lazyscout/lazyscout/internal/config"
	"github.com/lazyscout/lazyscout/internal/dispatcher"
	"github.com/lazyscout/lazyscout/internal/geofence"
	"github.com/lazyscout/lazyscout/internal/handler"
	"github.com/lazyscout/lazyscout/internal/janitor"
	"github.com/lazyscout/lazyscout/internal/mqttbridge"
	"github.com/lazyscout/lazyscout/internal/queue"
	"github.com/lazyscout/lazyscout/internal/rarity"
	"github.com/lazyscout/lazyscout/internal/scoutclient"
	"github.com/lazyscout/lazyscout/internal/security"
	"github.com/lazyscout/lazyscout/internal/webhookfilter"
	"github.com/lazyscout/lazyscout/pkg/utils"
)

// Orchestrator owns every long-lived component and drives startup,
// shutdown and hot reload (§4.7).
type Orchestrator struct {
	cfg    *config.Config
	logger *utils.Logger

	resolver   *geofence.Resolver
	census     *rarity.Census
	queue      *queue.PriorityQueue
	filter     *webhookfilter.Filter
	dispatcher *dispatcher.Dispatcher
	janitor    *janitor.Janitor
	server     *handler.Server
	mqtt       *mqttbridge.Bridge

	cancel context.CancelFunc

	dispatcherCancel context.CancelFunc
	dispatcherDone   chan struct{}
	janitorCancel    context.CancelFunc
	janitorDone      chan struct{}
	censusCancel     context.CancelFunc
	censusDone       chan struct{}
	resolverCancel   context.CancelFunc
	resolverDone     chan struct{}
}

// New constructs every component without starting any background
// work. Errors here are fatal: a resolver that cannot reach its
// upstream on construction still constructs successfully (Refresh is
// called separately, blocking, in Run) so transient startup races
// against the geofence source do not need special-casing here.
func New(cfg *config.Config, logger *utils.Logger) (*Orchestrator, error) {
	rt := cfg.Runtime()

	var fetchCache geofence.FetchCache
	if cfg.Redis.Enabled {
		fetchCache = &geofence.RedisFetchCache{Client: redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})}
	}

	resolver := geofence.New(cfg.Geofence.BaseURL, cfg.Geofence.Project, cfg.Geofence.Bearer, cfg.Geofence.Timeout, fetchCache, logger)

	census := rarity.New(float64(rt.CalibrationMinutes) * 60)
	q := queue.New(rt.ConcurrencyScout)

	filter := webhookfilter.New(cfg, q, census, resolver, logger)

	client := scoutclient.New(cfg.ScoutClient.BaseURL, cfg.ScoutClient.Username, cfg.ScoutClient.Password,
		cfg.ScoutClient.Bearer, cfg.ScoutClient.APIKey, cfg.ScoutClient.Timeout)
	dispatch := dispatcher.New(q, client, logger)

	timeoutIV := func() time.Duration { return cfg.Runtime().TimeoutIV.Duration() }
	jan := janitor.New(q, timeoutIV, logger)

	logrusLogger := logrus.New()
	sec := security.New(cfg.Security.AllowedIPs, cfg.Security.HeaderName, cfg.Security.HeaderValue, logrusLogger)

	o := &Orchestrator{cfg: cfg, logger: logger, resolver: resolver, census: census, queue: q, filter: filter, dispatcher: dispatch, janitor: jan}

	server := handler.New(cfg, q, census, filter, sec, o.Reload, logger)
	o.server = server

	if cfg.MQTT.Enabled {
		o.mqtt = mqttbridge.New(mqttbridge.Config{
			URL:          cfg.MQTT.URL,
			ClientID:     cfg.MQTT.ClientID,
			Username:     cfg.MQTT.Username,
			Password:     cfg.MQTT.Password,
			FeedTopic:    cfg.MQTT.FeedTopic,
			CensusTopic:  cfg.MQTT.CensusTopic,
			CleanSession: cfg.MQTT.CleanSession,
		}, filter, logger)
	}

	return o, nil
}

// Run executes the full startup order of §4.7, blocks until ctx is
// canceled, then shuts every component down in reverse.
func (o *Orchestrator) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	if err := o.resolver.Refresh(runCtx); err != nil {
		o.logger.WithField("error", err.Error()).Warn("initial geofence refresh failed, starting with an empty area set")
	}

	rt := o.cfg.Runtime()

	resolverCtx, resolverCancel := context.WithCancel(runCtx)
	o.resolverCancel = resolverCancel
	o.resolverDone = make(chan struct{})
	go func() {
		defer close(o.resolverDone)
		o.resolver.RunBackground(resolverCtx, rt.GeofenceRefreshSeconds.Duration(), rt.GeofenceExpireSeconds.Duration())
	}()

	censusCtx, censusCancel := context.WithCancel(runCtx)
	o.censusCancel = censusCancel
	o.censusDone = make(chan struct{})
	go func() {
		defer close(o.censusDone)
		o.census.RunBackground(censusCtx, rt.CleanupInterval.Duration(), rt.RankingInterval.Duration(), o.logger)
	}()

	dispatcherCtx, dispatcherCancel := context.WithCancel(runCtx)
	o.dispatcherCancel = dispatcherCancel
	o.dispatcherDone = make(chan struct{})
	go func() {
		defer close(o.dispatcherDone)
		o.dispatcher.Run(dispatcherCtx)
	}()

	janitorCtx, janitorCancel := context.WithCancel(runCtx)
	o.janitorCancel = janitorCancel
	o.janitorDone = make(chan struct{})
	go func() {
		defer close(o.janitorDone)
		o.janitor.Run(janitorCtx)
	}()

	if o.mqtt != nil {
		if err := o.mqtt.Connect(); err != nil {
			o.logger.WithField("error", err.Error()).Warn("MQTT bridge failed to connect, continuing without it")
		} else {
			o.logger.Info("MQTT bridge connected")
		}
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- o.server.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			o.logger.WithField("error", err.Error()).Error("HTTP server exited unexpectedly")
		}
	}

	return o.shutdown()
}

// shutdown implements the sequential teardown of §4.7: dispatcher stop
// -> HTTP server drain -> janitor stop -> rarity census stop ->
// geofence resolver stop, each awaited in full before the next begins.
// This is deliberately not one shared cancel plus one wait: stopping
// the dispatcher first means no new scouts are dispatched while the
// HTTP server is still draining in-flight requests, and the remaining
// three background loops are given a strict, reproducible stop order
// rather than racing each other on ctx.Done().
func (o *Orchestrator) shutdown() error {
	o.logger.Info("shutdown: stopping dispatcher")
	o.dispatcherCancel()
	<-o.dispatcherDone

	o.logger.Info("shutdown: draining HTTP server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := o.server.Shutdown(shutdownCtx); err != nil {
		o.logger.WithField("error", err.Error()).Warn("HTTP server shutdown error")
	}

	if o.mqtt != nil {
		o.mqtt.Disconnect()
	}

	o.logger.Info("shutdown: stopping janitor")
	o.janitorCancel()
	<-o.janitorDone

	o.logger.Info("shutdown: stopping rarity census")
	o.censusCancel()
	<-o.censusDone

	o.logger.Info("shutdown: stopping geofence resolver")
	o.resolverCancel()
	<-o.resolverDone

	o.cancel()

	o.logger.Info("shutdown complete")
	return nil
}

// Reload re-reads the tunables file and pushes the reloadable subset
// into the components that need an explicit push (§4.7): on a
// concurrency change, PriorityQueue.UpdateConcurrency.
func (o *Orchestrator) Reload() error {
	prev := o.cfg.Runtime()
	next, err := o.cfg.Reload()
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	if next.ConcurrencyScout != prev.ConcurrencyScout {
		o.queue.UpdateConcurrency(next.ConcurrencyScout)
	}
	o.logger.Info("configuration reloaded")
	return nil
}
