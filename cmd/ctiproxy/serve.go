package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-cti/internal/ami"
	"github.com/nerrad567/gray-logic-cti/internal/api"
	"github.com/nerrad567/gray-logic-cti/internal/audit"
	"github.com/nerrad567/gray-logic-cti/internal/events"
	"github.com/nerrad567/gray-logic-cti/internal/history"
	"github.com/nerrad567/gray-logic-cti/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-cti/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-cti/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-cti/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-cti/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-cti/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-cti/internal/proxy"
	"github.com/nerrad567/gray-logic-cti/internal/relay"
	"github.com/nerrad567/gray-logic-cti/internal/scheduler"
	"github.com/nerrad567/gray-logic-cti/migrations"
)

const (
	jobResync       = "resync"
	jobHistoryPrune = "history-prune"

	// Labels of database write failures in the relay error metric.
	sinkHistory = "history"
	sinkAudit   = "audit"
)

func newServeCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy",
		Long:  "Connects to the PBX, serves the HTTP and websocket API and relays events until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(ctx, cfg)
		},
	}
}

// amiConfig maps the manager section of the configuration to the client.
func amiConfig(cfg *config.Config) ami.Config {
	return ami.Config{
		Address:              cfg.AMIAddress(),
		Username:             cfg.AMI.Username,
		Secret:               cfg.AMI.Secret,
		Events:               cfg.AMI.Events,
		ConnectTimeout:       config.Seconds(cfg.AMI.ConnectTimeout),
		ReadTimeout:          config.Seconds(cfg.AMI.ReadTimeout),
		WriteTimeout:         config.Seconds(cfg.AMI.WriteTimeout),
		CommandTimeout:       config.Seconds(cfg.AMI.CommandTimeout),
		ReconnectInterval:    config.Seconds(cfg.AMI.Reconnect.Initial),
		MaxReconnectInterval: config.Seconds(cfg.AMI.Reconnect.Max),
	}
}

// newEngine builds the state engine and the client feeding it. Nothing is
// connected yet.
func newEngine(cfg *config.Config, log *logging.Logger) (*ami.Client, *proxy.Engine, *events.Dispatcher, error) {
	grammar, err := events.ParseGrammar(cfg.AMI.BridgeGrammar)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("bridge grammar: %w", err)
	}

	client := ami.NewClient(amiConfig(cfg))
	client.SetLogger(log.Component("ami"))

	engine := proxy.New(proxy.Config{
		Trunks:         cfg.Proxy.Trunks,
		DahdiTrunks:    cfg.Proxy.DahdiTrunks,
		CommandTimeout: config.Seconds(cfg.AMI.CommandTimeout),
	}, client, nil)
	engine.SetLogger(log.Component("proxy"))

	dispatcher := events.NewDispatcher(events.Default(engine, events.Options{
		Grammar:          grammar,
		ConferencePrefix: cfg.Proxy.ConferencePrefix,
	}))
	dispatcher.SetLogger(log.Component("events"))
	client.SetOnEvent(func(f ami.Frame) { dispatcher.Dispatch(f) })

	return client, engine, dispatcher, nil
}

// serve runs the proxy until ctx is cancelled. Components are opened in
// dependency order and closed in reverse by the deferred calls.
func serve(ctx context.Context, cfg *config.Config) error {
	log := logging.New(cfg.Logging, version)
	log.Info("starting ctiproxy",
		"version", version,
		"commit", commit,
		"site", cfg.Site.ID,
		"pbx", cfg.AMIAddress(),
	)

	m := metrics.New()

	client, engine, dispatcher, err := newEngine(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Error("error closing manager connection", "error", err)
		}
	}()
	dispatcher.SetObserver(func(event string, outcome events.Outcome) {
		m.ObserveDispatch(event, string(outcome))
	})
	engine.SetCommandObserver(m.ObserveCommand)
	m.WatchAMI(client.Stats)

	client.SetOnConnected(func() {
		log.Info("manager interface connected", "banner", client.Banner())
		if err := engine.Resync(ctx); err != nil {
			log.Error("resync after connect failed", "error", err)
		}
	})
	client.SetOnDisconnected(func(err error) {
		log.Warn("manager interface disconnected", "error", err)
	})

	checks := map[string]api.HealthCheck{"ami": client.HealthCheck}

	// History store and command audit share the database.
	var (
		historyRepo  *history.SQLiteRepository
		historyStore api.HistoryStore
		trail        *audit.Trail
	)
	if cfg.History.Enabled {
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Error("error closing database", "error", err)
			}
		}()
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		log.Info("database ready", "path", cfg.Database.Path)
		checks["database"] = db.HealthCheck

		historyRepo = history.NewSQLiteRepository(db)
		historyStore = historyRepo

		recorder := history.NewRecorder(historyRepo)
		recorder.SetLogger(log.Component("history"))
		recorder.SetOnError(func(error) { m.RelayError(sinkHistory) })
		engine.OnAll(recorder.Observe)
		go recorder.Run(ctx)

		trail = audit.NewTrail(audit.NewSQLiteRepository(db.DB))
		trail.SetLogger(log.Component("audit"))
		trail.SetOnError(func(error) { m.RelayError(sinkAudit) })
		go trail.Run(ctx)
	}

	// Relay sinks. Interfaces stay nil for disabled sinks.
	relayOpts := relay.Options{
		Engine:     engine,
		Metrics:    m,
		Logger:     log.Component("relay"),
		CommandQoS: byte(cfg.MQTT.QoS),
	}
	if trail != nil {
		relayOpts.Audit = trail
	}

	if cfg.MQTT.Enabled {
		mqttClient, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			if err := mqttClient.Close(); err != nil {
				log.Error("error closing MQTT", "error", err)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT connected", "broker", cfg.MQTT.Broker.Host)
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected", "broker", cfg.MQTT.Broker.Host, "port", cfg.MQTT.Broker.Port)
		relayOpts.Broker = mqttClient
		checks["mqtt"] = mqttClient.HealthCheck
	}

	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			// Time-series data is optional; the proxy keeps running without it.
			log.Warn("InfluxDB unavailable, continuing without time-series", "error", err)
		} else {
			defer func() {
				if err := influxClient.Close(); err != nil {
					log.Error("error closing InfluxDB", "error", err)
				}
			}()
			influxClient.SetOnError(func(err error) {
				m.RelayError(relay.SinkInfluxDB)
				log.Error("InfluxDB write error", "error", err)
			})
			log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
			relayOpts.Points = influxClient
			checks["influxdb"] = influxClient.HealthCheck
		}
	}

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	hub.SetOnCountChange(m.SetWebSocketClients)
	go hub.Run(ctx)
	relayOpts.Hub = hub

	rl, err := relay.New(relayOpts)
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}
	go rl.Run(ctx)
	if err := rl.Start(); err != nil {
		log.Warn("command subscription failed", "error", err)
	}
	defer rl.Stop()

	var auditLog api.AuditLog
	if trail != nil {
		auditLog = trail
	}
	srv, err := api.New(api.Deps{
		Config:         cfg.API,
		WS:             cfg.WebSocket,
		Security:       cfg.Security,
		Metrics:        cfg.Metrics,
		Logger:         log.Component("api"),
		Engine:         engine,
		History:        historyStore,
		Audit:          auditLog,
		AMIStats:       client.Stats,
		MetricsHandler: m.Handler(),
		Checks:         checks,
		ExternalHub:    hub,
		Version:        version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			log.Error("error closing API server", "error", err)
		}
	}()

	sched, err := newScheduler(cfg, engine, historyRepo, trail, log)
	if err != nil {
		return err
	}
	sched.Start(ctx)
	defer sched.Stop()

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("starting manager client: %w", err)
	}

	log.Info("ctiproxy started", "api", srv.Addr(), "jobs", sched.Jobs())

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

// newScheduler registers the periodic jobs. A nil repo skips pruning; a
// nil trail keeps the command audit.
func newScheduler(cfg *config.Config, engine *proxy.Engine, repo *history.SQLiteRepository, trail *audit.Trail, log *logging.Logger) (*scheduler.Scheduler, error) {
	sched := scheduler.New(log.Component("scheduler"))

	if err := sched.Add(scheduler.Job{
		Name:     jobResync,
		Schedule: cfg.Proxy.ResyncSchedule,
		Run:      engine.Resync,
	}); err != nil {
		return nil, fmt.Errorf("scheduling %s: %w", jobResync, err)
	}

	if repo != nil && cfg.History.RetentionDays > 0 {
		days := cfg.History.RetentionDays
		if err := sched.Add(scheduler.Job{
			Name:     jobHistoryPrune,
			Schedule: cfg.History.PruneSchedule,
			Run: func(ctx context.Context) error {
				now := time.Now()
				n, err := history.PruneOlderThan(ctx, repo, days, now)
				if err != nil {
					return err
				}
				var audited int64
				if trail != nil {
					if audited, err = trail.Prune(ctx, days, now); err != nil {
						return err
					}
				}
				log.Info("history pruned", "rows", n, "audit_rows", audited, "retention_days", days)
				return nil
			},
		}); err != nil {
			return nil, fmt.Errorf("scheduling %s: %w", jobHistoryPrune, err)
		}
	}
	return sched, nil
}
