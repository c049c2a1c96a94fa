package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"vlcsync/internal/ingest"
	"vlcsync/internal/orchestrator"
	"vlcsync/internal/platform/config"
	"vlcsync/internal/platform/logger"
	"vlcsync/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
)

const (
	syncBufferSize    = 8
	readHeaderTimeout = 5 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var playersPath, envPath string

	cmd := &cobra.Command{
		Use:   "vlcsync [flags] <media-file>",
		Short: "Play one media file on several VLC instances in sync",
		Long: `Launch one VLC instance per entry of the players file, all playing the
same media file, and keep them synchronized.

Command batches such as "play", "sleep 2.5,pause" or "jump 30" arrive over
HTTP (/cmd, /ws), an optional MQTT topic or an optional spool directory and
are broadcast to every instance over its RC interface. The first instance is
the master: after a jump every other instance seeks to its position.

Settings come from the environment or the dotenv file:
  HTTP_ADDR, LOG_LEVEL, LOG_FORMAT, PLAYERS_CONFIG, POLL_INTERVAL,
  GRACE_PERIOD, NET_TIMEOUT, STARTUP_TIMEOUT, MAX_DIAL_ATTEMPTS, UI_PAGE,
  QUEUE_SIZE, MQTT_BROKER, MQTT_TOPIC, MQTT_CLIENT_ID, SPOOL_DIR, RC_VERBOSE,
  WS_ALLOWED_ORIGINS

EXAMPLES:
  vlcsync movie.mkv
  vlcsync --config wall.yaml --env prod.env movie.mkv`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = config.Load(envPath)
			s := config.FromEnv()
			if cmd.Flags().Changed("config") {
				s.PlayersConfig = playersPath
			}
			return run(args[0], s)
		},
	}

	cmd.Flags().StringVar(&playersPath, "config", "players.yaml", "players file (overrides PLAYERS_CONFIG)")
	cmd.Flags().StringVar(&envPath, "env", ".env", "dotenv file to load")
	return cmd
}

func run(filename string, s config.Settings) error {
	log := logger.New(s.LogLevel, s.LogFormat)

	players, err := config.LoadPlayers(s.PlayersConfig)
	if err != nil {
		log.Error("load players failed", "path", s.PlayersConfig, "error", err)
		return err
	}
	instances := orchestrator.NewInstances(players.VLC.Listen, players.VLC.StartPort, players.Instances)
	registry := orchestrator.NewRegistry(instances)
	met := metrics.New()

	log.Info("orchestrator starting",
		"file", filename,
		"instances", len(instances),
		"players_config", s.PlayersConfig,
		"http_addr", s.HTTPAddr,
		"log_level", s.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Supervisors are always waited for in full so no player outlives the
	// orchestrator; every other worker gets the grace period.
	var supervisors, workers sync.WaitGroup
	abort := func(err error) error {
		log.Error("startup failed", "error", err)
		stop()
		supervisors.Wait()
		return err
	}

	for _, in := range instances {
		sup := orchestrator.NewSupervisor(in, orchestrator.SupervisorOptions{
			Binary:      players.VLC.Binary,
			Filename:    filename,
			Verbose:     players.VLC.RCVerbose || s.RCVerbose,
			KillTimeout: s.GracePeriod,
		}, registry, log)
		if err := sup.Start(); err != nil {
			return abort(err)
		}
		supervisors.Add(1)
		go func() {
			defer supervisors.Done()
			sup.Run(ctx)
		}()
	}

	if s.StartupTimeout > 0 {
		for _, in := range instances {
			if err := orchestrator.WaitReady(ctx, in.Addr(), s.StartupTimeout); err != nil {
				return abort(fmt.Errorf("%w: instance %d cannot bind RC port: %w", orchestrator.ErrStartup, in.Index, err))
			}
		}
		log.Info("all rc ports ready")
	}

	syncCh := make(chan int, syncBufferSize)
	inboxes := make([]chan<- orchestrator.Command, len(instances))
	for i, in := range instances {
		inbox := make(chan orchestrator.Command, s.QueueSize)
		inboxes[i] = inbox

		var syncOut chan<- int
		if in.IsMaster() {
			syncOut = syncCh
		}
		ctrl := orchestrator.NewController(in, inbox, syncOut, orchestrator.ControllerOptions{
			RC: orchestrator.RCOptions{
				Timeout:     s.NetTimeout,
				MaxAttempts: s.MaxDialAttempts,
			},
		}, registry, met, log)
		workers.Add(1)
		go func() {
			defer workers.Done()
			ctrl.Run(ctx)
		}()
	}

	svc := orchestrator.NewService(s.QueueSize, registry, met)
	dispatcher := orchestrator.NewDispatcher(svc.Batches(), syncCh, inboxes, orchestrator.DispatcherOptions{
		PollInterval: s.PollInterval,
	}, met, log)
	workers.Add(1)
	go func() {
		defer workers.Done()
		dispatcher.Run(ctx)
	}()

	h := orchestrator.NewHandler(svc, log, met, s.UIPage)
	h.AllowOrigins(s.WSAllowedOrigins...)
	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", met.Handler(nil).ServeHTTP)
	h.Routes(r)

	srv := &http.Server{Addr: s.HTTPAddr, Handler: r, ReadHeaderTimeout: readHeaderTimeout}
	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			serverErr <- err
			stop()
		}
	}()

	if s.MQTTBroker != "" {
		src := ingest.NewMQTTSource(ingest.MQTTOptions{
			Broker:   s.MQTTBroker,
			Topic:    s.MQTTTopic,
			ClientID: s.MQTTClientID,
			QoS:      1,
		}, svc, log)
		if err := src.Start(ctx); err != nil {
			log.Error("mqtt source disabled", "error", err)
		}
	}
	if s.SpoolDir != "" {
		spool := ingest.NewSpoolSource(s.SpoolDir, svc, log)
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := spool.Run(ctx); err != nil {
				log.Error("spool source disabled", "error", err)
			}
		}()
	}

	<-ctx.Done()
	log.Info("shutdown signal received, stopping instances")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.GracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}

	waitGrace(&workers, s.GracePeriod, log)
	supervisors.Wait()
	log.Info("orchestrator stopped")

	select {
	case err := <-serverErr:
		return err
	default:
		return nil
	}
}

// waitGrace waits for wg, giving up after grace.
func waitGrace(wg *sync.WaitGroup, grace time.Duration, log *slog.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		log.Warn("workers still running after grace period", "grace_period", grace)
	}
}
