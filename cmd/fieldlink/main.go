// Command fieldlink runs the sensor-agent mission engine.
//
// # Usage
//
//	fieldlink --config /etc/fieldlink/config.yaml
//
// # Configuration
//
// Configuration can be provided via:
// - Command-line flags
// - Environment variables (FIELDLINK_*)
// - Config file (--config)
//
// # Examples
//
// Run a single mission with the simulated sensor:
//
//	fieldlink --agent-id ace-pz-04 --mission missions/voltage.yaml
//
// Run against host metrics with a LoRaWAN uplink:
//
//	FIELDLINK_SENSOR_SOURCE=host \
//	FIELDLINK_TRANSPORT_PROTOCOL=LoRaWAN \
//	FIELDLINK_UPLINK_URL=https://bridge.gridsense.example/uplink \
//	fieldlink --agent-id ace-pz-04 --mission missions/host.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gridsense/fieldlink/internal/agent"
	"github.com/gridsense/fieldlink/internal/cache"
	"github.com/gridsense/fieldlink/internal/comms"
	"github.com/gridsense/fieldlink/internal/config"
	"github.com/gridsense/fieldlink/internal/orchestrator"
	"github.com/gridsense/fieldlink/internal/secrets"
	"github.com/gridsense/fieldlink/internal/security"
	"github.com/gridsense/fieldlink/internal/sensor"
	"github.com/gridsense/fieldlink/pkg/types"
)

// version is set at build time.
var version = "dev"

func main() {
	var (
		configFile  = flag.String("config", "", "Path to config file")
		agentID     = flag.String("agent-id", "", "Agent identifier")
		transport   = flag.String("transport", "", "Outbound transport (BLE, LoRaWAN, GibberLink-RF)")
		debug       = flag.Bool("debug", false, "Enable debug logging")
		showVersion = flag.Bool("version", false, "Print version and exit")
	)
	var missionFiles stringList
	flag.Var(&missionFiles, "mission", "Mission profile file (repeatable)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("fieldlink %s\n", version)
		os.Exit(0)
	}

	// Set up logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	// Load configuration
	cfg := config.DefaultConfig()
	if *configFile != "" {
		fileCfg, err := config.LoadFromFile(*configFile)
		if err != nil {
			logger.Error("failed to load config file", "error", err)
			os.Exit(1)
		}
		cfg = fileCfg
	}
	cfg.ApplyEnvOverrides()

	// Apply flag overrides
	if *agentID != "" {
		cfg.Agent.ID = *agentID
	}
	if *transport != "" {
		cfg.Transport.Protocol = *transport
	}
	if len(missionFiles) > 0 {
		cfg.MissionFiles = missionFiles
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if len(cfg.MissionFiles) == 0 {
		logger.Error("no mission files configured (use --mission or mission_files)")
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil && err != context.Canceled {
		logger.Error("fieldlink exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("fieldlink shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Resolve key material and build the one process security context.
	provider, err := secrets.NewProvider(secrets.Config{
		Backend:     cfg.Security.Backend,
		OnePassword: secrets.ConfigFromEnv().OnePassword,
		LocalKeyDir: cfg.Security.KeyDir,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating secrets provider: %w", err)
	}
	defer provider.Close()

	material, err := provider.Material(ctx)
	if err != nil {
		return fmt.Errorf("resolving key material: %w", err)
	}
	secCtx, err := security.NewContext(material)
	if err != nil {
		return fmt.Errorf("creating security context: %w", err)
	}
	security.SetProcess(secCtx)

	gateway := comms.NewGateway(secCtx, logger)

	// Status cache is optional.
	var statuses *cache.StatusCache
	if cfg.Orchestrator.RedisURL != "" {
		statuses, err = cache.New(cfg.Orchestrator.RedisURL, cfg.Orchestrator.StatusTTL, logger)
		if err != nil {
			logger.Warn("status cache unavailable, continuing without it", "error", err)
		} else {
			defer statuses.Close()
		}
	}

	orch := orchestrator.New(orchestrator.Config{
		Gateway:          gateway,
		StatusCache:      statuses,
		ReportsPerSecond: cfg.Orchestrator.ReportsPerSecond,
		ReportBurst:      cfg.Orchestrator.ReportBurst,
		Logger:           logger,
	})

	registry, err := buildTransports(ctx, cfg, orch, logger)
	if err != nil {
		return fmt.Errorf("building transports: %w", err)
	}
	logger.Info("transports ready", "protocols", registry.List())

	reader, err := buildReader(cfg)
	if err != nil {
		return err
	}

	// Load missions, assign them, and start one agent loop per mission.
	errCh := make(chan error, len(cfg.MissionFiles))
	started := 0

	for _, path := range cfg.MissionFiles {
		profile, err := types.LoadProfile(path)
		if err != nil {
			return fmt.Errorf("loading mission %s: %w", path, err)
		}
		if !profile.Active {
			logger.Info("skipping inactive mission", "mission_id", profile.MissionID)
			continue
		}

		id := profile.AgentIDTarget
		if id == "" {
			id = cfg.Agent.ID
		}
		if _, err := orch.AssignMission(id, profile); err != nil {
			return fmt.Errorf("assigning mission %s: %w", profile.MissionID, err)
		}

		proto := profile.Communication.Protocol
		if proto == "" {
			proto = cfg.Transport.Protocol
		}
		link, ok := registry.Get(proto)
		if !ok {
			return fmt.Errorf("mission %s wants unknown transport %q", profile.MissionID, proto)
		}

		a := agent.New(agent.Config{
			ID:        id,
			Gateway:   gateway,
			Transport: link,
			Reader:    reader,
			Logger:    logger,
		})
		if err := a.LoadMission(profile); err != nil {
			return err
		}

		started++
		go func() {
			errCh <- a.Run(ctx)
		}()
	}

	if started == 0 {
		return fmt.Errorf("no active missions to run")
	}

	logger.Info("fieldlink running",
		"version", version,
		"agents", started,
		"agent_id", cfg.Agent.ID,
		"region", cfg.Agent.Region)

	// Wait for first agent error or shutdown.
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// buildTransports registers every link the config can support. BLE is
// always available and loops back into the orchestrator's intake.
func buildTransports(ctx context.Context, cfg *config.Config, orch *orchestrator.Orchestrator, logger *slog.Logger) (*comms.Registry, error) {
	registry := comms.NewRegistry()

	ble := comms.NewBLETransport(func(env *types.Envelope) {
		if err := orch.HandleEnvelope(ctx, env); err != nil {
			logger.Warn("failed to handle inbound envelope", "error", err)
		}
	}, logger)
	if err := registry.Register(ble); err != nil {
		return nil, err
	}

	if cfg.Transport.UplinkURL != "" {
		lora := comms.NewLoRaWANTransport(comms.LoRaWANConfig{
			Endpoint:         cfg.Transport.UplinkURL,
			Target:           cfg.Transport.UplinkTarget,
			Timeout:          cfg.Transport.UplinkTimeout,
			UplinksPerMinute: cfg.Transport.UplinksPerMinute,
			Logger:           logger,
		})
		if err := registry.Register(lora); err != nil {
			return nil, err
		}
	}

	var modem io.Writer = os.Stdout
	if cfg.Transport.RFDevice != "" {
		f, err := os.OpenFile(cfg.Transport.RFDevice, os.O_WRONLY, 0)
		if err != nil {
			return nil, fmt.Errorf("opening RF device: %w", err)
		}
		modem = f
	}
	rf := comms.NewGibberRFTransport(modem, cfg.Transport.RFFrameSize, logger)
	if err := registry.Register(rf); err != nil {
		return nil, err
	}

	return registry, nil
}

// buildReader selects the sensor-read capability.
func buildReader(cfg *config.Config) (sensor.Reader, error) {
	switch cfg.Sensor.Source {
	case "", "sim":
		return sensor.NewSimReader(cfg.Sensor.Seed), nil
	case "host":
		return sensor.NewHostReader(), nil
	default:
		return nil, fmt.Errorf("unknown sensor source: %s", cfg.Sensor.Source)
	}
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return fmt.Sprintf("%v", []string(*s)) }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
