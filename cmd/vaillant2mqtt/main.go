package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/vaillant2mqtt/internal/auth"
	"github.com/joshp123/vaillant2mqtt/internal/config"
	"github.com/joshp123/vaillant2mqtt/internal/core"
	"github.com/joshp123/vaillant2mqtt/internal/hub"
	"github.com/joshp123/vaillant2mqtt/internal/mqtt"
	"github.com/joshp123/vaillant2mqtt/internal/platforms"
	"github.com/joshp123/vaillant2mqtt/internal/rate"
	"github.com/joshp123/vaillant2mqtt/internal/server"
	"github.com/joshp123/vaillant2mqtt/internal/vaillant"
)

const authStatePath = "/var/lib/vaillant2mqtt/auth/vaillant.json"

func main() {
	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "auth":
			authMain(args[1:])
			return
		case "serve":
			args = args[1:]
		}
	}

	serveMain(args)
}

func serveMain(args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := flags.String("config", config.DefaultPath, "Path to config.yaml")
	statePath := flags.String("state-path", authStatePath, "Path to persisted auth state")
	_ = flags.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("config", err)
	}

	ctx := context.Background()

	blobStore, err := auth.NewS3Store(cfg.Auth)
	if err != nil {
		fatal("blob store", err)
	}

	decl := vaillantDeclaration(cfg, *statePath)
	manager, err := auth.NewManager(decl, cfg.Auth.BootstrapFile, blobStore)
	if err != nil {
		fatal("auth", err)
	}
	if cfg.Auth.RefreshEnabled == nil || *cfg.Auth.RefreshEnabled {
		manager.StartWithInterval(ctx, auth.RefreshInterval(cfg.Auth))
	}

	client := vaillant.NewClient(vaillant.Config{
		APIURL:       cfg.Vaillant.APIURL,
		WebsocketURL: cfg.Vaillant.WebsocketURL,
	}, manager)

	var h *hub.Hub
	session := vaillant.NewSession(cfg.Vaillant.WebsocketURL, manager, func(deviceID string, attrs hub.Attrs) {
		h.ApplyReport(deviceID, attrs)
	})
	h = hub.New(vaillant.NewController(session, client))

	bus, err := mqtt.NewClient(cfg.MQTT)
	if err != nil {
		fatal("mqtt", err)
	}
	defer bus.Close()

	compiled := platforms.Compiled(cfg, platforms.Deps{
		Hub:               h,
		Bus:               bus,
		BaseTopic:         cfg.MQTT.BaseTopic,
		DiscoveryPrefix:   cfg.MQTT.DiscoveryPrefix,
		AvailabilityTopic: bus.AvailabilityTopic(),
	})
	if err := core.ValidatePlatforms(compiled); err != nil {
		fatal("platforms", err)
	}

	registry := core.NewRegistry(compiled)

	metricsRegistry := core.MetricsRegistry(compiled)
	for _, collector := range auth.MetricsCollectors() {
		metricsRegistry.MustRegister(collector)
	}
	for _, collector := range rate.MetricsCollectors() {
		metricsRegistry.MustRegister(collector)
	}
	metricsRegistry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "vaillant2mqtt_build_info",
		Help: "Build information",
	}, func() float64 { return 1 }))

	grpcServer, err := server.NewGRPCServer(cfg.Core.GRPCAddr)
	if err != nil {
		fatal("grpc listen", err)
	}
	grpcServer.SetServing("", true)

	if err := core.WriteDashboards(cfg.Core.DashboardDir, compiled); err != nil {
		log.Printf("write dashboards: %v", err)
	}

	httpMux := server.NewMux(server.MuxConfig{
		Registry:   registry,
		Hub:        h,
		Metrics:    metricsRegistry,
		Dashboards: core.DashboardsMap(compiled),
		Platforms:  compiled,
	})

	if err := bootstrapDevices(ctx, cfg, client, session, h); err != nil {
		log.Printf("device bootstrap: %v", err)
	}

	resyncer := hub.NewResyncer(client, h)
	if err := resyncer.Start(cfg.Vaillant.ResyncSchedule); err != nil {
		fatal("resync schedule", err)
	}
	defer resyncer.Stop()

	go session.Run(ctx)

	go func() {
		if err := server.ListenAndServe(cfg.Core.HTTPAddr, httpMux); err != nil {
			log.Fatalf("http serve: %v", err)
		}
	}()

	log.Printf("vaillant2mqtt serving grpc=%s http=%s", cfg.Core.GRPCAddr, cfg.Core.HTTPAddr)
	if err := grpcServer.Serve(); err != nil {
		log.Fatalf("grpc serve: %v", err)
	}
}

// bootstrapDevices discovers bound devices, subscribes them on the
// websocket, and seeds the hub with a full snapshot each. The first
// applied snapshot is what lets platforms decide which entities to
// create.
func bootstrapDevices(ctx context.Context, cfg *config.Config, client *vaillant.Client, session *vaillant.Session, h *hub.Hub) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	bindings, err := client.Bindings(ctx)
	if err != nil {
		return fmt.Errorf("bindings: %w", err)
	}

	for _, binding := range bindings {
		if cfg.Vaillant.DeviceID != "" && binding.DeviceID != cfg.Vaillant.DeviceID {
			continue
		}
		h.UpsertDevice(hub.Device{
			ID:              binding.DeviceID,
			MAC:             binding.MAC,
			Model:           binding.ProductName,
			SerialNumber:    binding.SerialNumber,
			FirmwareVersion: binding.FirmwareVersion,
			Online:          binding.Online,
		})
		if err := session.Subscribe(ctx, binding.DeviceID); err != nil {
			log.Printf("subscribe %s: %v", binding.DeviceID, err)
		}
		attrs, err := client.DeviceAttrsSnapshot(ctx, binding.DeviceID)
		if err != nil {
			log.Printf("snapshot %s: %v", binding.DeviceID, err)
			continue
		}
		h.ApplyReport(binding.DeviceID, attrs)
	}

	return nil
}

func vaillantDeclaration(cfg *config.Config, statePath string) auth.Declaration {
	return auth.Declaration{
		Provider:  vaillant.Provider,
		TokenURL:  vaillant.DefaultTokenURL(cfg.Vaillant.APIURL),
		StatePath: statePath,
	}
}

func fatal(stage string, err error) {
	fmt.Fprintf(os.Stderr, "vaillant2mqtt: %s: %v\n", stage, err)
	os.Exit(1)
}
