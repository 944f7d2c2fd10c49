package main

import (
	"flag"
	"net/url"

	"k8s.io/klog/v2"

	"hetnet-offload/controller/pkg/config"
	"hetnet-offload/controller/pkg/controller"
	"hetnet-offload/controller/pkg/coordinator"
	"hetnet-offload/controller/pkg/decision"
	"hetnet-offload/controller/pkg/flowlet"
	"hetnet-offload/controller/pkg/prediction"
	"hetnet-offload/controller/pkg/quality"
	"hetnet-offload/controller/pkg/signals"
	"hetnet-offload/controller/pkg/telemetry"
)

var (
	configPath     string
	coordinatorURL string
	listenAddr     string
)

func main() {
	klog.InitFlags(nil)
	flag.StringVar(&configPath, "config", "", "Path to YAML config (defaults apply when empty)")
	flag.StringVar(&coordinatorURL, "coordinator-url", "", "Override wireless controller base URL")
	flag.StringVar(&listenAddr, "listen-addr", "", "Override ingest/metrics listen address")
	flag.Parse()

	stopCh := signals.SetupSignalHandler()

	cfg, err := config.LoadLTE(configPath)
	if err != nil {
		klog.Fatalf("Error loading config: %s", err.Error())
	}
	if coordinatorURL != "" {
		cfg.CoordinatorURL = coordinatorURL
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}

	predictor, err := prediction.New(cfg)
	if err != nil {
		klog.Fatalf("Error building forecaster: %s", err.Error())
	}

	store := telemetry.NewStore(cfg.HistoryWindow)
	table := flowlet.NewTable()
	client := coordinator.NewClient(cfg.CoordinatorURL, cfg.CoordinatorTimeout)

	engineCfg := decision.EngineConfig{
		SessionCeiling:    cfg.SessionCeiling,
		FlowletGap:        cfg.FlowletGap,
		OverloadThreshold: cfg.WiFiOverloadThreshold,
		Predictor:         predictor,
		Classifier:        quality.NewClassifier(cfg.Thresholds),
		Coordinator:       client,
		Installer:         table,
		Telemetry:         store,
	}
	if host := coordinatorHost(cfg.CoordinatorURL); host != "" {
		engineCfg.Probe = telemetry.NewControllerProbe(host, cfg.ProbeInterval, 3*cfg.ProbeInterval, stopCh)
	} else {
		klog.Warningf("Cannot derive probe host from %q, reachability probe disabled", cfg.CoordinatorURL)
	}

	engine := decision.NewEngine(engineCfg)
	ctrl := controller.NewController(store, engine, cfg.TickInterval)
	go ctrl.Run(stopCh)

	srv := controller.NewServer(ctrl)
	if err := srv.Run(cfg.ListenAddr, stopCh); err != nil {
		klog.Fatalf("Error running ingest server: %s", err.Error())
	}
}

func coordinatorHost(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
