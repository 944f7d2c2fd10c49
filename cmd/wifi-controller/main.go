package main

import (
	"flag"

	"golang.org/x/time/rate"
	"k8s.io/klog/v2"

	"hetnet-offload/controller/pkg/config"
	"hetnet-offload/controller/pkg/signals"
	"hetnet-offload/controller/pkg/wifi"
)

var (
	configPath string
	listenAddr string
)

func main() {
	klog.InitFlags(nil)
	flag.StringVar(&configPath, "config", "", "Path to YAML config")
	flag.StringVar(&listenAddr, "listen-addr", "", "Override listen address")
	flag.Parse()

	stopCh := signals.SetupSignalHandler()

	cfg, err := config.LoadWiFi(configPath)
	if err != nil {
		klog.Fatalf("Error loading config: %s", err.Error())
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}

	manager := wifi.NewManager(cfg)
	limiter := rate.NewLimiter(rate.Limit(cfg.AdmissionRPS), cfg.AdmissionBurst)

	srv := wifi.NewServer(manager, limiter)
	if err := srv.Run(cfg.ListenAddr, stopCh); err != nil {
		klog.Fatalf("Error running resource manager: %s", err.Error())
	}
}
