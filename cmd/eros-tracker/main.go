package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"

	lib "github.com/khushalp2004/eros-tracking"
	"github.com/khushalp2004/eros-tracking/config"
	"github.com/khushalp2004/eros-tracking/geometry"
	"github.com/khushalp2004/eros-tracking/progress"
	"github.com/khushalp2004/eros-tracking/registry"
	"github.com/khushalp2004/eros-tracking/session"
	"github.com/khushalp2004/eros-tracking/snap"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to config file")
	channelURL := flag.String("channelURL", "", "push-channel URL (overrides config)")
	registryURL := flag.String("registryURL", "", "route collaborator base URL (overrides config)")
	flag.Parse()

	lib.InitLogging()
	_ = godotenv.Load()

	cfg, err := config.LoadAppConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *channelURL != "" {
		cfg.Channel.URL = *channelURL
	}
	if *registryURL != "" {
		cfg.Registry.BaseURL = *registryURL
	}

	index := geometry.NewIndex()
	snapOpts := snap.Options{
		MaxSnapDistanceMeters:      cfg.Snap.MaxSnapDistanceMeters,
		GPSAccuracyThresholdMeters: cfg.Snap.GPSAccuracyThresholdMeters,
		OffRouteThresholdMeters:    cfg.Snap.OffRouteThresholdMeters,
		CacheCapacity:              cfg.Snap.CacheCapacity,
		CacheTTL:                   time.Duration(cfg.Snap.CacheTTLMS) * time.Millisecond,
	}
	snapper := snap.NewSnapper(index, snapOpts)
	scheduler := progress.NewScheduler(index, time.Duration(cfg.Animation.TickIntervalMS)*time.Millisecond)

	client := registry.NewClient(cfg.Registry.BaseURL, time.Duration(cfg.Registry.TimeoutMS)*time.Millisecond)
	reg := registry.NewRegistry(client, time.Duration(cfg.Registry.PollIntervalMS)*time.Millisecond)

	sess := session.NewManager(cfg.Channel, nil)

	tracker := lib.NewTracker(sess, reg, index, snapper, scheduler, snapOpts)
	if err := tracker.Start(context.Background()); err != nil {
		log.Printf("initial channel connect failed, retrying in background: %v", err)
	}

	server := lib.NewServer(cfg.Server.Port, tracker, reg, sess)
	server.Start()
	server.HandleGracefulShutdown()
}
