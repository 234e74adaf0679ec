package cli

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"wrtools/internal/buildcache"
	"wrtools/internal/config"
	"wrtools/internal/installer"
	"wrtools/internal/kits"
	"wrtools/internal/logx"
	"wrtools/internal/paths"
	"wrtools/internal/platform"
)

// app holds everything a command needs, wired from config and flags.
type app struct {
	cfg        config.Config
	configFile string
	paths      paths.StoragePaths
	host       platform.Host

	logger   *log.Logger
	logClose io.Closer
	registry *prometheus.Registry
	traces   *traceSink

	inst  *installer.Installer
	mgr   *installer.Manager
	cache *buildcache.Cache
	kits  *kits.Syncer
}

func resolveConfigPath() (string, error) {
	if strings.TrimSpace(configPath) != "" {
		return configPath, nil
	}
	return config.DefaultPath()
}

func loadConfig() (config.Config, string, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return config.Config{}, "", err
	}
	cfg, err := config.Resolve(path)
	if err != nil {
		return config.Config{}, path, err
	}
	if strings.TrimSpace(storageDir) != "" {
		cfg.StorageDir = storageDir
	}
	return cfg, path, nil
}

func newApp() (*app, error) {
	cfg, cfgPath, err := loadConfig()
	if err != nil {
		return nil, err
	}

	sp, err := paths.Resolve(cfg.StorageDir)
	if err != nil {
		return nil, err
	}
	if err := sp.EnsureRoot(); err != nil {
		return nil, err
	}

	host := platform.Current()
	if strings.TrimSpace(hostFlag) != "" {
		host, err = platform.Parse(hostFlag)
		if err != nil {
			return nil, err
		}
	}

	logger, closer, err := logx.New(sp.LogsDir, "wrtools")
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		configFile: cfgPath,
		paths:      sp,
		host:       host,
		logger:     logger,
		logClose:   closer,
		registry:   prometheus.NewRegistry(),
	}

	var tp trace.TracerProvider
	if strings.TrimSpace(traceOut) != "" {
		a.traces, err = openTraceSink(traceOut)
		if err != nil {
			closer.Close()
			return nil, err
		}
		tp = a.traces.provider
	}

	releases := installer.NewReleaseClient(installer.ReleaseClientOptions{
		APIBase:   cfg.Registry.APIURL,
		Token:     cfg.Registry.Token,
		UserAgent: cfg.HTTP.UserAgent,
		CacheTTL:  cfg.Registry.CacheTTL,
	})
	inst, err := installer.New(installer.Config{
		ComponentsDir: sp.ComponentsDir,
		Host:          host,
		Releases:      releases,
		Fetcher: installer.Fetcher{
			HTTPClient: &http.Client{Timeout: cfg.HTTP.Timeout},
			UserAgent:  cfg.HTTP.UserAgent,
		},
		Logger:         logger,
		Metrics:        installer.NewMetrics(installer.WithRegistry(a.registry)),
		TracerProvider: tp,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.inst = inst
	a.mgr = installer.NewManager(inst)
	a.cache = buildcache.New(sp, buildcache.Settings{
		SoftLimit:       cfg.BuildCache.SoftLimit,
		CleanupInterval: cfg.BuildCache.CleanupInterval,
	}, logger)
	a.kits = kits.NewSyncer(inst, kits.Options{KitsFile: cfg.CMake.KitsFile, Logger: logger})

	inst.AddNotifier(a.cache)
	if !cfg.CMake.Disabled {
		inst.AddNotifier(a.kits)
	}

	logger.Printf("wrtools start: storage=%s host=%s config=%s", sp.Root, host, cfgPath)
	return a, nil
}

// Close flushes metrics and traces when requested and closes the log file.
func (a *app) Close() error {
	var firstErr error
	if strings.TrimSpace(metricsOut) != "" {
		if err := prometheus.WriteToTextfile(metricsOut, a.registry); err != nil {
			firstErr = fmt.Errorf("write metrics: %w", err)
		}
	}
	if a.traces != nil {
		if err := a.traces.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.logClose != nil {
		if err := a.logClose.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// withApp builds an app for the duration of fn.
func withApp(fn func(a *app) error) (err error) {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}
