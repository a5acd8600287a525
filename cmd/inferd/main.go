package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/compute"
	"inferd/internal/config"
	"inferd/internal/engine"
	"inferd/internal/httpapi"
	"inferd/internal/registry"
)

func main() {
	// Flags with environment variable defaults
	addr := flag.String("addr", envStr("INFERD_ADDR", ":8080"), "HTTP listen address, e.g. :8080")
	cfgPath := flag.String("config", envStr("INFERD_CONFIG", ""), "Optional config file (.yaml/.json/.toml)")
	manifest := flag.String("manifest", envStr("INFERD_MANIFEST", ""), "Model manifest file to register at startup")
	maxBatch := flag.Int("max-batch-size", envInt("INFERD_MAX_BATCH_SIZE", 0), "Maximum concurrently running requests (0=default)")
	maxQueue := flag.Int("max-queue-depth", envInt("INFERD_MAX_QUEUE_DEPTH", 0), "Maximum queued requests before 429 (0=default)")
	timeoutMS := flag.Int64("default-timeout-ms", 0, "Default per-request timeout in ms (0=default)")
	gpu := flag.Bool("gpu", os.Getenv("INFERD_GPU") == "1", "Prefer the GPU backend, falling back to CPU")
	logLevel := flag.String("log-level", envStr("INFERD_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	flag.Parse()

	log := newLogger(*logLevel)

	var fileCfg config.Config
	if *cfgPath != "" {
		var err error
		fileCfg, err = config.Load(*cfgPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *cfgPath).Msg("failed to load config")
		}
	}
	// Explicit flags and env vars win over the config file; the file wins
	// over built-in defaults.
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	for name, env := range map[string]string{
		"addr":            "INFERD_ADDR",
		"manifest":        "INFERD_MANIFEST",
		"max-batch-size":  "INFERD_MAX_BATCH_SIZE",
		"max-queue-depth": "INFERD_MAX_QUEUE_DEPTH",
		"gpu":             "INFERD_GPU",
	} {
		if os.Getenv(env) != "" {
			set[name] = true
		}
	}
	mergeFileConfig(set, fileCfg, addr, manifest, maxBatch, maxQueue, timeoutMS, gpu)

	reg := registry.New()
	if *manifest != "" {
		if err := registerFromManifest(reg, *manifest, log); err != nil {
			log.Fatal().Err(err).Str("path", *manifest).Msg("failed to load manifest")
		}
	}

	eng := engine.New(engine.Config{
		Registry:       reg,
		Compute:        computeConfig(*gpu, fileCfg),
		MaxBatchSize:   *maxBatch,
		MaxQueueDepth:  *maxQueue,
		DefaultTimeout: time.Duration(*timeoutMS) * time.Millisecond,
		Logger:         log,
	})

	httpapi.SetLogger(log)
	httpapi.SetMaxBodyBytes(fileCfg.MaxBodyBytes)
	httpapi.SetCORSOptions(fileCfg.CORSEnabled, fileCfg.CORSAllowedOrigins, fileCfg.CORSAllowedMethods, fileCfg.CORSAllowedHeaders)

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	mux := httpapi.NewMux(eng)
	srv := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		log.Info().
			Str("addr", *addr).
			Str("backend", eng.BackendName()).
			Int("models", len(eng.ListModels())).
			Msg("inferd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
	eng.Dispose()
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

// registerFromManifest registers every manifest entry and attaches weights
// for entries that name a weights file.
func registerFromManifest(reg *registry.Registry, path string, log zerolog.Logger) error {
	man, err := registry.LoadManifest(path)
	if err != nil {
		return err
	}
	for _, entry := range man.Models {
		m := entry.Model()
		if err := reg.Register(m); err != nil {
			return err
		}
		if entry.WeightsPath == "" {
			log.Warn().Str("model", m.ID).Msg("registered without weights")
			continue
		}
		weights, err := registry.ReadWeightsFile(entry.WeightsPath)
		if err != nil {
			return err
		}
		if err := reg.Load(m.ID, weights); err != nil {
			return err
		}
		log.Info().Str("model", m.ID).Int("weights", len(weights)).Msg("model loaded")
	}
	return nil
}

// mergeFileConfig fills in values the caller left unset on the command line
// and in the environment. Flag names key the set map.
func mergeFileConfig(set map[string]bool, fileCfg config.Config,
	addr, manifest *string, maxBatch, maxQueue *int, timeoutMS *int64, gpu *bool) {
	if !set["addr"] && fileCfg.Addr != "" {
		*addr = fileCfg.Addr
	}
	if !set["manifest"] && fileCfg.ManifestPath != "" {
		*manifest = fileCfg.ManifestPath
	}
	if !set["max-batch-size"] && fileCfg.MaxBatchSize != 0 {
		*maxBatch = fileCfg.MaxBatchSize
	}
	if !set["max-queue-depth"] && fileCfg.MaxQueueDepth != 0 {
		*maxQueue = fileCfg.MaxQueueDepth
	}
	if !set["default-timeout-ms"] && fileCfg.DefaultTimeoutMS != 0 {
		*timeoutMS = fileCfg.DefaultTimeoutMS
	}
	if !set["gpu"] && fileCfg.GPUEnabled {
		*gpu = true
	}
}

func computeConfig(gpu bool, fileCfg config.Config) compute.Config {
	return compute.Config{
		EnableGPU:   gpu,
		DeviceIndex: fileCfg.GPUDevice,
		Workers:     fileCfg.GPUWorkers,
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
