package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"lorad/internal/comfy"
	"lorad/internal/common/fsutil"
	"lorad/internal/config"
	"lorad/internal/fetcher"
	"lorad/internal/httpapi"
	"lorad/internal/predictor"
	"lorad/pkg/types"
)

// app wires the fetcher and predictor into the HTTP service surface.
type app struct {
	fetcher   *fetcher.Fetcher
	predictor *predictor.Predictor
}

func (a *app) FetchLora(ctx context.Context, url string) (string, error) {
	return a.fetcher.Fetch(ctx, url)
}

func (a *app) Predict(ctx context.Context, req types.PredictionRequest) (types.PredictionResponse, error) {
	return a.predictor.Predict(ctx, req)
}

func (a *app) Ready(ctx context.Context) bool { return a.predictor.Ready(ctx) }

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfgPath := flag.String("config", os.Getenv("LORAD_CONFIG"), "Optional config file (yaml/json/toml)")
	addr := flag.String("addr", envOr("LORAD_ADDR", ":8080"), "HTTP listen address, e.g. :8080")
	lorasDir := flag.String("loras-dir", "ComfyUI/models/loras", "Destination directory for fetched LoRA files")
	stagingDir := flag.String("staging-dir", "TEMP_HF", "Staging directory for in-flight downloads")
	outputDir := flag.String("output-dir", "/tmp/outputs", "Directory the generation server writes outputs to")
	inputDir := flag.String("input-dir", "/tmp/inputs", "Directory for staged input images")
	comfyTempDir := flag.String("comfy-temp-dir", "ComfyUI/temp", "Generation server temp output directory")
	comfyAddr := flag.String("comfy-addr", envOr("LORAD_COMFY_ADDR", "127.0.0.1:8188"), "Address of the running generation server")
	workflowPath := flag.String("workflow", "", "Workflow graph template (empty uses the embedded default)")
	pgetPath := flag.String("pget", "pget", "Path of the pget binary for direct downloads")
	fetchTimeout := flag.Int("fetch-timeout", 600, "Download timeout in seconds")
	hubOffline := flag.Bool("hub-offline", false, "Restrict the HuggingFace client to already-staged files")
	flag.Parse()

	if *cfgPath != "" {
		cfg, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *cfgPath).Msg("failed to load config")
		}
		applyConfig(cfg, map[string]*string{
			"addr":        addr,
			"loras-dir":   lorasDir,
			"staging-dir": stagingDir,
			"output-dir":  outputDir,
			"input-dir":   inputDir,
			"comfy-addr":  comfyAddr,
			"workflow":    workflowPath,
			"pget":        pgetPath,
		}, fetchTimeout, cfg.FetchTimeoutSecs)
	}

	loras, err := fsutil.ExpandHome(*lorasDir)
	if err != nil {
		log.Fatal().Err(err).Msg("bad loras dir")
	}
	staging, err := fsutil.ExpandHome(*stagingDir)
	if err != nil {
		log.Fatal().Err(err).Msg("bad staging dir")
	}

	f := fetcher.New(fetcher.Options{
		LorasDir:   loras,
		StagingDir: staging,
		Timeout:    time.Duration(*fetchTimeout) * time.Second,
		Fast:       fetcher.NewPgetFetcher(*pgetPath),
		Hub:        fetcher.NewHubClient(fetcher.HubOptions{CacheDir: staging, Offline: *hubOffline}),
		Logger:     log,
	})
	client := comfy.New(*comfyAddr, log)
	p := predictor.New(predictor.Options{
		OutputDir:    *outputDir,
		InputDir:     *inputDir,
		TempDir:      *comfyTempDir,
		WorkflowPath: *workflowPath,
		Comfy:        client,
		Logger:       log,
	})

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetLogger(log)
	httpapi.SetBaseContext(baseCtx)

	mux := httpapi.NewMux(&app{fetcher: f, predictor: p})
	srv := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		log.Info().Str("addr", *addr).Str("loras_dir", loras).Str("comfy_addr", *comfyAddr).Msg("lorad listening")
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
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
}

// applyConfig overwrites flag values still at their defaults with non-empty
// config file values. Explicitly set flags win.
func applyConfig(cfg config.Config, byName map[string]*string, fetchTimeout *int, cfgTimeout int) {
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	values := map[string]string{
		"addr":        cfg.Addr,
		"loras-dir":   cfg.LorasDir,
		"staging-dir": cfg.StagingDir,
		"output-dir":  cfg.OutputDir,
		"input-dir":   cfg.InputDir,
		"comfy-addr":  cfg.ComfyAddr,
		"workflow":    cfg.WorkflowPath,
		"pget":        cfg.PgetPath,
	}
	for name, dst := range byName {
		if v := values[name]; v != "" && !set[name] {
			*dst = v
		}
	}
	if cfgTimeout > 0 && !set["fetch-timeout"] {
		*fetchTimeout = cfgTimeout
	}
}
