// Package main provides the distill CLI: it trains a teacher classifier,
// distills it into a compact student and writes both models and a report.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/klauspost/cpuid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/born-ml/distill/internal/config"
	"github.com/born-ml/distill/internal/pipeline"
)

const version = "v0.1.0-dev"

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitInterrupted = 130
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout))
}

// run executes the CLI with args and returns the process exit code. Every
// deferred cleanup has finished by the time it returns.
func run(ctx context.Context, args []string, stdout io.Writer) int {
	if len(args) > 0 && args[0] == "version" {
		fmt.Fprintf(stdout, "distill %s\n", version)
		return exitOK
	}

	fs := flag.NewFlagSet("distill", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to YAML config (defaults apply when empty)")
	trainDir := fs.String("train", "", "Override training image folder")
	valDir := fs.String("val", "", "Override validation image folder")
	outDir := fs.String("out", "", "Override output directory")
	teacherEpochs := fs.Int("teacher-epochs", 0, "Override teacher epochs")
	studentEpochs := fs.Int("student-epochs", 0, "Override student epochs")
	alpha := fs.Float64("alpha", 0, "Override the hard-label weight in [0, 1]")
	temperature := fs.Float64("temperature", 0, "Override the distillation temperature")
	synthetic := fs.Bool("synthetic", false, "Train on generated data instead of image folders")
	metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	logLevel := fs.String("log-level", "", "Override log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		cfg, err = config.Read(*cfgPath)
		if err != nil {
			log.Error().Err(err).Str("path", *cfgPath).Msg("failed to load config")
			return exitFailure
		}
	}

	overrides := config.Overrides{
		TrainDir:      *trainDir,
		ValidationDir: *valDir,
		OutputDir:     *outDir,
		TeacherEpochs: *teacherEpochs,
		StudentEpochs: *studentEpochs,
		Synthetic:     *synthetic,
		MetricsAddr:   *metricsAddr,
		LogLevel:      *logLevel,
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "alpha":
			v := float32(*alpha)
			overrides.Alpha = &v
		case "temperature":
			v := float32(*temperature)
			overrides.Temperature = &v
		}
	})
	cfg.ApplyOverrides(overrides)

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid config")
		return exitFailure
	}
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("version", version).
		Str("cpu", cpuid.CPU.BrandName).
		Int("cores", cpuid.CPU.LogicalCores).
		Bool("avx2", cpuid.CPU.Supports(cpuid.AVX2)).
		Msg("starting")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	res, err := pipeline.Run(ctx, cfg, pipeline.Options{Registerer: reg})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn().Str("run", res.RunID).Msg("interrupted")
			return exitInterrupted
		}
		log.Error().Err(err).Str("run", res.RunID).Msg("distillation failed")
		return exitFailure
	}

	if err := res.Report.Write(stdout); err != nil {
		log.Error().Err(err).Msg("failed to print report")
		return exitFailure
	}
	return exitOK
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	log.Info().Str("addr", addr).Msg("serving metrics")
	return srv
}
