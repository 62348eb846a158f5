// Package app wires configuration into the services the commands run.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"procparse/internal/catalog"
	"procparse/internal/config"
	"procparse/internal/connectors"
	"procparse/internal/extract"
	"procparse/internal/listener"
	"procparse/internal/ocr"
	"procparse/internal/pipeline"
	"procparse/internal/storage"
)

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func OCRConfig(cfg config.Config) ocr.Config {
	return ocr.Config{
		Enabled:       cfg.OCREnabled,
		Languages:     cfg.OCRLanguages,
		TesseractBin:  cfg.TesseractBin,
		Budget:        cfg.OCRDocumentBudget,
		MinConfidence: cfg.OCRMinConfidence,
		MaxImages:     cfg.OCRMaxImages,
	}
}

// Profiles loads PROFILES_PATH when set, otherwise the embedded profiles.
func Profiles(cfg config.Config, logger *slog.Logger) (*extract.ProfileSet, error) {
	if cfg.ProfilesPath != "" {
		set, err := extract.LoadProfilesFile(cfg.ProfilesPath, extract.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("load profiles %s: %w", cfg.ProfilesPath, err)
		}
		return set, nil
	}
	return extract.BuiltinProfiles(extract.WithLogger(logger))
}

func NewPipeline(cfg config.Config, logger *slog.Logger) (*pipeline.Pipeline, error) {
	profiles, err := Profiles(cfg, logger)
	if err != nil {
		return nil, err
	}
	parsers, err := extract.BuiltinParsers(profiles, extract.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	enhancer := ocr.NewEnhancer(OCRConfig(cfg), ocr.WithLogger(logger))
	return pipeline.New(
		pipeline.WithParsers(parsers...),
		pipeline.WithEnhancer(enhancer),
		pipeline.WithLogger(logger),
	)
}

func Loader(cfg config.Config) pipeline.Loader {
	return pipeline.Loader{MinTextLayerChars: cfg.MinTextLayerChars}
}

// App holds the services shared by the commands and the listener.
type App struct {
	Config    config.Config
	Logger    *slog.Logger
	DB        *storage.DB
	Pipeline  *pipeline.Pipeline
	Cache     *catalog.Cache
	Matcher   *pipeline.Matcher
	Processor *pipeline.ProcessingService
	Store     *connectors.DocumentStore
}

func New(cfg config.Config, db *storage.DB, logger *slog.Logger) (*App, error) {
	pipe, err := NewPipeline(cfg, logger)
	if err != nil {
		return nil, err
	}
	cache := catalog.NewCache(db)
	matcher := pipeline.NewMatcher(pipeline.MatchThresholds{
		Auto:    cfg.MatchAutoThreshold,
		Suggest: cfg.MatchSuggestThreshold,
		Gap:     cfg.MatchGapThreshold,
	}, cache)
	processor := pipeline.NewProcessingService(db, pipe, matcher, pipeline.ServiceConfig{
		Loader:  Loader(cfg),
		Options: pipeline.Options{OCR: cfg.OCREnabled},
		Workers: cfg.ProcessWorkers,
		Logger:  logger,
	})
	return &App{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Pipeline:  pipe,
		Cache:     cache,
		Matcher:   matcher,
		Processor: processor,
		Store:     connectors.NewDocumentStore(db, cfg.RawDir),
	}, nil
}

func (a *App) SyncService() *catalog.SyncService {
	return catalog.NewSyncService(a.DB, a.Config, a.Cache)
}

func (a *App) Listener(ctx context.Context) (*listener.Service, error) {
	collector, err := listener.NewCollector(ctx, a.Config, a.Store, a.Logger)
	if err != nil {
		return nil, err
	}
	return listener.NewService(a.DB, collector, a.Processor, listener.Config{
		Interval:     time.Duration(a.Config.ListenerIntervalSec) * time.Second,
		ProcessBatch: a.Config.ListenerProcessBatch,
		AutoExport:   a.Config.ListenerAutoExport,
		OutputDir:    a.Config.OutputDir,
	}, a.Logger), nil
}
