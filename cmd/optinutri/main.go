package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/haroldofalcao/optinutri/internal/catalog"
	"github.com/haroldofalcao/optinutri/internal/config"
	"github.com/haroldofalcao/optinutri/internal/history"
	"github.com/haroldofalcao/optinutri/internal/optimizer"
	"github.com/haroldofalcao/optinutri/internal/server"
	"github.com/haroldofalcao/optinutri/internal/solver/highsolver"
	"github.com/haroldofalcao/optinutri/pkg/constants"
	"github.com/haroldofalcao/optinutri/pkg/optimization"
	"github.com/haroldofalcao/optinutri/pkg/output"
	"github.com/haroldofalcao/optinutri/pkg/validation"
)

// initializeLogger creates a zap logger based on configuration and CLI override
func initializeLogger(loggingConfig config.LoggingConfig, logLevelOverride string) (*zap.Logger, error) {
	// Determine log level (CLI override takes precedence)
	level := loggingConfig.Level
	if logLevelOverride != "" {
		level = logLevelOverride
	}
	if level == "" {
		level = "info"
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	format := loggingConfig.Format
	if format == "" {
		format = "json"
	}

	var config zap.Config
	switch format {
	case "console":
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zapLevel)
	case "json":
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zapLevel)
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}

	if loggingConfig.OutputFile != "" {
		if dir := filepath.Dir(loggingConfig.OutputFile); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory %s: %v", dir, err)
			}
		}

		file, err := os.OpenFile(loggingConfig.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %v", loggingConfig.OutputFile, err)
		}
		_ = file.Close()

		config.OutputPaths = []string{loggingConfig.OutputFile}
		config.ErrorOutputPaths = []string{loggingConfig.OutputFile}
	}

	return config.Build()
}

// loadConfiguration reads the configuration file. A missing file at the
// default location falls back to built-in defaults.
func loadConfiguration(path string, explicit bool) (*config.Configuration, error) {
	if _, err := os.Stat(path); err != nil && errors.Is(err, fs.ErrNotExist) && !explicit {
		return config.Default(), nil
	}
	return config.LoadConfiguration(path)
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

func main() {
	configLocation := flag.String("config", constants.DefaultConfigFile, "path to configuration file")
	catalogPath := flag.String("catalog", "", "path to a formula catalog overriding the built-in one")
	outputFormatFlag := flag.String("output-format", "", "type of output override: pretty, csv, json")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")

	kcalMin := flag.Float64("kcal-min", 1800, "minimum calories (kcal)")
	kcalMax := flag.Float64("kcal-max", 2400, "maximum calories (kcal)")
	proteinMin := flag.Float64("protein-min", 60, "minimum protein (g)")
	proteinMax := flag.Float64("protein-max", 90, "maximum protein (g)")
	volumeMax := flag.Float64("volume-max", 2500, "maximum volume (mL)")
	maxBags := flag.Int("max-bags", 5, "maximum number of bags, 0 for no limit")
	formulas := flag.String("formulas", "", "comma-separated formula ids to consider")
	fixed := flag.String("fixed", "", "formulas forced into the prescription as id=qty pairs")
	emulsion := flag.String("emulsion", constants.FilterAll, "emulsion type filter")
	via := flag.String("via", constants.FilterAll, "administration route filter")

	serve := flag.Bool("serve", false, "start the HTTP API instead of a single optimization")
	serverConfigPath := flag.String("server-config", "", "path to a server configuration file overriding the server section")
	flag.Parse()

	explicitConfig := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicitConfig = true
		}
	})

	conf, err := loadConfiguration(*configLocation, explicitConfig)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load configuration at %s\", \"error\": \"%v\"}\n", *configLocation, err)
		os.Exit(1)
	}

	var serverConf *server.Config
	if *serve {
		if *serverConfigPath != "" {
			serverConf, err = server.LoadConfig(*serverConfigPath)
			if err == nil {
				if serverConf.Logging.Level != "" {
					conf.Logging.Level = serverConf.Logging.Level
				}
				if serverConf.Logging.Format != "" {
					conf.Logging.Format = serverConf.Logging.Format
				}
				if serverConf.Logging.OutputFile != "" {
					conf.Logging.OutputFile = serverConf.Logging.OutputFile
				}
			}
		} else {
			serverConf, err = server.FromSettings(conf.Server)
		}
		if err != nil {
			fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load server configuration\", \"error\": \"%v\"}\n", err)
			os.Exit(1)
		}
	}

	logger, err := initializeLogger(conf.Logging, *logLevel)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to initialize logger\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if *catalogPath != "" {
		conf.Catalog.Path = *catalogPath
	}
	cat, err := loadCatalog(conf.Catalog.Path)
	if err != nil {
		logger.Fatal("failed to load formula catalog",
			zap.String("op", "main"),
			zap.String("path", conf.Catalog.Path),
			zap.Error(err),
		)
	}

	// HiGHS stops itself at the time limit; the optimizer timeout only
	// abandons a run that overshoots it.
	opt, err := optimizer.New(logger, cat.Formulas(),
		highsolver.New(logger, highsolver.WithTimeLimit(conf.Optimizer.SolverTimeLimit)),
		optimizer.WithTolerances(optimizer.Tolerances{
			Nutrient:   conf.Optimizer.NutrientTolerance,
			Count:      conf.Optimizer.CountTolerance,
			BagEpsilon: conf.Optimizer.BagEpsilon,
		}),
		optimizer.WithSolveTimeout(conf.Optimizer.SolveBackstop()),
	)
	if err != nil {
		logger.Fatal("failed to initialize optimizer",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	if *serve {
		runServer(logger, conf, serverConf, opt, cat)
		return
	}

	// Determine output format (CLI override takes precedence over config)
	outputFormat := conf.Output.Format
	if *outputFormatFlag != "" {
		outputFormat = *outputFormatFlag
	}
	if outputFormat == "" {
		outputFormat = constants.OutputFormatPretty
	}
	if err := validation.ValidateOutputFormat(outputFormat); err != nil {
		logger.Fatal(err.Error(),
			zap.String("op", "main"),
		)
	}

	fixedFormulas, err := optimizer.ParseFixed(*fixed)
	if err != nil {
		logger.Fatal("failed to parse fixed formulas",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	req := optimizer.Request{
		Constraints: optimization.Constraints{
			KcalMin:    *kcalMin,
			KcalMax:    *kcalMax,
			ProteinMin: *proteinMin,
			ProteinMax: *proteinMax,
			VolumeMax:  *volumeMax,
			MaxBags:    *maxBags,
		},
		SelectedIDs:    optimizer.ParseSelection(*formulas),
		EmulsionFilter: *emulsion,
		ViaFilter:      *via,
		FixedFormulas:  fixedFormulas,
	}
	logger.Debug("running optimization",
		zap.String("op", "main"),
		zap.Int("catalogSize", cat.Len()),
		zap.Strings("formulas", req.SelectedIDs),
		zap.String("fixed", optimizer.FormatFixed(fixedFormulas)),
	)

	result := opt.Optimize(context.Background(), req)

	switch outputFormat {
	case constants.OutputFormatPretty:
		output.PrettyFormat(result)
	case constants.OutputFormatCSV:
		output.CsvFormat(result)
	case constants.OutputFormatJSON:
		if err := output.JSONFormat(result); err != nil {
			logger.Fatal("failed to write result",
				zap.String("op", "main"),
				zap.Error(err),
			)
		}
	}

	if !result.Optimal() {
		_ = logger.Sync()
		os.Exit(2)
	}
}

func runServer(logger *zap.Logger, conf *config.Configuration, serverConf *server.Config, opt *optimizer.Optimizer, cat *catalog.Catalog) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := history.New(ctx, logger, conf.History)
	if err != nil {
		logger.Fatal("failed to initialize history store",
			zap.String("op", "main.runServer"),
			zap.Error(err),
		)
	}

	srv := &http.Server{
		Addr:              serverConf.Address,
		Handler:           server.NewHandler(logger, opt, cat, store, serverConf),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown did not complete",
				zap.String("op", "main.runServer"),
				zap.Error(err),
			)
		}
	}()

	logger.Info("starting server",
		zap.String("op", "main.runServer"),
		zap.String("address", serverConf.Address),
		zap.String("historyBackend", conf.History.Backend),
		zap.Int("formulas", cat.Len()),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed",
			zap.String("op", "main.runServer"),
			zap.Error(err),
		)
	}
	logger.Info("server stopped", zap.String("op", "main.runServer"))
}
