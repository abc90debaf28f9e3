package daemon

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/model"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Run runs a process engine until SIGINT or SIGTERM is received and returns an exit code.
func Run(args []string) int {
	daemonOptions := NewOptions()
	engineOptions := engine.NewOptions()

	conf := newConf()
	conf.setDaemonOptions(daemonOptions)
	conf.setEngineOptions(engineOptions)

	flags := flag.NewFlagSet("procengined", flag.ContinueOnError)
	flags.SetOutput(log.Writer())

	flags.Var(&conf.envFile.env, "env", "set environment variables")
	flags.Var(&conf.envFile, "env-file", "read in a file of environment variables")

	var doCreateEncryptionKey bool
	flags.BoolVar(&doCreateEncryptionKey, "create-encryption-key", false, "create a new encryption key - used for "+conf.opts[optEncryptionKeys].key)
	var doListConfOpts bool
	flags.BoolVar(&doListConfOpts, "list-conf-opts", false, "list configuration options")
	var doListConf bool
	flags.BoolVar(&doListConf, "list-conf", false, "list configuration")
	var doVersion bool
	flags.BoolVar(&doVersion, "version", false, "show version")

	if err := flags.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		} else {
			return 1
		}
	}

	if doCreateEncryptionKey {
		return createEncryptionKey()
	}
	if doListConfOpts {
		return listConfOpts(conf)
	}
	if doListConf {
		return listConf(conf)
	}
	if doVersion {
		return showVersion()
	}

	conf.getDaemonOptions(&daemonOptions)
	conf.getEngineOptions(&engineOptions)

	requireBackendOption(conf, daemonOptions)

	if code := listConfErrors(conf); code != 0 {
		return code
	}

	logger, err := newLogger(daemonOptions.LogLevel)
	if err != nil {
		log.Printf("failed to create logger: %v", err)
		return 1
	}

	defer func() { _ = logger.Sync() }()

	if daemonOptions.DefinitionsDir != "" {
		processes, err := model.NewFromDir(daemonOptions.DefinitionsDir)
		if err != nil {
			logger.Error("failed to read process definitions", zap.Error(err))
			return 1
		}

		engineOptions.Processes = processes
	}

	engineOptions.Logger = logger.Named("engine")
	engineOptions.OnJobExecutionFailure = func(job engine.Job, err error) {
		logger.Error("failed to execute job", zap.Stringer("job", job), zap.Error(err))
	}
	engineOptions.OnNodeError = func(nodeError engine.NodeInstanceError) {
		logger.Warn("node instance failed to process signal",
			zap.String("processInstanceId", nodeError.ProcessInstanceId),
			zap.String("nodeInstanceId", nodeError.NodeInstanceId),
			zap.String("nodeId", nodeError.NodeId),
			zap.Bool("fatal", nodeError.Fatal),
			zap.String("error", nodeError.Error),
		)
	}

	engineStartTime := time.Now()

	e, err := newEngine(daemonOptions, engineOptions)
	if err != nil {
		logger.Error("failed to create engine", zap.String("backend", daemonOptions.Backend), zap.Error(err))
		return 1
	}

	logger.Info("engine started",
		zap.String("backend", daemonOptions.Backend),
		zap.String("engineId", engineOptions.EngineId),
		zap.Int("processes", len(engineOptions.Processes)),
		zap.Int64("startTimeMs", time.Since(engineStartTime).Milliseconds()),
	)

	if logger.Core().Enabled(zapcore.DebugLevel) {
		e.AddListener(newEventLogger(logger.Named("event")))
	}

	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGTERM)

	<-signalC

	e.Shutdown()
	logger.Info("engine shut down")

	return 0
}

func newLogger(level zapcore.Level) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	config.Sampling = nil
	return config.Build()
}

// newEventLogger returns a listener, which logs engine events at debug level.
func newEventLogger(logger *zap.Logger) engine.Listener {
	return func(event engine.Event) {
		fields := []zap.Field{
			zap.String("processId", event.ProcessId),
			zap.String("processInstanceId", event.ProcessInstanceId),
		}
		if event.NodeInstanceId != "" {
			fields = append(fields, zap.String("nodeId", event.NodeId), zap.String("nodeInstanceId", event.NodeInstanceId))
		}
		if event.UserTaskId != "" {
			fields = append(fields, zap.String("userTaskId", event.UserTaskId))
		}
		if event.Variable != nil {
			fields = append(fields, zap.String("variable", event.Variable.Name))
		}

		logger.Debug(event.Type.String(), fields...)
	}
}
