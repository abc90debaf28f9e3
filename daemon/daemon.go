package daemon

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gclaussn/go-procengine/engine"
	"go.uber.org/zap/zapcore"
)

const (
	envPrefix = "GO_PROCENGINE_"

	optDefaultQueryLimit      = "DEFAULT_QUERY_LIMIT"
	optEncryptionKeys         = "ENCRYPTION_KEYS"
	optEngineId               = "ENGINE_ID"
	optJobExecutorEnabled     = "JOB_EXECUTOR_ENABLED"
	optJobExecutorInterval    = "JOB_EXECUTOR_INTERVAL"
	optJobExecutorLimit       = "JOB_EXECUTOR_LIMIT"
	optJobExecutorParallelism = "JOB_EXECUTOR_PARALLELISM"
	optSnapshotEncoding       = "SNAPSHOT_ENCODING"
	optStepLimit              = "STEP_LIMIT"

	optBackend              = "BACKEND"
	optBoltPath             = "BOLT_PATH"
	optDefinitionsDir       = "DEFINITIONS_DIR"
	optLogLevel             = "LOG_LEVEL"
	optPgDatabaseUrl        = "PG_DATABASE_URL"
	optSqliteDataSourceName = "SQLITE_DATA_SOURCE_NAME"
)

// backends
const (
	backendBolt   = "bolt"
	backendMem    = "mem"
	backendPg     = "pg"
	backendSqlite = "sqlite"
)

var (
	version = "unknown-version"
)

// Options configure the daemon itself. Engine options are configured separately.
type Options struct {
	Backend              string        // Engine implementation: mem, bolt, sqlite or pg.
	BoltPath             string        // Path of the bbolt database file.
	DefinitionsDir       string        // Directory, containing YAML process definitions, registered on start.
	LogLevel             zapcore.Level // Minimum level of log entries.
	PgDatabaseUrl        string        // PostgreSQL URL.
	SqliteDataSourceName string        // SQLite data source name.
}

func NewOptions() Options {
	return Options{
		Backend:              backendMem,
		BoltPath:             "procengine.db",
		LogLevel:             zapcore.InfoLevel,
		SqliteDataSourceName: "procengine.sqlite",
	}
}

func newConf() *conf {
	env := env{}
	for _, value := range os.Environ() {
		_ = env.Set(value)
	}

	conf := conf{
		envFile: envFile{env},
		opts:    make(map[string]*confOpt),
	}

	conf.addEngineOption(
		optDefaultQueryLimit,
		"default limit for queries without an explicit limit",
		func(o engine.Options) string {
			return strconv.Itoa(o.DefaultQueryLimit)
		},
		func(o *engine.Options, co *confOpt) error {
			defaultQueryLimit, err := strconv.ParseInt(co.value(), 10, 32)
			o.DefaultQueryLimit = int(defaultQueryLimit)
			return err
		},
	)
	conf.addEngineOption(
		optEncryptionKeys,
		"comma-separated list of encryption keys (from new to old)",
		func(o engine.Options) string {
			return ""
		},
		func(o *engine.Options, co *confOpt) error {
			encryptionKeys := co.value()
			if encryptionKeys == "" {
				return nil
			}

			encryption, err := engine.NewEncryption(encryptionKeys)
			o.Encryption = encryption
			return err
		},
	)
	conf.addEngineOption(
		optEngineId,
		"ID of the engine",
		func(o engine.Options) string {
			return o.EngineId
		},
		func(o *engine.Options, co *confOpt) error {
			engineId := co.value()
			if engineId == "" {
				return errors.New("is empty")
			}

			o.EngineId = engineId
			return nil
		},
	)
	conf.addEngineOption(
		optJobExecutorEnabled,
		"enable or disable the engine's job executor",
		func(o engine.Options) string {
			return strconv.FormatBool(o.JobExecutorEnabled)
		},
		func(o *engine.Options, co *confOpt) error {
			jobExecutorEnabled, err := strconv.ParseBool(co.value())
			o.JobExecutorEnabled = jobExecutorEnabled
			return err
		},
	)
	conf.addEngineOption(
		optJobExecutorInterval,
		"interval between the execution of due jobs",
		func(o engine.Options) string {
			return o.JobExecutorInterval.String()
		},
		func(o *engine.Options, co *confOpt) error {
			jobExecutorInterval, err := time.ParseDuration(co.value())
			o.JobExecutorInterval = jobExecutorInterval
			return err
		},
	)
	conf.addEngineOption(
		optJobExecutorLimit,
		"maximum number of due jobs to execute at once",
		func(o engine.Options) string {
			return strconv.Itoa(o.JobExecutorLimit)
		},
		func(o *engine.Options, co *confOpt) error {
			jobExecutorLimit, err := strconv.ParseInt(co.value(), 10, 32)
			o.JobExecutorLimit = int(jobExecutorLimit)
			return err
		},
	)
	conf.addEngineOption(
		optJobExecutorParallelism,
		"maximum number of due jobs that are fired in parallel",
		func(o engine.Options) string {
			return strconv.Itoa(o.JobExecutorParallelism)
		},
		func(o *engine.Options, co *confOpt) error {
			jobExecutorParallelism, err := strconv.ParseInt(co.value(), 10, 32)
			o.JobExecutorParallelism = int(jobExecutorParallelism)
			return err
		},
	)
	conf.addEngineOption(
		optSnapshotEncoding,
		"encoding of process instance snapshots: CBOR or MSGPACK",
		func(o engine.Options) string {
			return o.SnapshotEncoding.String()
		},
		func(o *engine.Options, co *confOpt) error {
			snapshotEncoding := engine.MapSnapshotEncoding(co.value())
			if snapshotEncoding == 0 {
				return errors.New("is invalid")
			}

			o.SnapshotEncoding = snapshotEncoding
			return nil
		},
	)
	conf.addEngineOption(
		optStepLimit,
		"maximum number of node activations per operation",
		func(o engine.Options) string {
			return strconv.Itoa(o.StepLimit)
		},
		func(o *engine.Options, co *confOpt) error {
			stepLimit, err := strconv.ParseInt(co.value(), 10, 32)
			o.StepLimit = int(stepLimit)
			return err
		},
	)

	conf.addDaemonOption(
		optBackend,
		"engine implementation: mem, bolt, sqlite or pg",
		func(o Options) string {
			return o.Backend
		},
		func(o *Options, co *confOpt) error {
			backend := co.value()
			switch backend {
			case backendBolt, backendMem, backendPg, backendSqlite:
				o.Backend = backend
				return nil
			default:
				return errors.New("is invalid")
			}
		},
	)
	conf.addDaemonOption(
		optBoltPath,
		"path of the database file, used by backend bolt",
		func(o Options) string {
			return o.BoltPath
		},
		func(o *Options, co *confOpt) error {
			o.BoltPath = co.value()
			return nil
		},
	)
	conf.addDaemonOption(
		optDefinitionsDir,
		"directory of YAML process definitions, registered when the engine is started",
		func(o Options) string {
			return o.DefinitionsDir
		},
		func(o *Options, co *confOpt) error {
			o.DefinitionsDir = co.value()
			return nil
		},
	)
	conf.addDaemonOption(
		optLogLevel,
		"minimum log level: debug, info, warn or error",
		func(o Options) string {
			return o.LogLevel.String()
		},
		func(o *Options, co *confOpt) error {
			logLevel, err := zapcore.ParseLevel(co.value())
			o.LogLevel = logLevel
			return err
		},
	)
	conf.addDaemonOption(
		optPgDatabaseUrl,
		"format: postgres://<username>:<password>@<host>:<port>/<database>?search_path=<schema>, used by backend pg",
		func(o Options) string {
			return o.PgDatabaseUrl
		},
		func(o *Options, co *confOpt) error {
			o.PgDatabaseUrl = co.value()
			return nil
		},
	)
	conf.addDaemonOption(
		optSqliteDataSourceName,
		"data source name, used by backend sqlite",
		func(o Options) string {
			return o.SqliteDataSourceName
		},
		func(o *Options, co *confOpt) error {
			o.SqliteDataSourceName = co.value()
			return nil
		},
	)

	return &conf
}

func createEncryptionKey() int {
	encryptionKey, err := engine.NewEncryptionKey()
	if err != nil {
		log.Printf("failed to create encryption key: %v", err)
		return 1
	}

	log.SetFlags(0)
	_, _ = log.Writer().Write([]byte(encryptionKey))
	return 0
}

func listConf(conf *conf) int {
	log.SetFlags(0)
	for _, opt := range conf.sortedOpts() {
		log.Printf("%s=%s", opt.key, opt.value())
	}

	return 0
}

func listConfErrors(conf *conf) int {
	var opts []*confOpt

	for _, opt := range conf.sortedOpts() {
		if opt.err != nil {
			opts = append(opts, opt)
		}
	}

	if len(opts) == 0 {
		return 0
	}

	log.SetFlags(0)
	for _, opt := range opts {
		value := opt.value()
		if value == "" {
			log.Printf("%s: %v", opt.key, opt.err)
		} else {
			log.Printf("%s=%s: %v", opt.key, value, opt.err)
		}
	}

	return 1
}

func listConfOpts(conf *conf) int {
	opts := conf.sortedOpts()

	maxKeyLength := 0
	for _, opt := range opts {
		keyLength := len(opt.key)
		if opt.required {
			keyLength++
		}

		if keyLength > maxKeyLength {
			maxKeyLength = keyLength
		}
	}

	var sb strings.Builder
	for _, opt := range opts {
		sb.WriteString(opt.key)

		l := len(opt.key)
		if opt.required {
			sb.WriteRune('*')
			l++
		}

		sb.WriteString(strings.Repeat(" ", maxKeyLength-l))
		sb.WriteString("   ")
		sb.WriteString(opt.description)

		if opt.defaultValue != "" {
			sb.WriteString(fmt.Sprintf(" - default: %s", opt.defaultValue))
		}

		sb.WriteRune('\n')
	}

	log.SetFlags(0)
	log.Print(sb.String())

	return 0
}

func showVersion() int {
	log.Println(version)
	return 0
}

type conf struct {
	envFile envFile
	opts    map[string]*confOpt
}

func (c *conf) addDaemonOption(
	key string,
	description string,
	getOption func(Options) string,
	setOption func(*Options, *confOpt) error,
) *confOpt {
	co := confOpt{
		env:         c.envFile.env,
		key:         envPrefix + key,
		description: description,

		getDaemonOption: getOption,
		setDaemonOption: setOption,
	}

	c.opts[key] = &co
	return &co
}

func (c *conf) addEngineOption(
	key string,
	description string,
	getOption func(engine.Options) string,
	setOption func(*engine.Options, *confOpt) error,
) *confOpt {
	co := confOpt{
		env:         c.envFile.env,
		key:         envPrefix + key,
		description: description,

		getEngineOption: getOption,
		setEngineOption: setOption,
	}

	c.opts[key] = &co
	return &co
}

func (c *conf) getDaemonOptions(options *Options) {
	for _, opt := range c.opts {
		if opt.setDaemonOption != nil {
			if err := opt.setDaemonOption(options, opt); err != nil {
				opt.err = err
			}
		}
	}
}

func (c *conf) getEngineOptions(options *engine.Options) {
	for _, opt := range c.opts {
		if opt.setEngineOption != nil {
			if err := opt.setEngineOption(options, opt); err != nil {
				opt.err = err
			}
		}
	}
}

func (c *conf) setDaemonOptions(options Options) {
	for _, opt := range c.opts {
		if opt.getDaemonOption != nil {
			opt.defaultValue = opt.getDaemonOption(options)
		}
	}
}

func (c *conf) setEngineOptions(options engine.Options) {
	for _, opt := range c.opts {
		if opt.getEngineOption != nil {
			opt.defaultValue = opt.getEngineOption(options)
		}
	}
}

func (c *conf) sortedOpts() []*confOpt {
	opts := make([]*confOpt, 0, len(c.opts))
	for _, opt := range c.opts {
		opts = append(opts, opt)
	}

	slices.SortFunc(opts, func(a *confOpt, b *confOpt) int {
		return strings.Compare(a.key, b.key)
	})
	return opts
}

type confOpt struct {
	env env

	key          string
	description  string
	required     bool
	defaultValue string

	getDaemonOption func(Options) string
	getEngineOption func(engine.Options) string
	setDaemonOption func(*Options, *confOpt) error
	setEngineOption func(*engine.Options, *confOpt) error

	err error
}

func (o *confOpt) value() string {
	value := o.env[o.key]
	if value != "" {
		return value
	} else {
		return o.defaultValue
	}
}

type env map[string]string

func (v env) Set(value string) error {
	s := strings.SplitN(value, "=", 2)
	if len(s) != 2 {
		return fmt.Errorf("required format %s", v)
	}
	v[s[0]] = s[1]
	return nil
}

func (v env) String() string {
	return "<key>=<value>"
}

type envFile struct {
	env env
}

func (v envFile) Set(value string) error {
	file, err := os.Open(value)
	if err != nil {
		return err
	}

	defer file.Close()

	scanner := bufio.NewScanner(file)

	i := 0
	for scanner.Scan() {
		i++
		line := scanner.Text()
		if err := v.env.Set(line); err != nil {
			return fmt.Errorf("wrong format in line %d: required format %s", i, v.env)
		}
	}

	return nil
}

func (v envFile) String() string {
	return "<file>"
}
