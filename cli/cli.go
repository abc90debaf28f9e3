package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/engine/bolt"
	"github.com/gclaussn/go-procengine/engine/mem"
	"github.com/gclaussn/go-procengine/engine/pg"
	"github.com/gclaussn/go-procengine/engine/sqlite"
	"github.com/gclaussn/go-procengine/model"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const (
	envLookupAllowed = "envLookupAllowed" // flag level annotation that allows an environment variable lookup
	envPrefix        = "GO_PROCENGINE_"
	noEngineRequired = "noEngineRequired" // annotation, indicating that no engine is required to run the command
	program          = "procengine"
)

func New(version string) *Cli {
	cli := Cli{version: version}

	cli.rootCmd = newRootCmd(&cli)

	return &cli
}

type Cli struct {
	version string

	rootCmd *cobra.Command

	e      engine.Engine
	userId string
}

func (c *Cli) Execute() int {
	if err := c.rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func (c *Cli) help(cmd *cobra.Command, args []string) error {
	return cmd.Help()
}

// engineFlags are the root flags, needed to open a local engine.
type engineFlags struct {
	backend              string
	boltPath             string
	debug                bool
	definitionsDir       string
	encryptionKeys       string
	pgDatabaseUrl        string
	sqliteDataSourceName string
	timeout              time.Duration
}

func newRootCmd(cli *Cli) *cobra.Command {
	var flags engineFlags

	c := cobra.Command{
		Use:   program,
		Short: "A CLI for local go-procengine engines",
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			c.SilenceUsage = true

			if _, ok := c.Annotations[noEngineRequired]; ok {
				return nil
			}

			if cli.e != nil {
				return nil // skip engine creation when testing
			}

			c.Flags().VisitAll(func(f *pflag.Flag) {
				if f.Changed {
					return
				}
				if _, ok := f.Annotations[envLookupAllowed]; !ok {
					return
				}

				// e.g. bolt-path -> GO_PROCENGINE_BOLT_PATH
				key := envPrefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")

				if value, ok := os.LookupEnv(key); ok {
					_ = f.Value.Set(value)
				}
			})

			e, err := openEngine(flags)
			if err != nil {
				return err
			}

			cli.e = e
			return nil
		},
		RunE: cli.help,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if cli.e != nil {
				cli.e.Shutdown()
			}
		},
		Annotations: map[string]string{noEngineRequired: ""},
	}

	c.PersistentFlags().StringVar(&flags.backend, "backend", "bolt", "Engine implementation: mem, bolt, sqlite or pg")
	c.PersistentFlags().StringVar(&flags.boltPath, "bolt-path", "procengine.db", "Path of the database file, used by backend bolt")
	c.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Log engine operations")
	c.PersistentFlags().StringVar(&flags.definitionsDir, "definitions-dir", "", "Directory of YAML process definitions")
	c.PersistentFlags().StringVar(&flags.encryptionKeys, "encryption-keys", "", "Comma-separated list of encryption keys (from new to old)")
	c.PersistentFlags().StringVar(&flags.pgDatabaseUrl, "pg-database-url", "", "PostgreSQL URL, used by backend pg")
	c.PersistentFlags().StringVar(&flags.sqliteDataSourceName, "sqlite-data-source-name", "procengine.sqlite", "Data source name, used by backend sqlite")
	c.PersistentFlags().DurationVar(&flags.timeout, "timeout", 30*time.Second, "Time limit for opening the database")
	c.PersistentFlags().StringVar(&cli.userId, "user-id", program, "ID of the user, performing user task operations")

	for _, name := range []string{
		"backend",
		"bolt-path",
		"debug",
		"definitions-dir",
		"encryption-keys",
		"pg-database-url",
		"sqlite-data-source-name",
		"timeout",
		"user-id",
	} {
		_ = c.PersistentFlags().SetAnnotation(name, envLookupAllowed, nil)
	}

	c.AddCommand(newJobCmd(cli))
	c.AddCommand(newNodeInstanceCmd(cli))
	c.AddCommand(newProcessCmd(cli))
	c.AddCommand(newProcessInstanceCmd(cli))
	c.AddCommand(newUserTaskCmd(cli))
	c.AddCommand(newVersionCmd(cli))

	return &c
}

// openEngine opens a local engine. The job executor is disabled, since a CLI command is short-lived.
func openEngine(flags engineFlags) (engine.Engine, error) {
	common := engine.NewOptions()
	common.JobExecutorEnabled = false

	if flags.debug {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %v", err)
		}
		common.Logger = logger
	}

	if flags.encryptionKeys != "" {
		encryption, err := engine.NewEncryption(flags.encryptionKeys)
		if err != nil {
			return nil, fmt.Errorf("failed to create encryption: %v", err)
		}
		common.Encryption = encryption
	}

	if flags.definitionsDir != "" {
		processes, err := model.NewFromDir(flags.definitionsDir)
		if err != nil {
			return nil, err
		}
		common.Processes = processes
	}

	var (
		e   engine.Engine
		err error
	)

	switch flags.backend {
	case "bolt":
		e, err = bolt.New(flags.boltPath, func(o *bolt.Options) {
			o.Common = common
			o.Timeout = flags.timeout
		})
	case "mem":
		e, err = mem.New(func(o *mem.Options) {
			o.Common = common
		})
	case "pg":
		e, err = pg.New(flags.pgDatabaseUrl, func(o *pg.Options) {
			o.Common = common
			o.Timeout = flags.timeout
		})
	case "sqlite":
		e, err = sqlite.New(flags.sqliteDataSourceName, func(o *sqlite.Options) {
			o.Common = common
			o.Timeout = flags.timeout
		})
	default:
		return nil, fmt.Errorf("unsupported backend %q", flags.backend)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s engine: %v", flags.backend, err)
	}
	return e, nil
}

func newVersionCmd(cli *Cli) *cobra.Command {
	c := cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(c *cobra.Command, _ []string) {
			c.Println(cli.version)
		},
		Annotations: map[string]string{noEngineRequired: ""},
	}

	return &c
}
