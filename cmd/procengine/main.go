/*
procengine is a CLI for operating on a local process engine.

Usage:

	procengine [flags]
	procengine [command]

Available Commands:

	completion       Generate the autocompletion script for the specified shell
	help             Help about any command
	job              Execute due timer jobs
	node-instance    Complete or fail active node instances
	process          Validate and list process definitions
	process-instance Manage and query process instances
	user-task        Manage and query user tasks
	version          Show version

Flags:

	    --backend string                   Engine implementation: mem, bolt, sqlite or pg (default "bolt")
	    --bolt-path string                 Path of the database file, used by backend bolt (default "procengine.db")
	    --debug                            Log engine operations
	    --definitions-dir string           Directory of YAML process definitions
	    --encryption-keys string           Comma-separated list of encryption keys (from new to old)
	-h, --help                             help for procengine
	    --pg-database-url string           PostgreSQL URL, used by backend pg
	    --sqlite-data-source-name string   Data source name, used by backend sqlite (default "procengine.sqlite")
	    --timeout duration                 Time limit for opening the database (default 30s)
	    --user-id string                   ID of the user, performing user task operations (default "procengine")

Flags can also be set via environment variables, prefixed with GO_PROCENGINE_ - e.g. GO_PROCENGINE_BOLT_PATH.
*/
package main

import (
	"os"

	"github.com/gclaussn/go-procengine/cli"
)

var version = "unknown-version"

func main() {
	code := cli.New(version).Execute()
	os.Exit(code)
}
