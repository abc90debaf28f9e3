/*
procengined is a daemon, running a process engine with a job executor.

The backend (mem, bolt, sqlite or pg) and the engine are configured via GO_PROCENGINE_* environment variables.
Process definitions are read from the YAML files of GO_PROCENGINE_DEFINITIONS_DIR.

Usage:

	-create-encryption-key
		create a new encryption key - used for GO_PROCENGINE_ENCRYPTION_KEYS
	-env value
		set environment variables
	-env-file value
		read in a file of environment variables
	-list-conf
		list configuration
	-list-conf-opts
		list configuration options
	-version
		show version
*/
package main

import (
	"log"
	"os"

	"github.com/gclaussn/go-procengine/daemon"
)

func main() {
	log.SetOutput(os.Stdout)

	code := daemon.Run(os.Args[1:])
	os.Exit(code)
}
