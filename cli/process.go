package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/gclaussn/go-procengine/model"
	"github.com/spf13/cobra"
)

func newProcessCmd(cli *Cli) *cobra.Command {
	c := cobra.Command{
		Use:         "process",
		Short:       "Validate and list process definitions",
		RunE:        cli.help,
		Annotations: map[string]string{noEngineRequired: ""},
	}

	c.AddCommand(newProcessCreateCmd(cli))
	c.AddCommand(newProcessListCmd(cli))

	return &c
}

func newProcessCreateCmd(cli *Cli) *cobra.Command {
	var fileName string

	c := cobra.Command{
		Use:   "create",
		Short: "Validate and register a YAML process definition",
		Long:  "Validate and register a YAML process definition. Definitions are not persisted - use --definitions-dir to register them on every run.",
		RunE: func(c *cobra.Command, _ []string) error {
			b, err := os.ReadFile(fileName)
			if err != nil {
				return fmt.Errorf("failed to read file %s: %v", fileName, err)
			}

			process, err := cli.e.CreateProcess(context.Background(), engine.CreateProcessCmd{Yaml: string(b)})
			if err != nil {
				return err
			}

			c.Printf("%s:%s\n", process.Id, process.Version)
			return nil
		},
	}

	c.Flags().StringVar(&fileName, "file", "", "Path to a YAML process definition")

	_ = c.MarkFlagRequired("file")

	return &c
}

func newProcessListCmd(cli *Cli) *cobra.Command {
	c := cobra.Command{
		Use:   "list",
		Short: "List the process definitions of a directory",
		RunE: func(c *cobra.Command, _ []string) error {
			definitionsDir, err := c.Flags().GetString("definitions-dir")
			if err != nil {
				return err
			}
			if definitionsDir == "" {
				return fmt.Errorf("no definitions directory set")
			}

			definitions, err := model.NewFromDir(definitionsDir)
			if err != nil {
				return err
			}

			table := newTable([]string{
				"ID",
				"VERSION",
				"NAME",
				"DYNAMIC",
				"NODES",
				"CREATED AT",
			})

			for _, definition := range definitions {
				process, err := cli.e.CreateProcess(context.Background(), engine.CreateProcessCmd{Definition: definition})
				if err != nil {
					return err
				}

				table.addRow([]string{
					process.Id,
					process.Version,
					process.Name,
					strconv.FormatBool(process.Dynamic),
					strconv.Itoa(process.NodeCount),
					formatTime(process.CreatedAt),
				})
			}

			c.Print(table.format())
			return nil
		},
	}

	return &c
}
