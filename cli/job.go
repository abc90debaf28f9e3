package cli

import (
	"context"
	"strconv"
	"time"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/spf13/cobra"
)

func newJobCmd(cli *Cli) *cobra.Command {
	c := cobra.Command{
		Use:         "job",
		Short:       "Execute due timer jobs",
		RunE:        cli.help,
		Annotations: map[string]string{noEngineRequired: ""},
	}

	c.AddCommand(newJobExecuteCmd(cli))

	return &c
}

func newJobExecuteCmd(cli *Cli) *cobra.Command {
	var (
		t timeValue

		cmd engine.ExecuteJobsCmd
	)

	c := cobra.Command{
		Use:   "execute",
		Short: "Execute due jobs",
		Long:  "Execute due jobs. If a time is provided, the engine's time is set before jobs are selected.",
		RunE: func(c *cobra.Command, _ []string) error {
			if !time.Time(t).IsZero() {
				if err := cli.e.SetTime(context.Background(), engine.SetTimeCmd{Time: time.Time(t)}); err != nil {
					return err
				}
			}

			jobs, err := cli.e.ExecuteJobs(context.Background(), cmd)

			table := newTable([]string{
				"ID",
				"PROCESS INSTANCE ID",
				"TIMER ID",
				"DUE AT",
				"FIRE COUNT",
				"REMAINING",
			})

			for _, job := range jobs {
				table.addRow([]string{
					job.Id,
					job.ProcessInstanceId,
					job.TimerId,
					formatTime(job.DueAt),
					strconv.Itoa(job.FireCount + 1),
					strconv.Itoa(job.Remaining()),
				})
			}

			c.Print(table.format())
			return err
		},
	}

	c.Flags().IntVar(&cmd.Limit, "limit", 100, "Maximum number of jobs to execute")
	c.Flags().Var(&t, "time", "Point in time to set, before jobs are executed (RFC3339)")

	return &c
}
