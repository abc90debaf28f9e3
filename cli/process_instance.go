package cli

import (
	"context"
	"strconv"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/spf13/cobra"
)

func newProcessInstanceCmd(cli *Cli) *cobra.Command {
	c := cobra.Command{
		Use:         "process-instance",
		Short:       "Manage and query process instances",
		RunE:        cli.help,
		Annotations: map[string]string{noEngineRequired: ""},
	}

	c.AddCommand(newProcessInstanceAbortCmd(cli))
	c.AddCommand(newProcessInstanceGetCmd(cli))
	c.AddCommand(newProcessInstanceGetVariablesCmd(cli))
	c.AddCommand(newProcessInstanceQueryCmd(cli))
	c.AddCommand(newProcessInstanceResumeCmd(cli))
	c.AddCommand(newProcessInstanceRetryCmd(cli))
	c.AddCommand(newProcessInstanceSetVariablesCmd(cli))
	c.AddCommand(newProcessInstanceSignalCmd(cli))
	c.AddCommand(newProcessInstanceStartCmd(cli))
	c.AddCommand(newProcessInstanceSuspendCmd(cli))

	return &c
}

func newProcessInstanceAbortCmd(cli *Cli) *cobra.Command {
	var cmd engine.AbortProcessInstanceCmd

	c := cobra.Command{
		Use:   "abort",
		Short: "Abort a process instance and all of its children",
		RunE: func(c *cobra.Command, _ []string) error {
			processInstance, err := cli.e.AbortProcessInstance(context.Background(), cmd)
			if err != nil {
				return err
			}

			c.Println(processInstance.State)
			return nil
		},
	}

	c.Flags().StringVar(&cmd.Id, "id", "", "Process instance ID")

	_ = c.MarkFlagRequired("id")

	return &c
}

func newProcessInstanceGetCmd(cli *Cli) *cobra.Command {
	var cmd engine.GetProcessInstanceCmd

	c := cobra.Command{
		Use:   "get",
		Short: "Get a process instance",
		RunE: func(c *cobra.Command, _ []string) error {
			processInstance, err := cli.e.GetProcessInstance(context.Background(), cmd)
			if err != nil {
				return err
			}

			return printJson(c, processInstance)
		},
	}

	c.Flags().StringVar(&cmd.Id, "id", "", "Process instance ID")

	_ = c.MarkFlagRequired("id")

	return &c
}

func newProcessInstanceGetVariablesCmd(cli *Cli) *cobra.Command {
	var cmd engine.GetProcessVariablesCmd

	c := cobra.Command{
		Use:   "get-variables",
		Short: "Get process variables",
		RunE: func(c *cobra.Command, _ []string) error {
			variables, err := cli.e.GetProcessVariables(context.Background(), cmd)
			if err != nil {
				return err
			}

			printVariables(c, variables)
			return nil
		},
	}

	c.Flags().StringVar(&cmd.ProcessInstanceId, "id", "", "Process instance ID")
	c.Flags().StringSliceVarP(&cmd.Names, "name", "n", nil, "Names of process variables to get")

	_ = c.MarkFlagRequired("id")

	return &c
}

func newProcessInstanceQueryCmd(cli *Cli) *cobra.Command {
	var (
		state instanceStateValue

		criteria engine.ProcessInstanceCriteria
		options  engine.QueryOptions
	)

	c := cobra.Command{
		Use:   "query",
		Short: "Query process instances",
		RunE: func(c *cobra.Command, _ []string) error {
			criteria.State = engine.InstanceState(state)

			results, err := cli.e.QueryProcessInstances(context.Background(), criteria, options)
			if err != nil {
				return err
			}

			table := newTable([]string{
				"ID",
				"PROCESS ID",
				"VERSION",
				"BUSINESS KEY",
				"PARENT ID",
				"CREATED AT",
				"ENDED AT",
				"NODE INSTANCES",
				"STATE",
			})

			for _, processInstance := range results {
				table.addRow([]string{
					processInstance.Id,
					processInstance.ProcessId,
					processInstance.ProcessVersion,
					processInstance.BusinessKey,
					processInstance.ParentId,
					formatTime(processInstance.CreatedAt),
					formatTimeOrNil(processInstance.EndedAt),
					strconv.Itoa(len(processInstance.NodeInstances)),
					processInstance.State.String(),
				})
			}

			c.Print(table.format())
			return nil
		},
	}

	c.Flags().StringVar(&criteria.BusinessKey, "business-key", "", "Business key")
	c.Flags().BoolVar(&criteria.IncludeEnded, "include-ended", false, "Include ended process instances")
	c.Flags().StringVar(&criteria.ParentId, "parent-id", "", "ID of the parent process instance")
	c.Flags().StringVar(&criteria.ProcessId, "process-id", "", "Process ID")
	c.Flags().Var(&state, "state", "Process instance state")

	flagQueryOptions(&c, &options)

	return &c
}

func newProcessInstanceResumeCmd(cli *Cli) *cobra.Command {
	var cmd engine.ResumeProcessInstanceCmd

	c := cobra.Command{
		Use:   "resume",
		Short: "Resume a suspended process instance",
		RunE: func(c *cobra.Command, _ []string) error {
			_, err := cli.e.ResumeProcessInstance(context.Background(), cmd)
			return err
		},
	}

	c.Flags().StringVar(&cmd.Id, "id", "", "Process instance ID")

	_ = c.MarkFlagRequired("id")

	return &c
}

func newProcessInstanceRetryCmd(cli *Cli) *cobra.Command {
	var cmd engine.RetryProcessInstanceCmd

	c := cobra.Command{
		Use:   "retry",
		Short: "Retry a failed process instance",
		RunE: func(c *cobra.Command, _ []string) error {
			processInstance, err := cli.e.RetryProcessInstance(context.Background(), cmd)
			if err != nil {
				return err
			}

			c.Println(processInstance.State)
			return nil
		},
	}

	c.Flags().StringVar(&cmd.Id, "id", "", "Process instance ID")

	_ = c.MarkFlagRequired("id")

	return &c
}

func newProcessInstanceSetVariablesCmd(cli *Cli) *cobra.Command {
	var (
		variablesV []string

		cmd engine.SetProcessVariablesCmd
	)

	c := cobra.Command{
		Use:   "set-variables",
		Short: "Set or delete process variables",
		RunE: func(c *cobra.Command, _ []string) error {
			variables, err := mapVariables(variablesV, true)
			if err != nil {
				return err
			}

			cmd.Variables = variables

			return cli.e.SetProcessVariables(context.Background(), cmd)
		},
	}

	c.Flags().StringVar(&cmd.ProcessInstanceId, "id", "", "Process instance ID")
	c.Flags().StringArrayVar(&variablesV, "variable", nil, "Variable to set or delete")

	_ = c.MarkFlagRequired("id")
	_ = c.MarkFlagRequired("variable")

	return &c
}

func newProcessInstanceSignalCmd(cli *Cli) *cobra.Command {
	var (
		correlationV map[string]string
		payloadV     []string

		cmd engine.SignalProcessInstanceCmd
	)

	c := cobra.Command{
		Use:   "signal",
		Short: "Signal a process instance, identified by ID or correlation",
		RunE: func(c *cobra.Command, _ []string) error {
			payload, err := mapVariables(payloadV, false)
			if err != nil {
				return err
			}

			cmd.Correlation = engine.Correlation(correlationV)
			cmd.Payload = payload

			result, err := cli.e.SignalProcessInstance(context.Background(), cmd)
			if err != nil {
				return err
			}

			for _, nodeError := range result.Errors {
				c.PrintErrln(nodeError.String())
			}

			c.Printf("%s: delivered %d\n", result.ProcessInstance.State, result.Delivered)
			return nil
		},
	}

	c.Flags().StringToStringVar(&correlationV, "correlation", nil, "Correlation property, used instead of an ID")
	c.Flags().StringVar(&cmd.EventType, "event-type", "", "Event type")
	c.Flags().StringVar(&cmd.Id, "id", "", "Process instance ID")
	c.Flags().StringArrayVar(&payloadV, "payload", nil, "Payload variable")

	_ = c.MarkFlagRequired("event-type")
	c.MarkFlagsOneRequired("id", "correlation")

	return &c
}

func newProcessInstanceStartCmd(cli *Cli) *cobra.Command {
	var (
		correlationV map[string]string
		variablesV   []string

		cmd engine.StartProcessInstanceCmd
	)

	c := cobra.Command{
		Use:   "start",
		Short: "Start a process instance",
		RunE: func(c *cobra.Command, _ []string) error {
			variables, err := mapVariables(variablesV, false)
			if err != nil {
				return err
			}

			cmd.Correlation = engine.Correlation(correlationV)
			cmd.Variables = variables

			processInstance, err := cli.e.StartProcessInstance(context.Background(), cmd)
			if err != nil {
				return err
			}

			c.Println(processInstance.Id)
			return nil
		},
	}

	c.Flags().StringVar(&cmd.BusinessKey, "business-key", "", "Optional key, used to correlate a process instance with a business entity")
	c.Flags().StringToStringVar(&correlationV, "correlation", nil, "Correlation property, used to route signals")
	c.Flags().StringVar(&cmd.ProcessId, "process-id", "", "ID of a registered process")
	c.Flags().StringVar(&cmd.ReferenceId, "reference-id", "", "Optional ID of an external reference")
	c.Flags().StringVar(&cmd.Trigger, "trigger", "", "Name of the trigger, used to select start nodes")
	c.Flags().StringArrayVar(&variablesV, "variable", nil, "Variable to set at process instance scope")
	c.Flags().StringVar(&cmd.Version, "version", "", "Version of a registered process - latest, if empty")

	_ = c.MarkFlagRequired("process-id")

	return &c
}

func newProcessInstanceSuspendCmd(cli *Cli) *cobra.Command {
	var cmd engine.SuspendProcessInstanceCmd

	c := cobra.Command{
		Use:   "suspend",
		Short: "Suspend a process instance",
		RunE: func(c *cobra.Command, _ []string) error {
			_, err := cli.e.SuspendProcessInstance(context.Background(), cmd)
			return err
		},
	}

	c.Flags().StringVar(&cmd.Id, "id", "", "Process instance ID")

	_ = c.MarkFlagRequired("id")

	return &c
}
