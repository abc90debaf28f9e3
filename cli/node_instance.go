package cli

import (
	"context"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/spf13/cobra"
)

func newNodeInstanceCmd(cli *Cli) *cobra.Command {
	c := cobra.Command{
		Use:         "node-instance",
		Short:       "Complete or fail active node instances",
		RunE:        cli.help,
		Annotations: map[string]string{noEngineRequired: ""},
	}

	c.AddCommand(newNodeInstanceCompleteCmd(cli))
	c.AddCommand(newNodeInstanceFailCmd(cli))
	c.AddCommand(newNodeInstanceGetVariablesCmd(cli))

	return &c
}

func newNodeInstanceCompleteCmd(cli *Cli) *cobra.Command {
	var (
		variablesV []string

		cmd engine.CompleteNodeInstanceCmd
	)

	c := cobra.Command{
		Use:   "complete",
		Short: "Complete an active node instance",
		RunE: func(c *cobra.Command, _ []string) error {
			variables, err := mapVariables(variablesV, true)
			if err != nil {
				return err
			}

			cmd.Variables = variables

			processInstance, err := cli.e.CompleteNodeInstance(context.Background(), cmd)
			if err != nil {
				return err
			}

			c.Println(processInstance.State)
			return nil
		},
	}

	c.Flags().StringVar(&cmd.NodeInstanceId, "id", "", "Node instance ID")
	c.Flags().StringVar(&cmd.ProcessInstanceId, "process-instance-id", "", "Process instance ID")
	c.Flags().StringArrayVar(&variablesV, "variable", nil, "Variable to set or delete")

	_ = c.MarkFlagRequired("id")
	_ = c.MarkFlagRequired("process-instance-id")

	return &c
}

func newNodeInstanceFailCmd(cli *Cli) *cobra.Command {
	var cmd engine.FailNodeInstanceCmd

	c := cobra.Command{
		Use:   "fail",
		Short: "Fail an active node instance",
		RunE: func(c *cobra.Command, _ []string) error {
			processInstance, err := cli.e.FailNodeInstance(context.Background(), cmd)
			if err != nil {
				return err
			}

			c.Println(processInstance.State)
			return nil
		},
	}

	c.Flags().StringVar(&cmd.Cause, "cause", "", "Cause of the failure")
	c.Flags().StringVar(&cmd.NodeInstanceId, "id", "", "Node instance ID")
	c.Flags().StringVar(&cmd.ProcessInstanceId, "process-instance-id", "", "Process instance ID")

	_ = c.MarkFlagRequired("cause")
	_ = c.MarkFlagRequired("id")
	_ = c.MarkFlagRequired("process-instance-id")

	return &c
}

func newNodeInstanceGetVariablesCmd(cli *Cli) *cobra.Command {
	var cmd engine.GetNodeInstanceVariablesCmd

	c := cobra.Command{
		Use:   "get-variables",
		Short: "Get node instance variables",
		RunE: func(c *cobra.Command, _ []string) error {
			variables, err := cli.e.GetNodeInstanceVariables(context.Background(), cmd)
			if err != nil {
				return err
			}

			printVariables(c, variables)
			return nil
		},
	}

	c.Flags().StringVar(&cmd.NodeInstanceId, "id", "", "Node instance ID")
	c.Flags().StringSliceVarP(&cmd.Names, "name", "n", nil, "Names of variables to get")
	c.Flags().StringVar(&cmd.ProcessInstanceId, "process-instance-id", "", "Process instance ID")

	_ = c.MarkFlagRequired("id")
	_ = c.MarkFlagRequired("process-instance-id")

	return &c
}
