package cli

import (
	"context"
	"strconv"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/spf13/cobra"
)

func newUserTaskCmd(cli *Cli) *cobra.Command {
	c := cobra.Command{
		Use:         "user-task",
		Short:       "Manage and query user tasks",
		Long:        "Manage and query user tasks. Operations are performed on behalf of the user, specified via --user-id.",
		RunE:        cli.help,
		Annotations: map[string]string{noEngineRequired: ""},
	}

	c.AddCommand(newUserTaskClaimCmd(cli))
	c.AddCommand(newUserTaskCompleteCmd(cli))
	c.AddCommand(newUserTaskDelegateCmd(cli))
	c.AddCommand(newUserTaskFailCmd(cli))
	c.AddCommand(newUserTaskGetCmd(cli))
	c.AddCommand(newUserTaskQueryCmd(cli))
	c.AddCommand(newUserTaskReleaseCmd(cli))
	c.AddCommand(newUserTaskResumeCmd(cli))
	c.AddCommand(newUserTaskSkipCmd(cli))
	c.AddCommand(newUserTaskStartCmd(cli))
	c.AddCommand(newUserTaskSuspendCmd(cli))
	c.AddCommand(newUserTaskUpdateCmd(cli))

	return &c
}

// newUserTaskStateCmd creates a command, which changes the state of a user task and prints the new state.
func newUserTaskStateCmd(use string, short string, id *string, run func() (engine.UserTask, error)) *cobra.Command {
	c := cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(c *cobra.Command, _ []string) error {
			userTask, err := run()
			if err != nil {
				return err
			}

			c.Println(userTask.State)
			return nil
		},
	}

	c.Flags().StringVar(id, "id", "", "User task ID")

	_ = c.MarkFlagRequired("id")

	return &c
}

func newUserTaskClaimCmd(cli *Cli) *cobra.Command {
	var cmd engine.ClaimUserTaskCmd
	return newUserTaskStateCmd("claim", "Claim a new user task", &cmd.Id, func() (engine.UserTask, error) {
		cmd.UserId = cli.userId
		return cli.e.ClaimUserTask(context.Background(), cmd)
	})
}

func newUserTaskCompleteCmd(cli *Cli) *cobra.Command {
	var (
		outputsV []string

		cmd engine.CompleteUserTaskCmd
	)

	c := newUserTaskStateCmd("complete", "Complete an user task, which is in progress", &cmd.Id, func() (engine.UserTask, error) {
		outputs, err := mapVariables(outputsV, true)
		if err != nil {
			return engine.UserTask{}, err
		}

		cmd.Outputs = outputs
		cmd.UserId = cli.userId

		return cli.e.CompleteUserTask(context.Background(), cmd)
	})

	c.Flags().StringArrayVar(&outputsV, "output", nil, "Output variable")

	return c
}

func newUserTaskDelegateCmd(cli *Cli) *cobra.Command {
	var cmd engine.DelegateUserTaskCmd

	c := newUserTaskStateCmd("delegate", "Delegate an user task to another user", &cmd.Id, func() (engine.UserTask, error) {
		cmd.UserId = cli.userId
		return cli.e.DelegateUserTask(context.Background(), cmd)
	})

	c.Flags().StringVar(&cmd.TargetUserId, "target-user-id", "", "ID of the user, the user task is delegated to")

	_ = c.MarkFlagRequired("target-user-id")

	return c
}

func newUserTaskFailCmd(cli *Cli) *cobra.Command {
	var cmd engine.FailUserTaskCmd

	c := newUserTaskStateCmd("fail", "Fail an user task, which is in progress", &cmd.Id, func() (engine.UserTask, error) {
		cmd.UserId = cli.userId
		return cli.e.FailUserTask(context.Background(), cmd)
	})

	c.Flags().StringVar(&cmd.Cause, "cause", "", "Cause of the failure")

	_ = c.MarkFlagRequired("cause")

	return c
}

func newUserTaskGetCmd(cli *Cli) *cobra.Command {
	var cmd engine.GetUserTaskCmd

	c := cobra.Command{
		Use:   "get",
		Short: "Get an user task",
		RunE: func(c *cobra.Command, _ []string) error {
			userTask, err := cli.e.GetUserTask(context.Background(), cmd)
			if err != nil {
				return err
			}

			return printJson(c, userTask)
		},
	}

	c.Flags().StringVar(&cmd.Id, "id", "", "User task ID")

	_ = c.MarkFlagRequired("id")

	return &c
}

func newUserTaskQueryCmd(cli *Cli) *cobra.Command {
	var (
		state userTaskStateValue

		criteria engine.UserTaskCriteria
		options  engine.QueryOptions
	)

	c := cobra.Command{
		Use:   "query",
		Short: "Query user tasks",
		RunE: func(c *cobra.Command, _ []string) error {
			criteria.State = engine.UserTaskState(state)

			results, err := cli.e.QueryUserTasks(context.Background(), criteria, options)
			if err != nil {
				return err
			}

			table := newTable([]string{
				"ID",
				"PROCESS INSTANCE ID",
				"NODE ID",
				"NAME",
				"PRIORITY",
				"ACTUAL OWNER",
				"CREATED AT",
				"STATE",
			})

			for _, userTask := range results {
				table.addRow([]string{
					userTask.Id,
					userTask.ProcessInstanceId,
					userTask.NodeId,
					userTask.Name,
					strconv.Itoa(userTask.Priority),
					userTask.ActualOwner,
					formatTime(userTask.CreatedAt),
					userTask.State.String(),
				})
			}

			c.Print(table.format())
			return nil
		},
	}

	c.Flags().StringVar(&criteria.ActualOwner, "actual-owner", "", "ID of the actual owner")
	c.Flags().BoolVar(&criteria.IncludeTerminated, "include-terminated", false, "Include terminated user tasks")
	c.Flags().StringVar(&criteria.ProcessInstanceId, "process-instance-id", "", "Process instance ID")
	c.Flags().Var(&state, "state", "User task state")

	flagQueryOptions(&c, &options)

	return &c
}

func newUserTaskReleaseCmd(cli *Cli) *cobra.Command {
	var cmd engine.ReleaseUserTaskCmd
	return newUserTaskStateCmd("release", "Release a reserved user task", &cmd.Id, func() (engine.UserTask, error) {
		cmd.UserId = cli.userId
		return cli.e.ReleaseUserTask(context.Background(), cmd)
	})
}

func newUserTaskResumeCmd(cli *Cli) *cobra.Command {
	var cmd engine.ResumeUserTaskCmd
	return newUserTaskStateCmd("resume", "Resume a suspended user task", &cmd.Id, func() (engine.UserTask, error) {
		cmd.UserId = cli.userId
		return cli.e.ResumeUserTask(context.Background(), cmd)
	})
}

func newUserTaskSkipCmd(cli *Cli) *cobra.Command {
	var cmd engine.SkipUserTaskCmd
	return newUserTaskStateCmd("skip", "Skip a skippable user task", &cmd.Id, func() (engine.UserTask, error) {
		cmd.UserId = cli.userId
		return cli.e.SkipUserTask(context.Background(), cmd)
	})
}

func newUserTaskStartCmd(cli *Cli) *cobra.Command {
	var cmd engine.StartUserTaskCmd
	return newUserTaskStateCmd("start", "Start the work on an user task", &cmd.Id, func() (engine.UserTask, error) {
		cmd.UserId = cli.userId
		return cli.e.StartUserTask(context.Background(), cmd)
	})
}

func newUserTaskSuspendCmd(cli *Cli) *cobra.Command {
	var cmd engine.SuspendUserTaskCmd
	return newUserTaskStateCmd("suspend", "Suspend an user task", &cmd.Id, func() (engine.UserTask, error) {
		cmd.UserId = cli.userId
		return cli.e.SuspendUserTask(context.Background(), cmd)
	})
}

func newUserTaskUpdateCmd(cli *Cli) *cobra.Command {
	var (
		actualOwner string
		dataV       []string
		description string
		name        string
		priority    int

		cmd engine.UpdateUserTaskCmd
	)

	c := cobra.Command{
		Use:   "update",
		Short: "Update an user task",
		RunE: func(c *cobra.Command, _ []string) error {
			data, err := mapVariables(dataV, true)
			if err != nil {
				return err
			}

			cmd.Data = data
			cmd.UserId = cli.userId

			if c.Flags().Changed("actual-owner") {
				cmd.ActualOwner = &actualOwner
			}
			if c.Flags().Changed("description") {
				cmd.Description = &description
			}
			if c.Flags().Changed("name") {
				cmd.Name = &name
			}
			if c.Flags().Changed("priority") {
				cmd.Priority = &priority
			}

			userTask, err := cli.e.UpdateUserTask(context.Background(), cmd)
			if err != nil {
				return err
			}

			return printJson(c, userTask)
		},
	}

	c.Flags().StringVar(&actualOwner, "actual-owner", "", "New actual owner - an empty string removes the actual owner")
	c.Flags().StringArrayVar(&dataV, "data", nil, "Custom data to set or delete")
	c.Flags().StringVar(&description, "description", "", "New description")
	c.Flags().StringVar(&cmd.Id, "id", "", "User task ID")
	c.Flags().StringVar(&name, "name", "", "New name")
	c.Flags().IntVar(&priority, "priority", 0, "New priority")

	_ = c.MarkFlagRequired("id")

	return &c
}
