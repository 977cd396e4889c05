package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewDeployCmd создаёт группу команд для работы с деплоями через API.
func NewDeployCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Manage deployments",
	}

	cmd.AddCommand(
		newDeployStartCmd(clientFn, outputFn),
		newDeployListCmd(clientFn, outputFn),
		newDeployShowCmd(clientFn, outputFn),
		newDeployStepsCmd(clientFn, outputFn),
		newDeployAuditCmd(clientFn, outputFn),
		newDeployCancelCmd(clientFn, outputFn),
	)

	return cmd
}

func newDeployStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string
	var wait bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a deployment from a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read config: %w", err)
			}

			d, err := client.CreateDeployment(data)
			if err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Deployment %s started (%s %s)", d.ID, d.Environment, d.Version))

			if wait {
				d, err = client.WaitDeployment(d.ID, time.Second, timeout)
				if err != nil {
					return err
				}
			}

			printDeployment(out, d)

			if wait && d.Status != "completed" {
				return fmt.Errorf("deployment %s finished with status %s", d.ID, d.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Deployment config file (YAML or JSON)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the deployment finishes")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "How long to wait with --wait")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newDeployListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListDeploymentsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deployments",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			deployments, err := client.ListDeployments(opts)
			if err != nil {
				return err
			}

			headers := []string{"ID", "ENVIRONMENT", "TYPE", "VERSION", "STATUS", "STEPS", "CREATED_BY", "CREATED_AT"}
			rows := make([][]string, len(deployments))
			for i, d := range deployments {
				rows[i] = []string{
					d.ID, d.Environment, d.Type, d.Version, d.Status,
					stepCounts(&d), d.CreatedBy, d.CreatedAt,
				}
			}

			out.Print(headers, rows, deployments)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Environment, "environment", "", "Filter by environment")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "Max results")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Skip results")

	return cmd
}

func newDeployShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show DEPLOYMENT_ID",
		Short: "Show deployment details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			d, err := client.GetDeployment(args[0])
			if err != nil {
				return err
			}

			printDeployment(out, d)
			return nil
		},
	}
}

func newDeployStepsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "steps DEPLOYMENT_ID",
		Short: "List steps of a deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			steps, err := client.ListSteps(args[0])
			if err != nil {
				return err
			}

			printSteps(out, steps)
			return nil
		},
	}
}

func newDeployAuditCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "audit DEPLOYMENT_ID",
		Short: "Show the audit trail of a deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			entries, err := client.ListAudit(args[0])
			if err != nil {
				return err
			}

			headers := []string{"CREATED_AT", "ACTION", "OUTCOME", "ACTOR", "DURATION"}
			rows := make([][]string, len(entries))
			for i, e := range entries {
				rows[i] = []string{
					e.CreatedAt, e.Action, e.Outcome, e.Actor, formatMs(e.DurationMs),
				}
			}

			out.Print(headers, rows, entries)
			return nil
		},
	}
}

func newDeployCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel DEPLOYMENT_ID",
		Short: "Cancel a running deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			d, err := client.CancelDeployment(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Cancellation requested for deployment %s", d.ID))
			return nil
		},
	}
}

// --- helpers ---

func printDeployment(out *Output, d *DeploymentResponse) {
	headers := []string{"FIELD", "VALUE"}
	rows := [][]string{
		{"ID", d.ID},
		{"Environment", d.Environment},
		{"Type", d.Type},
		{"Version", d.Version},
		{"Status", d.Status},
		{"Steps", stepCounts(d)},
		{"Created By", d.CreatedBy},
		{"Created At", d.CreatedAt},
		{"Started At", d.StartedAt},
		{"Completed At", d.CompletedAt},
		{"Duration", formatMs(d.DurationMs)},
	}
	if d.Error != "" {
		rows = append(rows, []string{"Error", d.Error})
	}

	out.Print(headers, rows, d)
}

func printSteps(out *Output, steps []StepResponse) {
	headers := []string{"ID", "KIND", "STATUS", "ATTEMPTS", "DEPENDS_ON", "DURATION", "ERROR"}
	rows := make([][]string, len(steps))
	for i, s := range steps {
		rows[i] = []string{
			s.ID, s.Kind, s.Status, strconv.Itoa(s.Attempts),
			strings.Join(s.DependsOn, ","), formatMs(s.DurationMs), s.Error,
		}
	}

	out.Print(headers, rows, steps)
}

// stepCounts форматирует счётчики как "completed/total".
func stepCounts(d *DeploymentResponse) string {
	s := fmt.Sprintf("%d/%d", d.CompletedSteps, d.TotalSteps)
	if d.FailedSteps > 0 {
		s += fmt.Sprintf(" (%d failed)", d.FailedSteps)
	}
	if d.SkippedSteps > 0 {
		s += fmt.Sprintf(" (%d skipped)", d.SkippedSteps)
	}
	return s
}

func formatMs(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return (time.Duration(ms) * time.Millisecond).String()
}
