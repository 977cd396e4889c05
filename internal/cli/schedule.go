package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewScheduleCmd создаёт группу команд для просмотра расписаний.
// Расписания задаются в конфигурации сервера, CLI их только читает.
func NewScheduleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect scheduled deployments",
	}

	cmd.AddCommand(newScheduleListCmd(clientFn, outputFn))

	return cmd
}

func newScheduleListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			schedules, err := client.ListSchedules()
			if err != nil {
				return err
			}

			headers := []string{"NAME", "ENVIRONMENT", "VERSION", "CRON", "INTERVAL", "ENABLED", "NEXT_DUE", "LAST_DEPLOYMENT"}
			rows := make([][]string, len(schedules))
			for i, s := range schedules {
				interval := ""
				if s.IntervalSec > 0 {
					interval = strconv.Itoa(s.IntervalSec) + "s"
				}
				rows[i] = []string{
					s.Name, s.Environment, s.Version, s.CronExpr, interval,
					strconv.FormatBool(s.Enabled), s.NextDueAt, s.LastDeploymentID,
				}
			}

			out.Print(headers, rows, schedules)
			return nil
		},
	}
}
