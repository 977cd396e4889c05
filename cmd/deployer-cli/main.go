// Deployer CLI — инструмент командной строки для запуска деплоев
// через HTTP API или локально.
//
// Использование:
//
//	deployer [--api-url URL] [--actor NAME] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	deploy    Управление деплоями на сервере
//	schedule  Просмотр расписаний
//	plan      Построить план из файла конфигурации
//	run       Выполнить деплой локально
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Deployer/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var actor string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "deployer",
		Short:         "Deployer CLI — deployment step orchestrator",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultActor := os.Getenv("USER")
	if defaultActor == "" {
		defaultActor = "cli"
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", defaultActor, "Actor recorded in the audit trail")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL, actor) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewDeployCmd(clientFn, outputFn),
		cli.NewScheduleCmd(clientFn, outputFn),
		cli.NewPlanCmd(outputFn),
		cli.NewRunCmd(outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
