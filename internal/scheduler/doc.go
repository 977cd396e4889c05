// Package scheduler запускает регулярные деплои по расписаниям.
//
// Расписания задаются в конфигурации сервиса (cron или интервал) и
// указывают на файл конфигурации деплоя. Каждый тик Scheduler находит
// расписания с истекшим NextDueAt и отправляет деплой через Coordinator.
//
// Использование:
//
//	schedules, err := scheduler.LoadSchedules(cfg.Schedules, ".")
//	sched, err := scheduler.New(scheduler.Config{
//	    Submitter: coord,
//	    Schedules: schedules,
//	    Logger:    logger,
//	})
//	go sched.Run(ctx)
//
// Scheduler не реализует leader election: его запускает один экземпляр
// deployer-api.
package scheduler
