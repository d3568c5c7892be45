// Package scheduler — периодический запуск workflow по cron-выражению.
//
// CronScheduler реализует tasks.Scheduler: задача cron регистрирует
// расписание, и в каждый момент срабатывания workflow ставится в очередь
// через worker.Client.RunLater с копией начального Context.
//
//	sched := scheduler.NewCronScheduler(scheduler.Config{
//	    Enqueuer: client,
//	    Location: time.UTC,
//	    Logger:   logger,
//	})
//	sched.Start()
//	defer sched.Stop()
//
// Расписания живут в памяти процесса worker'а и не переживают рестарт.
// Распределённое планирование не поддерживается.
package scheduler
