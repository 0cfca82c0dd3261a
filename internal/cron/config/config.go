package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Automatic sync pass, every minute; the orchestrator decides due-ness
	CronScheduleAutoSync string `env:"CRON_SCHEDULE_AUTO_SYNC" envDefault:"0 * * * * *"`
	// Reply polling for active email threads, every 5 minutes
	CronScheduleThreadPolling string `env:"CRON_SCHEDULE_THREAD_POLLING" envDefault:"0 */5 * * * *"`
}
