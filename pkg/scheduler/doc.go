// Package scheduler runs named maintenance jobs on cron schedules.
//
// Jobs are registered with a standard five-field cron spec or a descriptor
// such as "@every 5m" or "@daily". A job that is still running when its next
// tick arrives is skipped, and panics are recovered and logged.
//
//	s := scheduler.New()
//	s.AddJob("ratelimit-sweep", "@every 5m", func(ctx context.Context) { limiter.Sweep() })
//	s.Start(ctx)
//	defer s.Stop()
package scheduler
