// Package retention prunes the decision log.
//
// Two limits apply, each optional: an age limit in days, measured on the
// evaluation time, and a cap on the number of records. Pruning by count
// removes the oldest records first. When an archive directory is
// configured each batch is exported as JSON before it is deleted.
//
// The Scheduler runs the Pruner on a standard cron expression:
//
//	pruner := retention.NewPruner(store, retention.Config{
//	    Days:     90,
//	    Schedule: "0 3 * * *",
//	})
//	sched := retention.NewScheduler(pruner)
//	if err := sched.Start(ctx); err != nil {
//	    return err
//	}
//	defer sched.Stop()
package retention
