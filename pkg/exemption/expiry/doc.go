// Package expiry ends exemptions whose validity window has passed.
//
// A Sweeper scans every exemption stream in the event store and appends an
// exemption.expired event for each Active exemption whose valid_until lies
// before the sweep time. Revoked and already expired exemptions are left
// alone. Appends carry the loaded revision, so an exemption changed by
// another writer during the sweep is reported as a conflict and retried on
// the next run.
//
// A Scheduler runs the sweeper on a cron schedule:
//
//	sweeper := expiry.NewSweeper(repository.NewExemptionRepository(store))
//	scheduler := expiry.NewScheduler(sweeper, "*/5 * * * *", time.Minute)
//	if err := scheduler.Start(ctx); err != nil {
//		return err
//	}
//	defer scheduler.Stop()
package expiry
