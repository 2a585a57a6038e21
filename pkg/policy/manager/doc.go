// Package manager keeps the active policy bundle and reloads it when its
// source changes.
//
// # Core Components
//
// Catalog holds the current Snapshot: the parsed bundle, a content version
// and the load time. Replacing the snapshot is a single atomic swap, so
// readers never observe a partially loaded bundle.
//
// Manager loads bundles from a source.Source into the Catalog. A failed
// reload keeps the last good snapshot and records the error. Listeners
// registered with OnReload run after every successful swap.
//
// FileWatcher monitors a bundle directory with fsnotify and triggers a
// reload after a quiet period, so a burst of editor writes produces one
// reload.
//
// # Basic Usage
//
//	src := source.NewFileSource("./policies", nil)
//	m := manager.NewManager(src)
//	m.OnReload(manager.SyncExemptions(evaluator))
//
//	if _, err := m.Load(ctx); err != nil {
//		log.Fatal(err)
//	}
//	go m.Watch(ctx)
//
//	policy, ok := m.Catalog().Policy("Key Size")
//
// # Watching
//
// Watch dispatches on the source type. A FileSource is watched with
// fsnotify. A GitSource is polled on a cron schedule (WithPollSchedule) and
// only commits touching bundle files cause a reload. Other sources return
// ErrWatchUnsupported.
package manager
