// Package source supplies policy bundles to the catalog.
//
// A Source loads a complete parser.Bundle on demand:
//
//   - FileSource parses a bundle file or a directory of bundle files.
//   - GitSource clones a repository and parses the bundle path inside it.
//     Sync pulls new commits and rolls the worktree back when the new
//     bundle does not parse, so the checkout always holds a loadable bundle.
//   - MemorySource serves a bundle held in memory, mostly for tests.
//
// A Poller drives GitSource.Sync on a cron schedule.
package source
