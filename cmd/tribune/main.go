// Tribune is an event-sourced policy governance engine.
//
// It parses policy bundles, evaluates them against request contexts, detects
// and resolves conflicts between policies, and keeps the lifecycle of
// policies, policy sets and exemptions in an append-only event store.
//
// Usage:
//
//	# Validate a policy bundle
//	tribune lint --bundle policies/
//
//	# Evaluate a bundle against a context document
//	tribune evaluate --bundle policies/ --context request.yaml
//
//	# Report conflicts between the policies of a bundle
//	tribune conflicts --bundle policies/ --strategy most_restrictive
//
//	# Seed the event store from a bundle
//	tribune import --bundle policies/ --config tribune.yaml
//
//	# Serve metrics and health endpoints, hot-reload the bundle and expire
//	# exemptions on schedule
//	tribune serve --config tribune.yaml
package main

func main() {
	Execute()
}
