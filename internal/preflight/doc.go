// Package preflight validates the host before vidfuse serves queries:
// disk space (200MB floor for vector snapshots and SQLite growth), memory
// (1GB for resident HNSW graphs), data-directory write access, descriptor
// limits, and embedding service reachability. The service check is
// non-critical since the static embedder is a fallback.
//
// Results of a passing run are cached in a marker file for 30 days:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, dataDir, serviceHost)
//	if checker.HasCriticalFailures(results) {
//		checker.PrintResults(results)
//	}
package preflight
