// Package jobs tracks long-running background tasks such as index rebuilds
// and maintenance operations started over HTTP.
//
// A job is created pending, started, and finished exactly once as
// completed, failed or canceled. Finished jobs stay queryable until more
// than MaxHistory have accumulated.
package jobs
