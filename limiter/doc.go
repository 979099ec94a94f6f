// Package limiter caps how many execution environments are alive at once.
//
// Local bounds a single process with a channel semaphore. Redis bounds a
// fleet of processes that share one Redis instance: each live environment
// holds one of N slot keys, taken with SET NX PX and released with a
// compare-and-delete script so an expired slot reclaimed by another holder
// is never freed by mistake.
package limiter
