// Package aggregates owns transaction boundaries for invariant-critical
// writes: the tx runner and retry loop, advisory locks, compare-and-swap
// guards, and mapping of driver errors onto domain error codes.
package aggregates
