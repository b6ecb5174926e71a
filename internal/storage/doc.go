// Package storage keeps the fire journal: an append-only history of timer
// firings, state changes and callback failures.
//
// The journal is observability output. Nothing is restored from it on
// startup.
package storage
