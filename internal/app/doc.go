// Package app provides the session layer.
//
// A Session owns one tag store, remote sync, effect gateway and reconciliation engine per run
// and drives them from a single event loop: remote snapshots, interactive tag edits, policy
// changes and heal ticks are processed one at a time. Depends on domain interfaces, not
// concrete adapters.
package app
