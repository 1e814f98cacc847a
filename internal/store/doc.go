// Package store persists voicepipe state in SQLite: assistant sessions,
// processed work windows, transcribed journal entries, generated summaries,
// and run history.
package store
