// Package daemon wires the store, external service clients, pipeline, and
// scheduler into a single lifecycle with flock-based locking to prevent
// multiple voicepipe instances running against the same state.
package daemon
