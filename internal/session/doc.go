// Package session manages assistant conversation threads and the duplicate
// work guard. Threads are cached per purpose, persisted across restarts, and
// rotated once they outlive the configured retention. The guard records which
// work windows have already produced output so repeat runs can skip them.
package session
