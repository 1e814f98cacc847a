// Package scheduler fires pipeline runs on a fixed interval and at configured
// times of day. Triggers that arrive while a run is in flight are dropped.
package scheduler
