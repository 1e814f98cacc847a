// Package pipeline runs the ordered diary stages for one work window. The
// runner absorbs per-stage retries according to the retry policy; the
// orchestrator sequences stages, honors the duplicate guard and stage
// isolation, and reports one terminal outcome per stage.
package pipeline
