// Package services holds the shared error taxonomy and context annotations
// used by every external-collaborator wrapper. Wrappers tag failures with
// sentinel markers (transient vs permanent); the pipeline retry machinery
// classifies them with Classify and never inspects wrapper internals.
package services
