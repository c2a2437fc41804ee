// Package services defines the shared error taxonomy and context plumbing for
// the collaborator clients under services/ and the pipeline components that
// consume them.
//
// Errors are tagged with sentinel markers (ErrNotFound, ErrTransient, ...)
// via Wrap so the orchestrator and trigger layer can classify failures with
// errors.Is without string matching. Details unpacks a wrapped error back
// into its component/operation/message parts for structured logging.
package services
