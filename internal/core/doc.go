// Package core imports loan-portfolio workbooks into the relational store.
//
// It holds all domain logic independent of transport, so the HTTP server,
// the import CLI and tests drive it the same way.
//
// # Pipeline
//
// An import moves through three stages:
//
//   - Staging: [StageWorkbook] normalizes each sheet's header block (two
//     legacy layouts, detected heuristically), extracts data rows with their
//     weekly payment columns, and classifies each row's borrower as a client
//     or a coordinator. Operators may correct headers with
//     [StagedWorkbook.EditHeader]; classification is recomputed after each edit.
//   - Resolution: a [Resolver] finds or creates routes, populations,
//     coordinators, clients and guarantors by natural key. A
//     [ResolveContext] memoizes ids for one session.
//   - Commit: an [Orchestrator] runs six ordered phases (see [Phases]),
//     best-effort within each phase, and produces a [CommitReport]. Phases
//     can be re-run individually with [Orchestrator.RunPhase].
//
// # Sessions
//
// [Service] keeps staged workbooks in memory between upload and commit,
// runs commits in the background under a [CommitLimiter], and fans progress
// out to subscribers.
//
// # Errors
//
// Unit failures never abort a commit; they become report messages carrying
// a stable code from [MapError]. Sentinel errors ([ErrEmptyWorkbook],
// [ErrSessionNotFound], [ErrCommitInProgress], [ErrTooManyCommits],
// [ErrUnknownPhase]) are compared with errors.Is.
package core
