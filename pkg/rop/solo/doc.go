// Package solo contains single-value, synchronous ROP primitives that operate
// on Result[T]. They are the building blocks the pipeline uses to turn handler
// calls and its own bookkeeping into tagged outcomes without channels.
//
// Highlights:
// - Validate/AndValidate: apply validation producing failure on invalid input
// - Recover: turn a panic into an error the caller can classify
// - Guard: run machinery code, turning a panic into a Defect
// - DoubleTee: route side effects by outcome kind
package solo
