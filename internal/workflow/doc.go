// Package workflow runs the watch loop.
//
// Each iteration re-lists the watched root, drops units already in the
// processed store, and hands the rest to the pipeline in ascending time order.
// Nothing is queued between iterations: the pending set is derived afresh
// every time, so a unit that failed is simply found again on the next poll.
// A listing failure is logged and the loop keeps polling. The loop stops when
// its runtime budget is used up or its context is canceled.
package workflow
