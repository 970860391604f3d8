// Package optimistic applies local mutations ahead of server confirmation and
// restores the pre-mutation snapshot when confirmation fails.
package optimistic

import (
	"context"

	"feedsync/internal/observability"
)

// Outcome labels recorded for every run.
const (
	OutcomeConfirmed  = "confirmed"
	OutcomeRecovered  = "recovered"
	OutcomeRolledBack = "rolled_back"
)

// Op describes one optimistic update over state of type S.
//
// Snapshot, Mutate and Restore run synchronously on the caller's goroutine and
// must do their own locking. Confirm performs the network call and must not
// hold the caller's lock.
type Op[S any] struct {
	Name     string
	Snapshot func() S
	Mutate   func()
	Confirm  func(ctx context.Context) error
	Restore  func(snapshot S)

	// Recover gets a chance to absorb a failed confirmation with the mutation
	// still applied. Returning nil keeps the state Recover leaves behind;
	// returning an error restores the snapshot and surfaces that error.
	Recover func(ctx context.Context, snapshot S, err error) error
}

// Run executes op: snapshot, mutate, confirm, then either keep or restore.
func Run[S any](ctx context.Context, op Op[S]) error {
	snap := op.Snapshot()
	if op.Mutate != nil {
		op.Mutate()
	}

	err := op.Confirm(ctx)
	if err == nil {
		observability.RecordOptimistic(op.Name, OutcomeConfirmed)
		return nil
	}

	if op.Recover != nil {
		rerr := op.Recover(ctx, snap, err)
		if rerr == nil {
			observability.RecordOptimistic(op.Name, OutcomeRecovered)
			return nil
		}
		err = rerr
	}

	op.Restore(snap)
	observability.RecordOptimistic(op.Name, OutcomeRolledBack)
	return err
}
