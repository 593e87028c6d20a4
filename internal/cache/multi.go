// Package cache fans product page invalidations out to every layer that
// holds a copy of the page.
package cache

import (
	"context"
	"errors"
	"fmt"
)

// Invalidator marks the page at path as stale.
type Invalidator interface {
	Invalidate(ctx context.Context, path string) error
}

// Multi invalidates path in every member, in order. All members are tried;
// their errors are joined.
type Multi []Invalidator

// NewMulti drops nil members.
func NewMulti(members ...Invalidator) Multi {
	m := make(Multi, 0, len(members))
	for _, inv := range members {
		if inv != nil {
			m = append(m, inv)
		}
	}
	return m
}

func (m Multi) Invalidate(ctx context.Context, path string) error {
	var errs []error
	for _, inv := range m {
		if err := inv.Invalidate(ctx, path); err != nil {
			errs = append(errs, fmt.Errorf("invalidate %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}
