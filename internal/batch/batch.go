// Package batch runs one operation per item with bounded concurrency and
// reports an outcome for every item instead of stopping at the first error.
package batch

import (
	"context"

	"github.com/fishy/errbatch"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome for the item at Index in the input slice.
type Result[T any] struct {
	Index int
	Item  T
	Err   error
}

// Results is ordered like the input.
type Results[T any] []Result[T]

// Run calls fn for each item with at most limit calls in flight and waits
// for all of them. Items not started before ctx is done get ctx's error.
// A limit below 1 means no limit.
func Run[T any](ctx context.Context, items []T, limit int, fn func(context.Context, T) error) Results[T] {
	out := make(Results[T], len(items))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, item := range items {
		out[i] = Result[T]{Index: i, Item: item}
		if err := ctx.Err(); err != nil {
			out[i].Err = err
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i].Err = err
				return nil
			}
			out[i].Err = fn(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Failed returns the results that carry an error.
func (r Results[T]) Failed() Results[T] {
	var out Results[T]
	for _, res := range r {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Succeeded counts results without an error.
func (r Results[T]) Succeeded() int {
	n := 0
	for _, res := range r {
		if res.Err == nil {
			n++
		}
	}
	return n
}

// Err compiles all failures into one error, or nil when every item
// succeeded. A single failure is returned unchanged.
func (r Results[T]) Err() error {
	var eb errbatch.ErrBatch
	for _, res := range r {
		eb.Add(res.Err)
	}
	return eb.Compile()
}
