// Package aggregate fans a quote fetch out over a set of symbols and joins
// the outcomes without letting one symbol's failure affect another.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"metalsync/internal/provider"
)

// ErrTotalFailure is returned by Result.Err when every requested symbol failed.
var ErrTotalFailure = errors.New("all symbols failed")

// Result partitions one fan-out round. OK and Failed are ordered by the
// fixed symbol enumeration regardless of completion order.
type Result struct {
	OK     []provider.Quote
	Failed []provider.Symbol
	// Errors holds one entry per failed symbol, or nil.
	Errors error
}

// TotalFailure is true iff at least one symbol was requested and none succeeded.
func (r Result) TotalFailure() bool {
	return len(r.OK) == 0 && len(r.Failed) > 0
}

// Err is nil unless the round was a total failure.
func (r Result) Err() error {
	if !r.TotalFailure() {
		return nil
	}
	if r.Errors == nil {
		return ErrTotalFailure
	}
	return fmt.Errorf("%w: %s", ErrTotalFailure, flatten(r.Errors))
}

// FailedIDs returns the failed symbols as their codes, for messages.
func (r Result) FailedIDs() []string {
	out := make([]string, len(r.Failed))
	for i, s := range r.Failed {
		out[i] = string(s)
	}
	return out
}

type outcome struct {
	quote provider.Quote
	err   error
}

// FetchAll issues one src.FetchQuote per distinct symbol concurrently and
// waits for all of them. It never fails as a whole: a round where every
// symbol failed is a normal Result with TotalFailure set.
func FetchAll(ctx context.Context, src provider.Source, symbols []provider.Symbol, credential string) Result {
	symbols = order(symbols)
	slots := make([]outcome, len(symbols))

	var g errgroup.Group
	for i, sym := range symbols {
		g.Go(func() error {
			slots[i] = fetchOne(ctx, src, sym, credential)
			return nil
		})
	}
	_ = g.Wait()

	res := Result{OK: make([]provider.Quote, 0, len(symbols))}
	var merr *multierror.Error
	for i, sym := range symbols {
		if err := slots[i].err; err != nil {
			res.Failed = append(res.Failed, sym)
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", sym, err))
			continue
		}
		res.OK = append(res.OK, slots[i].quote)
	}
	res.Errors = merr.ErrorOrNil()
	return res
}

func fetchOne(ctx context.Context, src provider.Source, sym provider.Symbol, credential string) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if !sym.Valid() {
		return outcome{err: fmt.Errorf("unknown symbol %q", string(sym))}
	}
	q, err := src.FetchQuote(ctx, sym, credential)
	if err != nil {
		return outcome{err: err}
	}
	if q.Symbol != sym {
		return outcome{err: fmt.Errorf("%s returned a quote for %q", src.Name(), string(q.Symbol))}
	}
	if err := q.Validate(); err != nil {
		return outcome{err: err}
	}
	return outcome{quote: q}
}

// order dedupes symbols and sorts them by the fixed enumeration; unknown
// symbols keep their input order after the known ones.
func order(in []provider.Symbol) []provider.Symbol {
	seen := make(map[provider.Symbol]struct{}, len(in))
	out := make([]provider.Symbol, 0, len(in))
	for _, s := range in {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	slices.SortStableFunc(out, func(a, b provider.Symbol) int {
		return rank(a) - rank(b)
	})
	return out
}

func rank(s provider.Symbol) int {
	if i := s.Index(); i >= 0 {
		return i
	}
	return len(provider.Symbols())
}

func flatten(err error) string {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		parts := make([]string, len(merr.Errors))
		for i, e := range merr.Errors {
			parts[i] = e.Error()
		}
		return strings.Join(parts, "; ")
	}
	return err.Error()
}
