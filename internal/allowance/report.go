package allowance

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// PairResult is the outcome of ensuring one pair.
type PairResult struct {
	Pair   Pair
	State  State
	TxHash common.Hash
	Err    error
}

// Report collects the per-pair results of EnsureApprovals.
type Report struct {
	Results []PairResult
}

// Failed returns the pairs that did not end SUFFICIENT.
func (r *Report) Failed() []PairResult {
	var failed []PairResult
	for _, res := range r.Results {
		if res.State != StateSufficient {
			failed = append(failed, res)
		}
	}
	return failed
}

// Approved returns the pairs that needed and received a new approval.
func (r *Report) Approved() []PairResult {
	var approved []PairResult
	for _, res := range r.Results {
		if res.State == StateSufficient && res.TxHash != (common.Hash{}) {
			approved = append(approved, res)
		}
	}
	return approved
}

// Err joins the errors of every failed pair, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return errors.Join(errs...)
}
