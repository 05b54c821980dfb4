package search

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dirtbags/pcapdb/internal/fidx"
	"github.com/dirtbags/pcapdb/internal/oset"
)

// Coordinator runs a parsed search descriptor against one index
// directory's FIDX files (§6.3, §6.4), writing each directive's result
// as an ordered set alongside the FIDX files it was computed from. It
// is the generalization of search_lib.c's per-directive entry points
// (and_results/or_results/flow_fetch) into one pipeline driven off a
// Descriptor instead of argv, and is what a pool worker (§5's "thread
// pool pulling work from a shared queue of (interval, operation)
// tasks") runs once per (interval, descriptor) task it pops.
type Coordinator struct{}

// flowsFileName is the fixed name flow_fetch's output is written under,
// independent of the descriptor (there is only ever one flow-fetch
// stage per search, run against the OR result).
const flowsFileName = "flows"

// Run executes every directive in d against the FIDX files in
// indexPath, writing one result file per named result. It returns the
// path to the final flows result file. Each stage's result file is
// opened idempotently (§4.H, §5 "EEXIST is success"): a result already
// computed by a previous or concurrent run is left untouched and its
// stage is skipped.
func (Coordinator) Run(indexPath string, d *Descriptor) (flowsPath string, err error) {
	for _, rs := range d.Ranges {
		if err := runRangeSearch(indexPath, rs); err != nil {
			return "", fmt.Errorf("range search %s: %w", rs.ResultName, err)
		}
	}

	for _, op := range d.Ands {
		if err := runAnd(indexPath, d.Ranges, op); err != nil {
			return "", fmt.Errorf("and %s: %w", op.ResultName, err)
		}
	}

	if d.OrResultName != "" {
		if err := runOr(indexPath, d.Ands, d.OrResultName); err != nil {
			return "", fmt.Errorf("or %s: %w", d.OrResultName, err)
		}
	}

	flowsPath = filepath.Join(indexPath, flowsFileName)
	if d.OrResultName != "" {
		if err := runFlowFetch(indexPath, d.OrResultName, d.Filter()); err != nil {
			return "", fmt.Errorf("flow fetch: %w", err)
		}
	}
	return flowsPath, nil
}

// createOffsetSetIdempotent opens resultName for writing in indexPath,
// reporting skip=true (no error) when the result already exists or is
// being written by someone else right now — the same "EEXIST is
// success" idempotency every result-file open in §4.H/§5 relies on.
func createOffsetSetIdempotent(indexPath, resultName string) (set *oset.OffsetSet, skip bool, err error) {
	set, err = oset.CreateOffsetSet(filepath.Join(indexPath, resultName))
	if err == nil {
		return set, false, nil
	}
	if errors.Is(err, oset.ErrExists) || errors.Is(err, oset.ErrInProgress) {
		return nil, true, nil
	}
	return nil, false, err
}

func runRangeSearch(indexPath string, rs RangeSearch) error {
	out, skip, err := createOffsetSetIdempotent(indexPath, rs.ResultName)
	if err != nil {
		return err
	}
	if skip {
		return nil
	}

	r, err := fidx.Open(filepath.Join(indexPath, rs.KeyType.String()))
	if err != nil {
		return err
	}
	defer r.Close()

	if err := RangeScan(r, rs.StartKey, rs.EndKey, out); err != nil {
		return err
	}
	return out.Commit()
}

func runAnd(indexPath string, ranges []RangeSearch, op AndOp) error {
	out, skip, err := createOffsetSetIdempotent(indexPath, op.ResultName)
	if err != nil {
		return err
	}
	if skip {
		return nil
	}

	var regular, inverted []*oset.OffsetSet
	for _, operand := range op.Operands {
		if operand.SubsearchID < 0 || operand.SubsearchID >= len(ranges) {
			return fmt.Errorf("subsearch id %d out of range", operand.SubsearchID)
		}
		name := ranges[operand.SubsearchID].ResultName
		s, err := oset.OpenOffsetSet(filepath.Join(indexPath, name))
		if err != nil {
			return err
		}
		defer s.Close()
		if operand.Inverted {
			inverted = append(inverted, s)
		} else {
			regular = append(regular, s)
		}
	}

	if err := AndResults(regular, inverted, out); err != nil {
		return err
	}
	return out.Commit()
}

func runOr(indexPath string, ands []AndOp, resultName string) error {
	out, skip, err := createOffsetSetIdempotent(indexPath, resultName)
	if err != nil {
		return err
	}
	if skip {
		return nil
	}

	sets := make([]*oset.OffsetSet, 0, len(ands))
	for _, op := range ands {
		s, err := oset.OpenOffsetSet(filepath.Join(indexPath, op.ResultName))
		if err != nil {
			return err
		}
		defer s.Close()
		sets = append(sets, s)
	}

	if err := OrResults(sets, out); err != nil {
		return err
	}
	return out.Commit()
}

func runFlowFetch(indexPath, orResultName string, filter Filter) error {
	path := filepath.Join(indexPath, flowsFileName)
	out, err := oset.CreateFlowSet(path)
	if err != nil {
		if errors.Is(err, oset.ErrExists) || errors.Is(err, oset.ErrInProgress) {
			return nil
		}
		return err
	}

	offsets, err := oset.OpenOffsetSet(filepath.Join(indexPath, orResultName))
	if err != nil {
		return err
	}
	defer offsets.Close()

	flowIndex, err := fidx.Open(filepath.Join(indexPath, fidx.Flow.String()))
	if err != nil {
		return err
	}
	defer flowIndex.Close()

	if _, err := FlowFetch(flowIndex, offsets, filter, out); err != nil {
		return err
	}
	return out.Commit()
}
