package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Failure is one record the sink did not accept. Index is the record's
// position in the submitted batch; RowIndex is its data-region row. Both are
// -1 for a failure of the whole batch.
type Failure struct {
	Index    int    `json:"index"`
	RowIndex int    `json:"row_index"`
	Detail   string `json:"detail"`
}

// BatchOutcome summarizes one sink submission.
type BatchOutcome struct {
	Submitted int       `json:"submitted"`
	Accepted  int       `json:"accepted"`
	Failures  []Failure `json:"failures,omitempty"`
	Fatal     bool      `json:"fatal,omitempty"`
}

// Partial reports whether some, but not all, of the submission was rejected
// record by record.
func (o BatchOutcome) Partial() bool {
	return !o.Fatal && len(o.Failures) > 0
}

// Submit sends records to the sink in one call and classifies the reply.
//
// No records means no sink call. A sink error yields a fatal outcome with a
// single Failure and an error wrapping ErrSinkFatal. Per-record errors are
// grouped by record and sorted by index.
func Submit(ctx context.Context, sink Sink, dest Destination, records []NormalizedRecord) (BatchOutcome, error) {
	if len(records) == 0 {
		return BatchOutcome{}, nil
	}

	out := BatchOutcome{Submitted: len(records)}

	recErrs, err := sink.SubmitRecords(ctx, dest, records)
	if err != nil {
		out.Fatal = true
		out.Failures = []Failure{{Index: -1, RowIndex: -1, Detail: err.Error()}}
		return out, fmt.Errorf("%w: %s: %w", ErrSinkFatal, dest, err)
	}

	out.Failures = groupFailures(recErrs, records)

	failed := 0
	for _, f := range out.Failures {
		if f.Index >= 0 {
			failed++
		}
	}
	out.Accepted = out.Submitted - failed
	return out, nil
}

// groupFailures merges errors for the same record and orders them by index.
// Indexes outside the batch are kept with RowIndex -1 and sort first.
func groupFailures(recErrs []RecordError, records []NormalizedRecord) []Failure {
	if len(recErrs) == 0 {
		return nil
	}

	details := make(map[int][]string)
	for _, re := range recErrs {
		idx := re.Index
		if idx < 0 || idx >= len(records) {
			idx = -1
		}
		details[idx] = append(details[idx], re.Detail)
	}

	failures := make([]Failure, 0, len(details))
	for idx, ds := range details {
		f := Failure{Index: idx, RowIndex: -1, Detail: strings.Join(ds, "; ")}
		if idx >= 0 {
			f.RowIndex = records[idx].RowIndex
		}
		failures = append(failures, f)
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].Index < failures[j].Index })
	return failures
}
