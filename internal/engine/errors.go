// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

package engine

import (
	"errors"
	"fmt"

	"github.com/Eatventory/KlickLab-sub001/internal/models"
)

// Engine error taxonomy. InvalidRange and unknown-family errors are rejected
// synchronously before any store call; SourceUnavailable aborts the whole
// request rather than silently zeroing one table's contribution.
var (
	// ErrInvalidRange indicates a requested window whose start is after its end.
	ErrInvalidRange = errors.New("invalid time range: start is after end")

	// ErrUnknownFamily indicates a request for a metric family that was never
	// registered.
	ErrUnknownFamily = errors.New("unknown metric family")
)

// SourceUnavailableError indicates that a retrieval against one of the rollup
// tables failed. The merge is aborted: a dashboard silently missing one
// source's contribution would misrepresent totals.
type SourceUnavailableError struct {
	Source models.Source
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// UnknownMeasureKindError indicates a metric family declaring a measure
// without a usable merge rule. This is a configuration error, fatal at
// startup validation, never a per-request condition.
type UnknownMeasureKindError struct {
	Family  string
	Measure string
	Reason  string
}

func (e *UnknownMeasureKindError) Error() string {
	return fmt.Sprintf("metric family %q: measure %q has no merge rule: %s", e.Family, e.Measure, e.Reason)
}
