// KlickLab - Web Analytics Dashboard and Realtime Metrics Engine
// Copyright 2026 Eatventory
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Eatventory/KlickLab

// Package sketch wraps the HyperLogLog implementation used for approximate
// distinct counts (unique visitors). The union operator is commutative,
// associative, and idempotent: merging the same partial state twice does not
// change the estimated cardinality, which is what makes the state safe to
// carry across the daily/hourly/10-minute rollup tables.
package sketch

import (
	"fmt"

	"github.com/axiomhq/hyperloglog"
)

// Sketch is a mergeable approximate distinct counter.
type Sketch struct {
	hll *hyperloglog.Sketch
}

// New returns an empty sketch with 2^14 registers (~0.8% relative error).
func New() *Sketch {
	return &Sketch{hll: hyperloglog.New14()}
}

// Insert adds a value to the sketch.
func (s *Sketch) Insert(value string) {
	s.hll.Insert([]byte(value))
}

// Merge unions other into s. Both sketches must use the same precision,
// which holds for all state produced by this package.
func (s *Sketch) Merge(other *Sketch) error {
	if other == nil {
		return nil
	}
	if err := s.hll.Merge(other.hll); err != nil {
		return fmt.Errorf("failed to merge sketch state: %w", err)
	}
	return nil
}

// Estimate returns the approximate cardinality.
func (s *Sketch) Estimate() uint64 {
	return s.hll.Estimate()
}

// Marshal serializes the sketch state for storage in a BLOB column.
func (s *Sketch) Marshal() ([]byte, error) {
	data, err := s.hll.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sketch state: %w", err)
	}
	return data, nil
}

// Unmarshal reconstructs a sketch from serialized state.
func Unmarshal(data []byte) (*Sketch, error) {
	hll := hyperloglog.New14()
	if err := hll.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sketch state: %w", err)
	}
	return &Sketch{hll: hll}, nil
}
