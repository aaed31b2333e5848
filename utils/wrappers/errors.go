// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wrappers provides an error accumulator for multi-step
// operations that must report every failure, not just the first.
package wrappers

import (
	"errors"
	"fmt"
	"strings"
)

// Errs is a collection of errors. Not safe for concurrent use; each
// session task owns its own accumulator.
type Errs struct {
	errs []error
}

// Add adds non-nil errors to the collection.
func (e *Errs) Add(errs ...error) {
	for _, err := range errs {
		if err != nil {
			e.errs = append(e.errs, err)
		}
	}
}

// Errored returns true if any errors have been added.
func (e *Errs) Errored() bool {
	return len(e.errs) > 0
}

// Err collapses the collection into a single error, or nil.
func (e *Errs) Err() error {
	switch len(e.errs) {
	case 0:
		return nil
	case 1:
		return e.errs[0]
	default:
		return errors.New(e.String())
	}
}

func (e *Errs) String() string {
	if len(e.errs) == 0 {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d errors occurred:", len(e.errs))
	for _, err := range e.errs {
		sb.WriteString("\n\t* ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Len returns the number of errors.
func (e *Errs) Len() int {
	return len(e.errs)
}
