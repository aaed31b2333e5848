// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

// Exit codes for tooling harnesses.
const (
	ExitSuccess          = 0
	ExitPolicyDenial     = 2
	ExitThresholdFailure = 3
	ExitTimeout          = 4
	ExitByzantine        = 5
	ExitPartition        = 6
	ExitCorruption       = 7
	ExitConfigError      = 10
)

// ExitCodeFor maps an error kind to its harness exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	switch KindOf(err) {
	case ErrCapability:
		return ExitPolicyDenial
	case ErrByzantine:
		return ExitByzantine
	case ErrCrypto:
		return ExitThresholdFailure
	case ErrTimeout:
		return ExitTimeout
	case ErrNetwork:
		return ExitPartition
	case ErrStorage:
		return ExitCorruption
	default:
		return 1
	}
}
