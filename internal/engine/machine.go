package engine

import (
	"fmt"

	clierr "github.com/nmorales94/swapflow/internal/errors"
)

// Status is the state of one execution attempt. Terminal statuses end the
// attempt; every other status has exactly one driver effect associated with
// it.
type Status string

const (
	StatusIdle          Status = "idle"
	StatusNeedsApproval Status = "needs-approval"
	StatusApproving     Status = "approving"
	StatusSigning       Status = "signing"
	StatusSubmitting    Status = "submitting"
	StatusPolling       Status = "polling"
	StatusConfirmed     Status = "confirmed"
	StatusReverted      Status = "reverted"
	StatusRejected      Status = "rejected"
	StatusExpired       Status = "expired"
	StatusFailed        Status = "failed"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusReverted, StatusRejected, StatusExpired, StatusFailed:
		return true
	default:
		return false
	}
}

// Recoverable reports whether the user may retry from idle after this
// terminal status without anything on-chain in flight.
func (s Status) Recoverable() bool {
	switch s {
	case StatusRejected, StatusExpired, StatusReverted:
		return true
	default:
		return false
	}
}

// Attempt is the full state of one state-machine run over a single quote.
type Attempt struct {
	Status          Status
	Path            string
	ApprovalTxHash  string
	TradeHash       string
	TransactionHash string
	Polls           int
	Message         string
}

// Event drives a transition. Events carry data, never behavior.
type Event interface{ event() }

// EvStart leaves idle. NeedsApproval is true when the current allowance is
// insufficient and the provider supplied no signable approval document.
type EvStart struct{ NeedsApproval bool }

// EvApprovalSent records the broadcast approval transaction.
type EvApprovalSent struct{ Hash string }

// EvApproved confirms the approval receipt; the quote must be re-fetched
// before signing resumes.
type EvApproved struct{}

// EvSigned means every required signature was produced.
type EvSigned struct{}

// EvSubmitted carries the provider trade handle for the gasless path.
type EvSubmitted struct{ TradeHash string }

// EvBroadcast carries the transaction hash for paths the wallet broadcasts
// directly; the driver then waits for a receipt.
type EvBroadcast struct{ Hash string }

// EvPoll is one status-poll result.
type EvPoll struct {
	Confirmed       bool
	Failed          bool
	TransactionHash string
	Reason          string
}

// EvPollExhausted fires when the bounded poll window closes without a
// terminal provider status. The trade may still land; this is a soft
// success without a verifiable hash.
type EvPollExhausted struct{}

// EvReceipt is the mined receipt for a broadcast transaction.
type EvReceipt struct{ Reverted bool }

// EvRejected means the user declined a signature request.
type EvRejected struct{}

// EvExpired means the quote passed its TTL before signing and no fresh
// quote could replace it.
type EvExpired struct{}

// EvFailed is an unrecoverable provider or transport error.
type EvFailed struct{ Message string }

// EvReset discards the attempt and returns to idle.
type EvReset struct{}

func (EvStart) event()         {}
func (EvApprovalSent) event()  {}
func (EvApproved) event()      {}
func (EvSigned) event()        {}
func (EvSubmitted) event()     {}
func (EvBroadcast) event()     {}
func (EvPoll) event()          {}
func (EvPollExhausted) event() {}
func (EvReceipt) event()       {}
func (EvRejected) event()      {}
func (EvExpired) event()       {}
func (EvFailed) event()        {}
func (EvReset) event()         {}

// Apply is the pure transition function. It never performs effects; the
// driver interprets the resulting status. Invalid (state, event) pairs are
// programming errors and return CodeInternal.
func Apply(a Attempt, ev Event) (Attempt, error) {
	if a.Status.Terminal() {
		if _, ok := ev.(EvReset); ok {
			return Attempt{Status: StatusIdle, Path: a.Path}, nil
		}
		return a, invalidTransition(a.Status, ev)
	}

	switch e := ev.(type) {
	case EvReset:
		return Attempt{Status: StatusIdle, Path: a.Path}, nil
	case EvRejected:
		if a.Status != StatusSigning {
			return a, invalidTransition(a.Status, ev)
		}
		a.Status = StatusRejected
		a.Message = "signature request rejected"
		return a, nil
	case EvExpired:
		a.Status = StatusExpired
		a.Message = "quote expired before signing; retry with a fresh quote"
		return a, nil
	case EvFailed:
		a.Status = StatusFailed
		a.Message = e.Message
		return a, nil
	case EvStart:
		if a.Status != StatusIdle {
			return a, invalidTransition(a.Status, ev)
		}
		if e.NeedsApproval {
			a.Status = StatusNeedsApproval
		} else {
			a.Status = StatusSigning
		}
		return a, nil
	case EvApprovalSent:
		if a.Status != StatusNeedsApproval {
			return a, invalidTransition(a.Status, ev)
		}
		a.Status = StatusApproving
		a.ApprovalTxHash = e.Hash
		return a, nil
	case EvApproved:
		if a.Status != StatusApproving {
			return a, invalidTransition(a.Status, ev)
		}
		a.Status = StatusSigning
		return a, nil
	case EvSigned:
		if a.Status != StatusSigning {
			return a, invalidTransition(a.Status, ev)
		}
		a.Status = StatusSubmitting
		return a, nil
	case EvSubmitted:
		if a.Status != StatusSubmitting {
			return a, invalidTransition(a.Status, ev)
		}
		a.Status = StatusPolling
		a.TradeHash = e.TradeHash
		return a, nil
	case EvBroadcast:
		if a.Status != StatusSubmitting {
			return a, invalidTransition(a.Status, ev)
		}
		a.Status = StatusPolling
		a.TransactionHash = e.Hash
		return a, nil
	case EvPoll:
		if a.Status != StatusPolling {
			return a, invalidTransition(a.Status, ev)
		}
		a.Polls++
		if e.Confirmed {
			a.Status = StatusConfirmed
			a.TransactionHash = e.TransactionHash
			return a, nil
		}
		if e.Failed {
			a.Status = StatusFailed
			a.Message = e.Reason
			if a.Message == "" {
				a.Message = "provider reported trade failure"
			}
			return a, nil
		}
		return a, nil
	case EvPollExhausted:
		if a.Status != StatusPolling {
			return a, invalidTransition(a.Status, ev)
		}
		a.Status = StatusConfirmed
		a.Message = "submitted; confirmation not observed within the polling window"
		return a, nil
	case EvReceipt:
		if a.Status != StatusPolling {
			return a, invalidTransition(a.Status, ev)
		}
		if e.Reverted {
			a.Status = StatusReverted
			a.Message = "transaction reverted on-chain; retry with a fresh quote"
			return a, nil
		}
		a.Status = StatusConfirmed
		return a, nil
	default:
		return a, invalidTransition(a.Status, ev)
	}
}

func invalidTransition(s Status, ev Event) error {
	return clierr.New(clierr.CodeInternal, fmt.Sprintf("invalid transition: %T in state %s", ev, s))
}
