package service

import "errors"

// Validation failures. All of these are detected before any external call
// and never leave partial state behind: a retry is always safe.
var (
	ErrAmountRequired        = errors.New("a positive amount is required")
	ErrAmountMismatch        = errors.New("amount does not match the invoice amount")
	ErrSelfPayment           = errors.New("you cannot pay your own invoice")
	ErrInsufficientBalance   = errors.New("not enough balance, make sure you have enough reserved for potential fees")
	ErrDuplicateInvoice      = errors.New("an invoice with this payment hash already exists")
	ErrInvalidPaymentRequest = errors.New("invalid payment request")
)

// ErrUnbalancedEntrySet indicates a router logic defect: a ledger append was
// attempted with entries that do not sum to zero. It must never surface to a
// caller through normal operation.
var ErrUnbalancedEntrySet = errors.New("ledger entry set does not balance to zero")

// External payment failures, classified from the node's failure reason.
// Nothing was committed to the ledger when one of these is returned.
var (
	ErrRouteNotFound   = errors.New("no route to destination")
	ErrRemoteCapacity  = errors.New("destination does not have enough inbound capacity")
	ErrNodeUnreachable = errors.New("lightning node is unreachable")
	ErrPaymentTimeout  = errors.New("payment attempt timed out")
	ErrPaymentRejected = errors.New("payment was rejected by the network")
)
