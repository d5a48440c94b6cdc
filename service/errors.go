package service

import "errors"

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderNotPayable     = errors.New("order cannot be paid")
	ErrInvalidSignature    = errors.New("invalid notification signature")
	ErrMalformedPayload    = errors.New("malformed notification payload")
	ErrTransactionMismatch = errors.New("transaction does not belong to this payment")
)

const (
	ReasonPaid            = "paid"
	ReasonFailed          = "failed"
	ReasonAlreadyRecorded = "already_recorded"
	ReasonPending         = "pending"
	ReasonIgnoredType     = "ignored_type"
	ReasonUnknownPayment  = "unknown_payment"
	ReasonConflict        = "conflicting_outcome"
	ReasonBadSignature    = "invalid_signature"
	ReasonMalformed       = "malformed"
	ReasonMismatch        = "transaction_mismatch"
)
