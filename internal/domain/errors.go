package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidSwipe        = errors.New("invalid swipe")
	ErrSigningFailed       = errors.New("signing failed")
	ErrLockHeld            = errors.New("lock already held")
	ErrInsufficientBalance = errors.New("insufficient balance")

	ErrNoWallet           = errors.New("embedded wallet not created")
	ErrNoSession          = errors.New("no session key stored")
	ErrSessionExpired     = errors.New("session key expired")
	ErrSessionInvalid     = errors.New("session blob invalid")
	ErrUnsupportedShape   = errors.New("unsupported account factory shape")
	ErrFallbacksExhausted = errors.New("all account factories failed")
	ErrUserRejected       = errors.New("user rejected request")
	ErrChainUnknown       = errors.New("chain not added to wallet")
	ErrWrongNetwork       = errors.New("wallet on wrong network")
)
