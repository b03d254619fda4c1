package domain

import "errors"

var (
	ErrMissingWebhookSecret = errors.New("missing_webhook_secret")
	ErrInvalidSignature     = errors.New("invalid_signature")
	ErrAlreadySubscribed    = errors.New("already_subscribed")
	ErrUnknownPrice         = errors.New("unknown_price")
	ErrNoCustomer           = errors.New("no_customer")
	ErrProvider             = errors.New("payment_provider_error")
)
