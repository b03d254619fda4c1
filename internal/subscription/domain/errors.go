package domain

import "errors"

var (
	ErrInvalidUser     = errors.New("invalid_user")
	ErrNotFound        = errors.New("subscription_not_found")
	ErrUpgradeRequired = errors.New("upgrade_required")
)
