package service

import (
	"errors"
	"fmt"

	"github.com/marketplace-service/internal/payment"
	"github.com/marketplace-service/internal/repo"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrProductUnavailable   = errors.New("product is not available")
	ErrOutOfStock           = errors.New("insufficient stock")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrInvalidPayment       = errors.New("invalid payment details")
	ErrUnsupportedProcessor = payment.ErrUnsupportedProcessor
	ErrGateway              = errors.New("payment gateway error")
	ErrNotDigital           = errors.New("order is not for a digital product")
	ErrLinkExpired          = errors.New("download link has expired")
	ErrLinkRevoked          = errors.New("download link has been revoked")
	ErrDownloadLimit        = errors.New("download limit reached")
	ErrRateLimited          = errors.New("too many download attempts")
	ErrInvalidCredentials   = errors.New("invalid email or password")

	ErrDigitalQuantity = fmt.Errorf("%w: digital products are sold one per order", ErrInvalidQuantity)
)

// mapRepoErr translates storage errors into service errors.
func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repo.ErrInsufficientStock):
		return ErrOutOfStock
	case errors.Is(err, repo.ErrLinkUnavailable):
		return ErrDownloadLimit
	}
	return err
}
