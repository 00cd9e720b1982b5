package entity

import (
	"errors"

	"github.com/dacrab/clubos-legacy-sub000/internal/money"
)

// ErrorKind is the stable, machine-readable name of a failure returned to the UI tier.
type ErrorKind string

const (
	KindInvalidQuantity        ErrorKind = "InvalidQuantity"
	KindOutOfStock             ErrorKind = "OutOfStock"
	KindInsufficientStock      ErrorKind = "InsufficientStock"
	KindEditWindowExpired      ErrorKind = "EditWindowExpired"
	KindAlreadyDeleted         ErrorKind = "AlreadyDeleted"
	KindConcurrentModification ErrorKind = "ConcurrentModification"
	KindNegativeStock          ErrorKind = "NegativeStock"
	KindSaleFailed             ErrorKind = "SaleFailed"
	KindNotFound               ErrorKind = "NotFound"
	KindSessionClosed          ErrorKind = "SessionClosed"
	KindSessionAlreadyOpen     ErrorKind = "SessionAlreadyOpen"
	KindInvalidRequest         ErrorKind = "InvalidRequest"
	KindInternal               ErrorKind = "Internal"
)

var (
	ErrInvalidQuantity        = money.ErrInvalidQuantity
	ErrOutOfStock             = errors.New("product is out of stock")
	ErrInsufficientStock      = errors.New("insufficient stock for edit")
	ErrEditWindowExpired      = errors.New("edit window expired")
	ErrAlreadyDeleted         = errors.New("line item already deleted")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrNegativeStock          = errors.New("stock would become negative")
	ErrSaleFailed             = errors.New("sale failed")
	ErrNotFound               = errors.New("not found")
	ErrSessionClosed          = errors.New("register session is closed")
	ErrSessionAlreadyOpen     = errors.New("a register session is already open")
	ErrInvalidRequest         = errors.New("invalid request")
)

// kindOrder lists specific kinds before the generic ones, so a SaleFailed that wraps an
// OutOfStock reports OutOfStock.
var kindOrder = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidQuantity, KindInvalidQuantity},
	{ErrOutOfStock, KindOutOfStock},
	{ErrInsufficientStock, KindInsufficientStock},
	{ErrEditWindowExpired, KindEditWindowExpired},
	{ErrAlreadyDeleted, KindAlreadyDeleted},
	{ErrConcurrentModification, KindConcurrentModification},
	{ErrSessionClosed, KindSessionClosed},
	{ErrSessionAlreadyOpen, KindSessionAlreadyOpen},
	{ErrNotFound, KindNotFound},
	{ErrInvalidRequest, KindInvalidRequest},
	{ErrNegativeStock, KindNegativeStock},
	{ErrSaleFailed, KindSaleFailed},
}

// KindOf resolves err to its most specific ErrorKind. A nil error yields "".
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range kindOrder {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
