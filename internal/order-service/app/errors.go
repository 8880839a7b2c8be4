package app

import (
	"errors"

	"github.com/jcmexdev/kitchen-orders/internal/order-service/domain"
)

// storeErr passes ErrOrderNotFound through and wraps every other store error.
func storeErr(op string, err error) error {
	if errors.Is(err, domain.ErrOrderNotFound) {
		return err
	}
	return &domain.PersistenceError{Op: op, Err: err}
}
