package services

import (
	"bbpayment/pkg/utils"
	"fmt"
)

// dbError tags a repository failure so HandleServiceError logs it and answers 500.
func dbError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, utils.ErrDatabaseError, err)
}
