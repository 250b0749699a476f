package service

import (
	"errors"
	"strings"

	"storefront/internal/apperrors"
	"storefront/internal/store"
	"storefront/internal/util"
)

// notFoundOr maps store.ErrNotFound to a NotFound error with message and
// hides anything else behind an internal error.
func notFoundOr(err error, message string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.NotFound(message)
	}
	return apperrors.Internal(err)
}

// outcome is the metrics label for the result of an operation
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(string(apperrors.CodeOf(err)))
}

func countCartMutation(operation string, err error) {
	util.CartMutationsTotal.WithLabelValues(operation, outcome(err)).Inc()
}
