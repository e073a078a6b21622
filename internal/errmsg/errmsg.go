package errmsg

import (
	"errors"
	"net/http"
)

type HTTPError struct {
	Code    int
	Message error
}

func NewHTTPError(code int, message error) HTTPError {
	return HTTPError{Code: code, Message: message}
}

func (e *HTTPError) Error() string {
	return e.Message.Error()
}

var (
	ErrRequestPayloadEmpty = NewHTTPError(
		http.StatusBadRequest,
		errors.New("request payload is empty"),
	)

	ErrRequestPayloadInvalid = NewHTTPError(
		http.StatusBadRequest,
		errors.New("request payload is invalid"),
	)
)

var (
	ErrUserAlreadyExists = NewHTTPError(
		http.StatusConflict,
		errors.New("user already exists"),
	)

	ErrUserNotFound = NewHTTPError(
		http.StatusNotFound,
		errors.New("user not found"),
	)

	ErrUserCredentialsInvalid = NewHTTPError(
		http.StatusUnauthorized,
		errors.New("user credentials invalid"),
	)

	ErrUserInactive = NewHTTPError(
		http.StatusForbidden,
		errors.New("user is deactivated"),
	)

	ErrAdminRequired = NewHTTPError(
		http.StatusForbidden,
		errors.New("operation requires admin role"),
	)
)

var (
	ErrInsufficientFunds = NewHTTPError(
		http.StatusPaymentRequired,
		errors.New("insufficient available balance"),
	)

	ErrPaymentAccessDenied = NewHTTPError(
		http.StatusForbidden,
		errors.New("user has no access to payments"),
	)

	ErrAmountInvalid = NewHTTPError(
		http.StatusUnprocessableEntity,
		errors.New("amount must be a positive number"),
	)

	ErrAccountFormatInvalid = NewHTTPError(
		http.StatusUnprocessableEntity,
		errors.New("subscriber account format is invalid"),
	)

	ErrWriteOffExceedsBalance = NewHTTPError(
		http.StatusUnprocessableEntity,
		errors.New("write-off exceeds available balance"),
	)
)

var (
	ErrPaymentNotFound = NewHTTPError(
		http.StatusNotFound,
		errors.New("payment not found"),
	)

	ErrPaymentAlreadyAnnulled = NewHTTPError(
		http.StatusConflict,
		errors.New("payment is already annulled"),
	)
)

var (
	ErrExternalServiceUnavailable = NewHTTPError(
		http.StatusBadGateway,
		errors.New("external service unavailable"),
	)

	// ErrPaymentOutcomeUnknown marks a gateway timeout on the pay command:
	// the money may or may not have been accepted, so the client must not
	// blindly retry.
	ErrPaymentOutcomeUnknown = NewHTTPError(
		http.StatusGatewayTimeout,
		errors.New("payment outcome unknown, contact support before retrying"),
	)
)
