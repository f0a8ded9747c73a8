package responses

import (
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	"github.com/satstash/satstash/lib/service"
)

type ErrorResponse struct {
	Error          bool   `json:"error"`
	Code           int    `json:"code"`
	Message        string `json:"message"`
	HttpStatusCode int    `json:"-"`
}

var GeneralServerError = ErrorResponse{
	Error:          true,
	Code:           6,
	Message:        "Something went wrong. Please try again later",
	HttpStatusCode: 500,
}

var BadArgumentsError = ErrorResponse{
	Error:          true,
	Code:           8,
	Message:        "Bad arguments",
	HttpStatusCode: 400,
}

var BadAuthError = ErrorResponse{
	Error:          true,
	Code:           1,
	Message:        "bad auth",
	HttpStatusCode: 401,
}

var NotEnoughBalanceError = ErrorResponse{
	Error:          true,
	Code:           2,
	Message:        "not enough balance. Make sure you have at least 1% reserved for potential fees",
	HttpStatusCode: 400,
}

var AmountRequiredError = ErrorResponse{
	Error:          true,
	Code:           2,
	Message:        "a positive amount is required",
	HttpStatusCode: 400,
}

var AmountMismatchError = ErrorResponse{
	Error:          true,
	Code:           2,
	Message:        "amount does not match the invoice amount",
	HttpStatusCode: 400,
}

var SelfPaymentError = ErrorResponse{
	Error:          true,
	Code:           2,
	Message:        "you cannot pay your own invoice",
	HttpStatusCode: 400,
}

var DuplicateInvoiceError = ErrorResponse{
	Error:          true,
	Code:           2,
	Message:        "an invoice with this payment hash already exists",
	HttpStatusCode: 400,
}

var RouteNotFoundError = ErrorResponse{
	Error:          true,
	Code:           10,
	Message:        "payment failed: no route to destination",
	HttpStatusCode: 400,
}

var RemoteCapacityError = ErrorResponse{
	Error:          true,
	Code:           10,
	Message:        "payment failed: does the receiver have enough inbound capacity?",
	HttpStatusCode: 400,
}

var PaymentTimeoutError = ErrorResponse{
	Error:          true,
	Code:           10,
	Message:        "payment attempt timed out",
	HttpStatusCode: 400,
}

var NodeUnreachableError = ErrorResponse{
	Error:          true,
	Code:           10,
	Message:        "lightning node is unreachable, please try again later",
	HttpStatusCode: 502,
}

var PaymentRejectedError = ErrorResponse{
	Error:          true,
	Code:           10,
	Message:        "payment was rejected by the network",
	HttpStatusCode: 400,
}

// From maps a service error onto the response the caller should see.
// Validation and routing failures all mean "nothing happened, retry is
// safe"; anything unrecognized is a server error.
func From(err error) ErrorResponse {
	switch {
	case errors.Is(err, service.ErrInsufficientBalance):
		return NotEnoughBalanceError
	case errors.Is(err, service.ErrAmountRequired):
		return AmountRequiredError
	case errors.Is(err, service.ErrAmountMismatch):
		return AmountMismatchError
	case errors.Is(err, service.ErrSelfPayment):
		return SelfPaymentError
	case errors.Is(err, service.ErrDuplicateInvoice):
		return DuplicateInvoiceError
	case errors.Is(err, service.ErrInvalidPaymentRequest):
		return BadArgumentsError
	case errors.Is(err, service.ErrRouteNotFound):
		return RouteNotFoundError
	case errors.Is(err, service.ErrRemoteCapacity):
		return RemoteCapacityError
	case errors.Is(err, service.ErrPaymentTimeout):
		return PaymentTimeoutError
	case errors.Is(err, service.ErrNodeUnreachable):
		return NodeUnreachableError
	case errors.Is(err, service.ErrPaymentRejected):
		return PaymentRejectedError
	default:
		return GeneralServerError
	}
}

func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	c.Logger().Error(err)
	if hub := sentryecho.GetHubFromContext(c); hub != nil {
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetExtra("UserID", c.Get("UserID"))
			hub.CaptureException(err)
		})
	}
	if he, ok := err.(*echo.HTTPError); ok {
		c.JSON(he.Code, he.Message)
	} else {
		c.JSON(http.StatusInternalServerError, GeneralServerError)
	}
}
