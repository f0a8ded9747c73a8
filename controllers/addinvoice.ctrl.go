package controllers

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"github.com/satstash/satstash/lib/responses"
	"github.com/satstash/satstash/lib/service"
)

// AddInvoiceController : Add invoice controller struct
type AddInvoiceController struct {
	svc *service.SatstashService
}

func NewAddInvoiceController(svc *service.SatstashService) *AddInvoiceController {
	return &AddInvoiceController{svc: svc}
}

type AddInvoiceRequestBody struct {
	Amount int64  `json:"amount" validate:"gte=0"`
	Memo   string `json:"memo"`
}

type AddInvoiceResponseBody struct {
	RHash          string `json:"r_hash"`
	PaymentRequest string `json:"payment_request"`
	Amount         int64  `json:"amount"`
	ExpiresAt      int64  `json:"expires_at"`
}

// AddInvoice : Add invoice Controller
func (controller *AddInvoiceController) AddInvoice(c echo.Context) error {
	userID := c.Get("UserID").(int64)
	var body AddInvoiceRequestBody
	if err := c.Bind(&body); err != nil {
		c.Logger().Errorf("Failed to load addinvoice request body user_id:%v error: %v", userID, err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	if err := c.Validate(&body); err != nil {
		c.Logger().Errorf("Invalid addinvoice request body user_id:%v error: %v", userID, err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	invoice, err := controller.svc.AddIncomingInvoice(c.Request().Context(), userID, body.Amount, body.Memo)
	if err != nil {
		c.Logger().Errorf("Failed to add invoice user_id:%v error: %v", userID, err)
		sentry.CaptureException(err)
		resp := responses.From(err)
		return c.JSON(resp.HttpStatusCode, resp)
	}

	return c.JSON(http.StatusOK, &AddInvoiceResponseBody{
		RHash:          invoice.RHash,
		PaymentRequest: invoice.PaymentRequest,
		Amount:         invoice.Amount,
		ExpiresAt:      invoice.ExpiresAt.Time.Unix(),
	})
}
