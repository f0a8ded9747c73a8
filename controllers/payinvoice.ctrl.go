package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/satstash/satstash/lib/responses"
	"github.com/satstash/satstash/lib/service"
)

// PayInvoiceController : Pay invoice controller struct
type PayInvoiceController struct {
	svc *service.SatstashService
}

func NewPayInvoiceController(svc *service.SatstashService) *PayInvoiceController {
	return &PayInvoiceController{svc: svc}
}

type PayInvoiceRequestBody struct {
	Invoice string `json:"invoice" validate:"required"`
	Amount  int64  `json:"amount" validate:"gte=0"`
}

type PayInvoiceResponseBody struct {
	RHash           string `json:"payment_hash"`
	PaymentRequest  string `json:"payment_request"`
	Status          string `json:"status"`
	Amount          int64  `json:"amount"`
	Fee             int64  `json:"fee"`
	Description     string `json:"description,omitempty"`
	PaymentPreimage string `json:"payment_preimage,omitempty"`
}

// PayInvoice : Pay invoice Controller
func (controller *PayInvoiceController) PayInvoice(c echo.Context) error {
	userID := c.Get("UserID").(int64)
	reqBody := PayInvoiceRequestBody{}
	if err := c.Bind(&reqBody); err != nil {
		c.Logger().Errorf("Failed to load payinvoice request body user_id:%v error: %v", userID, err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	if err := c.Validate(&reqBody); err != nil {
		c.Logger().Errorf("Invalid payinvoice request body user_id:%v error: %v", userID, err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	paymentResponse, err := controller.svc.Pay(c.Request().Context(), userID, reqBody.Invoice, reqBody.Amount)
	if err != nil {
		c.Logger().Errorf("Payment failed user_id:%v error: %v", userID, err)
		resp := responses.From(err)
		return c.JSON(resp.HttpStatusCode, resp)
	}

	return c.JSON(http.StatusOK, &PayInvoiceResponseBody{
		RHash:           paymentResponse.RHash,
		PaymentRequest:  reqBody.Invoice,
		Status:          paymentResponse.Status,
		Amount:          paymentResponse.Invoice.Amount,
		Fee:             paymentResponse.FeeSat,
		Description:     paymentResponse.Invoice.Memo,
		PaymentPreimage: paymentResponse.PreimageHex,
	})
}
