package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/satstash/satstash/lib/responses"
	"github.com/satstash/satstash/lib/service"
)

// KeySendController : Key send controller struct
type KeySendController struct {
	svc *service.SatstashService
}

func NewKeySendController(svc *service.SatstashService) *KeySendController {
	return &KeySendController{svc: svc}
}

type KeySendRequestBody struct {
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Destination string `json:"destination" validate:"required"`
	Memo        string `json:"memo" validate:"omitempty"`
}

type KeySendResponseBody struct {
	RHash           string `json:"payment_hash"`
	Status          string `json:"status"`
	Amount          int64  `json:"amount"`
	Fee             int64  `json:"fee"`
	PaymentPreimage string `json:"payment_preimage,omitempty"`
}

// KeySend : Key send Controller
func (controller *KeySendController) KeySend(c echo.Context) error {
	userID := c.Get("UserID").(int64)
	reqBody := KeySendRequestBody{}
	if err := c.Bind(&reqBody); err != nil {
		c.Logger().Errorf("Failed to load keysend request body user_id:%v error: %v", userID, err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	if err := c.Validate(&reqBody); err != nil {
		c.Logger().Errorf("Invalid keysend request body user_id:%v error: %v", userID, err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	paymentResponse, err := controller.svc.PayToDestination(c.Request().Context(), userID, reqBody.Destination, reqBody.Amount, reqBody.Memo)
	if err != nil {
		c.Logger().Errorf("Keysend payment failed user_id:%v error: %v", userID, err)
		resp := responses.From(err)
		return c.JSON(resp.HttpStatusCode, resp)
	}

	return c.JSON(http.StatusOK, &KeySendResponseBody{
		RHash:           paymentResponse.RHash,
		Status:          paymentResponse.Status,
		Amount:          reqBody.Amount,
		Fee:             paymentResponse.FeeSat,
		PaymentPreimage: paymentResponse.PreimageHex,
	})
}
