package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/satstash/satstash/lib/responses"
	"github.com/satstash/satstash/lib/service"
)

// EarnController : Earn controller struct
type EarnController struct {
	svc *service.SatstashService
}

func NewEarnController(svc *service.SatstashService) *EarnController {
	return &EarnController{svc: svc}
}

type EarnRequestBody struct {
	RewardIDs []string `json:"reward_ids" validate:"required,min=1"`
}

type EarnResponseBody struct {
	Balance int64 `json:"balance"`
}

// Earn : Credit onboarding rewards Controller
func (controller *EarnController) Earn(c echo.Context) error {
	userID := c.Get("UserID").(int64)
	reqBody := EarnRequestBody{}
	if err := c.Bind(&reqBody); err != nil {
		c.Logger().Errorf("Failed to load earn request body user_id:%v error: %v", userID, err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	if err := c.Validate(&reqBody); err != nil {
		c.Logger().Errorf("Invalid earn request body user_id:%v error: %v", userID, err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	if err := controller.svc.AddEarn(c.Request().Context(), userID, reqBody.RewardIDs); err != nil {
		c.Logger().Errorf("Failed to credit rewards user_id:%v error: %v", userID, err)
		resp := responses.From(err)
		return c.JSON(resp.HttpStatusCode, resp)
	}

	balance, err := controller.svc.CurrentUserBalance(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &EarnResponseBody{Balance: balance})
}
