package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/satstash/satstash/lib/service"
)

// BalanceController : BalanceController struct
type BalanceController struct {
	svc *service.SatstashService
}

func NewBalanceController(svc *service.SatstashService) *BalanceController {
	return &BalanceController{svc: svc}
}

type BalanceResponse struct {
	BTC struct {
		AvailableBalance int64
	}
}

// Balance : Balance Controller
func (controller *BalanceController) Balance(c echo.Context) error {
	userId := c.Get("UserID").(int64)
	balance, err := controller.svc.CurrentUserBalance(c.Request().Context(), userId)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &BalanceResponse{
		BTC: struct{ AvailableBalance int64 }{
			AvailableBalance: balance,
		},
	})
}
