package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/satstash/satstash/lib/service"
)

// GetTXSController : GetTXSController struct
type GetTXSController struct {
	svc *service.SatstashService
}

func NewGetTXSController(svc *service.SatstashService) *GetTXSController {
	return &GetTXSController{svc: svc}
}

// GetTXS : Get transactions Controller
func (controller *GetTXSController) GetTXS(c echo.Context) error {
	userId := c.Get("UserID").(int64)
	transactions, err := controller.svc.TransactionsFor(c.Request().Context(), userId)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &transactions)
}
