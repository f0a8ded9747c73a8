package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/satstash/satstash/lib/responses"
	"github.com/satstash/satstash/lib/service"
)

// AuthController : AuthController struct
type AuthController struct {
	svc *service.SatstashService
}

func NewAuthController(svc *service.SatstashService) *AuthController {
	return &AuthController{svc: svc}
}

type AuthRequestBody struct {
	Login        string `json:"login"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
}

type AuthResponseBody struct {
	RefreshToken string `json:"refresh_token"`
	AccessToken  string `json:"access_token"`
}

// Auth : Authenticate Controller
func (controller *AuthController) Auth(c echo.Context) error {
	var body AuthRequestBody
	if err := c.Bind(&body); err != nil {
		c.Logger().Errorf("Failed to load auth request body: %v", err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	accessToken, refreshToken, err := controller.svc.GenerateToken(c.Request().Context(), body.Login, body.Password, body.RefreshToken)
	if err != nil {
		c.Logger().Errorf("Authentication failed: %v", err)
		return c.JSON(http.StatusUnauthorized, responses.BadAuthError)
	}

	return c.JSON(http.StatusOK, &AuthResponseBody{
		RefreshToken: refreshToken,
		AccessToken:  accessToken,
	})
}
