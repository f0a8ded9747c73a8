package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/satstash/satstash/lib/responses"
	"github.com/satstash/satstash/lib/service"
)

// CreateUserController : Create user controller struct
type CreateUserController struct {
	svc *service.SatstashService
}

func NewCreateUserController(svc *service.SatstashService) *CreateUserController {
	return &CreateUserController{svc: svc}
}

type CreateUserRequestBody struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type CreateUserResponseBody struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// CreateUser : Create user Controller
func (controller *CreateUserController) CreateUser(c echo.Context) error {
	var body CreateUserRequestBody
	if err := c.Bind(&body); err != nil {
		c.Logger().Errorf("Failed to load create user request body: %v", err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	user, err := controller.svc.CreateUser(c.Request().Context(), body.Login, body.Password)
	if err != nil {
		c.Logger().Errorf("Failed to create user: %v", err)
		return c.JSON(http.StatusInternalServerError, responses.GeneralServerError)
	}

	var ResponseBody CreateUserResponseBody
	ResponseBody.Login = user.Login
	ResponseBody.Password = user.Password

	return c.JSON(http.StatusOK, &ResponseBody)
}
