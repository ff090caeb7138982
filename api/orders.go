package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/trigger-plugin/internal/types"
	"github.com/vultisig/trigger-plugin/plugin"
	"github.com/vultisig/trigger-plugin/service"
	"github.com/vultisig/trigger-plugin/storage"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func NewErrorResponse(message string) ErrorResponse {
	return ErrorResponse{Error: message}
}

type listOrdersQuery struct {
	Wallet string `query:"wallet" validate:"required,eth_addr"`
	Sort   string `query:"sort"`
	Take   int    `query:"take" validate:"omitempty,min=1,max=100"`
	Skip   int    `query:"skip" validate:"omitempty,min=0"`
}

type pageQuery struct {
	Take int `query:"take" validate:"omitempty,min=1,max=100"`
	Skip int `query:"skip" validate:"omitempty,min=0"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrOrderNotActive):
		return http.StatusConflict
	}
	switch types.ErrorKindOf(err) {
	case types.KindValidation:
		return http.StatusBadRequest
	case types.KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case types.KindConditionNotMet:
		return http.StatusConflict
	case types.KindExpired, types.KindCompleted:
		return http.StatusGone
	case types.KindPolicyDenied:
		return http.StatusTooManyRequests
	case types.KindQuoteProvider, types.KindSubmission:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) errorJSON(c echo.Context, err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", c.Path()).Error("request failed")
		return c.JSON(status, NewErrorResponse("internal server error"))
	}
	resp := NewErrorResponse(err.Error())
	if kind := types.ErrorKindOf(err); kind != types.KindInternal {
		resp.Kind = string(kind)
	}
	return c.JSON(status, resp)
}

func (s *Server) bindRequest(c echo.Context) (types.OrderRequest, error) {
	var req types.OrderRequest
	if err := c.Bind(&req); err != nil {
		return req, types.NewValidationError("failed to parse request: %v", err)
	}
	return req, nil
}

func (s *Server) ValidateOrder(c echo.Context) error {
	var spec types.OrderSpec
	if err := c.Bind(&spec); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("failed to parse request"))
	}
	return c.JSON(http.StatusOK, plugin.Check(spec, s.now()))
}

func (s *Server) PrecheckOrder(c echo.Context) error {
	req, err := s.bindRequest(c)
	if err != nil {
		return s.errorJSON(c, err)
	}
	res, err := s.engine.Precheck(c.Request().Context(), req)
	if err != nil {
		return s.errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) ExecuteOrder(c echo.Context) error {
	req, err := s.bindRequest(c)
	if err != nil {
		return s.errorJSON(c, err)
	}
	res, err := s.engine.Execute(c.Request().Context(), req)
	if err != nil {
		return s.errorJSON(c, err)
	}
	s.logger.WithFields(logrus.Fields{
		"order_type": res.OrderType,
		"tx_hash":    res.TxHash,
	}).Info("order executed")
	return c.JSON(http.StatusOK, res)
}

func (s *Server) CreateOrder(c echo.Context) error {
	var spec types.OrderSpec
	if err := c.Bind(&spec); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("failed to parse request"))
	}
	order, err := s.orders.CreateOrder(c.Request().Context(), spec)
	if err != nil {
		return s.errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, order)
}

func (s *Server) ListOrders(c echo.Context) error {
	var q listOrdersQuery
	if err := c.Bind(&q); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("invalid query parameters"))
	}
	if err := c.Validate(&q); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("a valid wallet address is required"))
	}
	orders, err := s.orders.GetOrdersByWallet(c.Request().Context(), q.Wallet, q.Sort, q.Take, q.Skip)
	if err != nil {
		return s.errorJSON(c, err)
	}
	if orders == nil {
		orders = []types.OrderRecord{}
	}
	return c.JSON(http.StatusOK, orders)
}

func (s *Server) GetOrder(c echo.Context) error {
	order, err := s.orders.GetOrder(c.Request().Context(), c.Param("orderId"))
	if err != nil {
		return s.errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

func (s *Server) CancelOrder(c echo.Context) error {
	order, err := s.orders.CancelOrder(c.Request().Context(), c.Param("orderId"))
	if err != nil {
		return s.errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

func (s *Server) GetOrderExecutions(c echo.Context) error {
	var q pageQuery
	if err := c.Bind(&q); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("invalid query parameters"))
	}
	if err := c.Validate(&q); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("take must be between 1 and 100"))
	}
	executions, err := s.orders.GetOrderExecutions(c.Request().Context(), c.Param("orderId"), q.Take, q.Skip)
	if err != nil {
		return s.errorJSON(c, err)
	}
	if executions == nil {
		executions = []types.ExecutionRecord{}
	}
	return c.JSON(http.StatusOK, executions)
}
