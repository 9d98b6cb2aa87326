package order

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/tixgo/tix-booking/internal/pkg/middleware"
	"github.com/tixgo/tix-booking/pkg/errors"
	publicMiddleware "github.com/tixgo/tix-booking/pkg/middleware"
	"github.com/tixgo/tix-booking/pkg/response"
	"github.com/tixgo/tix-booking/pkg/status"
)

type HTTPHandler struct {
	OrderUseCase OrderUseCase
}

func InitHTTPHandler(router *mux.Router, adminSession *middleware.AdminSession, orderUseCase OrderUseCase) {
	handler := &HTTPHandler{
		OrderUseCase: orderUseCase,
	}

	router.HandleFunc("/tix-booking/v1/adminapp/orders/process-expired", publicMiddleware.SetRouteChain(handler.ProcessExpired, adminSession.Verify)).Methods(http.MethodPost)
	router.HandleFunc("/tix-booking/v1/adminapp/orders/{orderId}/refund", publicMiddleware.SetRouteChain(handler.Refund, adminSession.Verify)).Methods(http.MethodPost)
}

func (handler HTTPHandler) ProcessExpired(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp, err := handler.OrderUseCase.ProcessExpired(ctx)
	if err != nil {
		ae := errors.Destruct(err)
		response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
			Status:  ae.Status,
			Message: ae.Message,
		})

		return
	}

	response.JSON(w, http.StatusOK, response.RESTEnvelope{
		Status:  status.OK,
		Message: "expired orders have been processed",
		Data:    resp,
	})
}

func (handler HTTPHandler) Refund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID := mux.Vars(r)["orderId"]

	if err := handler.OrderUseCase.Refund(ctx, orderID); err != nil {
		ae := errors.Destruct(err)
		response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
			Status:  ae.Status,
			Message: ae.Message,
		})

		return
	}

	response.JSON(w, http.StatusOK, response.RESTEnvelope{
		Status:  status.OK,
		Message: "order has been refunded",
	})
}
