package ticket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/tixgo/tix-booking/internal/pkg/middleware"
	"github.com/tixgo/tix-booking/pkg/errors"
	publicMiddleware "github.com/tixgo/tix-booking/pkg/middleware"
	"github.com/tixgo/tix-booking/pkg/response"
	"github.com/tixgo/tix-booking/pkg/status"
)

type HTTPHandler struct {
	Validate      *validator.Validate
	TicketUseCase TicketUseCase
}

func InitHTTPHandler(router *mux.Router, adminSession *middleware.AdminSession, validate *validator.Validate, ticketUseCase TicketUseCase) {
	handler := &HTTPHandler{
		Validate:      validate,
		TicketUseCase: ticketUseCase,
	}

	router.HandleFunc("/tix-booking/v1/adminapp/tickets/{ticketId}/check-in", publicMiddleware.SetRouteChain(handler.CheckIn, adminSession.Verify)).Methods(http.MethodPost)
}

func (handler HTTPHandler) validate(ctx context.Context, payload interface{}) error {
	err := handler.Validate.StructCtx(ctx, payload)
	if err == nil {
		return nil
	}

	errorFields := err.(validator.ValidationErrors)

	errMessages := make([]string, len(errorFields))

	for k, errorField := range errorFields {
		errMessages[k] = fmt.Sprintf("invalid '%s' with value '%v'", errorField.Field(), errorField.Value())
	}

	return fmt.Errorf("%s", strings.Join(errMessages, ", "))
}

func (handler HTTPHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ticketID := mux.Vars(r)["ticketId"]

	req := CheckInRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.JSON(w, http.StatusUnprocessableEntity, response.RESTEnvelope{
			Status:  status.UNPROCESSABLE_ENTITY,
			Message: err.Error(),
		})

		return
	}

	if err := handler.validate(ctx, req); err != nil {
		response.JSON(w, http.StatusBadRequest, response.RESTEnvelope{
			Status:  status.BAD_REQUEST,
			Message: err.Error(),
		})

		return
	}

	resp, err := handler.TicketUseCase.CheckIn(ctx, ticketID, req)
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
		Message: "ticket has been checked in",
		Data:    resp,
	})
}
