package payment

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	publicMiddleware "github.com/tixgo/tix-booking/pkg/middleware"
)

type HTTPHandler struct {
	Logger         *logrus.Logger
	Registry       *Registry
	PaymentUseCase PaymentUseCase
}

func InitHTTPHandler(router *mux.Router, logger *logrus.Logger, registry *Registry, paymentUseCase PaymentUseCase) {
	handler := &HTTPHandler{
		Logger:         logger,
		Registry:       registry,
		PaymentUseCase: paymentUseCase,
	}

	router.HandleFunc("/tix-booking/v1/payments/vnpay/return", publicMiddleware.SetRouteChain(handler.Callback("vnpay"))).Methods(http.MethodGet)
	router.HandleFunc("/tix-booking/v1/payments/vnpay/ipn", publicMiddleware.SetRouteChain(handler.Callback("vnpay"))).Methods(http.MethodGet)
	router.HandleFunc("/tix-booking/v1/payments/stripe/webhook", publicMiddleware.SetRouteChain(handler.Callback("stripe"))).Methods(http.MethodPost)
	router.HandleFunc("/tix-booking/v1/payments/momo/ipn", publicMiddleware.SetRouteChain(handler.Callback("momo"))).Methods(http.MethodPost)
}

// Callback builds the handler for one provider's asynchronous deliveries.
// The provider parses and authenticates its own wire format and also writes
// its own acknowledgment, so duplicates and rejections are answered the way
// that provider expects.
func (handler HTTPHandler) Callback(providerName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		provider, err := handler.Registry.Get(providerName)
		if err != nil {
			handler.Logger.WithContext(ctx).WithError(err).Error()
			w.WriteHeader(http.StatusNotFound)
			return
		}

		n, err := provider.ParseCallback(r)
		if err != nil {
			provider.Ack(w, err)
			return
		}

		if n.Outcome == "" {
			provider.Ack(w, nil)
			return
		}

		err = handler.PaymentUseCase.OnProviderCallback(ctx, providerName, n)
		if err != nil {
			handler.Logger.WithContext(ctx).WithError(err).Error()
		}

		provider.Ack(w, err)
	}
}
