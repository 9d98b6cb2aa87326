package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/tixgo/tix-booking/config"
	adminapp_order "github.com/tixgo/tix-booking/internal/module/adminapp/order"
	adminapp_ticket "github.com/tixgo/tix-booking/internal/module/adminapp/ticket"
	customerapp_event "github.com/tixgo/tix-booking/internal/module/customerapp/event"
	customerapp_order "github.com/tixgo/tix-booking/internal/module/customerapp/order"
	customerapp_payment "github.com/tixgo/tix-booking/internal/module/customerapp/payment"
	"github.com/tixgo/tix-booking/internal/module/customerapp/payment/momo"
	"github.com/tixgo/tix-booking/internal/module/customerapp/payment/stripe"
	"github.com/tixgo/tix-booking/internal/module/customerapp/payment/vnpay"
	customerapp_ticket "github.com/tixgo/tix-booking/internal/module/customerapp/ticket"
	"github.com/tixgo/tix-booking/internal/pkg/jwt"
	internalMiddleware "github.com/tixgo/tix-booking/internal/pkg/middleware"
	"github.com/tixgo/tix-booking/internal/pkg/session"
	"github.com/tixgo/tix-booking/pkg/applogger"
	"github.com/tixgo/tix-booking/pkg/gctasks"
	"github.com/tixgo/tix-booking/pkg/kafka"
	"github.com/tixgo/tix-booking/pkg/middleware"
	"github.com/tixgo/tix-booking/pkg/monitoring"
	"github.com/tixgo/tix-booking/pkg/postgresql"
	"github.com/tixgo/tix-booking/pkg/pubsub"
	"github.com/tixgo/tix-booking/pkg/redis"
	"github.com/tixgo/tix-booking/pkg/server"
	"github.com/tixgo/tix-booking/pkg/validator"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

var c *config.Config

func init() {
	c = config.Get()
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := applogger.GetLogrus()

	mon := monitoring.NewOpenTelemetry(
		c.Application.Name,
		c.Application.Environment,
		c.Monitoring.OTLPEndpoint,
	)

	mon.Start(ctx)

	validate := validator.Get()

	hc := http.DefaultClient

	jsonWebToken, err := jwt.NewJSONWebToken(c.JWT.PrivateKey, c.JWT.PublicKey)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Fatal()
	}

	psqldb := postgresql.GetDatabase()
	if err := psqldb.Ping(); err != nil {
		logger.WithContext(ctx).WithError(err).Error()
	}

	publisher := pubsub.PublisherFromConfluentKafkaProducer(logger, kafka.NewProducer())

	rc := redis.GetClient()
	if err := rc.Ping(context.Background()).Err(); err != nil {
		logger.WithContext(ctx).WithError(err).Error()
	}

	cloudTask := gctasks.NewGCTasks(logger, c.GCP.ProjectID, c.GCP.Location, c.GCP.ServiceAccount)

	sessionStore := session.NewRedisSessionStore(logger, rc)

	customerSessionMiddleware := internalMiddleware.NewCustomerSessionMiddleware(jsonWebToken, sessionStore)
	adminSessionMiddleware := internalMiddleware.NewAdminSessionMiddleware(jsonWebToken, sessionStore)

	router := mux.NewRouter()
	router.Use(
		otelmux.Middleware(c.Application.Name),
		middleware.HTTPResponseTraceInjection,
		middleware.NewHTTPRequestLogger(logger, c.Application.Debug, http.StatusInternalServerError).Middleware,
	)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	// customer's app
	eventRepo := customerapp_event.NewEventRepository(logger, psqldb)
	ticketStockRepo := customerapp_ticket.NewTicketStockRepository(logger, psqldb)
	ticketRepo := customerapp_ticket.NewTicketRepository(logger, psqldb)
	orderRepo := customerapp_order.NewOrderRepository(logger, psqldb)
	orderItemRepo := customerapp_order.NewItemRepository(logger, psqldb)
	paymentRepo := customerapp_payment.NewPaymentRepository(logger, psqldb)

	providerRegistry := customerapp_payment.NewRegistry(
		vnpay.NewProvider(vnpay.ProviderProperty{
			Logger:     logger,
			BaseURL:    c.VNPay.BaseURL,
			TMNCode:    c.VNPay.TMNCode,
			HashSecret: c.VNPay.HashSecret,
			ReturnURL:  c.VNPay.ReturnURL,
		}),
		stripe.NewProvider(stripe.ProviderProperty{
			Logger:           logger,
			SecretKey:        c.Stripe.SecretKey,
			WebhookSecret:    c.Stripe.WebhookSecret,
			SignatureMaxSkew: c.Stripe.SignatureMaxSkew,
			SuccessURL:       c.Stripe.SuccessURL,
			CancelURL:        c.Stripe.CancelURL,
			HTTPClient:       hc,
		}),
		momo.NewProvider(momo.ProviderProperty{
			Logger:      logger,
			BaseURL:     c.MoMo.BaseURL,
			PartnerCode: c.MoMo.PartnerCode,
			AccessKey:   c.MoMo.AccessKey,
			SecretKey:   c.MoMo.SecretKey,
			RedirectURL: c.MoMo.RedirectURL,
			IPNURL:      c.MoMo.IPNURL,
			HTTPClient:  hc,
		}),
	)

	paymentUseCase := customerapp_payment.NewPaymentUseCase(customerapp_payment.PaymentUseCaseProperty{
		Logger:                logger,
		Timeout:               c.Application.Timeout,
		Registry:              providerRegistry,
		PaymentRepository:     paymentRepo,
		OrderRepository:       orderRepo,
		ItemRepository:        orderItemRepo,
		TicketRepository:      ticketRepo,
		TicketStockRepository: ticketStockRepo,
		Publisher:             publisher,
	})

	orderUseCase := customerapp_order.NewOrderUseCase(customerapp_order.OrderUseCaseProperty{
		Logger:                logger,
		Timeout:               c.Application.Timeout,
		BaseURL:               c.Application.BaseURL,
		HoldDuration:          c.Order.HoldDuration,
		EventRepository:       eventRepo,
		TicketStockRepository: ticketStockRepo,
		TicketRepository:      ticketRepo,
		OrderRepository:       orderRepo,
		ItemRepository:        orderItemRepo,
		Publisher:             publisher,
		PaymentInitiator:      paymentUseCase,
		CloudTask:             cloudTask,
		JSONWebToken:          jsonWebToken,
	})

	sweeper := customerapp_order.NewSweeper(customerapp_order.SweeperProperty{
		Logger:          logger,
		Interval:        c.Order.SweepInterval,
		BatchSize:       c.Order.SweepBatchSize,
		OrderRepository: orderRepo,
		OrderUseCase:    orderUseCase,
	})

	go sweeper.Run(ctx)

	customerapp_order.InitHTTPHandler(router, customerSessionMiddleware, validate, orderUseCase)
	customerapp_payment.InitHTTPHandler(router, logger, providerRegistry, paymentUseCase)

	// admin's app
	adminOrderUseCase := adminapp_order.NewOrderUseCase(adminapp_order.OrderUseCaseProperty{
		Logger:         logger,
		Timeout:        c.Application.Timeout,
		Sweeper:        sweeper,
		PaymentUseCase: paymentUseCase,
	})
	adminTicketUseCase := adminapp_ticket.NewTicketUseCase(adminapp_ticket.TicketUseCaseProperty{
		Logger:           logger,
		Timeout:          c.Application.Timeout,
		TicketRepository: ticketRepo,
		JSONWebToken:     jsonWebToken,
	})

	adminapp_order.InitHTTPHandler(router, adminSessionMiddleware, adminOrderUseCase)
	adminapp_ticket.InitHTTPHandler(router, adminSessionMiddleware, validate, adminTicketUseCase)

	handler := middleware.SetChain(
		router,
		cors.New(cors.Options{
			AllowedOrigins:   c.CORS.AllowedOrigins,
			AllowedMethods:   c.CORS.AllowedMethods,
			AllowedHeaders:   c.CORS.AllowedHeaders,
			ExposedHeaders:   c.CORS.ExposedHeaders,
			MaxAge:           c.CORS.MaxAge,
			AllowCredentials: c.CORS.AllowCredentials,
		}).Handler,
	)

	srv := &server.Server{
		Server: http.Server{
			Addr:    fmt.Sprintf(":%d", c.Application.Port),
			Handler: handler,
		},
		Logger: logger,
	}

	go func() {
		srv.ListenAndServe()
	}()

	sigterm := make(chan os.Signal, 1)
	signal.Notify(sigterm, syscall.SIGINT, syscall.SIGTERM)
	<-sigterm

	srv.Shutdown(ctx)
	cloudTask.Close()
	publisher.Close()
	psqldb.Close()
	rc.Close()
	mon.Stop(ctx)
}
