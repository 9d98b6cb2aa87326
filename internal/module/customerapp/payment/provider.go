package payment

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tixgo/tix-booking/pkg/errors"
	"github.com/tixgo/tix-booking/pkg/status"
)

// Provider adapts one external payment gateway. ParseCallback must verify
// authenticity before returning a Notification; a Notification with an empty
// Outcome means the delivery is not relevant and should be acknowledged
// without processing. Ack writes the provider-specific acknowledgment for
// the given processing result, including for duplicates, so the provider
// stops retrying.
type Provider interface {
	Name() string
	CreateSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	ParseCallback(r *http.Request) (Notification, error)
	Ack(w http.ResponseWriter, processErr error)
}

type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}

	return &Registry{providers: m}
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, errors.New(http.StatusBadRequest, status.BAD_REQUEST, fmt.Sprintf("payment provider '%s' is not supported", name))
	}

	return p, nil
}
