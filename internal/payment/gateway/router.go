package gateway

import (
	"github.com/smallbiznis/paycore/internal/config"
	"github.com/smallbiznis/paycore/internal/payment/domain"
)

// Router picks gateways from the currency preference table.
type Router struct {
	routing *config.RoutingConfigHolder
}

func NewRouter(routing *config.RoutingConfigHolder) *Router {
	if routing == nil {
		routing = config.NewStaticRoutingHolder(config.DefaultRoutingConfig())
	}
	return &Router{routing: routing}
}

// Best returns the preferred gateway for currency. The method does not
// influence the pick; unlisted currencies fall back to the table default.
func (r *Router) Best(currency string, _ domain.PaymentMethod) domain.GatewayName {
	name := domain.ParseGatewayName(r.routing.Get().GatewayFor(currency))
	if name == "" {
		return domain.GatewayStripe
	}
	return name
}

// Supporting lists every implemented gateway whose adapter accepts the pair.
func (r *Router) Supporting(currency string, method domain.PaymentMethod) []domain.GatewayName {
	var out []domain.GatewayName
	for _, name := range Implemented() {
		gw, err := New(name)
		if err != nil {
			continue
		}
		if gw.IsSupported(currency, method) {
			out = append(out, name)
		}
	}
	return out
}
