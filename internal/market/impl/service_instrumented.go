package impl

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/metric/instrument"

	"github.com/esdx-scion/esdx/internal/market"
	"github.com/esdx-scion/esdx/pkg/metrics"
)

// InstrumentedMarket decorates a Market with call and latency metrics.
type InstrumentedMarket struct {
	market           market.Market
	callCount        instrument.Int64Counter
	latencyHistogram instrument.Int64Histogram
}

var _ market.Market = (*InstrumentedMarket)(nil)

// NewInstrumentedMarket creates a new InstrumentedMarket.
func NewInstrumentedMarket(m market.Market) (market.Market, error) {
	meter := global.MeterProvider().Meter("esdx")
	callCount, err := meter.Int64Counter("esdx.market.call.count")
	if err != nil {
		return nil, fmt.Errorf("registering call counter: %s", err)
	}
	latencyHistogram, err := meter.Int64Histogram("esdx.market.call.latency")
	if err != nil {
		return nil, fmt.Errorf("registering latency histogram: %s", err)
	}
	return &InstrumentedMarket{m, callCount, latencyHistogram}, nil
}

// ListOffers implements market.Market.
func (i *InstrumentedMarket) ListOffers(ctx context.Context) ([]market.Offer, error) {
	start := time.Now()
	offers, err := i.market.ListOffers(ctx)
	i.record(ctx, "ListOffers", err, time.Since(start))
	return offers, err
}

// AddOffer implements market.Market.
func (i *InstrumentedMarket) AddOffer(ctx context.Context, specs market.OfferSpecification) (market.Offer, error) {
	start := time.Now()
	offer, err := i.market.AddOffer(ctx, specs)
	i.record(ctx, "AddOffer", err, time.Since(start))
	return offer, err
}

// Purchase implements market.Market.
func (i *InstrumentedMarket) Purchase(ctx context.Context, req market.PurchaseRequest) (market.Contract, error) {
	start := time.Now()
	contract, err := i.market.Purchase(ctx, req)
	i.record(ctx, "Purchase", err, time.Since(start))
	return contract, err
}

// GetContract implements market.Market.
func (i *InstrumentedMarket) GetContract(ctx context.Context, req market.GetContractRequest) (market.Contract, error) {
	start := time.Now()
	contract, err := i.market.GetContract(ctx, req)
	i.record(ctx, "GetContract", err, time.Since(start))
	return contract, err
}

func (i *InstrumentedMarket) record(ctx context.Context, method string, err error, latency time.Duration) {
	attributes := append([]attribute.KeyValue{
		{Key: "method", Value: attribute.StringValue(method)},
		{Key: "success", Value: attribute.BoolValue(err == nil)},
	}, metrics.BaseAttrs...)
	if err != nil {
		attributes = append(attributes,
			attribute.KeyValue{Key: "code", Value: attribute.StringValue(string(market.CodeOf(err)))})
	}
	i.callCount.Add(ctx, 1, attributes...)
	i.latencyHistogram.Record(ctx, latency.Milliseconds(), attributes...)
}
