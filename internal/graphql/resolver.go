package graphql

import (
	"context"
	"fmt"
	"sort"

	"github.com/tournevent/collivery/pkg/checkout"
	"github.com/tournevent/collivery/pkg/collivery"
	"github.com/tournevent/collivery/pkg/resolver"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
)

// ClientFactory builds a fresh carrier client. Clients are single-caller, so one
// is built for every request; the factory is expected to share the cache.
type ClientFactory func() *collivery.Client

// Resolver is the root resolver for the GraphQL operations.
// It holds dependencies needed by all resolvers.
type Resolver struct {
	NewClient ClientFactory
	Settings  checkout.Settings
	Logger    *otelzap.Logger
}

// NewResolver creates a new resolver with the given dependencies.
func NewResolver(newClient ClientFactory, settings checkout.Settings, logger *otelzap.Logger) *Resolver {
	return &Resolver{
		NewClient: newClient,
		Settings:  settings,
		Logger:    logger,
	}
}

// session is the per-request state shared by the fields of one operation.
type session struct {
	client  *collivery.Client
	service *checkout.Service
}

func (r *Resolver) session() *session {
	client := r.NewClient()
	return &session{
		client:  client,
		service: checkout.New(client, resolver.New(client, r.Logger), r.Settings, r.Logger),
	}
}

type fieldResolver func(ctx context.Context, s *session, args map[string]any) (any, error)

var queryFields = map[string]fieldResolver{
	"health":            resolveHealth,
	"services":          resolveServices,
	"towns":             resolveTowns,
	"suburbs":           resolveSuburbs,
	"locationTypes":     resolveLocationTypes,
	"parcelTypes":       resolveParcelTypes,
	"customFieldValues": resolveCustomFieldValues,
	"defaultAddress":    resolveDefaultAddress,
	"waybillStatus":     resolveWaybillStatus,
}

var mutationFields = map[string]fieldResolver{
	"quote":         resolveQuote,
	"createWaybill": resolveCreateWaybill,
	"orderPlaced":   resolveOrderPlaced,
	"acceptWaybill": resolveAcceptWaybill,
}

func resolveHealth(ctx context.Context, s *session, args map[string]any) (any, error) {
	return "ok", nil
}

func resolveServices(ctx context.Context, s *session, args map[string]any) (any, error) {
	services, err := s.service.Services(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ReferenceItem, len(services))
	for i, svc := range services {
		out[i] = ReferenceItem{ID: svc.ID, Name: svc.Name}
	}
	return out, nil
}

func resolveTowns(ctx context.Context, s *session, args map[string]any) (any, error) {
	country, err := stringArg(args, "country", false)
	if err != nil {
		return nil, err
	}
	if country == "" {
		country = collivery.DefaultCountry
	}
	province, err := stringArg(args, "province", false)
	if err != nil {
		return nil, err
	}
	towns, err := s.client.Towns(ctx, country, province)
	if err != nil {
		return nil, err
	}
	return referenceList(towns), nil
}

func resolveSuburbs(ctx context.Context, s *session, args map[string]any) (any, error) {
	townID, err := intArg(args, "townId", false)
	if err != nil {
		return nil, err
	}
	suburbs, err := s.client.Suburbs(ctx, townID)
	if err != nil {
		return nil, err
	}
	return referenceList(suburbs), nil
}

func resolveLocationTypes(ctx context.Context, s *session, args map[string]any) (any, error) {
	types, err := s.client.LocationTypes(ctx)
	if err != nil {
		return nil, err
	}
	return referenceList(types), nil
}

func resolveParcelTypes(ctx context.Context, s *session, args map[string]any) (any, error) {
	types, err := s.client.ParcelTypes(ctx)
	if err != nil {
		return nil, err
	}
	return referenceList(types), nil
}

func resolveCustomFieldValues(ctx context.Context, s *session, args map[string]any) (any, error) {
	field, err := stringArg(args, "field", true)
	if err != nil {
		return nil, err
	}
	return s.service.CustomFieldValues(ctx, field)
}

func resolveDefaultAddress(ctx context.Context, s *session, args map[string]any) (any, error) {
	return s.service.DefaultAddress(ctx)
}

func resolveWaybillStatus(ctx context.Context, s *session, args map[string]any) (any, error) {
	id, err := intArg(args, "waybillId", true)
	if err != nil {
		return nil, err
	}
	return s.service.WaybillStatus(ctx, id)
}

func resolveQuote(ctx context.Context, s *session, args map[string]any) (any, error) {
	var input QuoteInput
	if err := decodeArg(args, "input", &input); err != nil {
		return nil, err
	}
	method, err := s.service.Quote(ctx, input.toModel())
	if err != nil {
		return nil, err
	}
	return methodToGraphQL(method), nil
}

func resolveCreateWaybill(ctx context.Context, s *session, args map[string]any) (any, error) {
	var input WaybillInput
	if err := decodeArg(args, "input", &input); err != nil {
		return nil, err
	}
	waybill, err := s.service.CreateWaybill(ctx, input.toModel())
	if waybill == nil {
		return nil, err
	}
	return waybill, err
}

func resolveOrderPlaced(ctx context.Context, s *session, args map[string]any) (any, error) {
	var input WaybillInput
	if err := decodeArg(args, "input", &input); err != nil {
		return nil, err
	}
	waybill, err := s.service.OrderPlaced(ctx, input.toModel())
	if waybill == nil {
		return nil, err
	}
	return waybill, err
}

func resolveAcceptWaybill(ctx context.Context, s *session, args map[string]any) (any, error) {
	id, err := intArg(args, "waybillId", true)
	if err != nil {
		return nil, err
	}
	accepted, err := s.service.AcceptWaybill(ctx, id)
	if err != nil {
		return nil, err
	}
	return accepted, nil
}

// ReferenceItem is one entry of a reference list.
type ReferenceItem struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func referenceList(set collivery.ReferenceSet) []ReferenceItem {
	out := make([]ReferenceItem, 0, len(set))
	for _, id := range set.IDs() {
		out = append(out, ReferenceItem{ID: id, Name: set[id]})
	}
	return out
}

// Method is the checkout shipping method with its quote lines ordered by service.
type Method struct {
	Code      string          `json:"code"`
	Title     string          `json:"title"`
	Quote     []QuoteLineItem `json:"quote"`
	SortOrder int             `json:"sort_order"`
	Error     string          `json:"error,omitempty"`
}

// QuoteLineItem is a quote line tagged with its service.
type QuoteLineItem struct {
	ServiceID int `json:"service_id"`
	checkout.QuoteLine
}

func methodToGraphQL(m *checkout.Method) *Method {
	ids := make([]int, 0, len(m.Quote))
	for id := range m.Quote {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := &Method{Code: m.Code, Title: m.Title, SortOrder: m.SortOrder, Error: m.Error}
	for _, id := range ids {
		out.Quote = append(out.Quote, QuoteLineItem{ServiceID: id, QuoteLine: m.Quote[id]})
	}
	return out
}

func unknownField(typeName, name string) error {
	return fmt.Errorf("cannot query field %q on type %q", name, typeName)
}
