// Package checkout turns carrier prices and waybills into the shapes the shop
// platform consumes.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/tournevent/collivery/pkg/collivery"
	"github.com/tournevent/collivery/pkg/resolver"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const methodCode = "collivery"

var (
	// ErrNoQuote is returned when no enabled service could be priced.
	ErrNoQuote = errors.New("no shipping quote available")
	// ErrOutsideZone is returned when the delivery address is outside the
	// configured geo zone.
	ErrOutsideZone = errors.New("delivery address outside shipping zone")
	// ErrUnknownField is returned for custom fields not backed by reference data.
	ErrUnknownField = errors.New("unknown custom field")
)

// Carrier is the part of collivery.Client the checkout uses.
type Carrier interface {
	Towns(ctx context.Context, country, province string) (collivery.ReferenceSet, error)
	Suburbs(ctx context.Context, townID int) (collivery.ReferenceSet, error)
	LocationTypes(ctx context.Context) (collivery.ReferenceSet, error)
	Services(ctx context.Context) (collivery.ReferenceSet, error)
	DefaultAddress(ctx context.Context) (*collivery.DefaultAddress, error)
	Price(ctx context.Context, req collivery.ColliveryRequest) (*collivery.Price, error)
	Validate(ctx context.Context, req collivery.ColliveryRequest) (*collivery.ValidatedCollivery, error)
	AddCollivery(ctx context.Context, req collivery.ColliveryRequest) (int, error)
	AcceptCollivery(ctx context.Context, waybillID int) (bool, error)
	ColliveryStatus(ctx context.Context, waybillID int) (*collivery.Status, error)
}

// QuoteLine is the price of one service as shown at checkout.
type QuoteLine struct {
	Code       string  `json:"code"`
	Title      string  `json:"title"`
	Cost       float64 `json:"cost"`
	TaxClassID int     `json:"tax_class_id"`
	Text       string  `json:"text"`
}

// Method is the shipping method offered at checkout with one line per service.
type Method struct {
	Code      string            `json:"code"`
	Title     string            `json:"title"`
	Quote     map[int]QuoteLine `json:"quote"`
	SortOrder int               `json:"sort_order"`
	Error     string            `json:"error"`
}

// QuoteInput describes a cart. A nil Collection ships from the account's default
// address. GeoZoneIDs lists the shop zones containing the delivery address.
type QuoteInput struct {
	Collection *resolver.DomainAddress
	Delivery   resolver.DomainAddress
	Items      []resolver.LineItem
	GeoZoneIDs []int
}

// WaybillInput describes a placed order.
type WaybillInput struct {
	Collection   *resolver.DomainAddress
	Delivery     resolver.DomainAddress
	Items        []resolver.LineItem
	ServiceID    int
	Instructions string
	Reference    string
}

// Waybill is a submitted delivery.
type Waybill struct {
	WaybillID      int       `json:"waybill_id"`
	Accepted       bool      `json:"accepted"`
	Notice         string    `json:"notice,omitempty"`
	CollectionTime time.Time `json:"collection_time"`
	DeliveryTime   time.Time `json:"delivery_time"`
}

// CustomFieldValue is one option of a shop address custom field.
type CustomFieldValue struct {
	ID   int    `json:"custom_field_value_id"`
	Name string `json:"name"`
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for collection times.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service prices carts and books deliveries.
type Service struct {
	carrier  Carrier
	resolver *resolver.Resolver
	settings Settings
	logger   *otelzap.Logger
	now      func() time.Time
}

// New creates a checkout Service.
func New(carrier Carrier, res *resolver.Resolver, settings Settings, logger *otelzap.Logger, opts ...Option) *Service {
	s := &Service{
		carrier:  carrier,
		resolver: res,
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Quote prices the cart with every enabled service. Services that cannot be
// priced are left out; ErrNoQuote is returned when none can.
func (s *Service) Quote(ctx context.Context, in QuoteInput) (*Method, error) {
	if s.settings.GeoZoneID != 0 && !slices.Contains(in.GeoZoneIDs, s.settings.GeoZoneID) {
		return nil, ErrOutsideZone
	}

	services, err := s.carrier.Services(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoQuote, err)
	}
	from, err := s.collection(ctx, in.Collection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoQuote, err)
	}

	var (
		to                 resolver.Resolved
		toTown, toLocation int
	)
	if s.settings.AutoCreateAddress {
		to, err = s.resolver.ResolveAddress(ctx, in.Delivery)
	} else {
		toTown, toLocation, err = s.resolver.Locate(ctx, in.Delivery)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoQuote, err)
	}

	method := &Method{
		Code:      methodCode,
		Title:     s.settings.title(),
		Quote:     make(map[int]QuoteLine),
		SortOrder: 1,
	}

	var lastErr error
	for _, id := range services.IDs() {
		if !s.settings.enabled(id) {
			continue
		}
		req := resolver.BuildRequest(from, to, in.Items, id, s.settings.Insurance, s.settings.Rica, s.now())
		req.ToTownID = toTown
		req.ToLocationType = toLocation

		price, err := s.carrier.Price(ctx, req)
		if err != nil {
			lastErr = err
			s.logger.Ctx(ctx).Warn("Collivery service could not be priced", zap.Int("service", id), zap.Error(err))
			continue
		}

		cost := ApplyMarkup(price.IncVAT, s.settings.Markup[id], s.settings.Round)
		method.Quote[id] = QuoteLine{
			Code:       fmt.Sprintf("%s.%d", methodCode, id),
			Title:      s.serviceTitle(id, services),
			Cost:       cost,
			TaxClassID: s.settings.TaxClassID,
			Text:       fmt.Sprintf("R%.2f VAT inclusive", cost),
		}
	}

	if len(method.Quote) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoQuote, lastErr)
		}
		return nil, ErrNoQuote
	}
	return method, nil
}

func (s *Service) serviceTitle(id int, services collivery.ReferenceSet) string {
	if name := s.settings.DisplayNames[id]; name != "" {
		return name
	}
	return services[id]
}

// collection resolves the collection address, defaulting to the account's
// default address.
func (s *Service) collection(ctx context.Context, addr *resolver.DomainAddress) (resolver.Resolved, error) {
	if addr != nil {
		return s.resolver.ResolveAddress(ctx, *addr)
	}
	def, err := s.carrier.DefaultAddress(ctx)
	if err != nil {
		return resolver.Resolved{}, err
	}
	if len(def.Contacts) == 0 {
		return resolver.Resolved{}, fmt.Errorf("%w: address %d", resolver.ErrNoContact, def.AddressID)
	}
	return resolver.Resolved{AddressID: def.AddressID, ContactID: def.Contacts[0].ContactID}, nil
}

// CreateWaybill books the order with the carrier and accepts it when the shop is
// configured to. When acceptance fails the waybill is still returned with the error.
func (s *Service) CreateWaybill(ctx context.Context, in WaybillInput) (*Waybill, error) {
	from, err := s.collection(ctx, in.Collection)
	if err != nil {
		return nil, err
	}
	to, err := s.resolver.ResolveAddress(ctx, in.Delivery)
	if err != nil {
		return nil, err
	}

	req := resolver.BuildRequest(from, to, in.Items, in.ServiceID, s.settings.Insurance, s.settings.Rica, s.now())
	req.Instructions = in.Instructions
	req.CustomerReference = in.Reference

	validated, err := s.carrier.Validate(ctx, req)
	if err != nil {
		return nil, err
	}

	waybill := &Waybill{
		CollectionTime: validated.Request.CollectionTime,
		DeliveryTime:   validated.Request.DeliveryTime,
	}
	if validated.TimeChanged {
		waybill.Notice = s.reword(ctx, validated)
	}

	waybill.WaybillID, err = s.carrier.AddCollivery(ctx, validated.Request)
	if err != nil {
		return nil, err
	}
	s.logger.Ctx(ctx).Info("Collivery waybill created",
		zap.Int("waybill_id", waybill.WaybillID),
		zap.Int("service", validated.Request.ServiceID),
	)

	if s.settings.AutoAccept {
		waybill.Accepted, err = s.carrier.AcceptCollivery(ctx, waybill.WaybillID)
		if err != nil {
			return waybill, err
		}
	}
	return waybill, nil
}

// OrderPlaced creates the waybill for a new order when automatic waybill
// creation is enabled, and returns nil otherwise.
func (s *Service) OrderPlaced(ctx context.Context, in WaybillInput) (*Waybill, error) {
	if !s.settings.AutoCreateWaybill {
		return nil, nil
	}
	return s.CreateWaybill(ctx, in)
}

var (
	colliveryWord = regexp.MustCompile(`(?i)collivery`)
	timeChanged   = regexp.MustCompile(`(?i)The delivery time has been CHANGED to`)
)

// reword turns the carrier's time-change reason into customer-facing text.
func (s *Service) reword(ctx context.Context, v *collivery.ValidatedCollivery) string {
	reason := v.TimeChangedReason
	id := v.Request.ServiceID
	if wording := s.settings.Wording[id]; wording != "" {
		services, err := s.carrier.Services(ctx)
		if err == nil && services[id] != "" {
			reason = strings.ReplaceAll(reason, services[id], wording)
		}
	}
	reason = colliveryWord.ReplaceAllString(reason, "delivery")
	return timeChanged.ReplaceAllString(reason, "the approximate delivery day is")
}

// AcceptWaybill accepts a submitted waybill.
func (s *Service) AcceptWaybill(ctx context.Context, waybillID int) (bool, error) {
	return s.carrier.AcceptCollivery(ctx, waybillID)
}

// WaybillStatus returns the tracking status of a waybill.
func (s *Service) WaybillStatus(ctx context.Context, waybillID int) (*collivery.Status, error) {
	return s.carrier.ColliveryStatus(ctx, waybillID)
}

// DefaultAddress returns the account's default collection address.
func (s *Service) DefaultAddress(ctx context.Context) (*collivery.DefaultAddress, error) {
	return s.carrier.DefaultAddress(ctx)
}

// Services returns the enabled services with their display titles.
func (s *Service) Services(ctx context.Context) ([]CustomFieldValue, error) {
	services, err := s.carrier.Services(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]CustomFieldValue, 0, len(services))
	for _, id := range services.IDs() {
		if s.settings.enabled(id) {
			out = append(out, CustomFieldValue{ID: id, Name: s.serviceTitle(id, services)})
		}
	}
	return out, nil
}

// CustomFieldValues returns the options of the town, suburb or location_type
// address field, ordered by name.
func (s *Service) CustomFieldValues(ctx context.Context, field string) ([]CustomFieldValue, error) {
	var (
		set collivery.ReferenceSet
		err error
	)
	switch strings.ToLower(strings.Join(strings.Fields(field), "_")) {
	case "town":
		set, err = s.carrier.Towns(ctx, collivery.DefaultCountry, "")
	case "suburb":
		set, err = s.carrier.Suburbs(ctx, 0)
	case "location_type":
		set, err = s.carrier.LocationTypes(ctx)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	if err != nil {
		return nil, err
	}

	values := make([]CustomFieldValue, 0, len(set))
	for id, name := range set {
		values = append(values, CustomFieldValue{ID: id, Name: name})
	}
	sort.Slice(values, func(i, j int) bool {
		if values[i].Name != values[j].Name {
			return values[i].Name < values[j].Name
		}
		return values[i].ID < values[j].ID
	})
	return values, nil
}
