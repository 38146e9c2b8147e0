package graphql

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/tournevent/collivery/pkg/checkout"
	"github.com/tournevent/collivery/pkg/resolver"
)

// AddressInput is a shop address. Town, suburb and locationType accept an ID or
// a name.
type AddressInput struct {
	LocalID      string `json:"localId"`
	Company      string `json:"company"`
	Street       string `json:"street"`
	Building     string `json:"building"`
	Town         string `json:"town"`
	Suburb       string `json:"suburb"`
	LocationType string `json:"locationType"`
	Postcode     string `json:"postcode"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Phone        string `json:"phone"`
	Cellphone    string `json:"cellphone"`
	Email        string `json:"email"`
}

// LineItemInput is one cart line.
type LineItemInput struct {
	Quantity int     `json:"quantity"`
	Weight   float64 `json:"weight"`
	Length   float64 `json:"length"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
}

// QuoteInput is the input of the quote mutation.
type QuoteInput struct {
	Collection *AddressInput    `json:"collection"`
	Delivery   *AddressInput    `json:"delivery"`
	Items      []*LineItemInput `json:"items"`
	GeoZoneIDs []int            `json:"geoZoneIds"`
}

// WaybillInput is the input of the createWaybill and orderPlaced mutations.
type WaybillInput struct {
	Collection   *AddressInput    `json:"collection"`
	Delivery     *AddressInput    `json:"delivery"`
	Items        []*LineItemInput `json:"items"`
	ServiceID    int              `json:"serviceId"`
	Instructions string           `json:"instructions"`
	Reference    string           `json:"reference"`
}

func (in QuoteInput) toModel() checkout.QuoteInput {
	return checkout.QuoteInput{
		Collection: optionalAddress(in.Collection),
		Delivery:   addressInputToModel(in.Delivery),
		Items:      lineItemsInputToModel(in.Items),
		GeoZoneIDs: in.GeoZoneIDs,
	}
}

func (in WaybillInput) toModel() checkout.WaybillInput {
	return checkout.WaybillInput{
		Collection:   optionalAddress(in.Collection),
		Delivery:     addressInputToModel(in.Delivery),
		Items:        lineItemsInputToModel(in.Items),
		ServiceID:    in.ServiceID,
		Instructions: in.Instructions,
		Reference:    in.Reference,
	}
}

func optionalAddress(input *AddressInput) *resolver.DomainAddress {
	if input == nil {
		return nil
	}
	addr := addressInputToModel(input)
	return &addr
}

func addressInputToModel(input *AddressInput) resolver.DomainAddress {
	if input == nil {
		return resolver.DomainAddress{}
	}
	return resolver.DomainAddress{
		LocalID:      input.LocalID,
		Company:      input.Company,
		Street:       input.Street,
		Building:     input.Building,
		Town:         input.Town,
		Suburb:       input.Suburb,
		LocationType: input.LocationType,
		Postcode:     input.Postcode,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Phone:        input.Phone,
		Cellphone:    input.Cellphone,
		Email:        input.Email,
	}
}

func lineItemsInputToModel(inputs []*LineItemInput) []resolver.LineItem {
	items := make([]resolver.LineItem, 0, len(inputs))
	for _, input := range inputs {
		if input == nil {
			continue
		}
		items = append(items, resolver.LineItem{
			Quantity: input.Quantity,
			Weight:   input.Weight,
			Length:   input.Length,
			Width:    input.Width,
			Height:   input.Height,
		})
	}
	return items
}

// decodeArg decodes the named argument into dst through its JSON form.
func decodeArg(args map[string]any, name string, dst any) error {
	v, ok := args[name]
	if !ok || v == nil {
		return fmt.Errorf("missing required argument %q", name)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("argument %q: %w", name, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("argument %q: %w", name, err)
	}
	return nil
}

func intArg(args map[string]any, name string, required bool) (int, error) {
	v, ok := args[name]
	if !ok || v == nil {
		if required {
			return 0, fmt.Errorf("missing required argument %q", name)
		}
		return 0, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("argument %q: %v is not an integer", name, n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("argument %q: %w", name, err)
		}
		return int(i), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("argument %q: %w", name, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("argument %q: expected an integer, got %T", name, v)
	}
}

func stringArg(args map[string]any, name string, required bool) (string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("missing required argument %q", name)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q: expected a string, got %T", name, v)
	}
	return s, nil
}
