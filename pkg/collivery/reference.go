package collivery

import (
	"context"
	"fmt"
	"strings"
)

// Towns lists the towns of country (default ZAF), optionally within province.
func (c *Client) Towns(ctx context.Context, country, province string) (ReferenceSet, error) {
	return do(ctx, c, "Towns", func(ctx context.Context) (ReferenceSet, error) {
		return c.towns(ctx, country, province)
	})
}

// Suburbs lists the suburbs of townID; 0 lists every suburb.
func (c *Client) Suburbs(ctx context.Context, townID int) (ReferenceSet, error) {
	return do(ctx, c, "Suburbs", func(ctx context.Context) (ReferenceSet, error) {
		return c.suburbs(ctx, townID)
	})
}

// LocationTypes lists the location types.
func (c *Client) LocationTypes(ctx context.Context) (ReferenceSet, error) {
	return do(ctx, c, "LocationTypes", c.locationTypes)
}

// ParcelTypes lists the parcel types.
func (c *Client) ParcelTypes(ctx context.Context) (ReferenceSet, error) {
	return do(ctx, c, "ParcelTypes", c.parcelTypes)
}

// Services lists the delivery services.
func (c *Client) Services(ctx context.Context) (ReferenceSet, error) {
	return do(ctx, c, "Services", c.services)
}

func (c *Client) towns(ctx context.Context, country, province string) (ReferenceSet, error) {
	if country == "" {
		country = DefaultCountry
	}
	key := "towns." + strings.ToLower(country)
	if province != "" {
		key += "." + strings.ToLower(province)
	}
	return cached(ctx, c, "Towns", key, referenceTTL, func(ctx context.Context, token string) (ReferenceSet, error) {
		return c.apiClient.GetTowns(ctx, country, province, token)
	})
}

func (c *Client) suburbs(ctx context.Context, townID int) (ReferenceSet, error) {
	key := "suburbs.all"
	if townID != 0 {
		key = fmt.Sprintf("suburbs.%d", townID)
	}
	return cached(ctx, c, "Suburbs", key, referenceTTL, func(ctx context.Context, token string) (ReferenceSet, error) {
		return c.apiClient.GetSuburbs(ctx, townID, token)
	})
}

func (c *Client) locationTypes(ctx context.Context) (ReferenceSet, error) {
	return cached(ctx, c, "LocationTypes", "location_types", typesTTL, c.apiClient.GetLocationTypes)
}

func (c *Client) parcelTypes(ctx context.Context) (ReferenceSet, error) {
	return cached(ctx, c, "ParcelTypes", "parcel_types", typesTTL, c.apiClient.GetParcelTypes)
}

func (c *Client) services(ctx context.Context) (ReferenceSet, error) {
	return cached(ctx, c, "Services", "services", typesTTL, c.apiClient.GetServices)
}
