// Package resolver maps shop addresses and orders onto Collivery address-book
// entries and delivery requests.
package resolver

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tournevent/collivery/pkg/collivery"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

var (
	// ErrNoContact is returned when a matched address has no contacts.
	ErrNoContact = errors.New("address has no contacts")
	// ErrUnknownReference is returned when a town, suburb or location type name
	// is not in the carrier's reference data.
	ErrUnknownReference = errors.New("unknown reference name")
)

const hashLength = 15

// Carrier is the part of collivery.Client the resolver uses.
type Carrier interface {
	Towns(ctx context.Context, country, province string) (collivery.ReferenceSet, error)
	Suburbs(ctx context.Context, townID int) (collivery.ReferenceSet, error)
	LocationTypes(ctx context.Context) (collivery.ReferenceSet, error)
	Addresses(ctx context.Context, filter collivery.AddressFilter) ([]collivery.Address, error)
	AddAddress(ctx context.Context, req collivery.AddressRequest) (*collivery.AddressResult, error)
	Contacts(ctx context.Context, addressID int) ([]collivery.Contact, error)
}

// DomainAddress is an address as the shop stores it. Town, Suburb and
// LocationType hold either a carrier ID or a display name.
type DomainAddress struct {
	LocalID      string
	Company      string
	Street       string
	Building     string
	Town         string
	Suburb       string
	LocationType string
	Postcode     string
	FirstName    string
	LastName     string
	Phone        string
	Cellphone    string
	Email        string
}

// Resolved identifies a carrier address and the contact to use with it.
type Resolved struct {
	AddressID int `json:"address_id"`
	ContactID int `json:"contact_id"`
}

// Resolver resolves shop addresses against the carrier address book.
type Resolver struct {
	carrier Carrier
	logger  *otelzap.Logger
}

// New creates a Resolver.
func New(carrier Carrier, logger *otelzap.Logger) *Resolver {
	return &Resolver{carrier: carrier, logger: logger}
}

// CustomID returns the carrier custom_id for addr: a short hash of its content
// followed by the shop's address ID.
func CustomID(addr DomainAddress) string {
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	content := norm(addr.Street) + norm(addr.Town) + norm(addr.Suburb) + norm(addr.Postcode) +
		norm(addr.FirstName) + " " + norm(addr.LastName)
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])[:hashLength] + " | " + strings.TrimSpace(addr.LocalID)
}

// ResolveAddress returns the carrier address matching addr, creating it when no
// exact match exists. Resolving the same address twice creates it once.
func (r *Resolver) ResolveAddress(ctx context.Context, addr DomainAddress) (Resolved, error) {
	req, err := r.addressRequest(ctx, addr)
	if err != nil {
		return Resolved{}, err
	}

	candidates, err := r.carrier.Addresses(ctx, collivery.AddressFilter{CustomID: req.CustomID})
	if err != nil {
		return Resolved{}, err
	}
	for _, candidate := range candidates {
		if !matches(candidate, req) {
			continue
		}
		contactID := candidate.ContactID
		if contactID == 0 {
			contactID, err = r.firstContact(ctx, candidate.AddressID)
			if err != nil {
				return Resolved{}, err
			}
		}
		r.logger.Ctx(ctx).Debug("Reusing Collivery address",
			zap.Int("address_id", candidate.AddressID),
			zap.String("custom_id", req.CustomID),
		)
		return Resolved{AddressID: candidate.AddressID, ContactID: contactID}, nil
	}

	res, err := r.carrier.AddAddress(ctx, req)
	if err != nil {
		return Resolved{}, err
	}
	r.logger.Ctx(ctx).Info("Created Collivery address",
		zap.Int("address_id", res.AddressID),
		zap.Int("contact_id", res.ContactID),
		zap.String("custom_id", req.CustomID),
	)
	return Resolved{AddressID: res.AddressID, ContactID: res.ContactID}, nil
}

// Locate resolves the town and location type of addr without touching the
// address book, for town-to-town pricing.
func (r *Resolver) Locate(ctx context.Context, addr DomainAddress) (townID, locationType int, err error) {
	if townID, err = r.townID(ctx, addr.Town); err != nil {
		return 0, 0, err
	}
	if locationType, err = r.locationType(ctx, addr.LocationType); err != nil {
		return 0, 0, err
	}
	return townID, locationType, nil
}

func (r *Resolver) firstContact(ctx context.Context, addressID int) (int, error) {
	contacts, err := r.carrier.Contacts(ctx, addressID)
	if err != nil {
		return 0, err
	}
	if len(contacts) == 0 {
		return 0, fmt.Errorf("%w: address %d", ErrNoContact, addressID)
	}
	return contacts[0].ContactID, nil
}

func matches(a collivery.Address, req collivery.AddressRequest) bool {
	return strings.TrimSpace(a.CompanyName) == req.CompanyName &&
		strings.TrimSpace(a.Street) == req.Street &&
		a.LocationType == req.LocationType &&
		a.SuburbID == req.SuburbID &&
		a.TownID == req.TownID &&
		a.CustomID == req.CustomID
}

func (r *Resolver) addressRequest(ctx context.Context, addr DomainAddress) (collivery.AddressRequest, error) {
	townID, err := r.townID(ctx, addr.Town)
	if err != nil {
		return collivery.AddressRequest{}, err
	}
	suburbID, err := r.suburbID(ctx, townID, addr.Suburb)
	if err != nil {
		return collivery.AddressRequest{}, err
	}
	locationType, err := r.locationType(ctx, addr.LocationType)
	if err != nil {
		return collivery.AddressRequest{}, err
	}

	return collivery.AddressRequest{
		CompanyName:  strings.TrimSpace(addr.Company),
		Building:     strings.TrimSpace(addr.Building),
		Street:       strings.TrimSpace(addr.Street),
		LocationType: locationType,
		SuburbID:     suburbID,
		TownID:       townID,
		ZipCode:      strings.TrimSpace(addr.Postcode),
		CustomID:     CustomID(addr),
		FullName:     strings.TrimSpace(strings.TrimSpace(addr.FirstName) + " " + strings.TrimSpace(addr.LastName)),
		Phone:        strings.TrimSpace(addr.Phone),
		Cellphone:    digits(addr.Cellphone),
		Email:        strings.TrimSpace(addr.Email),
	}, nil
}

func (r *Resolver) townID(ctx context.Context, town string) (int, error) {
	return resolveName(town, "town", func() (collivery.ReferenceSet, error) {
		return r.carrier.Towns(ctx, collivery.DefaultCountry, "")
	})
}

func (r *Resolver) suburbID(ctx context.Context, townID int, suburb string) (int, error) {
	return resolveName(suburb, "suburb", func() (collivery.ReferenceSet, error) {
		if townID == 0 {
			return collivery.ReferenceSet{}, nil
		}
		return r.carrier.Suburbs(ctx, townID)
	})
}

func (r *Resolver) locationType(ctx context.Context, name string) (int, error) {
	return resolveName(name, "location type", func() (collivery.ReferenceSet, error) {
		return r.carrier.LocationTypes(ctx)
	})
}

// resolveName returns value as an ID when it is numeric, otherwise looks it up by
// name. Empty values resolve to 0 and are left to the carrier's validation.
func resolveName(value, what string, load func() (collivery.ReferenceSet, error)) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	if id, err := strconv.Atoi(value); err == nil {
		return id, nil
	}
	set, err := load()
	if err != nil {
		return 0, err
	}
	id, ok := set.Lookup(value)
	if !ok {
		return 0, fmt.Errorf("%w: %s %q", ErrUnknownReference, what, value)
	}
	return id, nil
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
