package collivery

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

func (c *Client) clientID() int {
	if c.session == nil {
		return 0
	}
	return c.session.ClientID
}

func (c *Client) addressKey(addressID int) string {
	return fmt.Sprintf("address.%d.%d", c.clientID(), addressID)
}

func (c *Client) contactsKey(addressID int) string {
	return fmt.Sprintf("contacts.%d.%d", c.clientID(), addressID)
}

func (c *Client) addressesKey() string {
	return fmt.Sprintf("addresses.%d", c.clientID())
}

// Address fetches one of the account's addresses.
func (c *Client) Address(ctx context.Context, addressID int) (*Address, error) {
	return do(ctx, c, "Address", func(ctx context.Context) (*Address, error) {
		if addressID == 0 {
			c.ledger.Add(KindMissingData, "address_id", "address_id not set.")
			return nil, errRejected
		}
		return c.address(ctx, addressID)
	})
}

// Addresses lists the account's addresses. Only the unfiltered listing is cached.
func (c *Client) Addresses(ctx context.Context, filter AddressFilter) ([]Address, error) {
	return do(ctx, c, "Addresses", func(ctx context.Context) ([]Address, error) {
		if !filter.IsEmpty() {
			return c.apiClient.GetAddresses(ctx, filter, c.token())
		}
		return cached(ctx, c, "Addresses", c.addressesKey(), addressTTL, func(ctx context.Context, token string) ([]Address, error) {
			return c.apiClient.GetAddresses(ctx, filter, token)
		})
	})
}

// Contacts lists the contacts of an address.
func (c *Client) Contacts(ctx context.Context, addressID int) ([]Contact, error) {
	return do(ctx, c, "Contacts", func(ctx context.Context) ([]Contact, error) {
		if addressID == 0 {
			c.ledger.Add(KindMissingData, "address_id", "address_id not set.")
			return nil, errRejected
		}
		return c.contacts(ctx, addressID)
	})
}

// DefaultAddress returns the account's default address and its contacts.
func (c *Client) DefaultAddress(ctx context.Context) (*DefaultAddress, error) {
	return do(ctx, c, "DefaultAddress", func(ctx context.Context) (*DefaultAddress, error) {
		id := c.session.DefaultAddressID
		if id == 0 {
			return nil, unexpected("Account has no default address.")
		}
		addr, err := c.address(ctx, id)
		if err != nil {
			return nil, err
		}
		contacts, err := c.contacts(ctx, id)
		if err != nil {
			return nil, err
		}
		return &DefaultAddress{AddressID: id, Address: *addr, Contacts: contacts}, nil
	})
}

// AddAddress creates an address after checking it against the reference data.
// Every failing field is reported, not only the first.
func (c *Client) AddAddress(ctx context.Context, req AddressRequest) (*AddressResult, error) {
	return do(ctx, c, "AddAddress", func(ctx context.Context) (*AddressResult, error) {
		if err := c.validateAddress(ctx, &req); err != nil {
			return nil, err
		}
		res, err := c.apiClient.AddAddress(ctx, &req, c.token())
		if err != nil {
			return nil, err
		}
		c.forget(ctx, c.addressesKey())
		return res, nil
	})
}

// AddContact adds a contact to an existing address.
func (c *Client) AddContact(ctx context.Context, req ContactRequest) (*Contact, error) {
	return do(ctx, c, "AddContact", func(ctx context.Context) (*Contact, error) {
		if err := c.validateContact(ctx, &req); err != nil {
			return nil, err
		}
		contact, err := c.apiClient.AddContact(ctx, &req, c.token())
		if err != nil {
			return nil, err
		}
		c.forget(ctx, c.addressesKey())
		c.forget(ctx, c.contactsKey(req.AddressID))
		return contact, nil
	})
}

func (c *Client) address(ctx context.Context, addressID int) (*Address, error) {
	return cached(ctx, c, "Address", c.addressKey(addressID), addressTTL, func(ctx context.Context, token string) (*Address, error) {
		return c.apiClient.GetAddress(ctx, addressID, token)
	})
}

func (c *Client) contacts(ctx context.Context, addressID int) ([]Contact, error) {
	return cached(ctx, c, "Contacts", c.contactsKey(addressID), addressTTL, func(ctx context.Context, token string) ([]Contact, error) {
		return c.apiClient.GetContacts(ctx, addressID, token)
	})
}

// addressExists reports whether addressID resolves. Lookup failures other than
// transport failures count as "does not exist".
func (c *Client) addressExists(ctx context.Context, addressID int) (bool, error) {
	addr, err := c.address(ctx, addressID)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Kind == KindTransport || apiErr.IsAuth()) {
			return false, err
		}
		return false, nil
	}
	return addr != nil && addr.AddressID != 0, nil
}

// lookup fetches a reference set used to check a field. A failed fetch is
// recorded and reported as not ok, so the caller keeps checking other fields.
func (c *Client) lookup(ctx context.Context, fetch func(context.Context) (ReferenceSet, error)) (ReferenceSet, bool) {
	set, err := fetch(ctx)
	if err != nil {
		c.absorb(ctx, err)
		return nil, false
	}
	return set, true
}

func (c *Client) validateAddress(ctx context.Context, req *AddressRequest) error {
	if req.LocationType == 0 {
		c.ledger.Add(KindMissingData, "location_type", "location_type not set.")
	} else if types, ok := c.lookup(ctx, c.locationTypes); ok && !types.Has(req.LocationType) {
		c.ledger.Add(KindInvalidData, "location_type", "Invalid location_type.")
	}

	townValid := false
	if req.TownID == 0 {
		c.ledger.Add(KindMissingData, "town_id", "town_id not set.")
	} else if towns, ok := c.lookup(ctx, func(ctx context.Context) (ReferenceSet, error) {
		return c.towns(ctx, DefaultCountry, "")
	}); ok {
		townValid = towns.Has(req.TownID)
		if !townValid {
			c.ledger.Add(KindInvalidData, "town_id", "Invalid town_id.")
		}
	}

	if req.SuburbID == 0 {
		c.ledger.Add(KindMissingData, "suburb_id", "suburb_id not set.")
	} else if townValid {
		suburbs, ok := c.lookup(ctx, func(ctx context.Context) (ReferenceSet, error) {
			return c.suburbs(ctx, req.TownID)
		})
		if ok && !suburbs.Has(req.SuburbID) {
			c.ledger.Add(KindInvalidData, "suburb_id", "Invalid suburb_id.")
		}
	}

	if strings.TrimSpace(req.Street) == "" {
		c.ledger.Add(KindMissingData, "street", "street not set.")
	}
	if strings.TrimSpace(req.FullName) == "" {
		c.ledger.Add(KindMissingData, "full_name", "full_name not set.")
	}
	if strings.TrimSpace(req.Phone) == "" && strings.TrimSpace(req.Cellphone) == "" {
		c.ledger.Add(KindMissingData, "phone", "Please supply a phone or cellphone number.")
	}

	if !c.ledger.Empty() {
		return errRejected
	}
	return nil
}

func (c *Client) validateContact(ctx context.Context, req *ContactRequest) error {
	if req.AddressID == 0 {
		c.ledger.Add(KindMissingData, "address_id", "address_id not set.")
	} else {
		ok, err := c.addressExists(ctx, req.AddressID)
		if err != nil {
			return err
		}
		if !ok {
			c.ledger.Add(KindInvalidData, "address_id", "Invalid address_id.")
		}
	}

	if strings.TrimSpace(req.FullName) == "" {
		c.ledger.Add(KindMissingData, "full_name", "full_name not set.")
	}
	if strings.TrimSpace(req.Email) == "" {
		c.ledger.Add(KindMissingData, "email", "email not set.")
	} else if _, err := mail.ParseAddress(req.Email); err != nil {
		c.ledger.Add(KindInvalidData, "email", "Invalid email.")
	}
	if strings.TrimSpace(req.Phone) == "" && strings.TrimSpace(req.Cellphone) == "" {
		c.ledger.Add(KindMissingData, "phone", "Please supply a phone or cellphone number.")
	}

	if !c.ledger.Empty() {
		return errRejected
	}
	return nil
}
