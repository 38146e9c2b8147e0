package collivery

import (
	"context"
	"fmt"
	"strings"
)

// Validate checks a delivery locally, then asks the carrier to validate it. The
// returned request carries the carrier's adjustments and must be the one submitted.
func (c *Client) Validate(ctx context.Context, req ColliveryRequest) (*ValidatedCollivery, error) {
	return do(ctx, c, "Validate", func(ctx context.Context) (*ValidatedCollivery, error) {
		if err := c.validateCollivery(ctx, &req); err != nil {
			return nil, err
		}
		return c.apiClient.ValidateCollivery(ctx, &req, c.token())
	})
}

// Price quotes a delivery. Either address IDs or town IDs identify both ends.
func (c *Client) Price(ctx context.Context, req ColliveryRequest) (*Price, error) {
	return do(ctx, c, "Price", func(ctx context.Context) (*Price, error) {
		if err := c.validatePrice(ctx, &req); err != nil {
			return nil, err
		}
		return c.apiClient.GetPrice(ctx, &req, c.token())
	})
}

// AddCollivery repeats local validation and submits the delivery, returning the
// waybill number.
func (c *Client) AddCollivery(ctx context.Context, req ColliveryRequest) (int, error) {
	return do(ctx, c, "AddCollivery", func(ctx context.Context) (int, error) {
		if err := c.validateCollivery(ctx, &req); err != nil {
			return 0, err
		}
		return c.apiClient.AddCollivery(ctx, &req, c.token())
	})
}

// AcceptCollivery accepts a submitted delivery. It reports true only when the
// carrier answers "accepted".
func (c *Client) AcceptCollivery(ctx context.Context, waybillID int) (bool, error) {
	return do(ctx, c, "AcceptCollivery", func(ctx context.Context) (bool, error) {
		if waybillID == 0 {
			c.ledger.Add(KindMissingData, "collivery_id", "collivery_id not set.")
			return false, errRejected
		}
		result, err := c.apiClient.AcceptCollivery(ctx, waybillID, c.token())
		if err != nil {
			return false, err
		}
		c.forget(ctx, statusKey(waybillID))
		if !strings.EqualFold(strings.TrimSpace(result), "accepted") {
			return false, unexpected(fmt.Sprintf("Collivery not accepted: %s", result))
		}
		return true, nil
	})
}

func (c *Client) validateCollivery(ctx context.Context, req *ColliveryRequest) error {
	fromOK, err := c.checkAddress(ctx, "collivery_from", req.CollectionAddressID)
	if err != nil {
		return err
	}
	toOK, err := c.checkAddress(ctx, "collivery_to", req.DeliveryAddressID)
	if err != nil {
		return err
	}
	if err := c.checkContact(ctx, "contact_from", req.CollectionContactID, req.CollectionAddressID, fromOK); err != nil {
		return err
	}
	if err := c.checkContact(ctx, "contact_to", req.DeliveryContactID, req.DeliveryAddressID, toOK); err != nil {
		return err
	}
	c.checkTypeAndService(ctx, req)
	if !c.ledger.Empty() {
		return errRejected
	}
	return nil
}

func (c *Client) validatePrice(ctx context.Context, req *ColliveryRequest) error {
	ends := []struct {
		addressKey string
		townKey    string
		addressID  int
		townID     int
	}{
		{"collivery_from", "from_town_id", req.CollectionAddressID, req.FromTownID},
		{"collivery_to", "to_town_id", req.DeliveryAddressID, req.ToTownID},
	}
	for _, end := range ends {
		switch {
		case end.addressID != 0:
			if _, err := c.checkAddress(ctx, end.addressKey, end.addressID); err != nil {
				return err
			}
		case end.townID != 0:
			towns, err := c.towns(ctx, DefaultCountry, "")
			if err != nil {
				return err
			}
			if !towns.Has(end.townID) {
				c.ledger.Add(KindInvalidData, end.townKey, fmt.Sprintf("Invalid town id for: %s.", end.townKey))
			}
		default:
			c.ledger.Add(KindMissingData, end.addressKey, fmt.Sprintf("%s/%s not set.", end.addressKey, end.townKey))
		}
	}
	c.checkTypeAndService(ctx, req)
	if !c.ledger.Empty() {
		return errRejected
	}
	return nil
}

// checkAddress records a missing or unknown address and reports whether it resolved.
func (c *Client) checkAddress(ctx context.Context, key string, addressID int) (bool, error) {
	if addressID == 0 {
		c.ledger.Add(KindMissingData, key, key+" not set.")
		return false, nil
	}
	ok, err := c.addressExists(ctx, addressID)
	if err != nil {
		return false, err
	}
	if !ok {
		c.ledger.Add(KindInvalidData, key, fmt.Sprintf("Invalid Address ID for: %s.", key))
	}
	return ok, nil
}

func (c *Client) checkContact(ctx context.Context, key string, contactID, addressID int, addressOK bool) error {
	if contactID == 0 {
		c.ledger.Add(KindMissingData, key, key+" not set.")
		return nil
	}
	if !addressOK {
		return nil
	}
	contacts, err := c.contacts(ctx, addressID)
	if err != nil {
		return err
	}
	for _, contact := range contacts {
		if contact.ContactID == contactID {
			return nil
		}
	}
	c.ledger.Add(KindInvalidData, key, fmt.Sprintf("Invalid Contact ID for: %s.", key))
	return nil
}

func (c *Client) checkTypeAndService(ctx context.Context, req *ColliveryRequest) {
	if req.ParcelType == 0 {
		c.ledger.Add(KindMissingData, "collivery_type", "collivery_type not set.")
	} else if types, ok := c.lookup(ctx, c.parcelTypes); ok && !types.Has(req.ParcelType) {
		c.ledger.Add(KindInvalidData, "collivery_type", "Invalid collivery_type.")
	}

	if req.ServiceID == 0 {
		c.ledger.Add(KindMissingData, "service", "service not set.")
	} else if services, ok := c.lookup(ctx, c.services); ok && !services.Has(req.ServiceID) {
		c.ledger.Add(KindInvalidData, "service", "Invalid service.")
	}

	if len(req.Parcels) == 0 {
		c.ledger.Add(KindMissingData, "parcels", "parcels not set.")
	}
}
