package collivery

import (
	"context"
	"fmt"
)

func statusKey(waybillID int) string {
	return fmt.Sprintf("status.%d", waybillID)
}

// ColliveryStatus returns the tracking status of a waybill.
func (c *Client) ColliveryStatus(ctx context.Context, waybillID int) (*Status, error) {
	return do(ctx, c, "ColliveryStatus", func(ctx context.Context) (*Status, error) {
		if err := c.requireWaybill(waybillID); err != nil {
			return nil, err
		}
		return cached(ctx, c, "ColliveryStatus", statusKey(waybillID), statusTTL, func(ctx context.Context, token string) (*Status, error) {
			return c.apiClient.GetColliveryStatus(ctx, waybillID, token)
		})
	})
}

// POD returns the proof of delivery for a waybill.
func (c *Client) POD(ctx context.Context, waybillID int) (*File, error) {
	return do(ctx, c, "POD", func(ctx context.Context) (*File, error) {
		if err := c.requireWaybill(waybillID); err != nil {
			return nil, err
		}
		return cached(ctx, c, "POD", fmt.Sprintf("pod.%d", waybillID), documentTTL, func(ctx context.Context, token string) (*File, error) {
			return c.apiClient.GetPOD(ctx, waybillID, token)
		})
	})
}

// ParcelImageList lists the parcel images of a waybill.
func (c *Client) ParcelImageList(ctx context.Context, waybillID int) ([]ParcelImage, error) {
	return do(ctx, c, "ParcelImageList", func(ctx context.Context) ([]ParcelImage, error) {
		if err := c.requireWaybill(waybillID); err != nil {
			return nil, err
		}
		return cached(ctx, c, "ParcelImageList", fmt.Sprintf("parcel_image_list.%d", waybillID), documentTTL, func(ctx context.Context, token string) ([]ParcelImage, error) {
			return c.apiClient.GetParcelImageList(ctx, waybillID, token)
		})
	})
}

// ParcelImage returns one parcel image.
func (c *Client) ParcelImage(ctx context.Context, parcelID string) (*ParcelImage, error) {
	return do(ctx, c, "ParcelImage", func(ctx context.Context) (*ParcelImage, error) {
		if parcelID == "" {
			c.ledger.Add(KindMissingData, "parcel_id", "parcel_id not set.")
			return nil, errRejected
		}
		return cached(ctx, c, "ParcelImage", "parcel_image."+parcelID, documentTTL, func(ctx context.Context, token string) (*ParcelImage, error) {
			return c.apiClient.GetParcelImage(ctx, parcelID, token)
		})
	})
}

func (c *Client) requireWaybill(waybillID int) error {
	if waybillID == 0 {
		c.ledger.Add(KindMissingData, "collivery_id", "collivery_id not set.")
		return errRejected
	}
	return nil
}
