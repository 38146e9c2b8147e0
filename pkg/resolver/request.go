package resolver

import (
	"time"

	"github.com/tournevent/collivery/pkg/collivery"
)

// Carrier service and parcel type IDs with special handling.
const (
	ServiceRoadFreightExpress = 3
	ServiceRoadFreight        = 5

	// DefaultParcelType is the "Package" parcel type.
	DefaultParcelType = 2

	collectionHour = 8
)

// LineItem is one order line. Weight is the line total in kg; dimensions are per
// unit in cm.
type LineItem struct {
	Quantity int
	Weight   float64
	Length   float64
	Width    float64
	Height   float64
}

// ExpandParcels turns order lines into one parcel per unit, splitting each line's
// weight evenly over its quantity.
func ExpandParcels(items []LineItem) []collivery.Parcel {
	var parcels []collivery.Parcel
	for _, item := range items {
		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		unit := collivery.Parcel{
			Length: item.Length,
			Width:  item.Width,
			Height: item.Height,
			Weight: item.Weight / float64(qty),
		}
		for i := 0; i < qty; i++ {
			parcels = append(parcels, unit)
		}
	}
	return parcels
}

// CollectionTime returns the collection time for serviceID. Road freight is
// collected the next morning, express road freight two mornings out; every other
// service is collected as soon as possible, signalled by the zero time.
func CollectionTime(serviceID int, now time.Time) time.Time {
	var days int
	switch serviceID {
	case ServiceRoadFreight:
		days = 1
	case ServiceRoadFreightExpress:
		days = 2
	default:
		return time.Time{}
	}
	d := now.AddDate(0, 0, days)
	return time.Date(d.Year(), d.Month(), d.Day(), collectionHour, 0, 0, 0, now.Location())
}

// BuildRequest assembles a delivery request between two resolved addresses.
func BuildRequest(from, to Resolved, items []LineItem, serviceID int, cover, rica bool, now time.Time) collivery.ColliveryRequest {
	return collivery.ColliveryRequest{
		CollectionAddressID: from.AddressID,
		CollectionContactID: from.ContactID,
		DeliveryAddressID:   to.AddressID,
		DeliveryContactID:   to.ContactID,
		ParcelType:          DefaultParcelType,
		ServiceID:           serviceID,
		Parcels:             ExpandParcels(items),
		Cover:               cover,
		Rica:                rica,
		CollectionTime:      CollectionTime(serviceID, now),
	}
}
