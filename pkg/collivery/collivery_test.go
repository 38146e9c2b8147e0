package collivery_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/collivery/pkg/collivery"
)

// deliveryRequest sends from the default address to a newly created one.
func deliveryRequest(t *testing.T, client *collivery.Client) collivery.ColliveryRequest {
	t.Helper()
	res, err := client.AddAddress(context.Background(), validAddressRequest())
	require.NoError(t, err)

	return collivery.ColliveryRequest{
		CollectionAddressID: collivery.MockDefaultAddressID,
		CollectionContactID: collivery.MockDefaultContactID,
		DeliveryAddressID:   res.AddressID,
		DeliveryContactID:   res.ContactID,
		ParcelType:          2,
		ServiceID:           2,
		Parcels:             []collivery.Parcel{{Length: 20, Width: 20, Height: 20, Weight: 5}},
	}
}

func TestClient_Validate_Success(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	client := newTestClient(mockAPI, nil)
	req := deliveryRequest(t, client)

	validated, err := client.Validate(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, req.DeliveryAddressID, validated.Request.DeliveryAddressID)
	assert.False(t, validated.Request.CollectionTime.IsZero())
	assert.Equal(t, 1, mockAPI.Calls("ValidateCollivery"))
}

func TestClient_Validate_MissingFields(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	client := newTestClient(mockAPI, nil)

	_, err := client.Validate(context.Background(), collivery.ColliveryRequest{})

	require.Error(t, err)
	ledger := client.Errors()
	for _, key := range []string{"collivery_from", "collivery_to", "contact_from", "contact_to", "collivery_type", "service", "parcels"} {
		entry, ok := ledger.Get(key)
		require.True(t, ok, key)
		assert.Equal(t, collivery.KindMissingData, entry.Kind, key)
	}
	assert.Zero(t, mockAPI.Calls("ValidateCollivery"))
}

func TestClient_Validate_ForeignContact(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	client := newTestClient(mockAPI, nil)
	req := deliveryRequest(t, client)
	req.DeliveryContactID = collivery.MockDefaultContactID

	_, err := client.Validate(context.Background(), req)

	require.Error(t, err)
	assert.Equal(t, map[string]string{
		"contact_to": "Invalid Contact ID for: contact_to.",
	}, client.Errors().Map())
}

func TestClient_Validate_UnknownReferences(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	client := newTestClient(mockAPI, nil)
	req := deliveryRequest(t, client)
	req.DeliveryAddressID = 424242
	req.ParcelType = 42
	req.ServiceID = 42

	_, err := client.Validate(context.Background(), req)

	require.Error(t, err)
	ledger := client.Errors()
	assert.True(t, ledger.Has("collivery_to"))
	assert.True(t, ledger.Has("collivery_type"))
	assert.True(t, ledger.Has("service"))
	assert.False(t, ledger.Has("contact_to"))
}

func TestClient_Price_ByTown(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	client := newTestClient(mockAPI, nil)

	price, err := client.Price(context.Background(), collivery.ColliveryRequest{
		FromTownID:       147,
		FromLocationType: 5,
		ToTownID:         200,
		ToLocationType:   1,
		ParcelType:       2,
		ServiceID:        2,
		Parcels:          []collivery.Parcel{{Weight: 5}},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, price.ServiceID)
	assert.InDelta(t, 150.0, price.ExVAT, 0.001)
	assert.InDelta(t, 172.5, price.IncVAT, 0.001)
}

func TestClient_Price_ByAddress(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	client := newTestClient(mockAPI, nil)
	req := deliveryRequest(t, client)

	price, err := client.Price(context.Background(), req)

	require.NoError(t, err)
	assert.Greater(t, price.IncVAT, price.ExVAT)
}

func TestClient_Price_InvalidTown(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	client := newTestClient(mockAPI, nil)

	_, err := client.Price(context.Background(), collivery.ColliveryRequest{
		FromTownID: 999,
		ParcelType: 2,
		ServiceID:  2,
		Parcels:    []collivery.Parcel{{Weight: 1}},
	})

	require.Error(t, err)
	ledger := client.Errors()
	entry, ok := ledger.Get("from_town_id")
	require.True(t, ok)
	assert.Equal(t, collivery.KindInvalidData, entry.Kind)
	entry, ok = ledger.Get("collivery_to")
	require.True(t, ok)
	assert.Equal(t, collivery.KindMissingData, entry.Kind)
	assert.Zero(t, mockAPI.Calls("GetPrice"))
}

func TestClient_Price_FailedServiceLookupKeepsChecking(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	mockAPI.OnGetServices = func(ctx context.Context) (collivery.ReferenceSet, error) {
		return nil, &collivery.APIError{Kind: collivery.KindTransport, Code: "transport", Message: "connection refused"}
	}
	client := newTestClient(mockAPI, nil)

	_, err := client.Price(context.Background(), collivery.ColliveryRequest{
		FromTownID: 147,
		ToTownID:   200,
		ParcelType: 99,
		ServiceID:  2,
	})

	require.Error(t, err)
	ledger := client.Errors()
	assert.True(t, ledger.HasKind(collivery.KindTransport))
	entry, ok := ledger.Get("collivery_type")
	require.True(t, ok)
	assert.Equal(t, collivery.KindInvalidData, entry.Kind)
	entry, ok = ledger.Get("parcels")
	require.True(t, ok)
	assert.Equal(t, collivery.KindMissingData, entry.Kind)
	assert.Zero(t, mockAPI.Calls("GetPrice"))
}

func TestClient_AddAndAcceptCollivery(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	client := newTestClient(mockAPI, nil)
	ctx := context.Background()

	validated, err := client.Validate(ctx, deliveryRequest(t, client))
	require.NoError(t, err)

	waybill, err := client.AddCollivery(ctx, validated.Request)
	require.NoError(t, err)
	assert.Equal(t, 5000001, waybill)

	accepted, err := client.AcceptCollivery(ctx, waybill)
	require.NoError(t, err)
	assert.True(t, accepted)
}

func TestClient_AddCollivery_Invalid(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	client := newTestClient(mockAPI, nil)

	_, err := client.AddCollivery(context.Background(), collivery.ColliveryRequest{ServiceID: 2})

	require.Error(t, err)
	assert.Zero(t, mockAPI.Calls("AddCollivery"))
}

func TestClient_AcceptCollivery_NotAccepted(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	mockAPI.OnAcceptCollivery = func(ctx context.Context, waybillID int) (string, error) {
		return "Rejected", nil
	}
	client := newTestClient(mockAPI, nil)

	accepted, err := client.AcceptCollivery(context.Background(), 5000001)

	require.Error(t, err)
	assert.False(t, accepted)
	assert.True(t, client.Errors().HasKind(collivery.KindResultUnexpected))
}

func TestClient_AcceptCollivery_MissingWaybill(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	client := newTestClient(mockAPI, nil)

	accepted, err := client.AcceptCollivery(context.Background(), 0)

	require.Error(t, err)
	assert.False(t, accepted)
	assert.True(t, client.Errors().Has("collivery_id"))
	assert.Zero(t, mockAPI.Calls("AcceptCollivery"))
}

func TestClient_Tracking(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	client := newTestClient(mockAPI, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		status, err := client.ColliveryStatus(ctx, 5000001)
		require.NoError(t, err)
		assert.Equal(t, 5000001, status.WaybillID)
	}
	assert.Equal(t, 1, mockAPI.Calls("GetColliveryStatus"))

	pod, err := client.POD(ctx, 5000001)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", pod.MimeType)
	assert.Equal(t, len(pod.Data), pod.Size)

	images, err := client.ParcelImageList(ctx, 5000001)
	require.NoError(t, err)
	require.Len(t, images, 1)

	image, err := client.ParcelImage(ctx, images[0].ParcelID)
	require.NoError(t, err)
	assert.Equal(t, "5000001-1", image.ParcelID)

	_, err = client.ParcelImage(ctx, "")
	require.Error(t, err)
	assert.True(t, client.Errors().Has("parcel_id"))
}

func TestClient_AcceptCollivery_RefreshesStatus(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	client := newTestClient(mockAPI, nil)
	ctx := context.Background()

	waybill, err := client.AddCollivery(ctx, deliveryRequest(t, client))
	require.NoError(t, err)

	_, err = client.ColliveryStatus(ctx, waybill)
	require.NoError(t, err)
	_, err = client.AcceptCollivery(ctx, waybill)
	require.NoError(t, err)
	_, err = client.ColliveryStatus(ctx, waybill)
	require.NoError(t, err)

	assert.Equal(t, 2, mockAPI.Calls("GetColliveryStatus"))
}
