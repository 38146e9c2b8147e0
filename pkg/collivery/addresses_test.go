package collivery_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/collivery/pkg/collivery"
)

func validAddressRequest() collivery.AddressRequest {
	return collivery.AddressRequest{
		CompanyName:  "Tournevent",
		Street:       "12 Kloof Street",
		LocationType: 1,
		TownID:       147,
		SuburbID:     1936,
		ZipCode:      "8001",
		FullName:     "Jane Doe",
		Cellphone:    "0821234567",
		Email:        "jane@example.com",
	}
}

func TestClient_AddAddress_MissingFields(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	client := newTestClient(mockAPI, nil)

	_, err := client.AddAddress(context.Background(), collivery.AddressRequest{})

	require.Error(t, err)
	ledger := client.Errors()
	assert.Equal(t, 6, ledger.Len())
	for _, key := range []string{"location_type", "town_id", "suburb_id", "street", "full_name", "phone"} {
		entry, ok := ledger.Get(key)
		require.True(t, ok, key)
		assert.Equal(t, collivery.KindMissingData, entry.Kind, key)
	}
	assert.Zero(t, mockAPI.Calls("AddAddress"))
}

func TestClient_AddAddress_FailedLookupKeepsChecking(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	mockAPI.OnGetLocationTypes = func(ctx context.Context) (collivery.ReferenceSet, error) {
		return nil, &collivery.APIError{Kind: collivery.KindHTTP, Code: "http", Message: "HTTP 503: Service Unavailable", StatusCode: 503}
	}
	client := newTestClient(mockAPI, nil)

	req := validAddressRequest()
	req.Street = " "
	req.FullName = ""

	_, err := client.AddAddress(context.Background(), req)

	require.Error(t, err)
	ledger := client.Errors()
	assert.Equal(t, 3, ledger.Len())
	assert.True(t, ledger.HasKind(collivery.KindHTTP))
	for _, key := range []string{"street", "full_name"} {
		entry, ok := ledger.Get(key)
		require.True(t, ok, key)
		assert.Equal(t, collivery.KindMissingData, entry.Kind, key)
	}
	assert.Equal(t, 1, mockAPI.Calls("GetTowns"))
	assert.Zero(t, mockAPI.Calls("AddAddress"))
}

func TestClient_AddAddress_InvalidReferences(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	client := newTestClient(mockAPI, nil)

	req := validAddressRequest()
	req.LocationType = 99
	req.TownID = 999
	req.SuburbID = 1

	_, err := client.AddAddress(context.Background(), req)

	require.Error(t, err)
	ledger := client.Errors()
	assert.Equal(t, map[string]string{
		"location_type": "Invalid location_type.",
		"town_id":       "Invalid town_id.",
	}, ledger.Map())
	assert.Zero(t, mockAPI.Calls("GetSuburbs"))
}

func TestClient_AddAddress_SuburbOutsideTown(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	client := newTestClient(mockAPI, nil)

	req := validAddressRequest()
	req.SuburbID = 3001

	_, err := client.AddAddress(context.Background(), req)

	require.Error(t, err)
	entry, ok := client.Errors().Get("suburb_id")
	require.True(t, ok)
	assert.Equal(t, collivery.KindInvalidData, entry.Kind)
}

func TestClient_AddAddress_InvalidatesListing(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	client := newTestClient(mockAPI, nil)
	ctx := context.Background()

	before, err := client.Addresses(ctx, collivery.AddressFilter{})
	require.NoError(t, err)
	require.Len(t, before, 1)

	_, err = client.Addresses(ctx, collivery.AddressFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, mockAPI.Calls("GetAddresses"))

	res, err := client.AddAddress(ctx, validAddressRequest())
	require.NoError(t, err)
	assert.NotZero(t, res.AddressID)
	assert.NotZero(t, res.ContactID)

	after, err := client.Addresses(ctx, collivery.AddressFilter{})
	require.NoError(t, err)
	assert.Len(t, after, 2)
	assert.Equal(t, 2, mockAPI.Calls("GetAddresses"))
}

func TestClient_Addresses_FilteredNotCached(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	client := newTestClient(mockAPI, nil)
	ctx := context.Background()

	filter := collivery.AddressFilter{TownID: 200}
	for i := 0; i < 2; i++ {
		list, err := client.Addresses(ctx, filter)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	}
	assert.Equal(t, 2, mockAPI.Calls("GetAddresses"))
}

func TestClient_Address(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	client := newTestClient(mockAPI, nil)
	ctx := context.Background()

	addr, err := client.Address(ctx, collivery.MockDefaultAddressID)
	require.NoError(t, err)
	assert.Equal(t, "Sandton", addr.SuburbName)

	_, err = client.Address(ctx, 0)
	require.Error(t, err)
	assert.True(t, client.Errors().Has("address_id"))

	_, err = client.Address(ctx, 424242)
	require.Error(t, err)
	assert.True(t, client.Errors().HasKind(collivery.KindHTTP))
}

func TestClient_DefaultAddress(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	client := newTestClient(mockAPI, nil)

	def, err := client.DefaultAddress(context.Background())

	require.NoError(t, err)
	assert.Equal(t, collivery.MockDefaultAddressID, def.AddressID)
	require.Len(t, def.Contacts, 1)
	assert.Equal(t, collivery.MockDefaultContactID, def.Contacts[0].ContactID)
}

func TestClient_AddContact(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	client := newTestClient(mockAPI, nil)
	ctx := context.Background()

	before, err := client.Contacts(ctx, collivery.MockDefaultAddressID)
	require.NoError(t, err)
	require.Len(t, before, 1)

	contact, err := client.AddContact(ctx, collivery.ContactRequest{
		AddressID: collivery.MockDefaultAddressID,
		FullName:  "Night Shift",
		Phone:     "0115559999",
		Email:     "night@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, collivery.MockDefaultAddressID, contact.AddressID)

	after, err := client.Contacts(ctx, collivery.MockDefaultAddressID)
	require.NoError(t, err)
	assert.Len(t, after, 2)
}

func TestClient_AddContact_Invalid(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	client := newTestClient(mockAPI, nil)

	_, err := client.AddContact(context.Background(), collivery.ContactRequest{
		AddressID: 424242,
		FullName:  "Nobody",
		Email:     "not-an-email",
	})

	require.Error(t, err)
	assert.Equal(t, map[string]string{
		"address_id": "Invalid address_id.",
		"email":      "Invalid email.",
		"phone":      "Please supply a phone or cellphone number.",
	}, client.Errors().Map())
	assert.Zero(t, mockAPI.Calls("AddContact"))
}
