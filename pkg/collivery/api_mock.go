package collivery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Mock account identifiers.
const (
	MockToken            = "mock-token"
	MockClientID         = 100
	MockUserID           = 200
	MockDefaultAddressID = 1001
	MockDefaultContactID = 2001
)

// MockAPIClient is an in-memory carrier used by tests and the mock transport.
// Addresses and contacts added through it are returned by later lookups.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnAuthenticate     func(ctx context.Context, req *AuthRequest) (*Session, error)
	OnGetTowns         func(ctx context.Context, country, province string) (ReferenceSet, error)
	OnGetSuburbs       func(ctx context.Context, townID int) (ReferenceSet, error)
	OnGetLocationTypes func(ctx context.Context) (ReferenceSet, error)
	OnGetServices      func(ctx context.Context) (ReferenceSet, error)
	OnGetAddresses     func(ctx context.Context, filter AddressFilter) ([]Address, error)
	OnAddAddress       func(ctx context.Context, req *AddressRequest) (*AddressResult, error)
	OnValidate         func(ctx context.Context, req *ColliveryRequest) (*ValidatedCollivery, error)
	OnGetPrice         func(ctx context.Context, req *ColliveryRequest) (*Price, error)
	OnAddCollivery     func(ctx context.Context, req *ColliveryRequest) (int, error)
	OnAcceptCollivery  func(ctx context.Context, waybillID int) (string, error)

	Towns         ReferenceSet
	Suburbs       map[int]ReferenceSet
	LocationTypes ReferenceSet
	ParcelTypes   ReferenceSet
	Services      ReferenceSet

	mu          sync.Mutex
	calls       map[string]int
	addresses   map[int]Address
	contacts    map[int][]Contact
	collivery   map[int]ColliveryRequest
	nextAddress int
	nextContact int
	nextWaybill int
}

// NewMockAPIClient creates a mock carrier seeded with reference data and the
// account's default address.
func NewMockAPIClient() *MockAPIClient {
	m := &MockAPIClient{
		Towns: ReferenceSet{
			147: "Cape Town",
			200: "Johannesburg",
			321: "Durban",
		},
		Suburbs: map[int]ReferenceSet{
			147: {1936: "Gardens", 1937: "Sea Point"},
			200: {3001: "Sandton", 3002: "Rosebank"},
			321: {4001: "Umhlanga"},
		},
		LocationTypes: ReferenceSet{
			1: "Business Premises",
			5: "Private House",
			9: "Shopping Centre",
		},
		ParcelTypes: ReferenceSet{
			1: "Envelope",
			2: "Package",
			3: "Tender Documents",
		},
		Services: ReferenceSet{
			1: "Overnight Before 10:00",
			2: "Overnight Before 16:00",
			3: "Road Freight Express",
			5: "Road Freight",
		},
		calls:       make(map[string]int),
		addresses:   make(map[int]Address),
		contacts:    make(map[int][]Contact),
		collivery:   make(map[int]ColliveryRequest),
		nextAddress: MockDefaultAddressID + 1,
		nextContact: MockDefaultContactID + 1,
		nextWaybill: 5000001,
	}

	m.addresses[MockDefaultAddressID] = Address{
		AddressID:    MockDefaultAddressID,
		ClientID:     MockClientID,
		CompanyName:  "MDS Collivery",
		Street:       "58c Webber Street",
		LocationType: 1,
		SuburbID:     3001,
		SuburbName:   "Sandton",
		TownID:       200,
		TownName:     "Johannesburg",
		ContactID:    MockDefaultContactID,
	}
	m.contacts[MockDefaultAddressID] = []Contact{{
		ContactID: MockDefaultContactID,
		AddressID: MockDefaultAddressID,
		FullName:  "Dispatch Desk",
		Phone:     "0115551234",
		Email:     "dispatch@example.co.za",
	}}
	return m
}

// Calls returns how many times method was invoked.
func (m *MockAPIClient) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// begin counts the call and applies simulated latency and errors.
func (m *MockAPIClient) begin(ctx context.Context, method string) error {
	m.mu.Lock()
	m.calls[method]++
	m.mu.Unlock()

	if m.SimulateLatency > 0 {
		select {
		case <-time.After(m.SimulateLatency):
		case <-ctx.Done():
			return &APIError{Kind: KindTransport, Code: string(KindTransport), Message: ctx.Err().Error()}
		}
	}
	if m.SimulateErrors {
		return &APIError{Kind: KindSOAP, Code: "MOCK_ERROR", Message: "Simulated API error"}
	}
	return nil
}

// Authenticate returns a fixed session.
func (m *MockAPIClient) Authenticate(ctx context.Context, req *AuthRequest) (*Session, error) {
	if err := m.begin(ctx, "Authenticate"); err != nil {
		return nil, err
	}
	if m.OnAuthenticate != nil {
		return m.OnAuthenticate(ctx, req)
	}
	if req.Password == "" {
		return nil, &APIError{Kind: KindAuth, Code: "auth", Message: "Invalid email or password"}
	}
	return &Session{
		Email:            req.Email,
		Token:            MockToken,
		ClientID:         MockClientID,
		UserID:           MockUserID,
		DefaultAddressID: MockDefaultAddressID,
		FullName:         "Mock Account",
	}, nil
}

func (m *MockAPIClient) checkToken(token string) error {
	if token != MockToken {
		return &APIError{Kind: KindHTTP, Code: string(KindHTTP), Message: "Unauthenticated.", StatusCode: 401}
	}
	return nil
}

// GetTowns returns the seeded towns.
func (m *MockAPIClient) GetTowns(ctx context.Context, country, province, token string) (ReferenceSet, error) {
	if err := m.begin(ctx, "GetTowns"); err != nil {
		return nil, err
	}
	if m.OnGetTowns != nil {
		return m.OnGetTowns(ctx, country, province)
	}
	if err := m.checkToken(token); err != nil {
		return nil, err
	}
	if country != DefaultCountry {
		return ReferenceSet{}, nil
	}
	return copySet(m.Towns), nil
}

// GetSuburbs returns the seeded suburbs.
func (m *MockAPIClient) GetSuburbs(ctx context.Context, townID int, token string) (ReferenceSet, error) {
	if err := m.begin(ctx, "GetSuburbs"); err != nil {
		return nil, err
	}
	if m.OnGetSuburbs != nil {
		return m.OnGetSuburbs(ctx, townID)
	}
	if err := m.checkToken(token); err != nil {
		return nil, err
	}
	if townID != 0 {
		return copySet(m.Suburbs[townID]), nil
	}
	all := make(ReferenceSet)
	for _, set := range m.Suburbs {
		for id, name := range set {
			all[id] = name
		}
	}
	return all, nil
}

// GetLocationTypes returns the seeded location types.
func (m *MockAPIClient) GetLocationTypes(ctx context.Context, token string) (ReferenceSet, error) {
	if err := m.begin(ctx, "GetLocationTypes"); err != nil {
		return nil, err
	}
	if err := m.checkToken(token); err != nil {
		return nil, err
	}
	if m.OnGetLocationTypes != nil {
		return m.OnGetLocationTypes(ctx)
	}
	return copySet(m.LocationTypes), nil
}

// GetParcelTypes returns the seeded parcel types.
func (m *MockAPIClient) GetParcelTypes(ctx context.Context, token string) (ReferenceSet, error) {
	if err := m.begin(ctx, "GetParcelTypes"); err != nil {
		return nil, err
	}
	if err := m.checkToken(token); err != nil {
		return nil, err
	}
	return copySet(m.ParcelTypes), nil
}

// GetServices returns the seeded services.
func (m *MockAPIClient) GetServices(ctx context.Context, token string) (ReferenceSet, error) {
	if err := m.begin(ctx, "GetServices"); err != nil {
		return nil, err
	}
	if m.OnGetServices != nil {
		return m.OnGetServices(ctx)
	}
	if err := m.checkToken(token); err != nil {
		return nil, err
	}
	return copySet(m.Services), nil
}

// GetAddress returns a stored address.
func (m *MockAPIClient) GetAddress(ctx context.Context, addressID int, token string) (*Address, error) {
	if err := m.begin(ctx, "GetAddress"); err != nil {
		return nil, err
	}
	if err := m.checkToken(token); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	addr, ok := m.addresses[addressID]
	if !ok {
		return nil, &APIError{Kind: KindHTTP, Code: string(KindHTTP), Message: "Address not found.", StatusCode: 404}
	}
	return &addr, nil
}

// GetAddresses returns stored addresses matching filter, ordered by ID.
func (m *MockAPIClient) GetAddresses(ctx context.Context, filter AddressFilter, token string) ([]Address, error) {
	if err := m.begin(ctx, "GetAddresses"); err != nil {
		return nil, err
	}
	if m.OnGetAddresses != nil {
		return m.OnGetAddresses(ctx, filter)
	}
	if err := m.checkToken(token); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Address, 0, len(m.addresses))
	for _, a := range m.addresses {
		if filter.CustomID != "" && a.CustomID != filter.CustomID {
			continue
		}
		if filter.CompanyName != "" && !strings.EqualFold(a.CompanyName, filter.CompanyName) {
			continue
		}
		if filter.TownID != 0 && a.TownID != filter.TownID {
			continue
		}
		if filter.SuburbID != 0 && a.SuburbID != filter.SuburbID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddressID < out[j].AddressID })
	return out, nil
}

// AddAddress stores an address with its first contact.
func (m *MockAPIClient) AddAddress(ctx context.Context, req *AddressRequest, token string) (*AddressResult, error) {
	if err := m.begin(ctx, "AddAddress"); err != nil {
		return nil, err
	}
	if m.OnAddAddress != nil {
		return m.OnAddAddress(ctx, req)
	}
	if err := m.checkToken(token); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	addressID := m.nextAddress
	contactID := m.nextContact
	m.nextAddress++
	m.nextContact++

	m.addresses[addressID] = Address{
		AddressID:    addressID,
		ClientID:     MockClientID,
		CustomID:     req.CustomID,
		CompanyName:  req.CompanyName,
		Building:     req.Building,
		StreetNumber: req.StreetNumber,
		Street:       req.Street,
		LocationType: req.LocationType,
		SuburbID:     req.SuburbID,
		SuburbName:   m.Suburbs[req.TownID][req.SuburbID],
		TownID:       req.TownID,
		TownName:     m.Towns[req.TownID],
		ZipCode:      req.ZipCode,
	}
	m.contacts[addressID] = []Contact{{
		ContactID: contactID,
		AddressID: addressID,
		FullName:  req.FullName,
		Phone:     req.Phone,
		Cellphone: req.Cellphone,
		Email:     req.Email,
	}}
	return &AddressResult{AddressID: addressID, ContactID: contactID}, nil
}

// GetContacts returns the contacts of a stored address.
func (m *MockAPIClient) GetContacts(ctx context.Context, addressID int, token string) ([]Contact, error) {
	if err := m.begin(ctx, "GetContacts"); err != nil {
		return nil, err
	}
	if err := m.checkToken(token); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Contact(nil), m.contacts[addressID]...), nil
}

// AddContact stores a contact on an address.
func (m *MockAPIClient) AddContact(ctx context.Context, req *ContactRequest, token string) (*Contact, error) {
	if err := m.begin(ctx, "AddContact"); err != nil {
		return nil, err
	}
	if err := m.checkToken(token); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	contact := Contact{
		ContactID: m.nextContact,
		AddressID: req.AddressID,
		FullName:  req.FullName,
		Phone:     req.Phone,
		Cellphone: req.Cellphone,
		Email:     req.Email,
	}
	m.nextContact++
	m.contacts[req.AddressID] = append(m.contacts[req.AddressID], contact)
	return &contact, nil
}

// ValidateCollivery echoes the request, filling a collection time when absent.
func (m *MockAPIClient) ValidateCollivery(ctx context.Context, req *ColliveryRequest, token string) (*ValidatedCollivery, error) {
	if err := m.begin(ctx, "ValidateCollivery"); err != nil {
		return nil, err
	}
	if m.OnValidate != nil {
		return m.OnValidate(ctx, req)
	}
	if err := m.checkToken(token); err != nil {
		return nil, err
	}
	out := *req
	if out.CollectionTime.IsZero() {
		out.CollectionTime = time.Now().Add(time.Hour).Truncate(time.Hour)
	}
	if out.DeliveryTime.IsZero() {
		out.DeliveryTime = out.CollectionTime.Add(24 * time.Hour)
	}
	return &ValidatedCollivery{Request: out}, nil
}

// GetPrice charges R100 plus R10 per kg, ex VAT.
func (m *MockAPIClient) GetPrice(ctx context.Context, req *ColliveryRequest, token string) (*Price, error) {
	if err := m.begin(ctx, "GetPrice"); err != nil {
		return nil, err
	}
	if m.OnGetPrice != nil {
		return m.OnGetPrice(ctx, req)
	}
	if err := m.checkToken(token); err != nil {
		return nil, err
	}
	var weight float64
	for _, parcel := range req.Parcels {
		weight += parcel.Weight
	}
	exVAT := 100 + 10*weight
	return &Price{
		ServiceID: req.ServiceID,
		ExVAT:     exVAT,
		VAT:       exVAT * 0.15,
		IncVAT:    exVAT * 1.15,
	}, nil
}

// AddCollivery stores the delivery and issues a waybill number.
func (m *MockAPIClient) AddCollivery(ctx context.Context, req *ColliveryRequest, token string) (int, error) {
	if err := m.begin(ctx, "AddCollivery"); err != nil {
		return 0, err
	}
	if m.OnAddCollivery != nil {
		return m.OnAddCollivery(ctx, req)
	}
	if err := m.checkToken(token); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextWaybill
	m.nextWaybill++
	m.collivery[id] = *req
	return id, nil
}

// AcceptCollivery accepts any stored waybill.
func (m *MockAPIClient) AcceptCollivery(ctx context.Context, waybillID int, token string) (string, error) {
	if err := m.begin(ctx, "AcceptCollivery"); err != nil {
		return "", err
	}
	if m.OnAcceptCollivery != nil {
		return m.OnAcceptCollivery(ctx, waybillID)
	}
	if err := m.checkToken(token); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collivery[waybillID]; !ok {
		return "", &APIError{Kind: KindSOAP, Code: "invalid_collivery", Message: fmt.Sprintf("Waybill %d not found.", waybillID)}
	}
	return "Accepted", nil
}

// GetColliveryStatus reports every stored waybill as awaiting collection.
func (m *MockAPIClient) GetColliveryStatus(ctx context.Context, waybillID int, token string) (*Status, error) {
	if err := m.begin(ctx, "GetColliveryStatus"); err != nil {
		return nil, err
	}
	if err := m.checkToken(token); err != nil {
		return nil, err
	}
	return &Status{
		WaybillID: waybillID,
		StatusID:  3,
		Status:    "Waiting Client Acceptance",
		UpdatedAt: time.Now().Format("2006-01-02 15:04"),
	}, nil
}

// GetPOD returns a placeholder PDF.
func (m *MockAPIClient) GetPOD(ctx context.Context, waybillID int, token string) (*File, error) {
	if err := m.begin(ctx, "GetPOD"); err != nil {
		return nil, err
	}
	if err := m.checkToken(token); err != nil {
		return nil, err
	}
	data := []byte("%PDF-1.4 mock")
	return &File{
		Filename: fmt.Sprintf("pod_%d.pdf", waybillID),
		MimeType: "application/pdf",
		Size:     len(data),
		Data:     data,
	}, nil
}

// GetParcelImageList returns one image per waybill.
func (m *MockAPIClient) GetParcelImageList(ctx context.Context, waybillID int, token string) ([]ParcelImage, error) {
	if err := m.begin(ctx, "GetParcelImageList"); err != nil {
		return nil, err
	}
	if err := m.checkToken(token); err != nil {
		return nil, err
	}
	return []ParcelImage{{
		ParcelID: fmt.Sprintf("%d-1", waybillID),
		File:     File{Filename: fmt.Sprintf("%d-1.jpg", waybillID), MimeType: "image/jpeg"},
	}}, nil
}

// GetParcelImage returns a placeholder image.
func (m *MockAPIClient) GetParcelImage(ctx context.Context, parcelID string, token string) (*ParcelImage, error) {
	if err := m.begin(ctx, "GetParcelImage"); err != nil {
		return nil, err
	}
	if err := m.checkToken(token); err != nil {
		return nil, err
	}
	data := []byte{0xff, 0xd8, 0xff}
	return &ParcelImage{
		ParcelID: parcelID,
		File: File{
			Filename: parcelID + ".jpg",
			MimeType: "image/jpeg",
			Size:     len(data),
			Data:     data,
		},
	}, nil
}

func copySet(s ReferenceSet) ReferenceSet {
	out := make(ReferenceSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
