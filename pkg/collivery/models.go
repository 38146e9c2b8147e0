package collivery

import (
	"sort"
	"strings"
	"time"
)

// DefaultCountry is the ISO3 country code Collivery operates in.
const DefaultCountry = "ZAF"

// ReferenceSet maps carrier IDs to display names (towns, suburbs, location types,
// parcel types, services).
type ReferenceSet map[int]string

// Has reports whether id is a member of the set.
func (r ReferenceSet) Has(id int) bool {
	_, ok := r[id]
	return ok
}

// Lookup finds the ID whose name matches name, ignoring case and surrounding space.
func (r ReferenceSet) Lookup(name string) (int, bool) {
	name = strings.TrimSpace(name)
	for id, n := range r {
		if strings.EqualFold(strings.TrimSpace(n), name) {
			return id, true
		}
	}
	return 0, false
}

// IDs returns the member IDs in ascending order.
func (r ReferenceSet) IDs() []int {
	ids := make([]int, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// AppInfo identifies the integrating application to the carrier.
type AppInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Host    string `json:"host"`
	URL     string `json:"url"`
	Lang    string `json:"lang"`
}

// Session is an authenticated carrier session.
type Session struct {
	Email            string `json:"email"`
	Token            string `json:"token"`
	ClientID         int    `json:"client_id"`
	UserID           int    `json:"user_id"`
	DefaultAddressID int    `json:"default_address_id"`
	FullName         string `json:"full_name,omitempty"`
}

// Address is an address stored in the carrier's address book.
type Address struct {
	AddressID    int    `json:"address_id"`
	ClientID     int    `json:"client_id,omitempty"`
	CustomID     string `json:"custom_id,omitempty"`
	CompanyName  string `json:"company_name,omitempty"`
	Building     string `json:"building,omitempty"`
	StreetNumber string `json:"street_number,omitempty"`
	Street       string `json:"street"`
	LocationType int    `json:"location_type"`
	SuburbID     int    `json:"suburb_id"`
	SuburbName   string `json:"suburb_name,omitempty"`
	TownID       int    `json:"town_id"`
	TownName     string `json:"town_name,omitempty"`
	ZipCode      string `json:"zip_code,omitempty"`
	// ContactID is the address's default contact, when the carrier reports one.
	ContactID int `json:"contact_id,omitempty"`
}

// AddressFilter narrows Addresses. The zero value lists every address.
type AddressFilter struct {
	CustomID    string `json:"custom_id,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	TownID      int    `json:"town_id,omitempty"`
	SuburbID    int    `json:"suburb_id,omitempty"`
}

// IsEmpty reports whether no filter field is set.
func (f AddressFilter) IsEmpty() bool {
	return f == AddressFilter{}
}

// AddressRequest creates an address together with its first contact.
type AddressRequest struct {
	CompanyName  string `json:"company_name,omitempty"`
	Building     string `json:"building,omitempty"`
	StreetNumber string `json:"street_number,omitempty"`
	Street       string `json:"street"`
	LocationType int    `json:"location_type"`
	SuburbID     int    `json:"suburb_id"`
	TownID       int    `json:"town_id"`
	ZipCode      string `json:"zip_code,omitempty"`
	CustomID     string `json:"custom_id,omitempty"`
	FullName     string `json:"full_name"`
	Phone        string `json:"phone,omitempty"`
	Cellphone    string `json:"cellphone,omitempty"`
	Email        string `json:"email,omitempty"`
}

// AddressResult identifies a newly created address and contact.
type AddressResult struct {
	AddressID int `json:"address_id"`
	ContactID int `json:"contact_id"`
}

// Contact is a person reachable at an address.
type Contact struct {
	ContactID int    `json:"contact_id"`
	AddressID int    `json:"address_id"`
	FullName  string `json:"full_name"`
	Phone     string `json:"phone,omitempty"`
	Cellphone string `json:"cellphone,omitempty"`
	Email     string `json:"email,omitempty"`
}

// ContactRequest adds a contact to an existing address.
type ContactRequest struct {
	AddressID int    `json:"address_id"`
	FullName  string `json:"full_name"`
	Phone     string `json:"phone,omitempty"`
	Cellphone string `json:"cellphone,omitempty"`
	Email     string `json:"email,omitempty"`
}

// DefaultAddress is the account's default collection address with its contacts.
type DefaultAddress struct {
	AddressID int       `json:"address_id"`
	Address   Address   `json:"address"`
	Contacts  []Contact `json:"contacts"`
}

// Parcel is one physical piece. Dimensions in cm, weight in kg.
type Parcel struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Weight float64 `json:"weight"`
}

// ColliveryRequest describes a delivery for validation, pricing and submission.
// Pricing accepts town/location-type pairs in place of address IDs.
type ColliveryRequest struct {
	CollectionAddressID int       `json:"collivery_from,omitempty"`
	CollectionContactID int       `json:"contact_from,omitempty"`
	DeliveryAddressID   int       `json:"collivery_to,omitempty"`
	DeliveryContactID   int       `json:"contact_to,omitempty"`
	FromTownID          int       `json:"from_town_id,omitempty"`
	FromLocationType    int       `json:"from_location_type,omitempty"`
	ToTownID            int       `json:"to_town_id,omitempty"`
	ToLocationType      int       `json:"to_location_type,omitempty"`
	ParcelType          int       `json:"collivery_type,omitempty"`
	ServiceID           int       `json:"service,omitempty"`
	Parcels             []Parcel  `json:"parcels,omitempty"`
	Cover               bool      `json:"cover"`
	Rica                bool      `json:"rica"`
	CollectionTime      time.Time `json:"collection_time,omitempty"`
	DeliveryTime        time.Time `json:"delivery_time,omitempty"`
	Instructions        string    `json:"instructions,omitempty"`
	CustomerReference   string    `json:"cust_ref,omitempty"`
}

// ValidatedCollivery is the carrier-adjusted request returned by Validate.
type ValidatedCollivery struct {
	Request           ColliveryRequest `json:"request"`
	TimeChanged       bool             `json:"time_changed"`
	TimeChangedReason string           `json:"time_changed_reason,omitempty"`
}

// Price is a carrier price for one service.
type Price struct {
	ServiceID int     `json:"service"`
	ExVAT     float64 `json:"ex_vat"`
	IncVAT    float64 `json:"inc_vat"`
	VAT       float64 `json:"vat"`
}

// Status is the tracking state of a waybill.
type Status struct {
	WaybillID int    `json:"waybill_id"`
	StatusID  int    `json:"status_id"`
	Status    string `json:"status_text"`
	UpdatedAt string `json:"updated_at,omitempty"`
	ETA       string `json:"eta,omitempty"`
}

// File is a document returned by the carrier (proof of delivery, parcel image).
type File struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime"`
	Size     int    `json:"size,omitempty"`
	Data     []byte `json:"file,omitempty"`
}

// ParcelImage describes an image captured for a parcel.
type ParcelImage struct {
	ParcelID string `json:"parcel_id"`
	File
}
