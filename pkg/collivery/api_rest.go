package collivery

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tournevent/collivery/pkg/transport"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
)

// DefaultBaseURL is the Collivery REST API root.
const DefaultBaseURL = "https://api.collivery.co.za/v3/"

// RESTAPIClient is the production implementation of APIClient over the JSON API.
type RESTAPIClient struct {
	http *transport.Client
}

// RESTAPIClientConfig holds configuration for the REST client.
type RESTAPIClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	App        AppInfo
	HTTPClient *http.Client
	Logger     *otelzap.Logger
}

// NewRESTAPIClient creates a REST API client.
func NewRESTAPIClient(cfg RESTAPIClientConfig) *RESTAPIClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &RESTAPIClient{
		http: transport.New(transport.Config{
			BaseURL:    baseURL,
			Timeout:    cfg.Timeout,
			DecodeJSON: true,
			HTTPClient: cfg.HTTPClient,
			Logger:     cfg.Logger,
			Headers: map[string]string{
				"Content-Type":  "application/json",
				"Accept":        "application/json",
				"X-App-Name":    cfg.App.Name,
				"X-App-Version": cfg.App.Version,
				"X-App-Host":    cfg.App.Host,
				"X-App-Url":     cfg.App.URL,
				"X-App-Lang":    cfg.App.Lang,
			},
		}),
	}
}

// Authenticate logs in and resolves the account's default address.
func (c *RESTAPIClient) Authenticate(ctx context.Context, req *AuthRequest) (*Session, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "login", "", map[string]any{
		"email":    req.Email,
		"password": req.Password,
	})
	if err != nil {
		return nil, err
	}

	m := asMap(data)
	token := asString(m["api_token"])
	if token == "" {
		return nil, &APIError{Kind: KindAuth, Code: "auth", Message: "login returned no api_token"}
	}

	session := &Session{
		Email:    asString(firstOf(m, "email_address", "email")),
		Token:    token,
		UserID:   asInt(m["id"]),
		ClientID: asInt(m["client_id"]),
		FullName: asString(m["full_name"]),
	}
	if client := asMap(m["client"]); client != nil {
		if session.ClientID == 0 {
			session.ClientID = asInt(client["id"])
		}
		session.DefaultAddressID = idOf(firstOf(client, "primary_address", "primary_address_id"))
	}

	if session.DefaultAddressID == 0 {
		def, err := c.doRequest(ctx, http.MethodGet, "default_address", token, nil)
		if err != nil {
			return nil, err
		}
		session.DefaultAddressID = asInt(firstOf(asMap(def), "id", "address_id"))
	}
	return session, nil
}

// GetTowns lists the towns of a country, optionally narrowed to a province.
func (c *RESTAPIClient) GetTowns(ctx context.Context, country, province, token string) (ReferenceSet, error) {
	q := map[string]any{"country": country, "per_page": 0}
	if province != "" {
		q["province"] = province
	}
	return c.referenceSet(ctx, "towns", token, q)
}

// GetSuburbs lists suburbs, for one town or all of them.
func (c *RESTAPIClient) GetSuburbs(ctx context.Context, townID int, token string) (ReferenceSet, error) {
	q := map[string]any{"country": DefaultCountry, "per_page": 0}
	if townID != 0 {
		q["town_id"] = townID
	}
	return c.referenceSet(ctx, "suburbs", token, q)
}

// GetLocationTypes lists location types.
func (c *RESTAPIClient) GetLocationTypes(ctx context.Context, token string) (ReferenceSet, error) {
	return c.referenceSet(ctx, "location_types", token, nil)
}

// GetParcelTypes lists parcel types.
func (c *RESTAPIClient) GetParcelTypes(ctx context.Context, token string) (ReferenceSet, error) {
	return c.referenceSet(ctx, "parcel_types", token, nil)
}

// GetServices lists the delivery services.
func (c *RESTAPIClient) GetServices(ctx context.Context, token string) (ReferenceSet, error) {
	return c.referenceSet(ctx, "service_types", token, nil)
}

// GetAddress fetches one address.
func (c *RESTAPIClient) GetAddress(ctx context.Context, addressID int, token string) (*Address, error) {
	data, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("address/%d", addressID), token, nil)
	if err != nil {
		return nil, err
	}
	m := asMap(data)
	if m == nil {
		return nil, unexpected(errNoResult)
	}
	addr := parseAddress(m)
	return &addr, nil
}

// GetAddresses lists the account's addresses.
func (c *RESTAPIClient) GetAddresses(ctx context.Context, filter AddressFilter, token string) ([]Address, error) {
	q := filterPayload(filter)
	q["per_page"] = 0
	data, err := c.doRequest(ctx, http.MethodGet, "address", token, q)
	if err != nil {
		return nil, err
	}
	return parseAddresses(data), nil
}

// AddAddress creates an address with its first contact.
func (c *RESTAPIClient) AddAddress(ctx context.Context, req *AddressRequest, token string) (*AddressResult, error) {
	body := addressPayload(req)
	contact := map[string]any{"full_name": req.FullName}
	optional(contact, "phone", req.Phone)
	optional(contact, "cellphone", req.Cellphone)
	optional(contact, "email", req.Email)
	body["contact"] = contact

	data, err := c.doRequest(ctx, http.MethodPost, "address", token, body)
	if err != nil {
		return nil, err
	}

	m := asMap(data)
	res := &AddressResult{
		AddressID: asInt(firstOf(m, "address_id", "id")),
		ContactID: asInt(m["contact_id"]),
	}
	if res.ContactID == 0 {
		if contacts := parseContacts(m["contacts"]); len(contacts) > 0 {
			res.ContactID = contacts[0].ContactID
		}
	}
	if res.AddressID == 0 {
		return nil, unexpected(errNoResult)
	}
	return res, nil
}

// GetContacts lists the contacts of an address.
func (c *RESTAPIClient) GetContacts(ctx context.Context, addressID int, token string) ([]Contact, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "contacts", token, map[string]any{"address_id": addressID})
	if err != nil {
		return nil, err
	}
	contacts := parseContacts(data)
	for i := range contacts {
		if contacts[i].AddressID == 0 {
			contacts[i].AddressID = addressID
		}
	}
	return contacts, nil
}

// AddContact adds a contact to an address.
func (c *RESTAPIClient) AddContact(ctx context.Context, req *ContactRequest, token string) (*Contact, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "contacts", token, contactPayload(req))
	if err != nil {
		return nil, err
	}
	contact := parseContact(asMap(data))
	if contact.ContactID == 0 {
		return nil, unexpected(errNoResult)
	}
	if contact.AddressID == 0 {
		contact.AddressID = req.AddressID
	}
	return &contact, nil
}

// ValidateCollivery asks the carrier to check and adjust a delivery.
func (c *RESTAPIClient) ValidateCollivery(ctx context.Context, req *ColliveryRequest, token string) (*ValidatedCollivery, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "validate", token, colliveryPayload(req))
	if err != nil {
		return nil, err
	}
	m := asMap(data)
	if m == nil {
		return nil, unexpected(errNoResult)
	}
	return parseValidated(req, m), nil
}

// GetPrice prices a delivery.
func (c *RESTAPIClient) GetPrice(ctx context.Context, req *ColliveryRequest, token string) (*Price, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "quote", token, colliveryPayload(req))
	if err != nil {
		return nil, err
	}
	price, err := parsePrice(asMap(data))
	if err != nil {
		return nil, err
	}
	if price.ServiceID == 0 {
		price.ServiceID = req.ServiceID
	}
	return price, nil
}

// AddCollivery submits a delivery.
func (c *RESTAPIClient) AddCollivery(ctx context.Context, req *ColliveryRequest, token string) (int, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "waybill", token, colliveryPayload(req))
	if err != nil {
		return 0, err
	}
	id := asInt(firstOf(asMap(data), "collivery_id", "id"))
	if id == 0 {
		return 0, unexpected(errNoResult)
	}
	return id, nil
}

// AcceptCollivery accepts a submitted delivery.
func (c *RESTAPIClient) AcceptCollivery(ctx context.Context, waybillID int, token string) (string, error) {
	data, err := c.doRequest(ctx, http.MethodPut, fmt.Sprintf("waybill/%d/accept", waybillID), token, map[string]any{})
	if err != nil {
		return "", err
	}
	result := asString(firstOf(asMap(data), "result", "status"))
	if result == "" {
		return "", unexpected(errNoResult)
	}
	return result, nil
}

// GetColliveryStatus fetches the tracking status of a waybill.
func (c *RESTAPIClient) GetColliveryStatus(ctx context.Context, waybillID int, token string) (*Status, error) {
	data, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("status_tracking/%d", waybillID), token, nil)
	if err != nil {
		return nil, err
	}
	m := asMap(data)
	if m == nil {
		return nil, unexpected(errNoResult)
	}
	return parseStatus(waybillID, m), nil
}

// GetPOD fetches the proof of delivery.
func (c *RESTAPIClient) GetPOD(ctx context.Context, waybillID int, token string) (*File, error) {
	data, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("proof_of_delivery/%d", waybillID), token, nil)
	if err != nil {
		return nil, err
	}
	f, err := parseFile(asMap(data))
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// GetParcelImageList lists parcel images for a waybill.
func (c *RESTAPIClient) GetParcelImageList(ctx context.Context, waybillID int, token string) ([]ParcelImage, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "parcel_images", token, map[string]any{"waybill_id": waybillID})
	if err != nil {
		return nil, err
	}
	items := asSlice(data)
	images := make([]ParcelImage, 0, len(items))
	for _, item := range items {
		img, err := parseParcelImage(asMap(item))
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

// GetParcelImage fetches one parcel image.
func (c *RESTAPIClient) GetParcelImage(ctx context.Context, parcelID string, token string) (*ParcelImage, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "parcel_images/"+url.PathEscape(parcelID), token, nil)
	if err != nil {
		return nil, err
	}
	img, err := parseParcelImage(asMap(data))
	if err != nil {
		return nil, err
	}
	if img.ParcelID == "" {
		img.ParcelID = parcelID
	}
	return &img, nil
}

// ============================================================================
// HTTP helpers
// ============================================================================

func (c *RESTAPIClient) referenceSet(ctx context.Context, endpoint, token string, q map[string]any) (ReferenceSet, error) {
	data, err := c.doRequest(ctx, http.MethodGet, endpoint, token, q)
	if err != nil {
		return nil, err
	}
	set, err := parseReferenceSet(data)
	if err != nil {
		return nil, unexpected(err.Error())
	}
	return set, nil
}

// doRequest performs the call and returns the response's data member.
func (c *RESTAPIClient) doRequest(ctx context.Context, method, endpoint, token string, payload map[string]any) (any, error) {
	if token != "" {
		if method == http.MethodGet {
			if payload == nil {
				payload = map[string]any{}
			}
			payload["api_token"] = token
		} else {
			endpoint += "?api_token=" + url.QueryEscape(token)
		}
	}

	var body any
	if payload != nil {
		body = payload
	}

	res := c.http.Request(ctx, method, endpoint, body, nil)
	if res.TransportError() {
		return nil, &APIError{Kind: KindTransport, Code: string(KindTransport), Message: res.ErrorMessage()}
	}
	if res.HTTPError() {
		return nil, c.parseError(res)
	}

	envelope := asMap(res.JSON)
	if envelope == nil {
		return nil, unexpected(errNoResult)
	}
	if e := asMap(envelope["error"]); e != nil {
		return nil, &APIError{Kind: KindHTTP, Code: string(KindHTTP), Message: asString(e["message"]), StatusCode: res.StatusCode}
	}
	data, ok := envelope["data"]
	if !ok || data == nil {
		return nil, unexpected(errNoResult)
	}
	return data, nil
}

func (c *RESTAPIClient) parseError(res *transport.Result) error {
	message := res.ErrorMessage()
	if e := asMap(asMap(res.JSON)["error"]); e != nil {
		if m := strings.TrimSpace(asString(e["message"])); m != "" {
			message = m
		}
	}
	return &APIError{
		Kind:       KindHTTP,
		Code:       string(KindHTTP),
		Message:    message,
		StatusCode: res.StatusCode,
	}
}
