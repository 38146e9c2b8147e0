package collivery

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/tournevent/collivery/pkg/transport"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
)

// DefaultSOAPURL is the Collivery SOAP endpoint.
const DefaultSOAPURL = "https://www.collivery.co.za/wsdl/v2"

// SOAPAPIClient implements APIClient over the Collivery SOAP service.
type SOAPAPIClient struct {
	http     *transport.Client
	endpoint string
}

// SOAPAPIClientConfig holds configuration for the SOAP client.
type SOAPAPIClientConfig struct {
	URL        string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *otelzap.Logger
}

// NewSOAPAPIClient creates a SOAP API client. It fails when the endpoint is not an
// absolute http(s) URL.
func NewSOAPAPIClient(cfg SOAPAPIClientConfig) (*SOAPAPIClient, error) {
	endpoint := cfg.URL
	if endpoint == "" {
		endpoint = DefaultSOAPURL
	}
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &APIError{Kind: KindSOAP, Code: "soap_client", Message: fmt.Sprintf("invalid SOAP endpoint %q", endpoint)}
	}

	return &SOAPAPIClient{
		endpoint: endpoint,
		http: transport.New(transport.Config{
			Timeout:    cfg.Timeout,
			HTTPClient: cfg.HTTPClient,
			Logger:     cfg.Logger,
			Headers: map[string]string{
				"Content-Type": "text/xml; charset=utf-8",
			},
		}),
	}, nil
}

// soapParam is one positional RPC argument.
type soapParam struct {
	Name  string
	Value any
}

func param(name string, value any) soapParam { return soapParam{Name: name, Value: value} }

// Authenticate logs in; the response carries the session and default address.
func (c *SOAPAPIClient) Authenticate(ctx context.Context, req *AuthRequest) (*Session, error) {
	ret, err := c.call(ctx, "authenticate",
		param("email", req.Email),
		param("password", req.Password),
		param("token", nil),
		param("info", map[string]any{
			"name":    req.App.Name,
			"version": req.App.Version,
			"host":    req.App.Host,
			"url":     req.App.URL,
			"lang":    req.App.Lang,
		}),
	)
	if err != nil {
		return nil, err
	}
	m := asMap(ret)
	token := asString(m["token"])
	if token == "" {
		return nil, &APIError{Kind: KindAuth, Code: "auth", Message: "authenticate returned no token"}
	}
	return &Session{
		Email:            req.Email,
		Token:            token,
		ClientID:         asInt(m["client_id"]),
		UserID:           asInt(m["user_id"]),
		DefaultAddressID: asInt(m["default_address_id"]),
		FullName:         asString(m["full_name"]),
	}, nil
}

// GetTowns lists towns.
func (c *SOAPAPIClient) GetTowns(ctx context.Context, country, province, token string) (ReferenceSet, error) {
	var prov any
	if province != "" {
		prov = province
	}
	return c.referenceSet(ctx, "get_towns", "towns", param("country", country), param("province", prov), param("token", token))
}

// GetSuburbs lists suburbs; town 0 requests every suburb.
func (c *SOAPAPIClient) GetSuburbs(ctx context.Context, townID int, token string) (ReferenceSet, error) {
	var town any = "all"
	if townID != 0 {
		town = townID
	}
	return c.referenceSet(ctx, "get_suburbs", "suburbs", param("town_id", town), param("token", token))
}

// GetLocationTypes lists location types.
func (c *SOAPAPIClient) GetLocationTypes(ctx context.Context, token string) (ReferenceSet, error) {
	return c.referenceSet(ctx, "get_location_types", "results", param("token", token))
}

// GetParcelTypes lists parcel types.
func (c *SOAPAPIClient) GetParcelTypes(ctx context.Context, token string) (ReferenceSet, error) {
	return c.referenceSet(ctx, "get_parcel_types", "", param("token", token))
}

// GetServices lists delivery services.
func (c *SOAPAPIClient) GetServices(ctx context.Context, token string) (ReferenceSet, error) {
	return c.referenceSet(ctx, "get_services", "services", param("token", token))
}

// GetAddress fetches one address.
func (c *SOAPAPIClient) GetAddress(ctx context.Context, addressID int, token string) (*Address, error) {
	ret, err := c.call(ctx, "get_address", param("address_id", addressID), param("token", token))
	if err != nil {
		return nil, err
	}
	m := asMap(asMap(ret)["address"])
	if m == nil {
		return nil, unexpected(errNoResult)
	}
	addr := parseAddress(m)
	return &addr, nil
}

// GetAddresses lists addresses matching filter.
func (c *SOAPAPIClient) GetAddresses(ctx context.Context, filter AddressFilter, token string) ([]Address, error) {
	ret, err := c.call(ctx, "get_addresses", param("filter", filterPayload(filter)), param("token", token))
	if err != nil {
		return nil, err
	}
	return parseAddresses(asMap(ret)["addresses"]), nil
}

// AddAddress creates an address with its first contact.
func (c *SOAPAPIClient) AddAddress(ctx context.Context, req *AddressRequest, token string) (*AddressResult, error) {
	ret, err := c.call(ctx, "add_address", param("data", addressPayload(req)), param("token", token))
	if err != nil {
		return nil, err
	}
	m := asMap(ret)
	res := &AddressResult{AddressID: asInt(m["address_id"]), ContactID: asInt(m["contact_id"])}
	if res.AddressID == 0 {
		return nil, unexpected(errNoResult)
	}
	return res, nil
}

// GetContacts lists the contacts of an address.
func (c *SOAPAPIClient) GetContacts(ctx context.Context, addressID int, token string) ([]Contact, error) {
	ret, err := c.call(ctx, "get_contacts", param("address_id", addressID), param("token", token))
	if err != nil {
		return nil, err
	}
	raw, ok := asMap(ret)["contacts"]
	if !ok {
		return nil, unexpected(errNoResult)
	}
	contacts := parseContacts(raw)
	for i := range contacts {
		if contacts[i].AddressID == 0 {
			contacts[i].AddressID = addressID
		}
	}
	return contacts, nil
}

// AddContact adds a contact to an address.
func (c *SOAPAPIClient) AddContact(ctx context.Context, req *ContactRequest, token string) (*Contact, error) {
	ret, err := c.call(ctx, "add_contact", param("data", contactPayload(req)), param("token", token))
	if err != nil {
		return nil, err
	}
	id := asInt(asMap(ret)["contact_id"])
	if id == 0 {
		return nil, unexpected(errNoResult)
	}
	return &Contact{
		ContactID: id,
		AddressID: req.AddressID,
		FullName:  req.FullName,
		Phone:     req.Phone,
		Cellphone: req.Cellphone,
		Email:     req.Email,
	}, nil
}

// ValidateCollivery checks and adjusts a delivery.
func (c *SOAPAPIClient) ValidateCollivery(ctx context.Context, req *ColliveryRequest, token string) (*ValidatedCollivery, error) {
	ret, err := c.call(ctx, "validate", param("data", colliveryPayload(req)), param("token", token))
	if err != nil {
		return nil, err
	}
	m := asMap(ret)
	if m == nil {
		return nil, unexpected(errNoResult)
	}
	return parseValidated(req, m), nil
}

// GetPrice prices a delivery.
func (c *SOAPAPIClient) GetPrice(ctx context.Context, req *ColliveryRequest, token string) (*Price, error) {
	ret, err := c.call(ctx, "get_price", param("data", colliveryPayload(req)), param("token", token))
	if err != nil {
		return nil, err
	}
	price, err := parsePrice(asMap(ret))
	if err != nil {
		return nil, err
	}
	if price.ServiceID == 0 {
		price.ServiceID = req.ServiceID
	}
	return price, nil
}

// AddCollivery submits a delivery.
func (c *SOAPAPIClient) AddCollivery(ctx context.Context, req *ColliveryRequest, token string) (int, error) {
	ret, err := c.call(ctx, "add_collivery", param("data", colliveryPayload(req)), param("token", token))
	if err != nil {
		return 0, err
	}
	id := asInt(asMap(ret)["collivery_id"])
	if id == 0 {
		return 0, unexpected(errNoResult)
	}
	return id, nil
}

// AcceptCollivery accepts a submitted delivery.
func (c *SOAPAPIClient) AcceptCollivery(ctx context.Context, waybillID int, token string) (string, error) {
	ret, err := c.call(ctx, "accept_collivery", param("collivery_id", waybillID), param("token", token))
	if err != nil {
		return "", err
	}
	result := asString(asMap(ret)["result"])
	if result == "" {
		return "", unexpected(errNoResult)
	}
	return result, nil
}

// GetColliveryStatus fetches the tracking status of a waybill.
func (c *SOAPAPIClient) GetColliveryStatus(ctx context.Context, waybillID int, token string) (*Status, error) {
	ret, err := c.call(ctx, "get_collivery_status", param("collivery_id", waybillID), param("token", token))
	if err != nil {
		return nil, err
	}
	m := asMap(ret)
	if _, ok := m["status_id"]; !ok {
		return nil, unexpected(errNoResult)
	}
	return parseStatus(waybillID, m), nil
}

// GetPOD fetches the proof of delivery.
func (c *SOAPAPIClient) GetPOD(ctx context.Context, waybillID int, token string) (*File, error) {
	ret, err := c.call(ctx, "get_pod", param("collivery_id", waybillID), param("token", token))
	if err != nil {
		return nil, err
	}
	m := asMap(asMap(ret)["pod"])
	if m == nil {
		return nil, unexpected(errNoResult)
	}
	f, err := parseFile(m)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// GetParcelImageList lists parcel images for a waybill.
func (c *SOAPAPIClient) GetParcelImageList(ctx context.Context, waybillID int, token string) ([]ParcelImage, error) {
	ret, err := c.call(ctx, "get_parcel_image_list", param("collivery_id", waybillID), param("token", token))
	if err != nil {
		return nil, err
	}
	raw, ok := asMap(ret)["images"]
	if !ok {
		return nil, unexpected(errNoResult)
	}
	items := asSlice(raw)
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
func (c *SOAPAPIClient) GetParcelImage(ctx context.Context, parcelID string, token string) (*ParcelImage, error) {
	ret, err := c.call(ctx, "get_parcel_image", param("parcel_id", parcelID), param("token", token))
	if err != nil {
		return nil, err
	}
	m := asMap(asMap(ret)["image"])
	if m == nil {
		return nil, unexpected(errNoResult)
	}
	img, err := parseParcelImage(m)
	if err != nil {
		return nil, err
	}
	if img.ParcelID == "" {
		img.ParcelID = parcelID
	}
	return &img, nil
}

func (c *SOAPAPIClient) referenceSet(ctx context.Context, method, key string, params ...soapParam) (ReferenceSet, error) {
	ret, err := c.call(ctx, method, params...)
	if err != nil {
		return nil, err
	}
	v := ret
	if key != "" {
		var ok bool
		if v, ok = asMap(ret)[key]; !ok {
			return nil, unexpected(errNoResult)
		}
	}
	set, err := parseReferenceSet(v)
	if err != nil {
		return nil, unexpected(err.Error())
	}
	return set, nil
}

// ============================================================================
// SOAP Request Helpers
// ============================================================================

// call performs one RPC and returns the decoded <return> value.
func (c *SOAPAPIClient) call(ctx context.Context, method string, params ...soapParam) (any, error) {
	body, err := buildEnvelope(method, params)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	res := c.http.Request(ctx, http.MethodPost, c.endpoint, body, map[string]string{
		"SOAPAction": fmt.Sprintf("%q", c.endpoint+"#"+method),
	})
	if res.TransportError() {
		return nil, &APIError{Kind: KindTransport, Code: string(KindTransport), Message: res.ErrorMessage()}
	}

	ret, err := parseEnvelope(res.Body)
	if err != nil {
		var apiErr *APIError
		if res.HTTPError() && !(errors.As(err, &apiErr) && apiErr.Kind == KindSOAP) {
			return nil, &APIError{Kind: KindHTTP, Code: string(KindHTTP), Message: res.ErrorMessage(), StatusCode: res.StatusCode}
		}
		return nil, err
	}
	if m := asMap(ret); m != nil {
		if code, ok := m["error_id"]; ok {
			return nil, &APIError{Kind: KindSOAP, Code: asString(code), Message: asString(m["error"])}
		}
	}
	return ret, nil
}

const soapEnvelopeTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/" xmlns:ns1="urn:collivery" xmlns:xsd="http://www.w3.org/2001/XMLSchema" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:ns2="http://xml.apache.org/xml-soap" xmlns:SOAP-ENC="http://schemas.xmlsoap.org/soap/encoding/" SOAP-ENV:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
  <SOAP-ENV:Body>
    <ns1:{{.Method}}>{{range .Params}}
      <{{.Name}} {{.Type}}>{{.Inner}}</{{.Name}}>{{end}}
    </ns1:{{.Method}}>
  </SOAP-ENV:Body>
</SOAP-ENV:Envelope>`

var envelopeTmpl = template.Must(template.New("envelope").Parse(soapEnvelopeTemplate))

type encodedParam struct {
	Name  string
	Type  string
	Inner string
}

func buildEnvelope(method string, params []soapParam) ([]byte, error) {
	encoded := make([]encodedParam, 0, len(params))
	for _, prm := range params {
		typ, inner, err := encodeValue(prm.Value)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", prm.Name, err)
		}
		encoded = append(encoded, encodedParam{Name: prm.Name, Type: typ, Inner: inner})
	}

	var buf bytes.Buffer
	err := envelopeTmpl.Execute(&buf, struct {
		Method string
		Params []encodedParam
	}{Method: method, Params: encoded})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeValue renders v in SOAP encoding, returning the type attribute and the
// escaped element content. Maps use the ns2:Map item/key/value layout.
func encodeValue(v any) (string, string, error) {
	switch t := v.(type) {
	case nil:
		return `xsi:nil="true"`, "", nil
	case string:
		return `xsi:type="xsd:string"`, escape(t), nil
	case int:
		return `xsi:type="xsd:int"`, strconv.Itoa(t), nil
	case int64:
		return `xsi:type="xsd:int"`, strconv.FormatInt(t, 10), nil
	case float64:
		return `xsi:type="xsd:float"`, strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return `xsi:type="xsd:boolean"`, strconv.FormatBool(t), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for _, k := range keys {
			typ, inner, err := encodeValue(t[k])
			if err != nil {
				return "", "", err
			}
			fmt.Fprintf(&b, `<item><key xsi:type="xsd:string">%s</key><value %s>%s</value></item>`, escape(k), typ, inner)
		}
		return `xsi:type="ns2:Map"`, b.String(), nil
	case []any:
		var b strings.Builder
		for _, item := range t {
			typ, inner, err := encodeValue(item)
			if err != nil {
				return "", "", err
			}
			fmt.Fprintf(&b, `<item %s>%s</item>`, typ, inner)
		}
		return fmt.Sprintf(`SOAP-ENC:arrayType="xsd:anyType[%d]" xsi:type="SOAP-ENC:Array"`, len(t)), b.String(), nil
	default:
		return "", "", fmt.Errorf("unsupported SOAP value type %T", v)
	}
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// ============================================================================
// SOAP Response Parsers
// ============================================================================

type soapEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    soapBody `xml:"Body"`
}

type soapBody struct {
	Fault *soapFault `xml:"Fault"`
	Nodes []xmlNode  `xml:",any"`
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

type xmlNode struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Text    string     `xml:",chardata"`
	Nodes   []xmlNode  `xml:",any"`
}

func (n xmlNode) attr(local string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func (n xmlNode) child(local string) (xmlNode, bool) {
	for _, c := range n.Nodes {
		if c.XMLName.Local == local {
			return c, true
		}
	}
	return xmlNode{}, false
}

func parseEnvelope(body []byte) (any, error) {
	var env soapEnvelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return nil, unexpected(fmt.Sprintf("failed to decode SOAP response: %v", err))
	}
	if f := env.Body.Fault; f != nil {
		return nil, &APIError{Kind: KindSOAP, Code: f.Code, Message: f.String}
	}
	if len(env.Body.Nodes) == 0 {
		return nil, unexpected(errNoResult)
	}

	resp := env.Body.Nodes[0]
	if ret, ok := resp.child("return"); ok {
		return decodeNode(ret), nil
	}
	if len(resp.Nodes) > 0 {
		return decodeNode(resp.Nodes[0]), nil
	}
	return nil, unexpected(errNoResult)
}

// decodeNode turns SOAP-encoded XML into maps, slices and strings.
func decodeNode(n xmlNode) any {
	if n.attr("nil") == "true" {
		return nil
	}
	typ := n.attr("type")

	if len(n.Nodes) == 0 {
		switch {
		case strings.HasSuffix(typ, "Map"), strings.HasSuffix(typ, "Struct"):
			return map[string]any{}
		case strings.HasSuffix(typ, "Array"):
			return []any{}
		}
		return strings.TrimSpace(n.Text)
	}

	allItems := true
	keyed := true
	for _, c := range n.Nodes {
		if c.XMLName.Local != "item" {
			allItems = false
			break
		}
		if _, ok := c.child("key"); !ok {
			keyed = false
		}
	}

	switch {
	case allItems && keyed:
		m := make(map[string]any, len(n.Nodes))
		for _, item := range n.Nodes {
			key, _ := item.child("key")
			val, _ := item.child("value")
			m[strings.TrimSpace(key.Text)] = decodeNode(val)
		}
		return m
	case allItems:
		out := make([]any, 0, len(n.Nodes))
		for _, item := range n.Nodes {
			out = append(out, decodeNode(item))
		}
		return out
	default:
		m := make(map[string]any, len(n.Nodes))
		for _, c := range n.Nodes {
			m[c.XMLName.Local] = decodeNode(c)
		}
		return m
	}
}
