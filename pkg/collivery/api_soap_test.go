package collivery_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/collivery/pkg/collivery"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const soapResponse = `<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/" xmlns:ns1="urn:collivery" xmlns:xsd="http://www.w3.org/2001/XMLSchema" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:ns2="http://xml.apache.org/xml-soap">
  <SOAP-ENV:Body>
    <ns1:%[1]sResponse>
      <return xsi:type="ns2:Map">%[2]s</return>
    </ns1:%[1]sResponse>
  </SOAP-ENV:Body>
</SOAP-ENV:Envelope>`

func item(key, value string) string {
	return fmt.Sprintf(`<item><key xsi:type="xsd:string">%s</key><value xsi:type="xsd:string">%s</value></item>`, key, value)
}

func mapItem(key string, items ...string) string {
	inner := ""
	for _, i := range items {
		inner += i
	}
	return fmt.Sprintf(`<item><key xsi:type="xsd:string">%s</key><value xsi:type="ns2:Map">%s</value></item>`, key, inner)
}

type soapCall struct {
	action string
	body   string
}

func newSOAPTestClient(t *testing.T, status int, payload string) (*collivery.SOAPAPIClient, *soapCall) {
	t.Helper()
	call := &soapCall{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		call.action = r.Header.Get("SOAPAction")
		call.body = string(body)
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		w.WriteHeader(status)
		_, _ = fmt.Fprint(w, payload)
	}))
	t.Cleanup(server.Close)

	client, err := collivery.NewSOAPAPIClient(collivery.SOAPAPIClientConfig{
		URL:    server.URL + "/wsdl/v2",
		Logger: otelzap.New(zap.NewNop()),
	})
	require.NoError(t, err)
	return client, call
}

func TestSOAPAPIClient_Authenticate(t *testing.T) {
	payload := fmt.Sprintf(soapResponse, "authenticate",
		item("token", "soap-token")+item("client_id", "9")+item("user_id", "5")+item("default_address_id", "77"))
	client, call := newSOAPTestClient(t, http.StatusOK, payload)

	session, err := client.Authenticate(context.Background(), &collivery.AuthRequest{
		Email:    "shop@example.com",
		Password: "p&ss",
		App:      collivery.AppInfo{Name: "tournevent"},
	})

	require.NoError(t, err)
	assert.Equal(t, "soap-token", session.Token)
	assert.Equal(t, 9, session.ClientID)
	assert.Equal(t, 77, session.DefaultAddressID)
	assert.Contains(t, call.action, "#authenticate")
	assert.Contains(t, call.body, "<ns1:authenticate>")
	assert.Contains(t, call.body, "p&amp;ss")
	assert.Contains(t, call.body, `<token xsi:nil="true">`)
	assert.Contains(t, call.body, `<key xsi:type="xsd:string">name</key><value xsi:type="xsd:string">tournevent</value>`)
}

func TestSOAPAPIClient_GetTowns(t *testing.T) {
	payload := fmt.Sprintf(soapResponse, "get_towns",
		mapItem("towns", item("147", "Cape Town"), item("200", "Johannesburg")))
	client, call := newSOAPTestClient(t, http.StatusOK, payload)

	towns, err := client.GetTowns(context.Background(), "ZAF", "", "tok")

	require.NoError(t, err)
	assert.Equal(t, collivery.ReferenceSet{147: "Cape Town", 200: "Johannesburg"}, towns)
	assert.Contains(t, call.body, `<province xsi:nil="true">`)
	assert.Contains(t, call.body, `<token xsi:type="xsd:string">tok</token>`)
}

func TestSOAPAPIClient_GetSuburbs_All(t *testing.T) {
	payload := fmt.Sprintf(soapResponse, "get_suburbs", mapItem("suburbs", item("1936", "Gardens")))
	client, call := newSOAPTestClient(t, http.StatusOK, payload)

	suburbs, err := client.GetSuburbs(context.Background(), 0, "tok")

	require.NoError(t, err)
	assert.Equal(t, "Gardens", suburbs[1936])
	assert.Contains(t, call.body, `<town_id xsi:type="xsd:string">all</town_id>`)
}

func TestSOAPAPIClient_InBandError(t *testing.T) {
	payload := fmt.Sprintf(soapResponse, "get_services", item("error_id", "invalid_token")+item("error", "Token expired"))
	client, _ := newSOAPTestClient(t, http.StatusOK, payload)

	_, err := client.GetServices(context.Background(), "stale")

	var apiErr *collivery.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, collivery.KindSOAP, apiErr.Kind)
	assert.Equal(t, "invalid_token", apiErr.Code)
	assert.Equal(t, "Token expired", apiErr.Message)
	assert.True(t, apiErr.IsAuth())
}

func TestSOAPAPIClient_Fault(t *testing.T) {
	payload := `<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/">
  <SOAP-ENV:Body>
    <SOAP-ENV:Fault>
      <faultcode>SOAP-ENV:Server</faultcode>
      <faultstring>Procedure not present</faultstring>
    </SOAP-ENV:Fault>
  </SOAP-ENV:Body>
</SOAP-ENV:Envelope>`
	client, _ := newSOAPTestClient(t, http.StatusInternalServerError, payload)

	_, err := client.GetParcelTypes(context.Background(), "tok")

	var apiErr *collivery.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, collivery.KindSOAP, apiErr.Kind)
	assert.Equal(t, "SOAP-ENV:Server", apiErr.Code)
	assert.Equal(t, "Procedure not present", apiErr.Message)
}

func TestSOAPAPIClient_HTTPErrorWithoutEnvelope(t *testing.T) {
	client, _ := newSOAPTestClient(t, http.StatusBadGateway, "bad gateway")

	_, err := client.GetServices(context.Background(), "tok")

	var apiErr *collivery.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, collivery.KindHTTP, apiErr.Kind)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestSOAPAPIClient_GetPrice(t *testing.T) {
	payload := fmt.Sprintf(soapResponse, "get_price",
		item("service", "2")+mapItem("price", item("ex_vat", "100"), item("vat", "15"), item("inc_vat", "115")))
	client, call := newSOAPTestClient(t, http.StatusOK, payload)

	price, err := client.GetPrice(context.Background(), &collivery.ColliveryRequest{
		FromTownID: 147,
		ToTownID:   200,
		ParcelType: 2,
		ServiceID:  2,
		Parcels:    []collivery.Parcel{{Weight: 2.5}},
	}, "tok")

	require.NoError(t, err)
	assert.InDelta(t, 115.0, price.IncVAT, 0.001)
	assert.Contains(t, call.body, `xsi:type="SOAP-ENC:Array"`)
	assert.Contains(t, call.body, `<value xsi:type="xsd:float">2.5</value>`)
}

func TestNewSOAPAPIClient_InvalidURL(t *testing.T) {
	_, err := collivery.NewSOAPAPIClient(collivery.SOAPAPIClientConfig{URL: "ftp://example.com"})

	var apiErr *collivery.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "soap_client", apiErr.Code)
}
