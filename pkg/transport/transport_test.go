package transport_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/collivery/pkg/transport"
)

func TestRequest_GetSendsQueryAndHeaders(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"id":7}}`))
	}))
	defer srv.Close()

	client := transport.New(transport.Config{
		BaseURL:    srv.URL + "/v3/",
		Headers:    map[string]string{"X-App-Name": "base", "Accept": "application/json"},
		DecodeJSON: true,
	})

	res := client.Request(context.Background(), "get", "towns", map[string]any{
		"country":  "ZAF",
		"per_page": 0,
	}, map[string]string{"x-app-name": "override"})

	require.False(t, res.Failed())
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 0, res.ErrorCode())
	assert.Equal(t, "/v3/towns", got.URL.Path)
	assert.Equal(t, "ZAF", got.URL.Query().Get("country"))
	assert.Equal(t, "0", got.URL.Query().Get("per_page"))
	assert.Equal(t, "override", got.Header.Get("X-App-Name"))
	assert.NotEmpty(t, got.Header.Get(transport.HeaderRequestID))

	data := res.JSON.(map[string]any)["data"].(map[string]any)
	assert.Equal(t, float64(7), data["id"])
}

func TestRequest_PostEncodesJSON(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := transport.New(transport.Config{
		BaseURL: srv.URL,
		Headers: map[string]string{"Content-Type": "application/json"},
	})
	res := client.Request(context.Background(), http.MethodPost, "/login", map[string]any{
		"email":    "demo@collivery.co.za",
		"password": "demo",
	}, nil)

	require.False(t, res.Failed())
	assert.Equal(t, "demo@collivery.co.za", body["email"])
	assert.Nil(t, res.JSON)
}

func TestRequest_PostFormWhenNotJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "1", r.PostForm.Get("rica"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := transport.New(transport.Config{BaseURL: srv.URL})
	res := client.Request(context.Background(), http.MethodPost, "/form", map[string]any{"rica": true},
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"})

	assert.False(t, res.Failed())
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
}

func TestRequest_RawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		assert.Equal(t, "<Envelope/>", string(b))
		w.Write([]byte("<ok/>"))
	}))
	defer srv.Close()

	client := transport.New(transport.Config{BaseURL: srv.URL, DecodeJSON: true})
	res := client.Request(context.Background(), http.MethodPost, "/", "<Envelope/>",
		map[string]string{"Content-Type": "text/xml; charset=utf-8"})

	require.False(t, res.Failed())
	assert.Equal(t, "<ok/>", string(res.Body))
	assert.Nil(t, res.JSON)
}

func TestRequest_HTTPErrorIsNotTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"Address not found"}}`))
	}))
	defer srv.Close()

	client := transport.New(transport.Config{BaseURL: srv.URL})
	res := client.Request(context.Background(), http.MethodGet, "/address/1", nil, nil)

	assert.True(t, res.HTTPError())
	assert.False(t, res.TransportError())
	assert.Equal(t, http.StatusNotFound, res.ErrorCode())
	assert.Equal(t, "HTTP 404: Not Found", res.ErrorMessage())

	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, res.Decode(&payload))
	assert.Equal(t, "Address not found", payload.Error.Message)
}

func TestRequest_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := transport.New(transport.Config{BaseURL: url})
	res := client.Request(context.Background(), http.MethodGet, "/", nil, nil)

	assert.True(t, res.TransportError())
	assert.False(t, res.HTTPError())
	assert.Equal(t, -1, res.ErrorCode())
	assert.NotEmpty(t, res.ErrorMessage())
}

func TestResult_DecodeEmptyBody(t *testing.T) {
	res := &transport.Result{StatusCode: http.StatusOK}
	var v map[string]any
	assert.ErrorIs(t, res.Decode(&v), transport.ErrNoBody)
}
