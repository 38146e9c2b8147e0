package collivery

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// APIClient defines the carrier operations. The REST, SOAP and mock implementations
// are interchangeable; every authenticated call takes the session token last.
type APIClient interface {
	// Authenticate logs in and returns the session, including the default address.
	Authenticate(ctx context.Context, req *AuthRequest) (*Session, error)

	GetTowns(ctx context.Context, country, province, token string) (ReferenceSet, error)
	// GetSuburbs lists the suburbs of townID, or every suburb when townID is 0.
	GetSuburbs(ctx context.Context, townID int, token string) (ReferenceSet, error)
	GetLocationTypes(ctx context.Context, token string) (ReferenceSet, error)
	GetParcelTypes(ctx context.Context, token string) (ReferenceSet, error)
	GetServices(ctx context.Context, token string) (ReferenceSet, error)

	GetAddress(ctx context.Context, addressID int, token string) (*Address, error)
	GetAddresses(ctx context.Context, filter AddressFilter, token string) ([]Address, error)
	AddAddress(ctx context.Context, req *AddressRequest, token string) (*AddressResult, error)
	GetContacts(ctx context.Context, addressID int, token string) ([]Contact, error)
	AddContact(ctx context.Context, req *ContactRequest, token string) (*Contact, error)

	ValidateCollivery(ctx context.Context, req *ColliveryRequest, token string) (*ValidatedCollivery, error)
	GetPrice(ctx context.Context, req *ColliveryRequest, token string) (*Price, error)
	// AddCollivery submits a delivery and returns its waybill number.
	AddCollivery(ctx context.Context, req *ColliveryRequest, token string) (int, error)
	// AcceptCollivery returns the carrier's result text.
	AcceptCollivery(ctx context.Context, waybillID int, token string) (string, error)

	GetColliveryStatus(ctx context.Context, waybillID int, token string) (*Status, error)
	GetPOD(ctx context.Context, waybillID int, token string) (*File, error)
	GetParcelImageList(ctx context.Context, waybillID int, token string) ([]ParcelImage, error)
	GetParcelImage(ctx context.Context, parcelID string, token string) (*ParcelImage, error)
}

// AuthRequest holds login credentials and the integrating application's identity.
type AuthRequest struct {
	Email    string
	Password string
	App      AppInfo
}

// APIError is returned by APIClient implementations.
type APIError struct {
	Kind       Kind
	Code       string
	Message    string
	StatusCode int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("collivery %s error (%s, HTTP %d): %s", e.Kind, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("collivery %s error (%s): %s", e.Kind, e.Code, e.Message)
}

// IsAuth reports whether the carrier rejected the credentials or session token.
func (e *APIError) IsAuth() bool {
	return e.Kind == KindAuth ||
		e.StatusCode == http.StatusUnauthorized ||
		strings.EqualFold(e.Code, "invalid_token")
}

func unexpected(message string) *APIError {
	return &APIError{Kind: KindResultUnexpected, Code: string(KindResultUnexpected), Message: message}
}

// errNoResult is the message used when a response lacks the expected payload.
const errNoResult = "No result returned."
