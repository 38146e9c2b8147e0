package collivery

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Both wire protocols decode into generic values (JSON objects and SOAP Maps
// alike become map[string]any), so the mapping onto domain types lives here once.

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// asSlice accepts lists and maps keyed by position or ID; map values are
// returned ordered by key.
func asSlice(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			a, errA := strconv.Atoi(keys[i])
			b, errB := strconv.Atoi(keys[j])
			if errA == nil && errB == nil {
				return a < b
			}
			return keys[i] < keys[j]
		})
		out := make([]any, 0, len(keys))
		for _, k := range keys {
			out = append(out, t[k])
		}
		return out
	default:
		return nil
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f
	case bool:
		if t {
			return 1
		}
	}
	return 0
}

func asInt(v any) int {
	if s, ok := v.(string); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n
		}
	}
	return int(asFloat(v))
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "yes", "y":
			return true
		}
		return false
	default:
		return asFloat(v) != 0
	}
}

// idOf reads an ID that may be given directly or as an object with an id field.
func idOf(v any) int {
	if m := asMap(v); m != nil {
		return asInt(m["id"])
	}
	return asInt(v)
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func unixTime(v any) time.Time {
	if n := asInt(v); n > 0 {
		return time.Unix(int64(n), 0)
	}
	return time.Time{}
}

func parseReferenceSet(v any) (ReferenceSet, error) {
	set := make(ReferenceSet)
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			id, err := strconv.Atoi(k)
			if m := asMap(val); m != nil {
				if n := asInt(m["id"]); n != 0 {
					id, err = n, nil
				}
				val = referenceName(m)
			}
			if err != nil {
				return nil, fmt.Errorf("reference key %q is not an id", k)
			}
			set[id] = asString(val)
		}
	case []any:
		for _, item := range t {
			m := asMap(item)
			if m == nil {
				return nil, fmt.Errorf("reference item has type %T", item)
			}
			set[asInt(m["id"])] = referenceName(m)
		}
	default:
		return nil, fmt.Errorf("reference set has type %T", v)
	}
	return set, nil
}

func referenceName(m map[string]any) string {
	return asString(firstOf(m, "name", "text", "type_text", "description"))
}

func parseAddress(m map[string]any) Address {
	a := Address{
		AddressID:    asInt(firstOf(m, "address_id", "id")),
		ClientID:     asInt(m["client_id"]),
		CustomID:     asString(m["custom_id"]),
		CompanyName:  asString(m["company_name"]),
		Building:     asString(firstOf(m, "building", "building_details")),
		StreetNumber: asString(m["street_number"]),
		Street:       asString(firstOf(m, "street", "street_name")),
		LocationType: idOf(m["location_type"]),
		SuburbID:     idOf(firstOf(m, "suburb_id", "suburb")),
		SuburbName:   asString(m["suburb_name"]),
		TownID:       idOf(firstOf(m, "town_id", "town")),
		TownName:     asString(m["town_name"]),
		ZipCode:      asString(firstOf(m, "zip_code", "postal_code")),
		ContactID:    asInt(m["contact_id"]),
	}
	if town := asMap(m["town"]); town != nil && a.TownName == "" {
		a.TownName = asString(town["name"])
	}
	if suburb := asMap(m["suburb"]); suburb != nil && a.SuburbName == "" {
		a.SuburbName = asString(suburb["name"])
	}
	return a
}

func parseAddresses(v any) []Address {
	items := asSlice(v)
	out := make([]Address, 0, len(items))
	for _, item := range items {
		if m := asMap(item); m != nil {
			out = append(out, parseAddress(m))
		}
	}
	return out
}

func parseContact(m map[string]any) Contact {
	return Contact{
		ContactID: asInt(firstOf(m, "contact_id", "id")),
		AddressID: asInt(m["address_id"]),
		FullName:  asString(m["full_name"]),
		Phone:     asString(firstOf(m, "phone", "work_phone")),
		Cellphone: asString(firstOf(m, "cellphone", "cell_no")),
		Email:     asString(firstOf(m, "email", "email_address")),
	}
}

func parseContacts(v any) []Contact {
	items := asSlice(v)
	out := make([]Contact, 0, len(items))
	for _, item := range items {
		if m := asMap(item); m != nil {
			out = append(out, parseContact(m))
		}
	}
	return out
}

func addressPayload(req *AddressRequest) map[string]any {
	p := map[string]any{
		"street":        req.Street,
		"location_type": req.LocationType,
		"town_id":       req.TownID,
		"suburb_id":     req.SuburbID,
		"full_name":     req.FullName,
	}
	optional(p, "company_name", req.CompanyName)
	optional(p, "building", req.Building)
	optional(p, "street_number", req.StreetNumber)
	optional(p, "zip_code", req.ZipCode)
	optional(p, "custom_id", req.CustomID)
	optional(p, "phone", req.Phone)
	optional(p, "cellphone", req.Cellphone)
	optional(p, "email", req.Email)
	return p
}

func contactPayload(req *ContactRequest) map[string]any {
	p := map[string]any{
		"address_id": req.AddressID,
		"full_name":  req.FullName,
	}
	optional(p, "phone", req.Phone)
	optional(p, "cellphone", req.Cellphone)
	optional(p, "email", req.Email)
	return p
}

func filterPayload(f AddressFilter) map[string]any {
	p := map[string]any{}
	optional(p, "custom_id", f.CustomID)
	optional(p, "company_name", f.CompanyName)
	if f.TownID != 0 {
		p["town_id"] = f.TownID
	}
	if f.SuburbID != 0 {
		p["suburb_id"] = f.SuburbID
	}
	return p
}

func optional(p map[string]any, key, value string) {
	if value != "" {
		p[key] = value
	}
}

func colliveryPayload(req *ColliveryRequest) map[string]any {
	p := map[string]any{
		"cover": req.Cover,
		"rica":  req.Rica,
	}
	ints := map[string]int{
		"collivery_from":     req.CollectionAddressID,
		"contact_from":       req.CollectionContactID,
		"collivery_to":       req.DeliveryAddressID,
		"contact_to":         req.DeliveryContactID,
		"from_town_id":       req.FromTownID,
		"from_location_type": req.FromLocationType,
		"to_town_id":         req.ToTownID,
		"to_location_type":   req.ToLocationType,
		"collivery_type":     req.ParcelType,
		"service":            req.ServiceID,
	}
	for k, v := range ints {
		if v != 0 {
			p[k] = v
		}
	}
	if len(req.Parcels) > 0 {
		parcels := make([]any, 0, len(req.Parcels))
		for _, parcel := range req.Parcels {
			parcels = append(parcels, map[string]any{
				"length": parcel.Length,
				"width":  parcel.Width,
				"height": parcel.Height,
				"weight": parcel.Weight,
			})
		}
		p["parcels"] = parcels
	}
	if !req.CollectionTime.IsZero() {
		p["collection_time"] = req.CollectionTime.Unix()
	}
	if !req.DeliveryTime.IsZero() {
		p["delivery_time"] = req.DeliveryTime.Unix()
	}
	optional(p, "instructions", req.Instructions)
	optional(p, "cust_ref", req.CustomerReference)
	return p
}

// mergeCollivery overlays the fields present in m onto base.
func mergeCollivery(base ColliveryRequest, m map[string]any) ColliveryRequest {
	out := base
	setInt := func(key string, dst *int) {
		if v, ok := m[key]; ok && v != nil {
			*dst = asInt(v)
		}
	}
	setInt("collivery_from", &out.CollectionAddressID)
	setInt("contact_from", &out.CollectionContactID)
	setInt("collivery_to", &out.DeliveryAddressID)
	setInt("contact_to", &out.DeliveryContactID)
	setInt("collivery_type", &out.ParcelType)
	setInt("service", &out.ServiceID)

	if v, ok := m["cover"]; ok {
		out.Cover = asBool(v)
	}
	if v, ok := m["rica"]; ok {
		out.Rica = asBool(v)
	}
	if t := unixTime(m["collection_time"]); !t.IsZero() {
		out.CollectionTime = t
	}
	if t := unixTime(m["delivery_time"]); !t.IsZero() {
		out.DeliveryTime = t
	}
	if items := asSlice(m["parcels"]); len(items) > 0 {
		parcels := make([]Parcel, 0, len(items))
		for _, item := range items {
			pm := asMap(item)
			parcels = append(parcels, Parcel{
				Length: asFloat(pm["length"]),
				Width:  asFloat(pm["width"]),
				Height: asFloat(pm["height"]),
				Weight: asFloat(pm["weight"]),
			})
		}
		out.Parcels = parcels
	}
	return out
}

func parseValidated(req *ColliveryRequest, m map[string]any) *ValidatedCollivery {
	return &ValidatedCollivery{
		Request:           mergeCollivery(*req, m),
		TimeChanged:       asBool(m["time_changed"]),
		TimeChangedReason: asString(m["time_changed_reason"]),
	}
}

func parsePrice(m map[string]any) (*Price, error) {
	price := asMap(m["price"])
	if price == nil {
		price = m
	}
	if _, ok := price["inc_vat"]; !ok {
		return nil, unexpected(errNoResult)
	}
	return &Price{
		ServiceID: asInt(m["service"]),
		ExVAT:     asFloat(price["ex_vat"]),
		IncVAT:    asFloat(price["inc_vat"]),
		VAT:       asFloat(price["vat"]),
	}, nil
}

func parseStatus(waybillID int, m map[string]any) *Status {
	updated := asString(m["updated_at"])
	if updated == "" {
		updated = strings.TrimSpace(asString(m["updated_date"]) + " " + asString(m["updated_time"]))
	}
	return &Status{
		WaybillID: waybillID,
		StatusID:  asInt(m["status_id"]),
		Status:    asString(firstOf(m, "status_text", "status_name")),
		UpdatedAt: updated,
		ETA:       asString(m["eta"]),
	}
}

func parseFile(m map[string]any) (File, error) {
	f := File{
		Filename: asString(m["filename"]),
		MimeType: asString(firstOf(m, "mime", "mime_type")),
		Size:     asInt(m["size"]),
	}
	if raw := asString(firstOf(m, "file", "image", "data")); raw != "" {
		data, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return f, unexpected("file is not base64 encoded")
		}
		f.Data = data
		if f.Size == 0 {
			f.Size = len(data)
		}
	}
	return f, nil
}

func parseParcelImage(m map[string]any) (ParcelImage, error) {
	f, err := parseFile(m)
	return ParcelImage{ParcelID: asString(firstOf(m, "parcel_id", "id")), File: f}, err
}
