package checkout

import (
	"math"
	"slices"
)

// DefaultTitle is the shipping method title shown when none is configured.
const DefaultTitle = "MDS Collivery.net"

// Settings is the shop's shipping configuration.
type Settings struct {
	Title             string
	TaxClassID        int
	GeoZoneID         int
	Insurance         bool
	Rica              bool
	AutoCreateAddress bool
	AutoCreateWaybill bool
	AutoAccept        bool
	// Round rounds marked-up prices up to whole rand.
	Round bool
	// Services lists the enabled service IDs; empty enables every service.
	Services     []int
	Markup       map[int]float64
	DisplayNames map[int]string
	Wording      map[int]string
}

func (s Settings) title() string {
	if s.Title == "" {
		return DefaultTitle
	}
	return s.Title
}

func (s Settings) enabled(serviceID int) bool {
	return len(s.Services) == 0 || slices.Contains(s.Services, serviceID)
}

// Markup classifies a configured markup. Values in [0,1] are fractions, values in
// (1,100] are percentages. Anything else disables markup.
func Markup(raw float64) (float64, bool) {
	switch {
	case raw >= 0 && raw <= 1:
		return raw, true
	case raw > 1 && raw <= 100:
		return raw / 100, true
	default:
		return 0, false
	}
}

// ApplyMarkup returns price increased by the configured markup, rounded to cents,
// or to whole units upwards when round is set.
func ApplyMarkup(price, raw float64, round bool) float64 {
	m, ok := Markup(raw)
	if !ok {
		return price
	}
	v := math.Round(price*(1+m)*100) / 100
	if round {
		v = math.Ceil(v)
	}
	return v
}
