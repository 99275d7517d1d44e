package performance

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Ratio is a float that may be +Inf, as profit factor and omega are when
// there are gains and no losses. Infinite values encode as "inf" in JSON.
type Ratio float64

// Inf is the positive infinite ratio.
var Inf = Ratio(math.Inf(1))

// IsInf reports whether the ratio is infinite.
func (r Ratio) IsInf() bool {
	return math.IsInf(float64(r), 0)
}

// Float64 returns the raw value.
func (r Ratio) Float64() float64 {
	return float64(r)
}

func (r Ratio) String() string {
	switch {
	case math.IsInf(float64(r), 1):
		return "inf"
	case math.IsInf(float64(r), -1):
		return "-inf"
	default:
		return strconv.FormatFloat(float64(r), 'f', 2, 64)
	}
}

// MarshalJSON implements json.Marshaler.
func (r Ratio) MarshalJSON() ([]byte, error) {
	f := float64(r)
	switch {
	case math.IsInf(f, 1):
		return []byte(`"inf"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-inf"`), nil
	case math.IsNaN(f):
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Ratio) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	switch s {
	case "inf", "+inf":
		*r = Ratio(math.Inf(1))
		return nil
	case "-inf":
		*r = Ratio(math.Inf(-1))
		return nil
	case "null", "":
		*r = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parsing ratio %q: %w", s, err)
	}
	*r = Ratio(f)
	return nil
}
