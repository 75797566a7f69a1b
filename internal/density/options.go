package density

import (
	"errors"
	"fmt"
)

// Bounds is a signal strength range for one radio category.
type Bounds struct {
	Lowest  int `json:"lowest"`
	Highest int `json:"highest"`
}

// StrengthOptions controls which detections feed the frequency index.
type StrengthOptions struct {
	WiFi        Bounds `json:"wifi"`
	Bluetooth   Bounds `json:"bluetooth"`
	IncludeNull bool   `json:"include_null"`
}

// BoundsFor returns the bounds used for a packet type. Only Wi-Fi frames use
// the wifi bounds; every other type is judged against the bluetooth bounds.
func (o StrengthOptions) BoundsFor(pt PacketType) Bounds {
	if pt == PacketWiFi {
		return o.WiFi
	}
	return o.Bluetooth
}

// HourBounds is the facility's operating window as hours of the day.
type HourBounds struct {
	Earliest int `json:"earliest"`
	Latest   int `json:"latest"`
}

// SuspicionOptions are the thresholds of the suspicious device rules.
type SuspicionOptions struct {
	Time HourBounds `json:"time"`
	// MinPackets is evaluated and reported but does not flag devices.
	MinPackets int `json:"min_packets"`
	// MaxBucketOccurrences is the number of distinct buckets a device may
	// appear in before it is treated as fixed infrastructure.
	MaxBucketOccurrences int `json:"timestamp_occurances"`
}

// Options bundles everything Aggregate needs besides the records.
type Options struct {
	Suspicion        SuspicionOptions `json:"suspicion_options"`
	Strength         StrengthOptions  `json:"strength_options"`
	EstimationFactor float64          `json:"estimation_factor"`
}

// ErrInvalidOptions is wrapped by every error returned from Options.Validate.
var ErrInvalidOptions = errors.New("invalid density options")

// Validate checks value ranges. Presence of keys is checked by the config
// loader before Options is built.
func (o Options) Validate() error {
	if !(o.EstimationFactor > 0) {
		return fmt.Errorf("%w: estimation_factor must be positive, got %v", ErrInvalidOptions, o.EstimationFactor)
	}
	t := o.Suspicion.Time
	if t.Earliest < 0 || t.Earliest > 23 {
		return fmt.Errorf("%w: time.earliest must be an hour between 0 and 23, got %d", ErrInvalidOptions, t.Earliest)
	}
	if t.Latest < 0 || t.Latest > 23 {
		return fmt.Errorf("%w: time.latest must be an hour between 0 and 23, got %d", ErrInvalidOptions, t.Latest)
	}
	if o.Suspicion.MaxBucketOccurrences < 0 {
		return fmt.Errorf("%w: timestamp_occurances must not be negative, got %d", ErrInvalidOptions, o.Suspicion.MaxBucketOccurrences)
	}
	if o.Suspicion.MinPackets < 0 {
		return fmt.Errorf("%w: min_packets must not be negative, got %d", ErrInvalidOptions, o.Suspicion.MinPackets)
	}
	return nil
}
