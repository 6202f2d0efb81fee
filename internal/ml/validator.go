package ml

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"cancer-predictor/internal/features"

	"github.com/rs/zerolog/log"
)

// Advisory flags a value that is valid but outside the feature's typical range.
type Advisory struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
	Low     float64 `json:"typical_low"`
	High    float64 `json:"typical_high"`
}

func (a Advisory) String() string {
	return fmt.Sprintf("%s value %s is outside typical range (%s, %s)",
		a.Feature, formatBound(a.Value), formatBound(a.Low), formatBound(a.High))
}

// Validator checks caller input against the feature registry and the model's
// required features. It is immutable and safe for concurrent use.
type Validator struct {
	registry *features.Registry
	required []string
	metrics  MetricsInterface
}

// NewValidator returns a validator for the given required feature set.
func NewValidator(registry *features.Registry, required []string, metrics MetricsInterface) *Validator {
	req := make([]string, len(required))
	copy(req, required)
	return &Validator{registry: registry, required: req, metrics: metrics}
}

// Validate checks in and returns advisories for atypical values. The first failing
// check wins: emptiness, then missing features, then each field in submission order.
func (v *Validator) Validate(in Input) ([]Advisory, error) {
	_, advisories, err := v.validate(in)
	if err != nil {
		return nil, err
	}
	return advisories, nil
}

// validate is Validate plus the converted values, which the engine reuses.
func (v *Validator) validate(in Input) (map[string]float64, []Advisory, *ValidationError) {
	if in.Len() == 0 {
		return nil, nil, v.fail("No features provided")
	}

	var missing []string
	for _, name := range v.required {
		if _, ok := in.Get(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, nil, v.fail("Missing features: " + strings.Join(missing, ", "))
	}

	values := make(map[string]float64, in.Len())
	var advisories []Advisory
	for _, name := range in.names {
		spec, ok := v.registry.Lookup(name)
		if !ok {
			return nil, nil, v.fail("Unknown feature: " + name)
		}

		value, ok := toFloat(in.values[name])
		if !ok {
			return nil, nil, v.fail(fmt.Sprintf("Invalid value for %s: must be a number", name))
		}

		if !spec.InBounds(value) {
			return nil, nil, v.fail(fmt.Sprintf("%s must be between %s and %s",
				spec.DisplayName, formatBound(spec.Min), formatBound(spec.Max)))
		}

		if !spec.InTypicalRange(value) {
			adv := Advisory{
				Feature: name,
				Value:   value,
				Low:     spec.TypicalRange.Low,
				High:    spec.TypicalRange.High,
			}
			advisories = append(advisories, adv)
			log.Warn().
				Str("feature", name).
				Float64("value", value).
				Float64("typical_low", adv.Low).
				Float64("typical_high", adv.High).
				Msg("feature value outside typical range")
			if v.metrics != nil {
				v.metrics.MLTypicalRangeWarningsInc(name)
			}
		}

		values[name] = value
	}

	return values, advisories, nil
}

func (v *Validator) fail(reason string) *ValidationError {
	if v.metrics != nil {
		v.metrics.MLValidationFailuresInc()
	}
	return &ValidationError{Reason: reason}
}

// formatBound prints a bound the shortest way, so 50 renders as "50" and 0.35 as "0.35".
func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
