package pipeline

import (
	"regexp"
	"slices"
	"strings"

	"popgrid/pkg/domain"
	"popgrid/pkg/serrors"
)

// countryRe matches ISO3 country codes after upper-casing.
var countryRe = regexp.MustCompile(`^[A-Z]{3}$`)

// Defaults are the configured full axes substituted for empty request slices.
type Defaults struct {
	Countries []string
	AgeGroups []string
	Sexes     []string
}

// NormalizeParams returns the canonical form of run parameters:
//   - empty slices default to the configured full axis
//   - countries and sexes are upper-cased, age groups left as-is
//   - each slice is sorted and deduplicated
//   - countries must be ISO3 codes, sexes M or F, age groups drawn from the
//     configured label set
//
// Two requests meaning the same combination set always normalize to identical
// params and thus the same ParamsKey, which is what run deduplication keys on.
func NormalizeParams(params domain.RunParams, defaults Defaults) (domain.RunParams, error) {
	out := domain.RunParams{
		Countries: normalizeAxis(params.Countries, defaults.Countries, strings.ToUpper),
		AgeGroups: normalizeAxis(params.AgeGroups, defaults.AgeGroups, nil),
		Sexes:     normalizeAxis(params.Sexes, defaults.Sexes, strings.ToUpper),
	}

	for _, c := range out.Countries {
		if !countryRe.MatchString(c) {
			return domain.RunParams{}, serrors.With(serrors.ErrBadRequest, "invalid country code %q", c)
		}
	}
	for _, s := range out.Sexes {
		if s != "M" && s != "F" {
			return domain.RunParams{}, serrors.With(serrors.ErrBadRequest, "invalid sex %q", s)
		}
	}
	for _, a := range out.AgeGroups {
		if !slices.Contains(defaults.AgeGroups, a) {
			return domain.RunParams{}, serrors.With(serrors.ErrBadRequest, "unknown age group %q", a)
		}
	}
	// Age-group labels sort badly as strings ("5_9" after "10_14"); order them
	// by their position in the configured axis instead.
	slices.SortFunc(out.AgeGroups, func(a, b string) int {
		return slices.Index(defaults.AgeGroups, a) - slices.Index(defaults.AgeGroups, b)
	})

	if len(out.Countries) == 0 || len(out.AgeGroups) == 0 || len(out.Sexes) == 0 {
		return domain.RunParams{}, serrors.With(serrors.ErrBadRequest, "run parameters select nothing")
	}

	return out, nil
}

// normalizeAxis trims, optionally maps, sorts and deduplicates one axis,
// falling back to the default set when the request leaves it empty.
func normalizeAxis(vals, fallback []string, mapFn func(string) string) []string {
	src := vals
	if len(src) == 0 {
		src = fallback
	}

	out := make([]string, 0, len(src))
	for _, v := range src {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if mapFn != nil {
			v = mapFn(v)
		}
		out = append(out, v)
	}
	slices.Sort(out)

	return slices.Compact(out)
}

// ParamsKey renders normalized params as the canonical dedup key, e.g.
// "c=KEN,UGA|a=0_4,5_9|s=F,M".
func ParamsKey(params domain.RunParams) string {
	var b strings.Builder
	b.WriteString("c=")
	b.WriteString(strings.Join(params.Countries, ","))
	b.WriteString("|a=")
	b.WriteString(strings.Join(params.AgeGroups, ","))
	b.WriteString("|s=")
	b.WriteString(strings.Join(params.Sexes, ","))

	return b.String()
}
