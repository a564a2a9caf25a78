package pipeline_test

import (
	"errors"
	"testing"

	"popgrid/internal/pipeline"
	"popgrid/pkg/domain"
	"popgrid/pkg/serrors"

	"github.com/stretchr/testify/require"
)

func testDefaults() pipeline.Defaults {
	return pipeline.Defaults{
		Countries: []string{"KEN", "UGA"},
		AgeGroups: []string{"0_4", "5_9", "10_14", "80_plus"},
		Sexes:     []string{"M", "F"},
	}
}

func TestNormalizeParams(t *testing.T) {
	cases := []struct {
		name string
		in   domain.RunParams
		out  domain.RunParams
		ok   bool
	}{
		{
			name: "empty request gets the full configured axes",
			in:   domain.RunParams{},
			out: domain.RunParams{
				Countries: []string{"KEN", "UGA"},
				AgeGroups: []string{"0_4", "5_9", "10_14", "80_plus"},
				Sexes:     []string{"F", "M"},
			},
			ok: true,
		},
		{
			name: "uppercase, dedupe and sort",
			in: domain.RunParams{
				Countries: []string{"uga", "ken", "UGA"},
				AgeGroups: []string{"5_9", "0_4", "5_9"},
				Sexes:     []string{"m", "f", "M"},
			},
			out: domain.RunParams{
				Countries: []string{"KEN", "UGA"},
				AgeGroups: []string{"0_4", "5_9"},
				Sexes:     []string{"F", "M"},
			},
			ok: true,
		},
		{
			name: "age groups keep configured order, not string order",
			in: domain.RunParams{
				Countries: []string{"KEN"},
				AgeGroups: []string{"80_plus", "10_14", "5_9"},
				Sexes:     []string{"M"},
			},
			out: domain.RunParams{
				Countries: []string{"KEN"},
				AgeGroups: []string{"5_9", "10_14", "80_plus"},
				Sexes:     []string{"M"},
			},
			ok: true,
		},
		{
			name: "whitespace entries are dropped",
			in: domain.RunParams{
				Countries: []string{" KEN ", ""},
				AgeGroups: []string{"0_4"},
				Sexes:     []string{"M"},
			},
			out: domain.RunParams{
				Countries: []string{"KEN"},
				AgeGroups: []string{"0_4"},
				Sexes:     []string{"M"},
			},
			ok: true,
		},
		{
			name: "invalid country code",
			in:   domain.RunParams{Countries: []string{"KENYA"}},
			ok:   false,
		},
		{
			name: "unknown age group",
			in:   domain.RunParams{AgeGroups: []string{"0_3"}},
			ok:   false,
		},
		{
			name: "invalid sex",
			in:   domain.RunParams{Sexes: []string{"X"}},
			ok:   false,
		},
		{
			name: "only blank entries selects nothing",
			in:   domain.RunParams{Countries: []string{"  "}},
			ok:   false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := pipeline.NormalizeParams(tc.in, testDefaults())
			if !tc.ok {
				require.Error(t, err)
				require.True(t, errors.Is(err, serrors.ErrBadRequest))

				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.out, got)
		})
	}
}

func TestParamsKeyIsCanonical(t *testing.T) {
	a, err := pipeline.NormalizeParams(domain.RunParams{
		Countries: []string{"uga", "KEN"},
		AgeGroups: []string{"5_9", "0_4"},
		Sexes:     []string{"f", "M"},
	}, testDefaults())
	require.NoError(t, err)

	b, err := pipeline.NormalizeParams(domain.RunParams{
		Countries: []string{"KEN", "UGA"},
		AgeGroups: []string{"0_4", "5_9", "0_4"},
		Sexes:     []string{"M", "F"},
	}, testDefaults())
	require.NoError(t, err)

	require.Equal(t, pipeline.ParamsKey(a), pipeline.ParamsKey(b))
	require.Equal(t, "c=KEN,UGA|a=0_4,5_9|s=F,M", pipeline.ParamsKey(a))
}
