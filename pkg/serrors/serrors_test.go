package serrors_test

import (
	"errors"
	"popgrid/pkg/serrors"
	"testing"

	"github.com/stretchr/testify/require"
)

type customError struct{ msg string }

func (e customError) Error() string { return e.msg }

func TestKindsDistinct(t *testing.T) {
	kinds := []serrors.Kind{
		serrors.ErrDataUnavailable,
		serrors.ErrInvalidFormat,
		serrors.ErrInvalidGeometry,
		serrors.ErrBoundaryNotFound,
		serrors.ErrNotFound,
		serrors.ErrUnauthorized,
		serrors.ErrBadRequest,
		serrors.ErrConflict,
		serrors.ErrInternal,
		serrors.ErrTimeout,
		serrors.ErrUnavailable,
	}
	seen := map[serrors.Kind]bool{}
	for i, k := range kinds {
		require.NotNil(t, k, "kind at index %d is nil", i)
		require.False(t, seen[k], "kind at index %d is duplicate: %v", i, k)
		seen[k] = true
	}

	require.NotEqual(t, serrors.ErrDataUnavailable, serrors.ErrInvalidFormat,
		"DataUnavailable should not equal InvalidFormat")
}

func TestErrorFormatting(t *testing.T) {
	base := errors.New("connection refused")

	e1 := serrors.With(serrors.ErrDataUnavailable, "raster %s missing", "KEN_M_0_4")
	require.Equal(t, "raster KEN_M_0_4 missing", e1.Error(), "With() Error() mismatch")

	e2 := serrors.Wrap(serrors.ErrDataUnavailable, base, "fetching raster")
	require.Equal(t, "fetching raster: connection refused", e2.Error(), "Wrap() Error() mismatch")

	e3 := serrors.KindOnly(serrors.ErrBoundaryNotFound)
	require.Equal(t, "BOUNDARY_NOT_FOUND", e3.Error(), "KindOnly Error() mismatch")
}

func TestIsMatchesKindAndWrapped(t *testing.T) {
	base := customError{"root cause"}
	e := serrors.Wrap(serrors.ErrInvalidFormat, base, "decoding grid")

	require.ErrorIs(t, e, serrors.ErrInvalidFormat)
	require.ErrorIs(t, e, base)
	require.NotErrorIs(t, e, serrors.ErrInvalidGeometry, "errors.Is should not match a different kind")
}

func TestAsMatchesKindAndWrapped(t *testing.T) {
	base := customError{"root cause"}
	e := serrors.Wrap(serrors.ErrInvalidGeometry, base, "ring not closed")

	var k serrors.Kind
	require.ErrorAs(t, e, &k)
	require.Equal(t, serrors.ErrInvalidGeometry, k)

	var c customError
	require.ErrorAs(t, e, &c)
	require.Equal(t, base.msg, c.msg)
}

func TestKindAccessors(t *testing.T) {
	base := errors.New("io failure")
	e := serrors.Wrap(serrors.ErrInternal, base, "writing summary")

	require.Equal(t, serrors.ErrInternal, e.Kind())
	require.Equal(t, "writing summary", e.Message())
	require.Equal(t, base, e.Cause())
}
