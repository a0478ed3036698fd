package errs_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aetheric-oss/svc-scheduler/internal/errs"
)

func TestClassOf(t *testing.T) {
	t.Parallel()
	cases := []struct {
		code  errs.Code
		class errs.Class
	}{
		{errs.GISUnavailable, errs.ClassRetryable},
		{errs.Storage, errs.ClassRetryable},
		{errs.Internal, errs.ClassRetryable},
		{errs.RouteUnavailable, errs.ClassTerminal},
		{errs.InvalidArgument, errs.ClassTerminal},
		{errs.NotFound, errs.ClassTerminal},
	}
	for _, c := range cases {
		require.Equal(t, c.class, errs.ClassOf(c.code), "code %s", c.code)
	}
}

func TestCodeOf(t *testing.T) {
	t.Parallel()

	wrapped := errs.Wrap(errs.Storage, "query failed", errs.New(errs.Internal, "inner"))
	code, ok := errs.CodeOf(wrapped)
	require.True(t, ok)
	require.Equal(t, errs.Storage, code)

	_, ok = errs.CodeOf(nil)
	require.False(t, ok)
}
