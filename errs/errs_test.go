package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFormatsOpAndDetail(t *testing.T) {
	err := New("demux.Open", InvalidMedia, "no signature matched")
	require.Equal(t, "demux.Open: no signature matched", err.Error())
	require.Equal(t, InvalidMedia, err.Kind)
}

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("short read")
	err := Wrap("ogg.readPage", Truncated, cause)
	require.ErrorIs(t, err, cause)
	require.Equal(t, cause, err.Unwrap())
}

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("probe failed: %w", New("demux.Probe", InvalidMedia, "no match"))
	require.True(t, Is(err, InvalidMedia))
	require.False(t, Is(err, BadFormat))
}

func TestIsFalseForPlainError(t *testing.T) {
	require.False(t, Is(errors.New("plain"), Io))
}

func TestWrapIoSetsSubkind(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapIo("ioh.OpenHttpRange", IoNetworkTransient, cause)
	require.Equal(t, Io, err.Kind)
	require.Equal(t, IoNetworkTransient, err.IoSub)
	require.ErrorIs(t, err, cause)
}

func TestKindStringUnknown(t *testing.T) {
	require.Equal(t, "unknown", Kind(999).String())
}
