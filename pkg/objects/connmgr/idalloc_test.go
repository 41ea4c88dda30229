package connmgr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIDAllocatorComposesIncarnationAndCounter(t *testing.T) {
	a := NewIDAllocator(0xBEEF)
	first := a.Next()
	require.Equal(t, uint32(0xBEEF)<<16|19, uint32(first))
	second := a.Next()
	require.Equal(t, uint32(0xBEEF)<<16|20, uint32(second))
}

func TestIDAllocatorCounterStartsAt18(t *testing.T) {
	a := NewIDAllocator(0)
	require.Equal(t, uint32(19), uint32(a.Next()), "first issued ID is counter 19 (pre-incremented from the legacy seed of 18)")
}
