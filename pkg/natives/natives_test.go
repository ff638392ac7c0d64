package natives

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/laythe/pkg/heap"
	"github.com/kristofer/laythe/pkg/value"
)

func TestClockReportsElapsedTimeNotEpoch(t *testing.T) {
	h := heap.NewHeap(2)
	globals := Globals(h)

	clock, ok := globals["clock"].AsObj().(*heap.Native)
	require.True(t, ok)

	first, err := clock.Fn(h, nil)
	require.NoError(t, err)
	require.Less(t, first.AsNumber(), 1.0, "clock() should read small elapsed seconds, not a Unix epoch timestamp")

	time.Sleep(5 * time.Millisecond)

	second, err := clock.Fn(h, nil)
	require.NoError(t, err)
	require.Greater(t, second.AsNumber(), first.AsNumber())
}

func TestAssertFunctions(t *testing.T) {
	h := heap.NewHeap(2)
	globals := Globals(h)

	assert := globals["assert"].AsObj().(*heap.Native)
	_, err := assert.Fn(h, []value.Value{value.Bool(true)})
	require.NoError(t, err)
	_, err = assert.Fn(h, []value.Value{value.Bool(false)})
	require.Error(t, err)

	assertEq := globals["assertEq"].AsObj().(*heap.Native)
	_, err = assertEq.Fn(h, []value.Value{value.Number(1), value.Number(1)})
	require.NoError(t, err)
	_, err = assertEq.Fn(h, []value.Value{value.Number(1), value.Number(2)})
	require.Error(t, err)

	assertNe := globals["assertNe"].AsObj().(*heap.Native)
	_, err = assertNe.Fn(h, []value.Value{value.Number(1), value.Number(2)})
	require.NoError(t, err)
	_, err = assertNe.Fn(h, []value.Value{value.Number(1), value.Number(1)})
	require.Error(t, err)
}
