package batch

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pcapscan/internal/core"
	"firestige.xyz/pcapscan/internal/schema"
)

func project(t *testing.T, names ...string) *schema.Projection {
	t.Helper()
	p, err := schema.Project(names)
	require.NoError(t, err)
	return p
}

func TestNewBuilderInvalidCapacity(t *testing.T) {
	for _, n := range []int{0, -1} {
		_, err := NewBuilder(nil, schema.Full(), n)
		assert.ErrorIs(t, err, core.ErrInvalidBatchSize)
	}
}

func TestBuilderTakeInOrder(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b, err := NewBuilder(mem, project(t, "packet_number", "dst_port"), 3)
	require.NoError(t, err)
	defer b.Release()

	for i := 0; i < 3; i++ {
		f := core.Fields{PacketNumber: uint64(i)}
		if i == 1 {
			f.DstPort = core.Some[uint16](53)
		}
		assert.False(t, b.IsFull())
		b.Append(&f)
	}
	assert.True(t, b.IsFull())
	assert.Equal(t, 3, b.Len())

	rec := b.Take()
	defer rec.Release()
	assert.Equal(t, 0, b.Len())
	assert.False(t, b.IsFull())

	require.EqualValues(t, 3, rec.NumRows())
	require.EqualValues(t, 2, rec.NumCols())
	assert.Equal(t, "packet_number", rec.ColumnName(0))

	nums := rec.Column(0).(*array.Uint64)
	assert.Equal(t, []uint64{0, 1, 2}, nums.Uint64Values())

	ports := rec.Column(1).(*array.Uint16)
	assert.True(t, ports.IsNull(0))
	assert.Equal(t, uint16(53), ports.Value(1))
	assert.True(t, ports.IsNull(2))
}

func TestBuilderReuseAfterTake(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b, err := NewBuilder(mem, project(t, "src_ip", "data"), 2)
	require.NoError(t, err)
	defer b.Release()

	data := []byte{0xde, 0xad}
	b.Append(&core.Fields{Data: data})
	first := b.Take()
	defer first.Release()

	// The builder copies bytes, the caller may reuse its buffer
	data[0] = 0xff
	b.Append(&core.Fields{Data: []byte{1}})
	b.Append(&core.Fields{Data: []byte{2}})
	second := b.Take()
	defer second.Release()

	assert.EqualValues(t, 1, first.NumRows())
	assert.Equal(t, []byte{0xde, 0xad}, first.Column(1).(*array.Binary).Value(0))
	assert.EqualValues(t, 2, second.NumRows())
	assert.True(t, first.Schema().Equal(second.Schema()))
}

func TestBuilderEmptyProjection(t *testing.T) {
	b, err := NewBuilder(nil, project(t), 4)
	require.NoError(t, err)
	defer b.Release()

	b.Append(&core.Fields{})
	b.Append(&core.Fields{})
	rec := b.Take()
	defer rec.Release()

	assert.EqualValues(t, 0, rec.NumCols())
	assert.EqualValues(t, 2, rec.NumRows())
}

func TestBuilderAppendFullPanics(t *testing.T) {
	b, err := NewBuilder(nil, project(t, "packet_number"), 1)
	require.NoError(t, err)
	defer b.Release()

	b.Append(&core.Fields{})
	assert.Panics(t, func() { b.Append(&core.Fields{}) })
}

func TestBuilderFullSchema(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b, err := NewBuilder(mem, schema.Full(), 8)
	require.NoError(t, err)
	defer b.Release()

	b.Append(&core.Fields{HasARP: true, ARPOp: core.Some[uint16](1)})
	rec := b.Take()
	defer rec.Release()

	assert.EqualValues(t, 37, rec.NumCols())
	assert.True(t, rec.Schema().Equal(schema.Full().Schema()))
}
