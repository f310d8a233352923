package wire_test

import (
	"testing"

	"github.com/AdguardTeam/adengine/internal/wire"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReader(t *testing.T) {
	w := wire.NewWriter(0)
	w.Uvarint(300)
	w.Varint(-42)
	w.Bool(true)
	w.String("example.org")
	w.Strings([]string{"a", "", "bc"})
	w.Int64s([]int64{1 << 40, -1})
	w.Strings(nil)

	r := wire.NewReader(w.Bytes())
	assert.Equal(t, uint64(300), r.Uvarint())
	assert.Equal(t, int64(-42), r.Varint())
	assert.True(t, r.Bool())
	assert.Equal(t, "example.org", r.String())
	assert.Equal(t, []string{"a", "", "bc"}, r.Strings())
	assert.Equal(t, []int64{1 << 40, -1}, r.Int64s())
	assert.Nil(t, r.Strings())

	require.NoError(t, r.Err())
	assert.Zero(t, r.Remaining())
}

func TestReader_truncated(t *testing.T) {
	w := wire.NewWriter(0)
	w.String("example.org")
	data := w.Bytes()

	r := wire.NewReader(data[:len(data)-3])
	assert.Empty(t, r.String())
	assert.True(t, errors.Is(r.Err(), wire.ErrTruncated))

	// The first error sticks.
	assert.Zero(t, r.Uvarint())
	assert.True(t, errors.Is(r.Err(), wire.ErrTruncated))
}

func TestReader_badBool(t *testing.T) {
	r := wire.NewReader([]byte{2})
	assert.False(t, r.Bool())
	assert.Error(t, r.Err())
}

func TestReader_empty(t *testing.T) {
	r := wire.NewReader(nil)
	assert.Zero(t, r.Uvarint())
	assert.True(t, errors.Is(r.Err(), wire.ErrTruncated))
}
