package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type report struct {
	Partition int32   `json:"partition"`
	Commits   int64   `json:"commits"`
	Rollbacks int64   `json:"rollbacks"`
	Pools     []int   `json:"pools"`
	Usage     float64 `json:"usage"`
}

func TestByName(t *testing.T) {
	for _, name := range Names() {
		c, ok := ByName(name)
		require.True(t, ok, name)
		assert.Equal(t, name, c.Name())
	}
	_, ok := ByName("msgpack")
	assert.False(t, ok)
}

func TestCodecsAgree(t *testing.T) {
	r := report{Partition: 2, Commits: 10, Rollbacks: 3, Pools: []int{8, 64, 1024}, Usage: 12.5}

	want := MustMarshal(JSON{}, r)
	got := MustMarshal(GoJSON{}, r)
	assert.JSONEq(t, string(want), string(got))

	var back report
	require.NoError(t, GoJSON{}.Unmarshal(got, &back))
	assert.Equal(t, r, back)
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, nil, report{Partition: 1}))
	assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\n")))
	assert.Contains(t, buf.String(), `"partition":1`)

	err := Encode(&buf, JSON{}, make(chan int))
	assert.Error(t, err)

	err = Encode(failingWriter{}, JSON{}, report{})
	assert.ErrorIs(t, err, errWrite)
}

var errWrite = errors.New("write failed")

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errWrite }

func TestMustMarshalPanics(t *testing.T) {
	assert.Panics(t, func() { MustMarshal(nil, func() {}) })
}
