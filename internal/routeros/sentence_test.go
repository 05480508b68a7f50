package routeros

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLengthRoundTrip(t *testing.T) {
	// Boundary values of every prefix width the framing supports.
	lengths := []int{
		0, 1, 0x7F,
		0x80, 0x1234, 0x3FFF,
		0x4000, 0x12345, 0x1FFFFF,
		0x200000, 0x1234567, 0xFFFFFFF,
	}

	for _, n := range lengths {
		var buf bytes.Buffer
		w := bufio.NewWriter(&buf)
		require.NoError(t, writeLength(w, n))
		require.NoError(t, w.Flush())

		got, err := readLength(bufio.NewReader(&buf))
		require.NoError(t, err, "length %#x", n)
		assert.Equal(t, n, got, "length %#x", n)
	}
}

func TestLengthEncodingWidths(t *testing.T) {
	cases := []struct {
		n     int
		width int
	}{
		{0x00, 1},
		{0x7F, 1},
		{0x80, 2},
		{0x3FFF, 2},
		{0x4000, 3},
		{0x1FFFFF, 3},
		{0x200000, 4},
		{0xFFFFFFF, 4},
	}

	for _, tc := range cases {
		var buf bytes.Buffer
		w := bufio.NewWriter(&buf)
		require.NoError(t, writeLength(w, tc.n))
		require.NoError(t, w.Flush())
		assert.Equal(t, tc.width, buf.Len(), "length %#x", tc.n)
	}
}

func TestLengthTooLarge(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	err := writeLength(w, 0x10000000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProtocol))
}

func TestReservedLengthPrefix(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte{0xF8, 0x00, 0x00, 0x00, 0x00}))
	_, err := readLength(r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProtocol))
}

func TestSentenceRoundTrip(t *testing.T) {
	words := []string{
		"/ppp/secret/print",
		"=count=100",
		"?name=alice",
		"=comment=" + strings.Repeat("x", 300),
	}

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, writeSentence(w, words))

	got, err := readSentence(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, words, got)
}

func writeReply(t *testing.T, buf *bytes.Buffer, sentences ...[]string) {
	t.Helper()
	w := bufio.NewWriter(buf)
	for _, words := range sentences {
		require.NoError(t, writeSentence(w, words))
	}
}

func TestReadReplyRecords(t *testing.T) {
	var buf bytes.Buffer
	writeReply(t, &buf,
		[]string{"!re", "=.id=*1", "=name=alice", "=profile=gold"},
		[]string{"!re", "=.id=*2", "=name=bob"},
		[]string{"!done"},
	)

	rep, err := readReply(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.Len(t, rep.records, 2)
	assert.Equal(t, "alice", rep.records[0]["name"])
	assert.Equal(t, "gold", rep.records[0]["profile"])
	assert.Equal(t, "*2", rep.records[1][".id"])
	assert.Nil(t, rep.trap)
}

func TestReadReplyRet(t *testing.T) {
	var buf bytes.Buffer
	writeReply(t, &buf, []string{"!done", "=ret=*1A"})

	rep, err := readReply(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, "*1A", rep.done["ret"])
}

func TestReadReplyTrap(t *testing.T) {
	var buf bytes.Buffer
	writeReply(t, &buf,
		[]string{"!trap", "=message=failure: already have user with this name"},
		[]string{"!done"},
	)

	rep, err := readReply(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.NotNil(t, rep.trap)
	assert.Contains(t, rep.trap.Error(), "already have user")
}

func TestReadReplyFatal(t *testing.T) {
	var buf bytes.Buffer
	writeReply(t, &buf, []string{"!fatal", "session terminated"})

	_, err := readReply(bufio.NewReader(&buf))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnection))
}

func TestReadReplyUnknownWord(t *testing.T) {
	var buf bytes.Buffer
	writeReply(t, &buf, []string{"!bogus"})

	_, err := readReply(bufio.NewReader(&buf))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProtocol))
}
