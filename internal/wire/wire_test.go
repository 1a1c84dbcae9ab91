package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/matryer/is"
)

func TestFrameRoundTrip(t *testing.T) {
	is := is.New(t)

	frames := []*Frame{
		{Kind: KindRegister, ID: 1, Method: "echo"},
		{Kind: KindRequest, ID: 42, Method: "echo",
			Entries: []Entry{{"name", "BBT"}, {"lang", "go"}}},
		{Kind: KindResponse, ID: 42,
			Entries: []Entry{{"greeting", "Hello, BBT"}}},
		{Kind: KindError, ID: 7,
			Entries: []Entry{{CodeKey, CodeMethodNotFound}, {ErrorKey, "echo"}}},
		{Kind: KindResponse, ID: 0},
	}

	for _, f := range frames {
		buf := bytes.Buffer{}
		is.NoErr(Encode(&buf, f))

		first := append([]byte{}, buf.Bytes()...)

		got, err := Decode(&buf)
		is.NoErr(err)
		is.Equal(got.Kind, f.Kind)
		is.Equal(got.ID, f.ID)
		is.Equal(got.Entries, f.Entries)

		if f.hasMethod() {
			is.Equal(got.Method, f.Method)
		} else {
			is.Equal(got.Method, "")
		}

		// re-encoding the decoded frame must give the same bytes
		buf.Reset()
		is.NoErr(Encode(&buf, got))
		is.True(bytes.Equal(first, buf.Bytes()))
	}
}

func TestEntryOrderPreserved(t *testing.T) {
	is := is.New(t)

	f := &Frame{Kind: KindRequest, ID: 1, Method: "m",
		Entries: []Entry{{"z", "1"}, {"a", "2"}, {"m", "3"}}}

	buf := bytes.Buffer{}
	is.NoErr(Encode(&buf, f))

	got, err := Decode(&buf)
	is.NoErr(err)
	is.Equal(got.Entries, f.Entries)
}

func TestDecodeCleanEOF(t *testing.T) {
	is := is.New(t)

	_, err := Decode(bytes.NewReader(nil))
	is.True(errors.Is(err, io.EOF))
}

func TestDecodeMalformed(t *testing.T) {
	is := is.New(t)

	valid := func() []byte {
		buf := bytes.Buffer{}
		is.NoErr(Encode(&buf, &Frame{Kind: KindRequest, ID: 3, Method: "m",
			Entries: []Entry{{"k", "v"}}}))

		return buf.Bytes()
	}

	t.Run("body shorter than minimum", func(t *testing.T) {
		is := is.New(t)

		_, err := Decode(bytes.NewReader([]byte{0, 0, 0, 2, 1, 1}))
		is.True(errors.Is(err, ErrMalformed))
	})

	t.Run("announced body over the limit", func(t *testing.T) {
		is := is.New(t)

		_, err := Decode(bytes.NewReader(
			[]byte{0xFF, 0xFF, 0xFF, 0xFF, 0, 0}))
		is.True(errors.Is(err, ErrFrameTooBig))
	})

	t.Run("truncated body", func(t *testing.T) {
		is := is.New(t)

		raw := valid()
		_, err := Decode(bytes.NewReader(raw[:len(raw)-3]))
		is.True(errors.Is(err, ErrMalformed))
	})

	t.Run("unknown kind", func(t *testing.T) {
		is := is.New(t)

		raw := valid()
		raw[4] = 99
		_, err := Decode(bytes.NewReader(raw))
		is.True(errors.Is(err, ErrMalformed))
	})

	t.Run("lying entry count", func(t *testing.T) {
		is := is.New(t)

		buf := bytes.Buffer{}
		is.NoErr(Encode(&buf, &Frame{Kind: KindResponse, ID: 1}))

		raw := buf.Bytes()
		// entry count is the last 4 bytes of a response without entries
		raw[len(raw)-1] = 0xFF
		_, err := Decode(bytes.NewReader(raw))
		is.True(errors.Is(err, ErrMalformed))
	})

	t.Run("trailing garbage", func(t *testing.T) {
		is := is.New(t)

		raw := valid()
		raw = append(raw, 0xAA)
		// grow the announced length so the garbage lands inside the body
		raw[3]++
		_, err := Decode(bytes.NewReader(raw))
		is.True(errors.Is(err, ErrMalformed))
	})
}

func TestEncodeRejectsBadFrames(t *testing.T) {
	is := is.New(t)

	buf := bytes.Buffer{}

	err := Encode(&buf, &Frame{Kind: Kind(17), ID: 1})
	is.True(errors.Is(err, ErrMalformed))

	huge := make([]byte, MaxFrameSize+1)
	err = Encode(&buf, &Frame{Kind: KindResponse, ID: 1,
		Entries: []Entry{{"blob", string(huge)}}})
	is.True(errors.Is(err, ErrFrameTooBig))
}
