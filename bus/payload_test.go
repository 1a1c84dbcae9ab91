package bus

import (
	"testing"

	"github.com/matryer/is"
)

func TestPayload(t *testing.T) {
	is := is.New(t)

	p := new(Payload)
	is.Equal(p.Len(), 0)

	p.Set("name", "BBT")
	p.Set("lang", "go")
	is.Equal(p.Len(), 2)
	is.Equal(p.Get("name"), "BBT")
	is.Equal(p.Keys(), []string{"name", "lang"})

	// overwrite keeps the key's position
	p.Set("name", "Fox")
	is.Equal(p.Len(), 2)
	is.Equal(p.Get("name"), "Fox")
	is.Equal(p.Keys(), []string{"name", "lang"})

	t.Run("missing key returns empty string", func(t *testing.T) {
		is := is.New(t)

		is.Equal(p.Get("absent"), "")

		v, ok := p.Lookup("absent")
		is.Equal(v, "")
		is.True(!ok)

		p.Set("empty", "")
		v, ok = p.Lookup("empty")
		is.Equal(v, "")
		is.True(ok)
	})

	t.Run("copy is independent", func(t *testing.T) {
		is := is.New(t)

		cp := p.Copy()
		is.Equal(cp.Keys(), p.Keys())
		is.Equal(cp.Get("lang"), "go")

		cp.Set("lang", "rust")
		is.Equal(p.Get("lang"), "go")
	})
}

func TestPayloadWireConversion(t *testing.T) {
	is := is.New(t)

	p := new(Payload)
	p.Set("b", "2")
	p.Set("a", "1")

	back := payloadOf(p.entries())
	is.Equal(back.Keys(), []string{"b", "a"})
	is.Equal(back.Get("a"), "1")
	is.Equal(back.Get("b"), "2")

	var empty *Payload
	is.Equal(len(empty.entries()), 0)
	is.Equal(payloadOf(nil).Len(), 0)
}
