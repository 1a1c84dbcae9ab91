package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestResultResolve(t *testing.T) {
	is := is.New(t)

	res := newResult()
	is.True(!res.Done())
	is.Equal(res.Get("greeting"), "")

	out := new(Out)
	out.Set("greeting", "Hello, BBT")

	go func() {
		time.Sleep(10 * time.Millisecond)
		res.resolve(out, nil)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	is.NoErr(res.Wait(ctx))
	is.True(res.Done())
	is.NoErr(res.Err())
	is.Equal(res.Get("greeting"), "Hello, BBT")
	is.Equal(res.Out().Get("greeting"), "Hello, BBT")
}

func TestResultFailure(t *testing.T) {
	is := is.New(t)

	res := newResult()
	res.resolve(nil, ErrConnClosed)

	err := res.Wait(context.Background())
	is.True(errors.Is(err, ErrConnClosed))
	is.True(res.Out() == nil)
}

func TestResultWaitExpires(t *testing.T) {
	is := is.New(t)

	res := newResult()

	ctx, cancel := context.WithTimeout(context.Background(),
		20*time.Millisecond)
	defer cancel()

	err := res.Wait(ctx)
	is.True(errors.Is(err, context.DeadlineExceeded))
	is.True(!res.Done())
}

func TestResultDoubleResolvePanics(t *testing.T) {
	is := is.New(t)

	res := newResult()
	res.resolve(nil, nil)

	defer func() {
		is.True(recover() != nil)
	}()

	res.resolve(nil, nil)
}
