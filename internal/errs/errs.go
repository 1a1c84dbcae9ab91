package errs

import "fmt"

var (
	ErrNotRunned     = fmt.Errorf("server isn't runned")
	ErrAlreadyRunned = fmt.Errorf("already runned")

	ErrNotConnected     = fmt.Errorf("client isn't connected")
	ErrAlreadyConnected = fmt.Errorf("already connected")

	ErrEmptyMethodName = fmt.Errorf("method name is empty")
	ErrNoHandler       = fmt.Errorf("couldn't register a nil-handler")

	ErrNoLogger = fmt.Errorf("logger isn't present")
)
