// Package panicutil runs collaborator callbacks so that their panics become errors.
package panicutil

import (
	"github.com/sourcegraph/conc/panics"
)

// PanicError is a panic recovered from a callback, labelled with the operation that was running.
// It unwraps to the *panics.ErrRecovered holding the panic value and stack.
type PanicError struct {
	Op        string
	Recovered error
}

func (e *PanicError) Error() string {
	return e.Op + " panicked: " + e.Recovered.Error()
}

func (e *PanicError) Unwrap() error {
	return e.Recovered
}

// Guard runs f and returns its error. A panic in f is returned as a *PanicError for op.
// If f calls runtime.Goexit, the calling goroutine exits as well and Guard does not return.
func Guard(op string, f func() error) error {
	dds := DoubleDeferSandwich{Op: op}
	return dds.Invoke(f)
}

// DoubleDeferSandwich tells a panic apart from runtime.Goexit with two nested defers.
type DoubleDeferSandwich struct {
	// Op labels recovered panics. If it is empty, the *panics.ErrRecovered is returned as is.
	Op string

	// OnGoexit is called when f calls runtime.Goexit, before the goroutine exits.
	OnGoexit func()
}

// Invoke runs f. It returns the error of f, or the recovered panic if f panicked.
func (dds *DoubleDeferSandwich) Invoke(f func() error) (err error) {
	var (
		returned   bool
		panicked   bool
		panicValue panics.Recovered
	)
	defer func() {
		if returned {
			return
		}
		if panicked {
			err = dds.wrap(panicValue.AsError())
			return
		}
		if dds.OnGoexit != nil {
			dds.OnGoexit()
		}
	}()
	func() {
		defer func() {
			panicValue = panics.NewRecovered(2, recover())
		}()
		err = f()
		returned = true
	}()
	// reached only when the inner function recovered a panic; Goexit skips it
	panicked = !returned
	return
}

func (dds *DoubleDeferSandwich) wrap(err error) error {
	if dds.Op == "" {
		return err
	}
	return &PanicError{Op: dds.Op, Recovered: err}
}
