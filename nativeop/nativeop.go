// Package nativeop provides a native (C) long-running operation that reports
// through a GDALProgressFunc the way GDAL operations do. It stands in for the
// wrapped library when exercising progress callbacks.
package nativeop

// #include "nativeop.h"
import "C"
import (
	"errors"
	"fmt"
	"time"
	"unsafe"
)

// ErrUserTerminated is returned when the progress function asked the
// operation to stop.
var ErrUserTerminated = errors.New("user terminated")

// Feed calls the progress function once per fraction, with the message at
// the same index, and returns each native code. A nil or missing message is
// passed as NULL; an empty string is passed as an empty C string.
// It does not stop when the progress function asks to.
// A nil pfn behaves like a progress function that always continues.
func Feed(pfn unsafe.Pointer, arg unsafe.Pointer, fractions []float64, messages []*string) []int {
	size := len(fractions)
	if size == 0 {
		return nil
	}

	// copy from Go strings into C char arrays
	buffer := make([]*C.char, size)
	for i := 0; i < size && i < len(messages); i++ {
		if messages[i] != nil {
			buffer[i] = C.CString(*messages[i])
		}
	}

	// char arrays must be deallocated
	defer func() {
		for i := 0; i < size; i++ {
			if buffer[i] != nil {
				C.free(unsafe.Pointer(buffer[i]))
			}
		}
	}()

	cFractions := make([]C.double, size)
	for i, f := range fractions {
		cFractions[i] = C.double(f)
	}
	cCodes := make([]C.int, size)

	C.feed_progress(C.GDALProgressFunc(pfn), arg, &cFractions[0], &buffer[0], C.size_t(size), &cCodes[0])

	codes := make([]int, size)
	for i := 0; i < size; i++ {
		codes[i] = int(cCodes[i])
	}
	return codes
}

// Msg returns a message for Feed.
func Msg(s string) *string {
	return &s
}

// Result describes how far a Run got.
type Result struct {
	// Calls is the number of times the progress function was called.
	Calls int
	// Complete is the last fraction reported.
	Complete float64
}

// Run executes an operation of the given number of steps, reporting 0 first
// and then i/steps after each step, pausing delay between steps. It stops at
// the first call that returns 0 and then returns ErrUserTerminated.
func Run(pfn unsafe.Pointer, arg unsafe.Pointer, steps int, message string, delay time.Duration) (Result, error) {
	if steps < 1 {
		return Result{}, fmt.Errorf("steps must be at least 1, got %d", steps)
	}

	var msg *C.char
	if message != "" {
		msg = C.CString(message)
		defer C.free(unsafe.Pointer(msg))
	}

	var calls C.int
	ret := C.run_operation(C.GDALProgressFunc(pfn), arg, C.int(steps), msg, C.long(delay.Nanoseconds()), &calls)

	res := Result{
		Calls:    int(calls),
		Complete: float64(int(calls)-1) / float64(steps),
	}
	if ret == 0 {
		return res, ErrUserTerminated
	}
	return res, nil
}
