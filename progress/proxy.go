package progress

// #include <stdlib.h>
// #include "proxy.h"
import "C"
import (
	"fmt"
	"runtime/cgo"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/brendan-ward/gdalprogress/internal/metrics"
	"go.uber.org/zap"
)

// Native return codes of a GDALProgressFunc: TRUE keeps the operation going,
// FALSE makes it fail with "User terminated".
const (
	Stop     = 0
	Continue = 1
)

// Event is a single progress report from a native operation.
type Event struct {
	Complete float64
	Message  string
}

// Func handles progress reports. It returns false to cancel the native
// operation. arg is the value given to Register.
type Func func(complete float64, message string, arg interface{}) bool

// BoundaryError describes a progress callback that could not complete
// normally on the Go side of the boundary. It is logged and never returned
// to native code.
type BoundaryError struct {
	Token uintptr
	Event Event
	Cause interface{}
}

func (e *BoundaryError) Error() string {
	return fmt.Sprintf("progress callback %d failed at %.3f: %v", e.Token, e.Event.Complete, e.Cause)
}

func (e *BoundaryError) Unwrap() error {
	if err, ok := e.Cause.(error); ok {
		return err
	}
	return nil
}

var logger atomic.Pointer[zap.Logger]

// SetLogger sets the logger used to report contained callback failures.
// A nil logger disables logging.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}

func getLogger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// Callback binds a Func and its user argument to a token that native code
// carries as its opaque progress argument.
// The Callback must outlive every native call it is passed to, and must be
// released with Release() afterwards.
type Callback struct {
	fn     Func
	arg    interface{}
	handle cgo.Handle
	// C-allocated slot holding the handle value; native code only ever sees
	// this pointer.
	slot unsafe.Pointer
	once sync.Once
}

// Register creates a Callback for fn. A nil fn registers Dummy.
func Register(fn Func, arg interface{}) *Callback {
	if fn == nil {
		fn = Dummy
	}
	cb := &Callback{fn: fn, arg: arg}
	cb.handle = cgo.NewHandle(cb)

	// Allocate space for handle on C heap to avoid Go pointer issues
	cb.slot = C.malloc(C.sizeof_uintptr_t)
	*(*C.uintptr_t)(cb.slot) = C.uintptr_t(cb.handle)
	return cb
}

// ProxyFunc returns the native progress function pointer
// (int (*)(double, const char*, void*)) that dispatches into Go.
// Convert it to the native GDALProgressFunc type at the call site.
func ProxyFunc() unsafe.Pointer {
	return unsafe.Pointer(C.gdalgo_progress_proxy())
}

// Func returns the native progress function to pass alongside Arg().
func (c *Callback) Func() unsafe.Pointer {
	return ProxyFunc()
}

// Arg returns the opaque progress argument for native code: C memory
// holding the token. It is freed by Release.
func (c *Callback) Arg() unsafe.Pointer {
	return c.slot
}

// Token returns the raw token value received by Dispatch.
func (c *Callback) Token() uintptr {
	return uintptr(c.handle)
}

// Release invalidates the token and frees Arg(). Native code must not use
// Arg() afterwards; dispatching the stale token is contained and answered
// with Continue.
func (c *Callback) Release() {
	c.once.Do(func() {
		c.handle.Delete()
		C.free(c.slot)
		c.slot = nil
	})
}

// With registers fn for the duration of call, which receives the native
// function and argument to hand to the native operation.
func With(fn Func, arg interface{}, call func(pfn, parg unsafe.Pointer) error) error {
	cb := Register(fn, arg)
	defer cb.Release()

	return call(cb.Func(), cb.Arg())
}

// Dispatch invokes the handler registered under token and converts its
// decision into the native code. A panic in the handler or an invalid token
// is contained here: it is logged and Continue is returned.
func Dispatch(complete float64, message string, token uintptr) (code int) {
	defer func() {
		if r := recover(); r != nil {
			code = contain(&BoundaryError{
				Token: token,
				Event: Event{Complete: complete, Message: message},
				Cause: r,
			})
		}
	}()

	cb, ok := cgo.Handle(token).Value().(*Callback)
	if !ok {
		return contain(&BoundaryError{
			Token: token,
			Event: Event{Complete: complete, Message: message},
			Cause: "token does not refer to a progress callback",
		})
	}

	if cb.fn(complete, message, cb.arg) {
		metrics.ObserveCallback(metrics.ResultContinue)
		return Continue
	}
	metrics.ObserveCallback(metrics.ResultStop)
	return Stop
}

func contain(err *BoundaryError) int {
	metrics.ObserveCallback(metrics.ResultContained)
	getLogger().Error("contained progress callback failure",
		zap.Uintptr("token", err.Token),
		zap.Float64("complete", err.Event.Complete),
		zap.String("message", err.Event.Message),
		zap.Error(err),
	)
	return Continue
}

// Export callback to be able to call from C.
//
//export gdalgoProgressDispatch
func gdalgoProgressDispatch(complete C.double, message *C.char, token C.uintptr_t) C.int {
	var msg string
	if message != nil {
		msg = C.GoString(message)
	}
	return C.int(Dispatch(float64(complete), msg, uintptr(token)))
}
