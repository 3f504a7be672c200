// Package progress adapts GDAL-style native progress callbacks
// (GDALProgressFunc) to Go functions.
//
// Native code receives a fixed C function pointer and an opaque argument
// holding a cgo handle. Each native call is dispatched synchronously to the
// registered Func, and its decision is returned using GDAL's convention:
// nonzero to continue, zero to abort.
//
//	cb := progress.Register(func(complete float64, msg string, _ interface{}) bool {
//		fmt.Printf("%3.0f%% %s\n", complete*100, msg)
//		return true
//	}, nil)
//	defer cb.Release()
//
//	C.GDALCreateCopy(drv, name, src, 0, nil, (C.GDALProgressFunc)(cb.Func()), cb.Arg())
//
// Panics raised by a Func never reach native code.
package progress
