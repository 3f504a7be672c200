package progress

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/brendan-ward/gdalprogress/nativeop"
	"github.com/stretchr/testify/assert"
)

func record(events *[]Event, cont bool) Func {
	return func(complete float64, message string, arg interface{}) bool {
		*events = append(*events, Event{complete, message})
		return cont
	}
}

func Test_Dummy(t *testing.T) {
	for _, complete := range []float64{0, 0.5, 1} {
		assert.True(t, Dummy(complete, "", nil))
	}
}

func Test_Scaled(t *testing.T) {
	var events []Event
	fn := Scaled(0.5, 0.75, record(&events, true))

	for _, complete := range []float64{0, 0.5, 1} {
		assert.True(t, fn(complete, "band 2", nil))
	}
	assert.Equal(t, []Event{{0.5, "band 2"}, {0.625, "band 2"}, {0.75, "band 2"}}, events)

	stop := Scaled(0, 0.5, record(&events, false))
	assert.False(t, stop(0.2, "", nil))

	assert.True(t, Scaled(0, 1, nil)(0.5, "", nil))
	assert.Panics(t, func() { Scaled(0.8, 0.2, nil) })
}

func Test_ScaledNested(t *testing.T) {
	var events []Event
	outer := record(&events, true)

	// two sub-operations each taking half of the outer operation
	first := Register(Scaled(0, 0.5, outer), nil)
	defer first.Release()
	second := Register(Scaled(0.5, 1, outer), nil)
	defer second.Release()

	nativeop.Feed(first.Func(), first.Arg(), []float64{0, 1}, nil)
	nativeop.Feed(second.Func(), second.Arg(), []float64{0, 0.5, 1}, nil)

	expected := []float64{0, 0.5, 0.5, 0.75, 1}
	for i, e := range events {
		assert.InDelta(t, expected[i], e.Complete, 1e-12)
	}
}

func Test_WithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var events []Event
	fn := WithContext(ctx, record(&events, true))

	assert.True(t, fn(0.1, "", nil))
	cancel()
	assert.False(t, fn(0.2, "", nil))
	assert.Len(t, events, 1)
}

func Test_WithContextNative(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	fn := WithContext(ctx, func(complete float64, message string, arg interface{}) bool {
		calls++
		if calls == 3 {
			cancel()
		}
		return true
	})

	cb := Register(fn, nil)
	defer cb.Release()

	res, err := nativeop.Run(cb.Func(), cb.Arg(), 10, "", 0)
	assert.ErrorIs(t, err, nativeop.ErrUserTerminated)
	assert.Equal(t, 4, res.Calls)
	assert.Equal(t, 3, calls)
}

func Test_Latch(t *testing.T) {
	calls := 0
	// not monotone: cancels only at exactly 0.5
	fn := Latch(func(complete float64, message string, arg interface{}) bool {
		calls++
		return complete != 0.5
	})

	cb := Register(fn, nil)
	defer cb.Release()

	codes := nativeop.Feed(cb.Func(), cb.Arg(), []float64{0, 0.25, 0.5, 0.75, 1}, nil)
	assert.Equal(t, []int{Continue, Continue, Stop, Stop, Stop}, codes)
	assert.Equal(t, 3, calls)
}

func Test_LatchConcurrent(t *testing.T) {
	fn := Latch(func(complete float64, message string, arg interface{}) bool {
		return complete < 0.5
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(0.25, "", nil)
		}()
	}
	wg.Wait()

	assert.True(t, fn(0.3, "", nil))
	assert.False(t, fn(0.6, "", nil))
	assert.False(t, fn(0.1, "", nil))
}

func Test_Chain(t *testing.T) {
	var first, second []Event
	fn := Chain(record(&first, false), nil, record(&second, true))

	assert.False(t, fn(0.5, "msg", nil))
	assert.Equal(t, []Event{{0.5, "msg"}}, first)
	assert.Equal(t, []Event{{0.5, "msg"}}, second)

	assert.True(t, Chain()(0.5, "", nil))
}

func Test_Term(t *testing.T) {
	var b bytes.Buffer
	fn := NewTerm(&b)

	cb := Register(fn, nil)
	defer cb.Release()

	codes := nativeop.Feed(cb.Func(), cb.Arg(), []float64{0, 0.5, 1, 1}, []*string{nativeop.Msg("translating")})
	assert.Equal(t, []int{Continue, Continue, Continue, Continue}, codes)

	out := b.String()
	assert.True(t, strings.Contains(out, "translating"), out)
	assert.True(t, strings.Contains(out, "100%"), out)
}
