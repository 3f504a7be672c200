package progress

import (
	"io"
	"math"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// NewTerm returns a Func that renders progress as a percentage bar on w.
// Messages become the bar description. It never cancels.
func NewTerm(w io.Writer) Func {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(25),
		progressbar.OptionShowCount(),
	)

	var mu sync.Mutex
	var description string
	done := false

	return func(complete float64, message string, arg interface{}) bool {
		mu.Lock()
		defer mu.Unlock()

		if done {
			return true
		}
		if message != "" && message != description {
			description = message
			bar.Describe(message)
		}

		if math.IsNaN(complete) {
			complete = 0
		}
		complete = math.Min(math.Max(complete, 0), 1)
		bar.Set(int(math.Round(complete * 100)))
		if complete >= 1 {
			bar.Finish()
			done = true
		}
		return true
	}
}
