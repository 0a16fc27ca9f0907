package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/fossMeDaddy/sfs-cli/internal/constants"
)

// Bar renders a single transfer with a progressbar/v3 bar on stderr.
// Unknown sizes (total < 0) render as a spinner with a byte counter.
type Bar struct {
	bar *progressbar.ProgressBar
}

// NewBar creates a bar for a transfer of total bytes.
func NewBar(total int64, description string) *Bar {
	return NewBarWriter(os.Stderr, total, description)
}

// NewBarWriter creates a bar rendering to w.
func NewBarWriter(w io.Writer, total int64, description string) *Bar {
	bar := progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(constants.ProgressUpdateInterval),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &Bar{bar: bar}
}

// Observe implements Sink.
func (b *Bar) Observe(s Sample) {
	_ = b.bar.Add64(s.BytesDelta)
}

// Finish completes the progress bar.
func (b *Bar) Finish() {
	_ = b.bar.Finish()
}

// SetDescription updates the progress bar description.
func (b *Bar) SetDescription(desc string) {
	b.bar.Describe(desc)
}

// Current returns the bytes rendered so far.
func (b *Bar) Current() int64 {
	return b.bar.State().CurrentNum
}
