// Package ratelimit throttles archive downloads to a configured bandwidth.
package ratelimit

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/time/rate"
)

// minBurst bounds how small a single throttled read may get.
const minBurst = 32 * 1024

// bandwidthUnits maps suffixes to bytes per second. Longer suffixes come
// first so "mbps" is not taken for "bps".
var bandwidthUnits = []struct {
	suffix string
	factor float64
}{
	{"gbyte/s", 1e9},
	{"mbyte/s", 1e6},
	{"kbyte/s", 1e3},
	{"byte/s", 1},
	{"gbps", 1e9 / 8},
	{"mbps", 1e6 / 8},
	{"kbps", 1e3 / 8},
	{"gb/s", 1e9},
	{"mb/s", 1e6},
	{"kb/s", 1e3},
	{"bps", 1.0 / 8},
	{"b/s", 1},
}

// ParseBandwidth parses a bandwidth string like "10Mbps" or "2MB/s" into
// bytes per second. An empty string or "0" means unlimited.
func ParseBandwidth(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "0" {
		return 0, nil
	}

	factor := 1.0
	for _, u := range bandwidthUnits {
		if strings.HasSuffix(s, u.suffix) {
			factor = u.factor
			s = strings.TrimSuffix(s, u.suffix)
			break
		}
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid bandwidth value: %w", err)
	}
	if value < 0 {
		return 0, fmt.Errorf("invalid bandwidth value: negative")
	}

	rate := int64(value * factor)
	if value > 0 && rate == 0 {
		// Zero means unlimited, which is the opposite of what was asked for.
		return 0, fmt.Errorf("invalid bandwidth value: below 1 byte per second")
	}
	return rate, nil
}

// FormatBandwidth formats a bandwidth value to a human-readable string.
func FormatBandwidth(bytesPerSecond int64) string {
	bps := bytesPerSecond * 8

	if bps >= 1000*1000*1000 {
		return fmt.Sprintf("%.2f Gbps", float64(bps)/(1000*1000*1000))
	} else if bps >= 1000*1000 {
		return fmt.Sprintf("%.2f Mbps", float64(bps)/(1000*1000))
	} else if bps >= 1000 {
		return fmt.Sprintf("%.2f Kbps", float64(bps)/1000)
	}
	return fmt.Sprintf("%d bps", bps)
}

// Reader wraps an io.Reader with bandwidth throttling. Waiting for tokens
// stops when ctx is done.
type Reader struct {
	ctx     context.Context
	reader  io.Reader
	limiter *rate.Limiter
}

// NewReader creates a reader limited to bytesPerSecond. A non-positive
// limit returns r unchanged.
func NewReader(ctx context.Context, r io.Reader, bytesPerSecond int64) io.Reader {
	if bytesPerSecond <= 0 {
		return r
	}
	burst := int(bytesPerSecond)
	if burst < minBurst {
		burst = minBurst
	}
	return &Reader{
		ctx:     ctx,
		reader:  r,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
	}
}

// Read implements io.Reader with throttling.
func (tr *Reader) Read(p []byte) (int, error) {
	if burst := tr.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}

	n, err := tr.reader.Read(p)
	if n > 0 {
		if werr := tr.limiter.WaitN(tr.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
