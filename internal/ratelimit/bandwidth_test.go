package ratelimit

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBandwidth(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"", 0},
		{"0", 0},
		{"10Mbps", 10 * 1000 * 1000 / 8},
		{"1024kbps", 1024 * 1000 / 8},
		{"1Gbps", 1000 * 1000 * 1000 / 8},
		{"800bps", 100},
		{"2MB/s", 2 * 1000 * 1000},
		{"5 kbyte/s", 5000},
		{"512B/s", 512},
		{"4096", 4096},
		{" 1.5mb/s ", 1500000},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseBandwidth(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseBandwidth_Invalid(t *testing.T) {
	for _, input := range []string{"fast", "Mbps", "-5MB/s", "10 parsecs", "4bps", "0.5B/s"} {
		_, err := ParseBandwidth(input)
		assert.Error(t, err, input)
	}
}

func TestFormatBandwidth(t *testing.T) {
	assert.Equal(t, "1.25 Gbps", FormatBandwidth(1250*1000*1000/8))
	assert.Equal(t, "10.00 Mbps", FormatBandwidth(10*1000*1000/8))
	assert.Equal(t, "8.00 Kbps", FormatBandwidth(1000))
	assert.Equal(t, "800 bps", FormatBandwidth(100))
}

func TestNewReader_Unlimited(t *testing.T) {
	src := bytes.NewReader([]byte("payload"))
	assert.Same(t, io.Reader(src), NewReader(context.Background(), src, 0))
}

func TestReader_Throttles(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 400_000)
	r := NewReader(context.Background(), bytes.NewReader(data), 200_000)

	start := time.Now()
	got, err := io.ReadAll(r)
	require.NoError(t, err)

	assert.Equal(t, data, got)
	// The first burst is free, the second 200k take about a second.
	assert.GreaterOrEqual(t, time.Since(start), 700*time.Millisecond)
}

func TestReader_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	data := bytes.Repeat([]byte("x"), 4*minBurst)
	r := NewReader(ctx, bytes.NewReader(data), 1)

	_, err := io.ReadAll(r)
	require.Error(t, err)
}
