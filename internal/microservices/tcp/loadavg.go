package tcp

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shirou/gopsutil/v4/load"
)

// LoadAverage holds the host's 1, 5 and 15 minute load averages
type LoadAverage struct {
	Load1  float64 `json:"load1"`
	Load5  float64 `json:"load5"`
	Load15 float64 `json:"load15"`
}

// LoadAverager abstracts the host metrics query so tests can fake it
type LoadAverager interface {
	LoadAverage(ctx context.Context) (LoadAverage, error)
}

// HostLoadAverager reads load averages from the running host via gopsutil
type HostLoadAverager struct{}

func (HostLoadAverager) LoadAverage(ctx context.Context) (LoadAverage, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return LoadAverage{}, fmt.Errorf("failed to query load average: %w", err)
	}
	return LoadAverage{Load1: avg.Load1, Load5: avg.Load5, Load15: avg.Load15}, nil
}

// FormatLoad prints v with a fixed number of fractional digits.
// precision 6 gives the same digits as printf "%f".
func FormatLoad(v float64, precision int) string {
	return strconv.FormatFloat(v, 'f', precision, 64)
}
