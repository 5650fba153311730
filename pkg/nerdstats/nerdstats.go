package nerdstats

import (
	"runtime"
	"time"
)

// Stats is the slice of runtime.MemStats worth printing when the gateway
// shuts down. See https://pkg.go.dev/runtime#MemStats for the fields.
type Stats struct {
	LastGC        time.Time
	GoVersion     string
	HeapAlloc     uint64
	HeapSys       uint64
	HeapInuse     uint64
	StackInuse    uint64
	TotalAlloc    uint64
	Mallocs       uint64
	Frees         uint64
	TotalGCPause  time.Duration
	Uptime        time.Duration
	GCCPUFraction float64
	NumGoroutines int
	NumCPU        int
	NumGC         uint32
}

func Snapshot(startTime time.Time) *Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	s := &Stats{
		GoVersion:     runtime.Version(),
		HeapAlloc:     m.HeapAlloc,
		HeapSys:       m.HeapSys,
		HeapInuse:     m.HeapInuse,
		StackInuse:    m.StackInuse,
		TotalAlloc:    m.TotalAlloc,
		Mallocs:       m.Mallocs,
		Frees:         m.Frees,
		TotalGCPause:  time.Duration(m.PauseTotalNs),
		Uptime:        time.Since(startTime),
		GCCPUFraction: m.GCCPUFraction,
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		NumGC:         m.NumGC,
	}
	if m.LastGC > 0 {
		s.LastGC = time.Unix(0, int64(m.LastGC))
	}
	return s
}

// MemoryPressure grades how much of the heap obtained from the OS is live.
func (s *Stats) MemoryPressure() string {
	if s.HeapSys == 0 {
		return "unknown"
	}
	ratio := float64(s.HeapInuse) / float64(s.HeapSys)
	switch {
	case ratio > 0.9:
		return "high"
	case ratio > 0.7:
		return "medium"
	default:
		return "low"
	}
}

// AverageGCPause is zero before the first collection.
func (s *Stats) AverageGCPause() time.Duration {
	if s.NumGC == 0 {
		return 0
	}
	return s.TotalGCPause / time.Duration(s.NumGC)
}
