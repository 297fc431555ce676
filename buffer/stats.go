package buffer

import "go.uber.org/atomic"

// Stats tracks buffer pool hit/miss/eviction/flush counters. Fields are
// go.uber.org/atomic values so readers (e.g. an admin endpoint) never take
// the pool's mutex.
type Stats struct {
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	flushes   atomic.Uint64
}

func (s *Stats) recordHit()      { s.hits.Inc() }
func (s *Stats) recordMiss()     { s.misses.Inc() }
func (s *Stats) recordEviction() { s.evictions.Inc() }
func (s *Stats) recordFlush()    { s.flushes.Inc() }

// Hits returns the number of FetchPage calls resolved without disk I/O.
func (s *Stats) Hits() uint64 { return s.hits.Load() }

// Misses returns the number of FetchPage calls that required a disk read.
func (s *Stats) Misses() uint64 { return s.misses.Load() }

// Evictions returns the number of frames reclaimed via the replacer.
func (s *Stats) Evictions() uint64 { return s.evictions.Load() }

// Flushes returns the number of pages written back to disk.
func (s *Stats) Flushes() uint64 { return s.flushes.Load() }

// HitRatio returns hits / (hits + misses), or 0 if there have been none.
func (s *Stats) HitRatio() float64 {
	hits := s.hits.Load()
	total := hits + s.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
