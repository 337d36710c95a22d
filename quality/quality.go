// Package quality accumulates valid/invalid frame counts and turns them
// into threshold alerts and periodic reports, the way the teacher's
// session package tracks Level transitions except the subject here is
// packet health rather than link availability.
package quality

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	// AlertThreshold is the fraction of invalid frames, over the
	// aggregate window, above which a warning is logged.
	AlertThreshold = 0.15

	// ReportThreshold is the fraction surfaced in periodic reports
	// (below AlertThreshold; reports are informational, alerts are not).
	ReportThreshold = 0.05

	alertEvery = 1000 // log at most one alert per this many packets

	hourlyRingSize = 24
	dailyRingSize  = 30
	weeklyRingSize = 12
)

// bucket is one hour- or day-keyed counter pair, see spec §3.
type bucket struct {
	Key     string `json:"key"`
	Total   uint64 `json:"total"`
	Invalid uint64 `json:"invalid"`
}

func (b bucket) rate() float64 {
	if b.Total == 0 {
		return 0
	}
	return float64(b.Invalid) / float64(b.Total)
}

// Report is a rendered periodic summary, kept in a bounded ring.
type Report struct {
	Period    string    `json:"period"` // "hourly", "daily" or "weekly"
	Generated time.Time `json:"generated"`
	Total     uint64    `json:"total"`
	Invalid   uint64    `json:"invalid"`
	Rate      float64   `json:"rate"`

	// Elevated is true when Rate exceeds ReportThreshold, the way the
	// alert threshold gates Classify's warning log.
	Elevated bool `json:"elevated"`
}

// Snapshot is the full persisted state, see spec §9 Persisted state.
type Snapshot struct {
	TotalPackets   uint64    `json:"total_packets"`
	InvalidPackets uint64    `json:"invalid_packets"`
	Hours          []bucket  `json:"hours"`
	Days           []bucket  `json:"days"`
	HourlyReports  []Report  `json:"hourly_reports"`
	DailyReports   []Report  `json:"daily_reports"`
	WeeklyReports  []Report  `json:"weekly_reports"`
	SavedAt        time.Time `json:"saved_at"`
}

// Clock supplies wall-clock time, substitutable in tests so bucket keys
// and report alignment are deterministic.
type Clock func() time.Time

// Monitor is C6 Quality Monitor. It is safe for concurrent use; Classify
// is called from the framer's scanning goroutine while reports and
// snapshots are produced from the runtime's periodic-task loop.
type Monitor struct {
	mu sync.Mutex

	now Clock
	log *logrus.Entry

	total   uint64
	invalid uint64

	hours map[string]*bucket
	days  map[string]*bucket

	hourlyReports []Report
	dailyReports  []Report
	weeklyReports []Report

	sinceAlert uint64 // packets observed since the last alert log

	lastSaved time.Time

	packetsTotal   prometheus.Counter
	packetsInvalid prometheus.Counter
	invalidRatio   prometheus.Gauge
}

// New returns an empty Monitor. Pass nil for now to use time.Now.
func New(log *logrus.Entry, now Clock) *Monitor {
	if now == nil {
		now = time.Now
	}
	return &Monitor{
		now:   now,
		log:   log,
		hours: make(map[string]*bucket),
		days:  make(map[string]*bucket),
		packetsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ehsgw_frames_total",
			Help: "Total bus frames scanned by the framer, valid or invalid.",
		}),
		packetsInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ehsgw_frames_invalid_total",
			Help: "Bus frames rejected for a bad marker, length or checksum.",
		}),
		invalidRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ehsgw_frames_invalid_ratio",
			Help: "Fraction of invalid frames over the aggregate window.",
		}),
	}
}

// Collectors returns the metrics this Monitor exposes, for registration
// with a prometheus.Registerer.
func (m *Monitor) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.packetsTotal, m.packetsInvalid, m.invalidRatio}
}

// Classify records one candidate frame as valid or invalid.
func (m *Monitor) Classify(valid bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	hourKey := now.Format("2006-01-02 15")
	dayKey := now.Format("2006-01-02")

	m.total++
	m.packetsTotal.Inc()
	hb := m.bucketFor(m.hours, hourKey)
	db := m.bucketFor(m.days, dayKey)
	hb.Total++
	db.Total++

	if !valid {
		m.invalid++
		m.packetsInvalid.Inc()
		hb.Invalid++
		db.Invalid++
	}

	m.sinceAlert++
	rate := 0.0
	if m.total > 0 {
		rate = float64(m.invalid) / float64(m.total)
	}
	m.invalidRatio.Set(rate)

	if rate > AlertThreshold && m.sinceAlert >= alertEvery {
		m.sinceAlert = 0
		if m.log != nil {
			m.log.WithField("rate", rate).Warn("quality: invalid-frame rate above alert threshold")
		}
	}
}

func (m *Monitor) bucketFor(set map[string]*bucket, key string) *bucket {
	b, ok := set[key]
	if !ok {
		b = &bucket{Key: key}
		set[key] = b
	}
	return b
}

// Hourly renders and records an hourly report, keeping at most
// hourlyRingSize entries.
func (m *Monitor) Hourly() Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.report("hourly")
	m.hourlyReports = pushRing(m.hourlyReports, r, hourlyRingSize)
	return r
}

// Daily renders and records a daily report, keeping at most dailyRingSize
// entries.
func (m *Monitor) Daily() Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.report("daily")
	m.dailyReports = pushRing(m.dailyReports, r, dailyRingSize)
	return r
}

// Weekly renders and records a weekly report, keeping at most
// weeklyRingSize entries.
func (m *Monitor) Weekly() Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.report("weekly")
	m.weeklyReports = pushRing(m.weeklyReports, r, weeklyRingSize)
	return r
}

func (m *Monitor) report(period string) Report {
	rate := 0.0
	if m.total > 0 {
		rate = float64(m.invalid) / float64(m.total)
	}
	return Report{
		Period:    period,
		Generated: m.now(),
		Total:     m.total,
		Invalid:   m.invalid,
		Rate:      rate,
		Elevated:  rate > ReportThreshold,
	}
}

func pushRing(ring []Report, r Report, max int) []Report {
	ring = append(ring, r)
	if len(ring) > max {
		ring = ring[len(ring)-max:]
	}
	return ring
}

// ShouldSave reports whether enough time has passed since the last saved
// snapshot, enforcing the "at most once per minute" policy from spec §3.
func (m *Monitor) ShouldSave() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Sub(m.lastSaved) >= time.Minute
}

// Snapshot returns the current state for persistence and marks it saved.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSaved = m.now()

	s := Snapshot{
		TotalPackets:   m.total,
		InvalidPackets: m.invalid,
		HourlyReports:  append([]Report(nil), m.hourlyReports...),
		DailyReports:   append([]Report(nil), m.dailyReports...),
		WeeklyReports:  append([]Report(nil), m.weeklyReports...),
		SavedAt:        m.lastSaved,
	}
	for _, b := range m.hours {
		s.Hours = append(s.Hours, *b)
	}
	for _, b := range m.days {
		s.Days = append(s.Days, *b)
	}
	return s
}

// Restore loads a previously persisted Snapshot. Unknown or zero-value
// snapshots (e.g. from a missing file) are accepted as a no-op reset.
func (m *Monitor) Restore(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total = s.TotalPackets
	m.invalid = s.InvalidPackets
	m.hourlyReports = append([]Report(nil), s.HourlyReports...)
	m.dailyReports = append([]Report(nil), s.DailyReports...)
	m.weeklyReports = append([]Report(nil), s.WeeklyReports...)

	m.hours = make(map[string]*bucket, len(s.Hours))
	for _, b := range s.Hours {
		cp := b
		m.hours[b.Key] = &cp
	}
	m.days = make(map[string]*bucket, len(s.Days))
	for _, b := range s.Days {
		cp := b
		m.days[b.Key] = &cp
	}
}
