// Package ehsgw wires the bus-facing components (C1-C9) into a single
// long-running, self-healing gateway process: C10 of the design. It is
// the sole composition point, the way the teacher's tool.go builds a
// complete application-layer stack from its constituent parts without
// spawning goroutines of its own — all concurrency here is explicit and
// owned by Runtime.Run.
package ehsgw

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/ehsgw/gateway/control"
	"github.com/ehsgw/gateway/frame"
	"github.com/ehsgw/gateway/framer"
	"github.com/ehsgw/gateway/poll"
	"github.com/ehsgw/gateway/publish"
	"github.com/ehsgw/gateway/quality"
	"github.com/ehsgw/gateway/repo"
	"github.com/ehsgw/gateway/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// backoff schedule for transport reconnection (spec §4.10): 1s, 5s, 30s,
// then capped at 30s.
var backoffSchedule = []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}

// Runtime owns the event loop for one gateway instance.
type Runtime struct {
	cfg  *Config
	repo *repo.Repository
	mon  *quality.Monitor
	log  *logrus.Entry

	sink *publish.MQTTSink
	pub  *publish.Publisher
	ctrl *control.Ingress

	registry *prometheus.Registry

	// DumpPath, if set, receives every candidate frame the framer emits
	// during normal operation (those that passed its end-marker check),
	// appended by handleCandidate (spec §6's "--dump ... raw-frame trace
	// sink"). Leave empty to disable. Set before Run.
	DumpPath string
	dump     *os.File
}

// New constructs a Runtime from a validated Config. The repository is
// loaded here so that a bad repository surfaces before any connection
// attempt.
func New(cfg *Config, log *logrus.Entry) (*Runtime, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	r, err := repo.Load(cfg.RepositoryPath)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	snap, err := quality.Load(cfg.QualitySnapshot)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	mon := quality.New(log, nil)
	mon.Restore(snap)

	registry := prometheus.NewRegistry()
	for _, c := range mon.Collectors() {
		registry.MustRegister(c)
	}

	return &Runtime{cfg: cfg, repo: r, mon: mon, log: log, registry: registry}, nil
}

// Run connects to the pub/sub bus, then loops connecting to the device
// bus with increasing backoff on loss, until ctx is cancelled. It
// returns nil on a clean shutdown.
func (rt *Runtime) Run(ctx context.Context) error {
	sink, err := publish.DialMQTT(ctx, publish.MQTTConfig{
		Broker:   rt.cfg.MQTT.Broker,
		ClientID: rt.cfg.MQTT.ClientID,
		Username: rt.cfg.MQTT.Username,
		Password: rt.cfg.MQTT.Password,
	}, rt.log)
	if err != nil {
		return err
	}
	defer sink.Close()
	rt.sink = sink

	rt.pub = publish.New(sink, publish.Config{
		Prefix:        rt.cfg.MQTT.Prefix,
		Discovery:     rt.cfg.MQTT.Discovery,
		DiscoveryRoot: rt.cfg.MQTT.DiscoveryRoot,
		Platform:      rt.cfg.MQTT.Platform,
		DeviceID:      rt.cfg.MQTT.DeviceID,
	}, rt.log)

	if rt.cfg.MetricsAddr != "" {
		go rt.serveMetrics(ctx)
	}

	go rt.runQualityPeriodics(ctx)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		xport, err := rt.openTransport()
		if err != nil {
			rt.log.WithError(err).Warn("ehsgw: transport open failed, backing off")
			if waitErr := sleepCtx(ctx, backoffFor(attempt)); waitErr != nil {
				return nil
			}
			attempt++
			continue
		}

		attempt = 0
		if err := rt.runSession(ctx, xport); err != nil && rt.log != nil {
			rt.log.WithError(err).Warn("ehsgw: session ended, reconnecting")
		}
		xport.Close()

		if ctx.Err() != nil {
			return nil
		}
		if waitErr := sleepCtx(ctx, backoffFor(0)); waitErr != nil {
			return nil
		}
	}
}

func (rt *Runtime) openTransport() (transport.Transport, error) {
	if rt.cfg.Bus.Serial != nil {
		return transport.OpenSerial(transport.SerialConfig{
			Device:   rt.cfg.Bus.Serial.Device,
			BaudRate: rt.cfg.Bus.Serial.BaudRate,
		})
	}
	return transport.OpenTCP(transport.TCPConfig{
		Host: rt.cfg.Bus.TCP.Host,
		Port: rt.cfg.Bus.TCP.Port,
	})
}

// runSession drives one connected lifetime of the device bus: the
// framer, the three poll schedulers, the control-ingress sweeper and set
// subscription, and the decode/publish dispatch loop. It returns when
// the transport fails or ctx is cancelled.
func (rt *Runtime) runSession(ctx context.Context, xport transport.Transport) error {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if rt.DumpPath != "" {
		f, err := os.OpenFile(rt.DumpPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			if rt.log != nil {
				rt.log.WithError(err).Warn("ehsgw: failed to open dump file, continuing without it")
			}
		} else {
			rt.dump = f
			defer func() {
				rt.dump.Close()
				rt.dump = nil
			}()
		}
	}

	rt.ctrl = control.New(rt.repo, xport, rt.cfg.CommandTimeout(), rt.log)
	go rt.ctrl.RunSweeper(sessCtx)

	if err := rt.sink.Subscribe(sessCtx, rt.cfg.MQTT.Prefix, func(name, text string) {
		if err := rt.ctrl.Write(sessCtx, name, text, true); err != nil && rt.log != nil {
			rt.log.WithField("variable", name).WithError(err).Warn("ehsgw: rejected write")
		}
	}); err != nil {
		return err
	}

	fr := framer.New(xport, rt.mon, rt.log)
	done := make(chan error, 1)
	go func() { done <- fr.Run(sessCtx.Done()) }()

	groups := []poll.Group{
		poll.NewGroup("live_data", time.Duration(rt.cfg.Polling.Live.CadenceSeconds)*time.Second, rt.cfg.Polling.Live.Variables, 0, rt.repo, rt.log),
		poll.NewGroup("settings", time.Duration(rt.cfg.Polling.Settings.CadenceSeconds)*time.Second, rt.cfg.Polling.Settings.Variables, 1, rt.repo, rt.log),
		poll.NewGroup("static_data", time.Duration(rt.cfg.Polling.Static.CadenceSeconds)*time.Second, rt.cfg.Polling.Static.Variables, 2, rt.repo, rt.log),
	}
	for _, g := range groups {
		s := poll.New(g, xport, 2*time.Second, rt.log)
		go s.Run(sessCtx)
	}

	for {
		select {
		case candidate, ok := <-fr.Frames:
			if !ok {
				return <-done
			}
			go rt.handleCandidate(candidate)
		case <-sessCtx.Done():
			return nil
		}
	}
}

// handleCandidate decodes one candidate frame and publishes its
// messages, in order, per spec §5's within-frame ordering guarantee.
// It runs on its own goroutine per frame, matching the "frames are
// decoded concurrently on separate tasks" note in the same section.
func (rt *Runtime) handleCandidate(candidate []byte) {
	if rt.dump != nil {
		if _, err := rt.dump.Write(candidate); err != nil && rt.log != nil {
			rt.log.WithError(err).Warn("ehsgw: failed to write to dump file")
		}
	}

	fr, err := frame.Parse(candidate)
	if err != nil && fr == nil {
		return
	}

	for _, msg := range fr.Messages {
		entry, ok := rt.repo.ByAddress(msg.Address)
		if !ok {
			continue
		}

		v, err := frame.DecodeValue(msg, entry)
		if err != nil {
			if rt.log != nil {
				rt.log.WithField("variable", entry.Name).WithError(err).Warn("ehsgw: failed to decode value")
			}
			continue
		}

		rt.ctrl.Observe(entry.Name)

		if err := rt.pub.Publish(entry, v); err != nil && rt.log != nil {
			rt.log.WithField("variable", entry.Name).WithError(err).Warn("ehsgw: failed to publish value")
		}
	}
}

// runQualityPeriodics drives the hourly/daily/weekly reports aligned to
// wall-clock boundaries per spec §4.6 ("aligned to :00", "aligned to
// 00:00", "the same day-of-week at 00:00"): each timer is first armed to
// fire at the next such boundary, then rearmed on its fixed period
// (an hour, a day, a week) since the boundary spacing never varies.
func (rt *Runtime) runQualityPeriodics(ctx context.Context) {
	now := time.Now()

	hourly := time.NewTimer(time.Until(nextHourBoundary(now)))
	defer hourly.Stop()
	daily := time.NewTimer(time.Until(nextDayBoundary(now)))
	defer daily.Stop()
	weekly := time.NewTimer(time.Until(nextWeekBoundary(now)))
	defer weekly.Stop()

	saveCheck := time.NewTicker(10 * time.Second)
	defer saveCheck.Stop()

	for {
		select {
		case <-hourly.C:
			rt.logReport(rt.mon.Hourly())
			hourly.Reset(time.Hour)
		case <-daily.C:
			rt.logReport(rt.mon.Daily())
			daily.Reset(24 * time.Hour)
		case <-weekly.C:
			rt.logReport(rt.mon.Weekly())
			weekly.Reset(7 * 24 * time.Hour)
		case <-saveCheck.C:
			if rt.mon.ShouldSave() {
				quality.Save(rt.cfg.QualitySnapshot, rt.mon.Snapshot())
			}
		case <-ctx.Done():
			quality.Save(rt.cfg.QualitySnapshot, rt.mon.Snapshot())
			return
		}
	}
}

func (rt *Runtime) logReport(r quality.Report) {
	if rt.log == nil {
		return
	}
	entry := rt.log.WithField("period", r.Period).WithField("rate", r.Rate)
	if r.Elevated {
		entry.Warn("quality: periodic report above report threshold")
	} else {
		entry.Info("quality: periodic report")
	}
}

func nextHourBoundary(now time.Time) time.Time {
	return now.Truncate(time.Hour).Add(time.Hour)
}

func nextDayBoundary(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
}

// nextWeekBoundary aligns to the next Monday 00:00, a fixed reference
// day-of-week, so "the same day-of-week" has a concrete anchor rather
// than depending on the instance's start time.
func nextWeekBoundary(now time.Time) time.Time {
	mid := nextDayBoundary(now)
	for mid.Weekday() != time.Monday {
		mid = mid.AddDate(0, 0, 1)
	}
	return mid
}

func (rt *Runtime) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: rt.cfg.MetricsAddr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed && rt.log != nil {
		rt.log.WithError(err).Warn("ehsgw: metrics server stopped")
	}
}

func backoffFor(attempt int) time.Duration {
	if attempt >= len(backoffSchedule) {
		return backoffSchedule[len(backoffSchedule)-1]
	}
	return backoffSchedule[attempt]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
