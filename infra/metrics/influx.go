package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/gridflex/core/metrics"
	"github.com/kilianp07/gridflex/core/model"
	"github.com/kilianp07/gridflex/infra/logger"
)

// InfluxSink writes optimization runs and schedules to an InfluxDB instance
// using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the underlying client.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}

func runPoint(ev coremetrics.OptimizationEvent) *write.Point {
	p := write.NewPointWithMeasurement("optimization_run").
		AddTag("request_id", ev.RequestID).
		AddTag("status", ev.Status).
		AddField("duration_ms", round3(float64(ev.Duration)/float64(time.Millisecond))).
		AddField("solve_ms", round3(float64(ev.SolveTime)/float64(time.Millisecond))).
		AddField("nodes", ev.Nodes).
		AddField("variables", ev.Variables).
		AddField("constraints", ev.Constraints)
	if ev.Status == coremetrics.StatusOptimal {
		p = p.AddField("cost_total", round3(ev.Cost.Total)).
			AddField("cost_energy", round3(ev.Cost.Energy)).
			AddField("cost_grid_fee", round3(ev.Cost.GridFee)).
			AddField("cost_demand", round3(ev.Cost.DemandCharge)).
			AddField("cost_fuel", round3(ev.Cost.Fuel)).
			AddField("cost_carbon", round3(ev.Cost.Carbon)).
			AddField("peak_kw", round3(ev.PeakKW)).
			AddField("low_window_share", round3(ev.Summary.LowWindowShare))
	}
	return p.SetTime(ev.Time)
}

// RecordOptimization writes one optimization_run point.
func (s *InfluxSink) RecordOptimization(ev coremetrics.OptimizationEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, runPoint(ev))
}

func setpointPoints(sch *model.DispatchSchedule) []*write.Point {
	var pts []*write.Point
	for _, a := range sch.Assets {
		for t, pw := range a.PowerKW {
			p := write.NewPointWithMeasurement("asset_setpoint").
				AddTag("request_id", sch.RequestID).
				AddTag("asset_id", a.AssetID).
				AddTag("kind", string(a.Kind)).
				AddField("power_kw", round3(pw))
			if len(a.SoCKWh) > t+1 {
				p = p.AddField("soc_kwh", round3(a.SoCKWh[t+1]))
			}
			if len(a.On) > t {
				p = p.AddField("on", a.On[t])
			}
			pts = append(pts, p.SetTime(sch.PeriodStart(t)))
		}
	}
	return pts
}

// RecordSchedule writes one asset_setpoint point per asset and period.
func (s *InfluxSink) RecordSchedule(sch *model.DispatchSchedule) error {
	pts := setpointPoints(sch)
	if len(pts) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, pts...)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
