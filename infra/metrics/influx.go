package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/restaurant-platform/courierbroker/core/metrics"
	"github.com/restaurant-platform/courierbroker/core/model"
	"github.com/restaurant-platform/courierbroker/infra/logger"
)

// InfluxSink writes broker events to an InfluxDB instance using the official client.
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

// RecordSelection writes the selection outcome as line protocol events.
func (s *InfluxSink) RecordSelection(ev coremetrics.SelectionEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("vendor_selection").
		AddTag("company_id", ev.CompanyID).
		AddTag("branch_id", ev.BranchID).
		AddTag("provider_type", string(ev.ProviderType)).
		AddTag("outcome", ev.Outcome).
		AddTag("component", "selection_engine").
		AddField("total_score", round3(ev.TotalScore)).
		AddField("evaluated", ev.Evaluated).
		AddField("eliminated", ev.Eliminated).
		AddField("elapsed_ms", round3(ev.Elapsed.Seconds()*1000)).
		SetTime(time.Now())
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordWebhookDelivery writes one delivery attempt.
func (s *InfluxSink) RecordWebhookDelivery(ev coremetrics.WebhookDeliveryEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("webhook_delivery").
		AddTag("webhook_id", ev.WebhookID).
		AddTag("event", ev.Event).
		AddTag("success", strconv.FormatBool(ev.Success)).
		AddTag("component", "webhook_dispatcher").
		AddField("attempt", ev.Attempt).
		AddField("status_code", ev.StatusCode).
		AddField("latency_ms", round3(ev.Latency.Seconds()*1000)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordCapacityReservation writes a reserve outcome.
func (s *InfluxSink) RecordCapacityReservation(pt model.ProviderType, reserved bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("capacity_reservation").
		AddTag("provider_type", string(pt)).
		AddTag("reserved", strconv.FormatBool(reserved)).
		AddTag("component", "availability_tracker").
		AddField("count", 1).
		SetTime(time.Now())
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
