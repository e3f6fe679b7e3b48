package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/pflag"

	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/ports"
)

// statsColumns lists the series printed by the stats command, in order.
var statsColumns = []struct {
	label  string
	metric string
}{
	{"published", ports.MetricPublished},
	{"failures", ports.MetricPublishFailures},
	{"nacks", ports.MetricPublishNacks},
	{"tag_errors", ports.MetricTagErrors},
	{"cycle_errors", ports.MetricCycleErrors},
	{"tags", ports.MetricTagsLoaded},
	{"connected", ports.MetricBrokerConnected},
}

func statsCommand(args []string) error {
	fs := pflag.NewFlagSet("stats", pflag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			values, err := scrapeStats(ctx, http.DefaultClient, *url)
			if err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
				continue
			}
			writeStats(os.Stdout, now, values)
		}
	}
}

// scrapeStats fetches the forwarder series from a Prometheus text endpoint.
// Series the endpoint does not expose are left out of the result.
func scrapeStats(ctx context.Context, client *http.Client, url string) (map[string]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse metrics: %w", err)
	}

	values := make(map[string]float64, len(statsColumns))
	for _, col := range statsColumns {
		if v, ok := familyValue(families[col.metric]); ok {
			values[col.metric] = v
		}
	}
	return values, nil
}

// familyValue sums a counter or gauge family across its series.
func familyValue(family *dto.MetricFamily) (float64, bool) {
	if family == nil {
		return 0, false
	}
	var sum float64
	for _, m := range family.GetMetric() {
		switch family.GetType() {
		case dto.MetricType_COUNTER:
			sum += m.GetCounter().GetValue()
		case dto.MetricType_GAUGE:
			sum += m.GetGauge().GetValue()
		case dto.MetricType_UNTYPED:
			sum += m.GetUntyped().GetValue()
		default:
			return 0, false
		}
	}
	return sum, true
}

func writeStats(w io.Writer, at time.Time, values map[string]float64) {
	fmt.Fprintf(w, "[%s]", at.Format(time.RFC3339))
	for _, col := range statsColumns {
		if v, ok := values[col.metric]; ok {
			fmt.Fprintf(w, " %s=%g", col.label, v)
		} else {
			fmt.Fprintf(w, " %s=-", col.label)
		}
	}
	fmt.Fprintln(w)
}
