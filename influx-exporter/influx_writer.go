package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaStructs"
)

const writeTimeout = 10 * time.Second

// recordWriter is satisfied by api.WriteAPIBlocking.
type recordWriter interface {
	WriteRecord(ctx context.Context, line ...string) error
}

type influxWriter struct {
	api    recordWriter
	logger *zap.SugaredLogger
	now    func() time.Time
}

func newInfluxWriter(api recordWriter, logger *zap.SugaredLogger) *influxWriter {
	return &influxWriter{api: api, logger: logger, now: time.Now}
}

// influxLines renders one line per numeric value of a known object.
func influxLines(snapshot casaStructs.Snapshot, ts time.Time) []string {
	lines := make([]string, 0, snapshot.Len())
	for _, id := range snapshot.IDs() {
		info, ok := casaStructs.Lookup(id)
		if !ok {
			continue
		}
		v, _ := snapshot.Get(id)
		f, ok := v.Float64()
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("casa_%s,objectId=%s value=%s %d",
			info.Key, id, strconv.FormatFloat(f, 'f', -1, 64), ts.UTC().UnixNano()))
	}
	return lines
}

func (w *influxWriter) HandleSnapshot(snapshot casaStructs.Snapshot) {
	lines := influxLines(snapshot, w.now())
	if len(lines) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := w.api.WriteRecord(ctx, lines...); err != nil {
		w.logger.Errorf("Writing %d lines to InfluxDB failed: %v", len(lines), err)
		return
	}
	w.logger.Debugf("Wrote %d lines to InfluxDB", len(lines))
}
