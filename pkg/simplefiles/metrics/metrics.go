// Package metrics exposes file lifecycle counters to Prometheus.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tendant/simple-files/pkg/simplefiles"
)

// EventSink counts lifecycle events. It never fails.
type EventSink struct {
	uploads         prometheus.Counter
	uploadedBytes   prometheus.Counter
	downloads       prometheus.Counter
	deletes         prometheus.Counter
	partialFailures *prometheus.CounterVec
}

// NewEventSink registers the counters with reg
func NewEventSink(reg prometheus.Registerer) *EventSink {
	factory := promauto.With(reg)
	return &EventSink{
		uploads: factory.NewCounter(prometheus.CounterOpts{
			Name: "files_uploads_total",
			Help: "Number of files uploaded and recorded.",
		}),
		uploadedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "files_uploaded_bytes_total",
			Help: "Total bytes of recorded uploads.",
		}),
		downloads: factory.NewCounter(prometheus.CounterOpts{
			Name: "files_downloads_total",
			Help: "Number of audited downloads.",
		}),
		deletes: factory.NewCounter(prometheus.CounterOpts{
			Name: "files_deletes_total",
			Help: "Number of files deleted.",
		}),
		partialFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "files_partial_failures_total",
			Help: "Operations where the object store and the metadata store diverged.",
		}, []string{"op"}),
	}
}

func (s *EventSink) FileUploaded(ctx context.Context, record *simplefiles.FileRecord) error {
	s.uploads.Inc()
	if record.Size > 0 {
		s.uploadedBytes.Add(float64(record.Size))
	}
	return nil
}

func (s *EventSink) FileDownloaded(ctx context.Context, event *simplefiles.DownloadEvent) error {
	s.downloads.Inc()
	return nil
}

func (s *EventSink) FileDeleted(ctx context.Context, record *simplefiles.FileRecord) error {
	s.deletes.Inc()
	return nil
}

func (s *EventSink) PartialFailure(ctx context.Context, err *simplefiles.PartialFailureError) error {
	s.partialFailures.WithLabelValues(err.Op).Inc()
	return nil
}
