package core

import "time"

// Metrics receives observability events from the selection pipeline. The HTTP server's
// prometheus collectors implement it; NopMetrics is used when nothing is listening.
type Metrics interface {
	RecordRound(difficulty, outcome string)
	RecordRelaxation(difficulty string)
	RecordPreviewCheck(result string)
	RecordCatalogFetch(source, status string)
	RecordFilteredTrack(reason string)
	ObserveSelectionTime(difficulty string, duration time.Duration)
}

type NopMetrics struct{}

func (NopMetrics) RecordRound(string, string) {}
func (NopMetrics) RecordRelaxation(string) {}
func (NopMetrics) RecordPreviewCheck(string) {}
func (NopMetrics) RecordCatalogFetch(string, string) {}
func (NopMetrics) RecordFilteredTrack(string) {}
func (NopMetrics) ObserveSelectionTime(string, time.Duration) {}
