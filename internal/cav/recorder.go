package cav

import "time"

// Recorder receives operational measurements from the service. The metrics
// package provides the Prometheus implementation.
type Recorder interface {
	BackupCompleted(t BackupType, sizeBytes int, elapsed time.Duration)
	BackupFailed(t BackupType)
	RestoreFinished(report *RestoreReport)
	AlertRaised(alert Alert)
}

// NopRecorder discards all measurements.
type NopRecorder struct{}

func (NopRecorder) BackupCompleted(BackupType, int, time.Duration) {}
func (NopRecorder) BackupFailed(BackupType)                        {}
func (NopRecorder) RestoreFinished(*RestoreReport)                 {}
func (NopRecorder) AlertRaised(Alert)                              {}
