//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package importer

import (
	"time"

	"github.com/sirupsen/logrus"
)

// ExecutionMonitor receives progress notifications. The pipeline calls it
// but never depends on its behavior; implementations must tolerate
// concurrent BatchCompleted calls.
type ExecutionMonitor interface {
	StageStarted(stage string)
	BatchCompleted(stage string, entities int)
	StageCompleted(stage string, took time.Duration)
}

type silentMonitor struct{}

// SilentMonitor discards all notifications.
func SilentMonitor() ExecutionMonitor {
	return silentMonitor{}
}

func (silentMonitor) StageStarted(string)                 {}
func (silentMonitor) BatchCompleted(string, int)          {}
func (silentMonitor) StageCompleted(string, time.Duration) {}

type logMonitor struct {
	logger logrus.FieldLogger
}

// LogMonitor reports stage transitions at info level and batches at debug
// level.
func LogMonitor(logger logrus.FieldLogger) ExecutionMonitor {
	return &logMonitor{logger: logger}
}

func (m *logMonitor) StageStarted(stage string) {
	m.logger.WithField("stage", stage).Info("stage started")
}

func (m *logMonitor) BatchCompleted(stage string, entities int) {
	m.logger.WithFields(logrus.Fields{
		"stage":    stage,
		"entities": entities,
	}).Debug("batch completed")
}

func (m *logMonitor) StageCompleted(stage string, took time.Duration) {
	m.logger.WithFields(logrus.Fields{
		"stage": stage,
		"took":  took,
	}).Info("stage completed")
}
