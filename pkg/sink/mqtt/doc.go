// Package mqtt publishes bridge telemetry to an MQTT broker.
//
// Each telemetry key maps to one topic under a configurable prefix
// (nutbridge/battery.level, nutbridge/ups.status, ...). An availability
// topic with a last-will message signals online/offline to subscribers.
package mqtt
