// Package natsink forwards committed change batches to NATS. Each batch is
// published as JSON on "<prefix>.<collection>".
package natsink
