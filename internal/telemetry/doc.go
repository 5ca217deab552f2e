// Package telemetry holds the key-value dashboard the control loop publishes
// to and reads tuning values from.
//
// Table is the in-process store. Server exposes a Table over HTTP and a
// websocket stream; Client talks to such a server and is itself a Store, so a
// loop can tune against a dashboard running elsewhere.
package telemetry
