// Package progress polls a device status endpoint and turns each response into
// a Sample. A Poller renders samples synchronously through a Renderer, performs
// the completion reload once the target count is reached, and emits every
// sample (failures included) to a non-blocking Hub that batches them out to
// pluggable sinks such as Prometheus metrics, structured logs or a database.
package progress
