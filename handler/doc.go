// Package handler exposes the engine over HTTP: one webhook ingestion
// endpoint per payment provider and the health probes. It is the only
// inbound surface; everything else the engine does is driven by the stored
// events.
package handler
