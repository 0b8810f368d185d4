// Package services holds the error taxonomy and context helpers shared by
// the cloud service clients and the sync orchestrator. Sentinel markers
// classify failures for the scheduler: missing or invalid inputs are
// permanent, everything else retries.
package services
