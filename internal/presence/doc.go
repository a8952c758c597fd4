// Package presence tracks whether each faculty member is available for
// consultations.
//
// Desk units report on three channels:
//
//	consultease/faculty/{id}/status      {"status":"AVAILABLE","present":true,...}
//	consultease/faculty/{id}/mac_status  {"status":"faculty_present","mac":"..."}
//	consultease/faculty/{id}/heartbeat   liveness only
//
// Interpret normalises a message into an Observation. The Recorder stores
// observations through a Repository (SQLite in production), mirrors them to
// the time-series sink, and publishes a faculty_status_changed update on
// consultease/ui/consultation_updates whenever availability flips.
package presence
