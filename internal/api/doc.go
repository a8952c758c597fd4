// Package api provides the HTTP REST API and WebSocket relay for ConsultEase.
//
// It serves faculty presence from the database, accepts consultation
// requests and cancellations for delivery to desk units, exposes bus
// statistics, and relays UI and system notification traffic from the bus to
// dashboard WebSocket clients.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
