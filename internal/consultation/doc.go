// Package consultation carries consultation requests, responses and
// cancellations between the central system and faculty desk units.
//
// The wire contracts are the payload types in payloads.go and the text line
// built by ConsultationRequest.Format:
//
//	CID:41 From:Ana Cruz (SID:2023001): Thesis chapter 2 review
//
// Notifier publishes requests and cancellations to a faculty's channels and
// remembers each outstanding request in a Pending tracker. ResponseRelay
// subscribes to consultease/faculty/+/responses, validates each response and
// fans it out to consultease/ui/consultation_updates, the requesting student's
// notification topic, and consultease/system/notifications.
package consultation
