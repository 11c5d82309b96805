// Package delivery provides goIdentity.Dispatcher implementations.
//
// SMTP sends email through go-mail, SMSGateway posts JSON to an HTTP SMS
// provider, Router picks a dispatcher per channel and Outbox keeps the last
// message per destination in memory for development and tests. Every
// failure matches goIdentity.ErrDeliveryFailure.
package delivery
