package connectors

import "nexus/internal"

// MailConnector pulls raw RFC 822 messages out of one mailbox provider.
// Implementations fetch at most max messages from the given label or
// folder; local bookkeeping stays with the caller.
type MailConnector interface {
	FetchInbox(label string, max int) ([]internal.FetchedMailMessage, error)
}
