package realtime

// Stream names understood by the hub. Project message and talk chat streams
// carry a resource suffix, e.g. "project.messages.<projectID>".
const (
	StreamNotifications   = "notifications"
	StreamProjectMessages = "project.messages"
	StreamTalkChat        = "talk.chat"
	StreamAdminEvents     = "admin.events"
)

// ScopedStream joins a stream prefix with a resource identifier.
func ScopedStream(prefix, resourceID string) string {
	if resourceID == "" {
		return prefix
	}
	return prefix + "." + resourceID
}
