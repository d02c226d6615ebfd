// Package messaging delivers realm-scoped notifications and live cache
// updates to connected operators over SSE and websockets.
package messaging

// Broadcaster manages SSE notification clients of each realm.
type Broadcaster interface {
	AddClient(realm string) (id string, ch chan string)
	RemoveClient(realm, id string)
	ClientCount(realm string) int
	Publish(realm string, n Notification)
}
