package lib

import (
	"os"

	"github.com/pusher/pusher-http-go/v5"
)

var pusherClient *pusher.Client

// GetPusherClient returns the shared Channels client used when PUSH_BACKEND
// is "pusher". Booking events go out on the shared "bookings" channel and the
// per-owner user_<id> channels.
func GetPusherClient() *pusher.Client {
	if pusherClient != nil {
		return pusherClient
	}
	pusherClient = &pusher.Client{
		AppID:   os.Getenv("PUSHER_APP_ID"),
		Key:     os.Getenv("PUSHER_KEY"),
		Secret:  os.Getenv("PUSHER_SECRET"),
		Cluster: os.Getenv("PUSHER_CLUSTER"),
	}
	return pusherClient
}

// NewPusherClient replaces the client, used by tests
func NewPusherClient(c *pusher.Client) *pusher.Client {
	pusherClient = c
	return pusherClient
}
