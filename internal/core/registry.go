package core

import (
	"slices"

	"github.com/samber/lo"
)

// Registry maps a user identity to the client currently connected for it.
// It is owned by a Hub and only touched from the hub loop.
type Registry struct {
	entries map[string]*Client
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Client)}
}

// Set points userID at client. The last writer wins; the replaced client, if any,
// is returned so the caller can decide what to do with it.
func (r *Registry) Set(userID string, client *Client) *Client {
	previous := r.entries[userID]
	r.entries[userID] = client
	return previous
}

// Get returns the client registered for userID.
func (r *Registry) Get(userID string) (*Client, bool) {
	client, ok := r.entries[userID]
	return client, ok
}

// RemoveByHandle deletes the entry pointing at client and returns its user id.
// A client whose entry was already overwritten by a newer connection matches nothing.
func (r *Registry) RemoveByHandle(client *Client) (string, bool) {
	for userID, c := range r.entries {
		if c == client {
			delete(r.entries, userID)
			return userID, true
		}
	}
	return "", false
}

// Online returns the registered user ids in sorted order.
func (r *Registry) Online() []string {
	ids := lo.Keys(r.entries)
	slices.Sort(ids)
	return ids
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	return len(r.entries)
}
