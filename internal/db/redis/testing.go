package redis

import "github.com/redis/rueidis"

// NewStoreForTest builds a Store around c, normally a rueidis/mock client.
func NewStoreForTest(c rueidis.Client) *Store {
	return &Store{client: c}
}
