package redis

import (
	"errors"
	"testing"

	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/joelhooks/pdf-brain/internal/db"
)

func newMockStore(t *testing.T) (*Store, *mock.Client) {
	t.Helper()
	c := mock.NewClient(gomock.NewController(t))
	return NewStoreForTest(c), c
}

// command matches a command by name and, optionally, its first key.
func command(name string, key ...string) gomock.Matcher {
	return mock.MatchFn(func(cmd []string) bool {
		if len(cmd) == 0 || cmd[0] != name {
			return false
		}
		return len(key) == 0 || (len(cmd) > 1 && cmd[1] == key[0])
	})
}

func isDBError(err error) bool {
	var dbErr *db.Error
	return errors.As(err, &dbErr)
}
