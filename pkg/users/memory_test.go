package users_test

import (
	"testing"

	"github.com/harun/notemate/pkg/users"
	"github.com/harun/notemate/pkg/users/userstest"
)

func TestMemoryStore(t *testing.T) {
	userstest.RunStoreTests(t, func(t *testing.T) users.Store {
		return users.NewMemoryStore()
	})
}
