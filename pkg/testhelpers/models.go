package testhelpers

import (
	"github.com/xtendplex/chat-server/internal/domain/user"
	"github.com/xtendplex/chat-server/internal/infrastructure/repository/inmemory"
)

// SeedUsers inserts the given usernames into a fresh in-memory user
// repository, with ids equal to the usernames.
func SeedUsers(usernames ...string) *inmemory.UserRepository {
	repo := inmemory.NewUserRepository()
	for _, name := range usernames {
		repo.Seed(user.User{
			ID:       name,
			Username: name,
			Status:   user.StatusOffline,
		})
	}
	return repo
}
