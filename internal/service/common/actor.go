//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os"
	"os/user"

	"github.com/oshokin/update-packager/internal/domain/update"
)

// DetectActor gathers host and user information recorded as the package creator.
func DetectActor() (*update.Actor, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}

	return &update.Actor{
		Hostname: hostname,
		Username: currentUser.Username,
	}, nil
}
