package handshake

import (
	"fmt"
	"strings"

	"cavedrone/errs"
)

const (
	MinDifficulty = 0
	MaxDifficulty = 10
)

// Identity is the validated player input for one session.
type Identity struct {
	Name       string
	Difficulty int
}

// Validate returns a copy with the name trimmed, or a validation error.
func (id Identity) Validate() (Identity, error) {
	id.Name = strings.TrimSpace(id.Name)
	if id.Name == "" {
		return Identity{}, errs.Validation("name must not be empty")
	}
	if id.Difficulty < MinDifficulty || id.Difficulty > MaxDifficulty {
		return Identity{}, errs.Validation(fmt.Sprintf("difficulty must be in [%d,%d], got %d", MinDifficulty, MaxDifficulty, id.Difficulty))
	}
	return id, nil
}

// Credential authenticates one play session on the stream.
type Credential struct {
	PlayerID string
	Token    string
}
