package protocol

import "fmt"

// messages going out from the client.

type InitRequest struct {
	Name       string `json:"name"`
	Complexity int    `json:"complexity"`
}

// AuthFrame builds the first frame sent on the stream after it opens.
func AuthFrame(playerID, token string) string {
	return fmt.Sprintf("%s%s-%s", authPrefix, playerID, token)
}
