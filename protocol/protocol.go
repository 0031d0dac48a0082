package protocol

// HTTP endpoints, relative to the API base URL.
const (
	PathInit  = "/init"
	PathToken = "/token/%d"
)

const (
	// ShardCount is the number of token shards fetched per session.
	ShardCount = 4

	// WindowCapacity is how many cave segments a client keeps in memory.
	WindowCapacity = 50

	// FinishedFrame is the sentinel the server sends when the cave ends.
	FinishedFrame = "finished"

	authPrefix = "player:"
)
