package handshake

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"cavedrone/errs"
	"cavedrone/protocol"
)

// Doer sends HTTP requests; *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenAssembler fetches a token in ordered shards and joins them.
type TokenAssembler struct {
	Client  Doer
	BaseURL string
	Shards  int
}

// Assemble fetches shards 1..Shards concurrently. The first failure cancels
// the rest and no partial token is returned.
func (a *TokenAssembler) Assemble(ctx context.Context, playerID string) (string, error) {
	n := a.Shards
	if n <= 0 {
		n = protocol.ShardCount
	}
	chunks := make([]string, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := range chunks {
		g.Go(func() error {
			chunk, err := a.fetch(gctx, playerID, i+1)
			if err != nil {
				return err
			}
			chunks[i] = chunk
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return strings.Join(chunks, ""), nil
}

func (a *TokenAssembler) fetch(ctx context.Context, playerID string, shard int) (string, error) {
	u := strings.TrimRight(a.BaseURL, "/") + fmt.Sprintf(protocol.PathToken, shard) + "?id=" + url.QueryEscape(playerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", errs.Handshake(errs.OpToken, fmt.Sprintf("shard %d", shard), err)
	}
	resp, err := doJSON[protocol.TokenResponse](a.Client, req, errs.OpToken)
	if err != nil {
		return "", err
	}
	if resp.Chunk == nil {
		return "", errs.Handshake(errs.OpToken, fmt.Sprintf("shard %d: response has no chunk", shard), nil)
	}
	return *resp.Chunk, nil
}
