package handshake

import (
	"bytes"
	"io"
	"net/http"

	"cavedrone/errs"
	"cavedrone/protocol"
)

const maxBody = 1 << 20

// doJSON sends req and decodes a 2xx JSON response into T.
func doJSON[T any](c Doer, req *http.Request, op errs.Op) (T, error) {
	var zero T
	resp, err := c.Do(req)
	if err != nil {
		return zero, errs.Handshake(op, req.Method+" "+req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return zero, errs.Handshake(op, "read body", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return zero, errs.HandshakeStatus(op, resp.StatusCode, string(body))
	}
	out, err := protocol.Decode[T](bytes.NewReader(body))
	if err != nil {
		return zero, errs.Handshake(op, "malformed response", err)
	}
	return out, nil
}
