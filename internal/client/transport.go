package client

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// Transport agrega el bearer token de la sesion y, ante un 401, refresca y reintenta una sola vez.
type Transport struct {
	Base  http.RoundTripper
	Guard *Guard
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, ok := t.Guard.AccessToken()
	if !ok {
		return nil, ErrNotAuthenticated
	}

	body, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	resp, err := t.base().RoundTrip(withBearer(req, token, body))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if !t.Guard.hasRefreshToken() {
		t.Guard.logout(ReasonRefreshFailed)
		return resp, nil
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	fresh, err := t.Guard.renew(req.Context(), token)
	if err != nil {
		return nil, err
	}
	return t.base().RoundTrip(withBearer(req, fresh, body))
}

// replayableBody lee el cuerpo una vez para poder reenviarlo en el reintento.
func replayableBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}
	return data, nil
}

func withBearer(req *http.Request, token string, body []byte) *http.Request {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		clone.Body = io.NopCloser(bytes.NewReader(body))
		clone.ContentLength = int64(len(body))
		clone.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	} else {
		clone.Body = http.NoBody
	}
	return clone
}
