package dkregistry

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ossb-labs/dkregistry/internal/regerrors"
)

// missingRegistryError reports a builder missing its one required
// option.
func missingRegistryError() error {
	return regerrors.New(regerrors.KindInvalidReference, "configure", "registry is required")
}

// challenge is a parsed Www-Authenticate header.
type challenge struct {
	scheme string // "Basic" or "Bearer"
	params map[string]string
}

// parseChallenge parses a single Www-Authenticate header of the form
// `<scheme> <k>="<v>",<k>="<v>",…` (spec.md §6). It is permissive of
// whitespace and tolerates commas embedded in quoted values.
func parseChallenge(header string) (challenge, error) {
	header = strings.TrimSpace(header)
	sp := strings.IndexByte(header, ' ')
	if sp < 0 {
		return challenge{}, regerrors.New(regerrors.KindAuthFailed, "parse_challenge", "malformed Www-Authenticate header: "+header)
	}
	scheme := header[:sp]
	rest := header[sp+1:]

	params := make(map[string]string)
	for _, pair := range splitChallengeParams(rest) {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.Trim(strings.TrimSpace(kv[1]), `"`)
		params[key] = val
	}

	return challenge{scheme: scheme, params: params}, nil
}

// splitChallengeParams splits on top-level commas, ignoring commas
// inside quoted parameter values.
func splitChallengeParams(s string) []string {
	var out []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range s {
		switch r {
		case '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case ',':
			if inQuotes {
				cur.WriteRune(r)
			} else {
				out = append(out, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// tokenResponse accepts either field name a token endpoint may use
// (spec.md §6).
type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
}

func (t tokenResponse) value() string {
	if t.Token != "" {
		return t.Token
	}
	return t.AccessToken
}

// authenticateFor runs the probe-then-bearer handshake for scope if the
// client has not yet probed the registry, publishing the resulting
// token (if any) into c.sess. It is safe to call concurrently: the
// first caller performs the handshake holding c.authenticate while
// later callers block and then observe the published state. Per
// spec.md §9 open question (b) and §5, scope is fixed at first use —
// this is the minimal one-token contract, not a per-scope cache.
func (c *Client) authenticateFor(ctx context.Context, scope string) error {
	if _, _, probed := c.sess.snapshot(); probed {
		return nil
	}

	c.authenticate.Lock()
	defer c.authenticate.Unlock()

	if _, _, probed := c.sess.snapshot(); probed {
		return nil
	}

	c.log.WithField("scope", scope).Debug("probing registry for auth challenge")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/", nil)
	if err != nil {
		return regerrors.Wrap(regerrors.KindAuthFailed, "probe", "could not build probe request", err).WithRegistry(c.opts.Registry)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return regerrors.Wrap(regerrors.KindAuthFailed, "probe", "probe request failed", err).WithRegistry(c.opts.Registry)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		c.publish(AuthNone, "", "", "")
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		header := resp.Header.Get("Www-Authenticate")
		for _, h := range resp.Header.Values("Www-Authenticate") {
			if strings.HasPrefix(strings.ToLower(strings.TrimSpace(h)), "bearer ") {
				header = h
				break
			}
		}
		return c.handleChallenge(ctx, header, scope)
	default:
		return regerrors.New(regerrors.KindAuthFailed, "probe", fmt.Sprintf("unexpected probe status %d", resp.StatusCode)).
			WithRegistry(c.opts.Registry).WithStatus(resp.StatusCode)
	}
}

// handleChallenge parses a 401 probe's Www-Authenticate header and
// completes the corresponding handshake: Basic is recorded directly;
// Bearer requires fetching a token from the advertised realm. When the
// 401 carries several Www-Authenticate headers, authenticateFor passes
// the Bearer one here; a single header is handled by the one scheme it
// names first.
func (c *Client) handleChallenge(ctx context.Context, header, scope string) error {
	if header == "" {
		return regerrors.New(regerrors.KindAuthFailed, "probe", "401 response carried no Www-Authenticate header").WithRegistry(c.opts.Registry)
	}
	ch, err := parseChallenge(header)
	if err != nil {
		return err
	}

	switch strings.ToLower(ch.scheme) {
	case "basic":
		c.publish(AuthBasic, "", "", "")
		return nil
	case "bearer":
		realm := ch.params["realm"]
		if realm == "" {
			return regerrors.New(regerrors.KindAuthFailed, "probe", "Bearer challenge missing realm").WithRegistry(c.opts.Registry)
		}
		service := ch.params["service"]
		tokenScope := ch.params["scope"]
		if tokenScope == "" {
			tokenScope = scope
		}
		token, err := c.fetchToken(ctx, realm, service, tokenScope)
		if err != nil {
			return err
		}
		c.publish(AuthBearer, token, realm, service)
		return nil
	default:
		return regerrors.New(regerrors.KindAuthFailed, "probe", "unrecognized auth scheme: "+ch.scheme).WithRegistry(c.opts.Registry)
	}
}

// fetchToken performs the token-endpoint GET described in spec.md
// §4.3: Basic credentials are attached if configured; omitting them is
// not an error, since registries that permit anonymous pulls respond
// with a narrowed token.
func (c *Client) fetchToken(ctx context.Context, realm, service, scope string) (string, error) {
	u, err := url.Parse(realm)
	if err != nil {
		return "", regerrors.Wrap(regerrors.KindAuthFailed, "fetch_token", "invalid realm URL", err).WithRegistry(c.opts.Registry)
	}
	q := u.Query()
	if service != "" {
		q.Set("service", service)
	}
	if scope != "" {
		q.Set("scope", scope)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", regerrors.Wrap(regerrors.KindAuthFailed, "fetch_token", "could not build token request", err).WithRegistry(c.opts.Registry)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	if c.opts.Username != "" || c.opts.Password != "" {
		req.SetBasicAuth(c.opts.Username, c.opts.Password)
	}

	c.log.WithField("realm", realm).WithField("service", service).WithField("scope", scope).Debug("requesting bearer token")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", regerrors.Wrap(regerrors.KindAuthFailed, "fetch_token", "token request failed", err).WithRegistry(c.opts.Registry)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", regerrors.Wrap(regerrors.KindAuthFailed, "fetch_token", "could not read token response", err).WithRegistry(c.opts.Registry)
	}
	if resp.StatusCode != http.StatusOK {
		return "", regerrors.New(regerrors.KindAuthFailed, "fetch_token", fmt.Sprintf("token endpoint returned %d", resp.StatusCode)).
			WithRegistry(c.opts.Registry).WithStatus(resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", regerrors.Wrap(regerrors.KindAuthFailed, "fetch_token", "malformed token response", err).WithRegistry(c.opts.Registry)
	}
	token := tr.value()
	if token == "" {
		return "", regerrors.New(regerrors.KindAuthFailed, "fetch_token", "token response carried no token/access_token field").WithRegistry(c.opts.Registry)
	}
	return token, nil
}

func (c *Client) publish(mode AuthMode, token, realm, service string) {
	c.sess.mu.Lock()
	defer c.sess.mu.Unlock()
	c.sess.probed = true
	c.sess.authMode = mode
	c.sess.token = token
	c.sess.realm = realm
	c.sess.service = service
}

// authHeader returns the value (if any) this client should send as
// Authorization, given the currently published session state.
func (c *Client) authHeader() (string, bool) {
	mode, token, _ := c.sess.snapshot()
	switch mode {
	case AuthBasic:
		if c.opts.Username == "" && c.opts.Password == "" {
			return "", false
		}
		raw := c.opts.Username + ":" + c.opts.Password
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw)), true
	case AuthBearer:
		if token == "" {
			return "", false
		}
		return "Bearer " + token, true
	default:
		return "", false
	}
}
