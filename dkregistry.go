// Package dkregistry is a client library for the Docker Registry HTTP
// API V2 ("distribution" spec, v2.x). It turns a caller's intent —
// fetch a manifest, list tags, pull blobs — into the correct sequence
// of authenticated HTTP exchanges: anonymous probe, challenge
// discovery, Bearer token acquisition, and content-type-negotiated
// requests.
//
// A Client is built once per registry host with Configure, and may
// then serve many concurrent operations; its token cache outlives any
// single operation and is invalidated only by rebuilding the client.
package dkregistry

import (
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ossb-labs/dkregistry/mediatype"
)

// defaultUserAgent identifies this library to registries that log or
// rate-limit by User-Agent.
const defaultUserAgent = "dkregistry/1.0"

// AuthMode records how a Client has been told to authenticate, as
// discovered from the registry's Www-Authenticate challenge.
type AuthMode int

const (
	// AuthNone means the registry served the probe without a 401.
	AuthNone AuthMode = iota
	// AuthBasic means the challenge was "Www-Authenticate: Basic ...".
	AuthBasic
	// AuthBearer means the challenge was "Www-Authenticate: Bearer ...".
	AuthBearer
)

func (m AuthMode) String() string {
	switch m {
	case AuthNone:
		return "none"
	case AuthBasic:
		return "basic"
	case AuthBearer:
		return "bearer"
	default:
		return "unknown"
	}
}

// ClientOptions configures a Client. Build values are immutable once
// the Client is constructed; to change registry, credentials, or
// insecure mode, configure and build a new Client.
type ClientOptions struct {
	// Registry is the host[:port] this client talks to. Required.
	Registry string
	// Insecure, when true, addresses the registry over plain HTTP
	// instead of HTTPS. TLS configuration beyond this toggle is out of
	// scope; certificate roots come from the host's default trust
	// store.
	Insecure bool
	// Username and Password are optional Basic credentials, used both
	// as the registry's direct Basic auth and as the credentials
	// presented to a Bearer token endpoint.
	Username string
	Password string
	// UserAgent is sent on every request. Defaults to defaultUserAgent.
	UserAgent string
	// AcceptedTypes orders the manifest media types advertised in the
	// Accept header of manifest GET/HEAD requests. Defaults to
	// mediatype.DefaultAccept.
	AcceptedTypes []mediatype.MediaType
	// Transport overrides the HTTP transport used for requests,
	// primarily for tests.
	Transport http.RoundTripper
	// Logger receives structured debug events from the auth handshake.
	// Defaults to logrus.StandardLogger().
	Logger logrus.FieldLogger
}

// builder implements the fluent Configure()....Build() pattern.
type builder struct {
	opts ClientOptions
}

// Configure starts building a Client for the given registry host.
func Configure(registry string) *builder {
	return &builder{opts: ClientOptions{
		Registry:      registry,
		UserAgent:     defaultUserAgent,
		AcceptedTypes: mediatype.DefaultAccept,
	}}
}

// Insecure marks the registry as reachable only over plain HTTP.
func (b *builder) Insecure(insecure bool) *builder {
	b.opts.Insecure = insecure
	return b
}

// Credentials sets the Basic/Bearer credential pair.
func (b *builder) Credentials(username, password string) *builder {
	b.opts.Username = username
	b.opts.Password = password
	return b
}

// UserAgent overrides the default User-Agent string.
func (b *builder) UserAgent(ua string) *builder {
	b.opts.UserAgent = ua
	return b
}

// AcceptedTypes overrides the default manifest Accept ordering.
func (b *builder) AcceptedTypes(types []mediatype.MediaType) *builder {
	b.opts.AcceptedTypes = types
	return b
}

// Transport overrides the HTTP round tripper used for requests.
func (b *builder) Transport(rt http.RoundTripper) *builder {
	b.opts.Transport = rt
	return b
}

// Logger overrides the client's structured logger.
func (b *builder) Logger(l logrus.FieldLogger) *builder {
	b.opts.Logger = l
	return b
}

// Build validates the accumulated options and constructs a Client.
func (b *builder) Build() (*Client, error) {
	return newClient(b.opts)
}

// session is the Client's mutable, guarded state: whether the registry
// has been probed, the auth mode the challenge selected, and the token
// (plus realm and service) discovered by the auth engine. The first
// caller to trigger authentication publishes the token; later
// concurrent callers wait on Client.authenticate and then reuse the
// published state instead of re-authenticating.
type session struct {
	mu       sync.RWMutex
	probed   bool
	authMode AuthMode
	token    string
	realm    string
	service  string
}

func (s *session) snapshot() (AuthMode, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authMode, s.token, s.probed
}

// Client issues authenticated requests against a single registry host.
type Client struct {
	opts         ClientOptions
	baseURL      string
	httpClient   *http.Client
	log          logrus.FieldLogger
	sess         session
	authenticate sync.Mutex // serializes the handshake, not ordinary requests
}

func newClient(opts ClientOptions) (*Client, error) {
	if opts.Registry == "" {
		return nil, missingRegistryError()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if len(opts.AcceptedTypes) == 0 {
		opts.AcceptedTypes = mediatype.DefaultAccept
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	scheme := "https"
	if opts.Insecure {
		scheme = "http"
	}

	httpClient := &http.Client{
		Transport:     opts.Transport,
		CheckRedirect: neverFollow,
	}

	return &Client{
		opts:       opts,
		baseURL:    scheme + "://" + opts.Registry,
		httpClient: httpClient,
		log:        logger.WithField("registry", opts.Registry),
	}, nil
}

// neverFollow disables net/http's automatic redirect handling; the
// blob subsystem implements its own single-hop, auth-stripping follow
// (spec.md §4.6), and no other operation should ever redirect.
func neverFollow(req *http.Request, via []*http.Request) error {
	return http.ErrUseLastResponse
}

// Registry returns the host this client talks to.
func (c *Client) Registry() string { return c.opts.Registry }

// AuthMode reports how the client is currently authenticating, or
// AuthNone if it has not yet probed the registry.
func (c *Client) AuthMode() AuthMode {
	mode, _, _ := c.sess.snapshot()
	return mode
}
