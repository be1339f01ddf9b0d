// Package transdbclient is a typed HTTP wrapper over a transdb node: it
// pre-flight validates keys and values against the server's documented
// size limits, parses the ETag/X-Expired wire contract, and classifies
// every failure into one of the typed errors in errors.go so callers
// never have to sniff status codes themselves.
package transdbclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Size limits mirrored from the server's contract. A client configured
// against an unreachable address must still reject an oversized key or
// value locally, before ever attempting the connection.
const (
	MaxKeySize   = 1024
	MaxValueSize = 4 * 1024 * 1024
)

// Topology names the addresses of a primary and, optionally, a replica
// node. A Client is constructed against one Topology and starts out
// targeting the primary.
type Topology struct {
	PrimaryAddr string
	ReplicaAddr string // empty if there is no replica
}

// Client is a thin, stateless wrapper over net/http.Client. It holds a
// mutable target address so a caller can redirect subsequent calls at
// the replica with SetTarget, without constructing a new Client.
type Client struct {
	topology Topology
	target   string
	http     *http.Client
}

// New returns a Client targeting topology's primary address.
func New(topology Topology) *Client {
	return &Client{
		topology: topology,
		target:   topology.PrimaryAddr,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// SetTarget reroutes subsequent requests to addr, a bare "host:port".
// Pass the configured replica address to exercise replica behavior.
func (c *Client) SetTarget(addr string) { c.target = addr }

// Target returns the address currently targeted by requests.
func (c *Client) Target() string { return c.target }

func (c *Client) url(key string) string {
	return fmt.Sprintf("http://%s/keys/%s", c.target, key)
}

func validateKey(key string) error {
	if len(key) > MaxKeySize {
		return &KeyTooLargeError{Size: len(key), Max: MaxKeySize}
	}
	return nil
}

func validateValue(value []byte) error {
	if len(value) > MaxValueSize {
		return &ValueTooLargeError{Size: len(value), Max: MaxValueSize}
	}
	return nil
}

// GetResult is the value and bookkeeping returned by a successful Get or
// GetAllowingExpired call.
type GetResult struct {
	Value   []byte
	Version uint64
	Expired bool
}

// Get fetches key under the strong guarantee: an expired entry is
// reported as KeyNotFoundError even though the server still has it.
func (c *Client) Get(key string) (GetResult, error) {
	result, err := c.GetAllowingExpired(key)
	if err != nil {
		return GetResult{}, err
	}
	if result.Expired {
		return GetResult{}, &KeyNotFoundError{Key: key}
	}
	return result, nil
}

// GetAllowingExpired fetches key under the soft guarantee: an expired
// entry is still returned, with Expired set, rather than hidden as
// not-found.
func (c *Client) GetAllowingExpired(key string) (GetResult, error) {
	if err := validateKey(key); err != nil {
		return GetResult{}, err
	}

	req, err := http.NewRequest(http.MethodGet, c.url(key), nil)
	if err != nil {
		return GetResult{}, &NetworkError{Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return GetResult{}, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return GetResult{}, &NetworkError{Err: err}
	}

	if resp.StatusCode == http.StatusNotFound {
		return GetResult{}, &KeyNotFoundError{Key: key}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return GetResult{}, httpErrorFromBody(resp.StatusCode, body)
	}

	version, ok := parseETag(resp.Header.Get("ETag"))
	if !ok {
		return GetResult{}, &MissingETagError{}
	}

	return GetResult{
		Value:   body,
		Version: version,
		Expired: resp.Header.Get("X-Expired") == "true",
	}, nil
}

// Put writes value at key with no expiration, returning the assigned version.
func (c *Client) Put(key string, value []byte) (uint64, error) {
	return c.put(key, value, nil)
}

// PutWithTTL writes value at key, expiring at the absolute Unix-epoch
// second ttl.
func (c *Client) PutWithTTL(key string, value []byte, ttl int64) (uint64, error) {
	return c.put(key, value, &ttl)
}

func (c *Client) put(key string, value []byte, ttl *int64) (uint64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	if err := validateValue(value); err != nil {
		return 0, err
	}

	req, err := http.NewRequest(http.MethodPut, c.url(key), bytes.NewReader(value))
	if err != nil {
		return 0, &NetworkError{Err: err}
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	if ttl != nil {
		req.Header.Set("X-TTL", strconv.FormatInt(*ttl, 10))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, &NetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, httpErrorFromBody(resp.StatusCode, body)
	}

	version, ok := parseETag(resp.Header.Get("ETag"))
	if !ok {
		return 0, &MissingETagError{}
	}
	return version, nil
}

// Delete removes key. It returns (version, true) if a tombstone was
// written, or (0, false) if the key was already absent or tombstoned
// (the server's 204 no-op).
func (c *Client) Delete(key string) (uint64, bool, error) {
	if err := validateKey(key); err != nil {
		return 0, false, err
	}

	req, err := http.NewRequest(http.MethodDelete, c.url(key), nil)
	if err != nil {
		return 0, false, &NetworkError{Err: err}
	}
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, false, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, false, &NetworkError{Err: err}
	}

	if resp.StatusCode == http.StatusNoContent {
		return 0, false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, false, httpErrorFromBody(resp.StatusCode, body)
	}

	version, ok := parseETag(resp.Header.Get("ETag"))
	if !ok {
		return 0, false, &MissingETagError{}
	}
	return version, true, nil
}

func parseETag(raw string) (uint64, bool) {
	if raw == "" {
		return 0, false
	}
	trimmed := strings.Trim(raw, `"`)
	version, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, false
	}
	return version, true
}

func httpErrorFromBody(status int, body []byte) error {
	var decoded struct {
		Error string `json:"error"`
	}
	message := "unknown error"
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Error != "" {
		message = decoded.Error
	}
	return &HTTPError{Status: status, Message: message}
}
