package transdbclient_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/transdb/transdb/internal/server"
	"github.com/transdb/transdb/internal/store"
	"github.com/transdb/transdb/pkg/transdbclient"
)

func newTestServer(t *testing.T, role server.Role) (*httptest.Server, *transdbclient.Client) {
	t.Helper()
	handler := server.NewHandler(store.New(), role)
	router := server.NewRouter(handler, zerolog.Nop())
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	client := transdbclient.New(transdbclient.Topology{PrimaryAddr: strings.TrimPrefix(ts.URL, "http://")})
	return ts, client
}

func TestClient_PreflightKeyTooLarge_NoNetworkCall(t *testing.T) {
	// Target an address nothing is listening on; an oversized key must
	// still be rejected locally, never surfaced as a NetworkError.
	client := transdbclient.New(transdbclient.Topology{PrimaryAddr: "127.0.0.1:1"})

	oversizedKey := strings.Repeat("k", transdbclient.MaxKeySize+1)
	_, err := client.Get(oversizedKey)

	require.Error(t, err)
	var tooLarge *transdbclient.KeyTooLargeError
	require.ErrorAs(t, err, &tooLarge)
}

func TestClient_PreflightValueTooLarge_NoNetworkCall(t *testing.T) {
	client := transdbclient.New(transdbclient.Topology{PrimaryAddr: "127.0.0.1:1"})

	oversizedValue := make([]byte, transdbclient.MaxValueSize+1)
	_, err := client.Put("k", oversizedValue)

	require.Error(t, err)
	var tooLarge *transdbclient.ValueTooLargeError
	require.ErrorAs(t, err, &tooLarge)
}

func TestClient_RoundTrip(t *testing.T) {
	_, client := newTestServer(t, server.RolePrimary)

	version, err := client.Put("k", []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), version)

	result, err := client.Get("k")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), result.Value)
	require.Equal(t, uint64(1), result.Version)
	require.False(t, result.Expired)
}

func TestClient_GetMissingKey(t *testing.T) {
	_, client := newTestServer(t, server.RolePrimary)

	_, err := client.Get("missing")
	require.Error(t, err)
	var notFound *transdbclient.KeyNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestClient_DeleteNoOp(t *testing.T) {
	_, client := newTestServer(t, server.RolePrimary)

	version, tombstoned, err := client.Delete("missing")
	require.NoError(t, err)
	require.False(t, tombstoned)
	require.Equal(t, uint64(0), version)
}

func TestClient_DeleteWritesTombstone(t *testing.T) {
	_, client := newTestServer(t, server.RolePrimary)

	_, err := client.Put("k", []byte("v"))
	require.NoError(t, err)

	version, tombstoned, err := client.Delete("k")
	require.NoError(t, err)
	require.True(t, tombstoned)
	require.Equal(t, uint64(2), version)

	_, err = client.Get("k")
	require.Error(t, err)
}

func TestClient_PutWithTTL_ExpiredEntryVisibleOnlyToAllowingExpired(t *testing.T) {
	_, client := newTestServer(t, server.RolePrimary)

	_, err := client.PutWithTTL("k", []byte("stale"), 1)
	require.NoError(t, err)

	_, err = client.Get("k")
	require.Error(t, err)
	var notFound *transdbclient.KeyNotFoundError
	require.ErrorAs(t, err, &notFound)

	result, err := client.GetAllowingExpired("k")
	require.NoError(t, err)
	require.True(t, result.Expired)
	require.Equal(t, []byte("stale"), result.Value)
}

func TestClient_ReplicaRejectsAllOperations(t *testing.T) {
	_, client := newTestServer(t, server.RoleReplica)

	_, err := client.Get("k")
	require.Error(t, err)
	var httpErr *transdbclient.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, 405, httpErr.Status)

	_, err = client.Put("k", []byte("v"))
	require.Error(t, err)
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, 405, httpErr.Status)

	_, _, err = client.Delete("k")
	require.Error(t, err)
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, 405, httpErr.Status)
}

func TestClient_SetTarget_RedirectsToReplica(t *testing.T) {
	primary := httptest.NewServer(server.NewRouter(server.NewHandler(store.New(), server.RolePrimary), zerolog.Nop()))
	t.Cleanup(primary.Close)
	replica := httptest.NewServer(server.NewRouter(server.NewHandler(store.New(), server.RoleReplica), zerolog.Nop()))
	t.Cleanup(replica.Close)

	client := transdbclient.New(transdbclient.Topology{
		PrimaryAddr: strings.TrimPrefix(primary.URL, "http://"),
		ReplicaAddr: strings.TrimPrefix(replica.URL, "http://"),
	})

	_, err := client.Put("k", []byte("v"))
	require.NoError(t, err)

	client.SetTarget(strings.TrimPrefix(replica.URL, "http://"))
	_, err = client.Get("k")
	require.Error(t, err)
	var httpErr *transdbclient.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, 405, httpErr.Status)
}
