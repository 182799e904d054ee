package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	grpcapi "github.com/arkilian/eventhash/internal/api/grpc"
	"github.com/arkilian/eventhash/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.GRPC.Addr = "127.0.0.1:0"
	return cfg
}

func startApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { a.Stop(context.Background()) })
	return a
}

func postJSON(t *testing.T, url, body string) map[string]any {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

const event = `{"event_id":"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa","exception":{"values":[{"type":"ValueError","value":"bad input"}]}}`

func TestApp_HTTPEndToEnd(t *testing.T) {
	a := startApp(t, testConfig(t))
	base := "http://" + a.HTTPAddr() + "/v1/projects/5"

	ingest := postJSON(t, base+"/events", event)
	assert.Equal(t, false, ingest["discarded"])

	reg := postJSON(t, base+"/tombstones", `{"event_id":"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa","tombstone_id":11}`)
	assert.NotEmpty(t, reg["inserted"])

	match := postJSON(t, base+"/discard", event)
	assert.Equal(t, true, match["matched"])
	assert.Equal(t, float64(11), match["tombstone_id"])
}

func TestApp_GRPCSharesPipeline(t *testing.T) {
	a := startApp(t, testConfig(t))
	require.NotEmpty(t, a.GRPCAddr())

	postJSON(t, "http://"+a.HTTPAddr()+"/v1/projects/5/events", event)
	postJSON(t, "http://"+a.HTTPAddr()+"/v1/projects/5/tombstones",
		`{"event_id":"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa","tombstone_id":3}`)

	conn, err := grpc.NewClient(a.GRPCAddr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	var ev map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(event), &ev))
	req, err := structpb.NewStruct(map[string]interface{}{"project_id": 5, "event": ev})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := grpcapi.NewHashServiceClient(conn).MatchesDiscard(ctx, req)
	require.NoError(t, err)
	assert.True(t, resp.GetFields()["matched"].GetBoolValue())
	assert.Equal(t, float64(3), resp.GetFields()["tombstone_id"].GetNumberValue())
}

func TestApp_ObjectBackendOverLocalStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.GRPC.Enabled = false
	cfg.RawCache.Backend = "object"
	a := startApp(t, cfg)
	assert.Empty(t, a.GRPCAddr())

	base := "http://" + a.HTTPAddr() + "/v1/projects/8"
	ingest := postJSON(t, base+"/events", event)
	assert.Equal(t, true, ingest["cached"])

	reg := postJSON(t, base+"/tombstones", `{"event_id":"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa","tombstone_id":4}`)
	assert.Equal(t, false, reg["cache_miss"])
	assert.NotEmpty(t, reg["inserted"])
}

func TestApp_StopRejectsRequests(t *testing.T) {
	a := startApp(t, testConfig(t))
	addr := a.HTTPAddr()

	require.NoError(t, a.Stop(context.Background()))
	// Stop is idempotent
	require.NoError(t, a.Stop(context.Background()))

	_, err := http.Get("http://" + addr + "/health")
	assert.Error(t, err)
}

func TestApp_StartTwice(t *testing.T) {
	a := startApp(t, testConfig(t))
	assert.Error(t, a.Start(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.TombstoneStore.Driver = "mysql"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestApp_MetricsEndpoint(t *testing.T) {
	a := startApp(t, testConfig(t))
	postJSON(t, "http://"+a.HTTPAddr()+"/v1/hashes", event)

	resp, err := http.Get("http://" + a.HTTPAddr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `eventhash_hashes_computed_total{path="default"} 1`)
	assert.Contains(t, string(body), "eventhash_rawcache_entries")
	assert.Contains(t, string(body), "go_goroutines")
}
