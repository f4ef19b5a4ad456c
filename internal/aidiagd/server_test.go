package aidiagd

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidiagnos/internal/config"
	"aidiagnos/internal/core/transport"
	"aidiagnos/internal/model"
	"aidiagnos/internal/store/sqlite"
)

const oneWarning = `{"diagnostics":[{"start_anchor":"print(y)","end_anchor":"print(y)","severity":"warning","message":"y is undefined"}]}`

func envelope(t *testing.T, content string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
	})
	require.NoError(t, err)
	return b
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.APIKey = "k"
	cfg.Debounce = 10 * time.Millisecond
	cfg.Timeout = 5 * time.Second
	cfg.Progress = false
	return cfg
}

func startServer(t *testing.T, opts Options) (*Server, *Client) {
	t.Helper()
	opts.Listen = "127.0.0.1:0"
	s, err := NewServer(opts)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run() }()
	t.Cleanup(func() {
		_ = s.Close()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Error("server did not stop within 1s after Close")
		}
	})

	c, err := Dial(waitAddr(t, s, time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return s, c
}

func TestServerPingAndVersion(t *testing.T) {
	s, err := NewServer(Options{Listen: "127.0.0.1:0", Config: testConfig(), Transport: transport.NewFake()})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run() }()

	addr := waitAddr(t, s, time.Second)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	require.NoError(t, enc.Encode(Request{JSONRPC: "2.0", Method: "ping", ID: json.RawMessage("1")}))
	var pingResp Response
	require.NoError(t, dec.Decode(&pingResp))
	assert.Equal(t, "1", string(pingResp.ID))
	assert.Nil(t, pingResp.Error)
	assert.Equal(t, "pong", pingResp.Result)

	require.NoError(t, enc.Encode(Request{JSONRPC: "2.0", Method: "version", ID: json.RawMessage("2")}))
	var versionResp Response
	require.NoError(t, dec.Decode(&versionResp))
	v, ok := versionResp.Result.(string)
	assert.True(t, ok && v != "", "version result=%v", versionResp.Result)

	_ = s.Close()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("server did not stop within 1s after Close")
	}
}

func TestServer_SaveAnalyzesAndPublishes(t *testing.T) {
	fake := transport.NewFake()
	fake.Reply = func(transport.Request) transport.Result {
		return transport.Result{Body: envelope(t, oneWarning)}
	}
	_, c := startServer(t, Options{Config: testConfig(), Transport: fake})

	uri := "file:///tmp/a.py"
	require.NoError(t, c.Open(DocumentOpenParams{URI: uri, Text: "x = 1\nprint(y)\n"}))
	state, err := c.Save(DocumentSaveParams{URI: uri})
	require.NoError(t, err)
	assert.Equal(t, "debouncing", state)

	pub, err := c.WaitPublish(uri, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "aidiag", pub.Namespace)
	require.Len(t, pub.Diagnostics, 1)
	got := pub.Diagnostics[0]
	assert.Equal(t, model.Range{StartLine: 1, StartCol: 0, EndLine: 1, EndCol: 8}, got.Range)
	assert.Equal(t, model.SeverityWarning, got.Severity)
	assert.Equal(t, "aidiag", got.Source)

	require.Len(t, fake.Calls(), 1)
	assert.Contains(t, string(fake.Last().Request.Body), "python")
}

func TestServer_SaveWithTextUpdatesBuffer(t *testing.T) {
	fake := transport.NewFake()
	_, c := startServer(t, Options{Config: testConfig(), Transport: fake})

	uri := "file:///tmp/b.go"
	text := "package b\n"
	_, err := c.Save(DocumentSaveParams{URI: uri, Text: &text})
	require.NoError(t, err)

	st, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Documents)
	assert.True(t, st.Enabled)
}

func TestServer_ForceAndCloseClears(t *testing.T) {
	fake := transport.NewFake()
	_, c := startServer(t, Options{Config: testConfig(), Transport: fake})

	uri := "file:///tmp/c.py"
	require.NoError(t, c.Open(DocumentOpenParams{URI: uri, Language: "python", Text: "print(y)\n"}))
	state, err := c.Force(uri)
	require.NoError(t, err)
	assert.Equal(t, "requesting", state)

	require.NoError(t, c.CloseDocument(uri))
	pub, err := c.WaitPublish(uri, time.Second)
	require.NoError(t, err)
	assert.Empty(t, pub.Diagnostics)
	require.Eventually(t, func() bool { return fake.Last() != nil && fake.Last().Canceled() }, time.Second, 10*time.Millisecond)

	st, err := c.Status()
	require.NoError(t, err)
	assert.Zero(t, st.Documents)
	assert.Zero(t, st.ActiveJobs)
}

func TestServer_ToggleDisablesSaves(t *testing.T) {
	fake := transport.NewFake()
	_, c := startServer(t, Options{Config: testConfig(), Transport: fake})

	on, err := c.Toggle(nil)
	require.NoError(t, err)
	assert.False(t, on)

	p, err := c.WaitNotification(MethodNotify, time.Second)
	require.NoError(t, err)
	assert.Contains(t, string(p.Params), "disabled")

	uri := "file:///tmp/d.py"
	require.NoError(t, c.Open(DocumentOpenParams{URI: uri, Text: "x\n"}))
	state, err := c.Save(DocumentSaveParams{URI: uri})
	require.NoError(t, err)
	assert.Equal(t, "idle", state)

	yes := true
	on, err = c.Toggle(&yes)
	require.NoError(t, err)
	assert.True(t, on)
}

func TestServer_MissingCredentialIsRefused(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = ""
	_, c := startServer(t, Options{Config: cfg, Transport: transport.NewFake()})

	uri := "file:///tmp/e.py"
	require.NoError(t, c.Open(DocumentOpenParams{URI: uri, Text: "x\n"}))
	_, err := c.Force(uri)
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr), "err=%v", err)
	assert.Equal(t, codeRefused, rpcErr.Code)

	p, err := c.WaitNotification(MethodNotify, time.Second)
	require.NoError(t, err)
	assert.Contains(t, string(p.Params), "API key")
}

func TestServer_InvalidParams(t *testing.T) {
	_, c := startServer(t, Options{Config: testConfig(), Transport: transport.NewFake()})

	err := c.Open(DocumentOpenParams{})
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, codeInvalidParams, rpcErr.Code)

	err = c.call("nope", nil, nil)
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, codeMethodNotFound, rpcErr.Code)

	_, err = c.History(HistoryParams{})
	require.True(t, errors.As(err, &rpcErr))
	assert.Contains(t, rpcErr.Message, "history")
}

func TestServer_HistoryRecordsRuns(t *testing.T) {
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	fake := transport.NewFake()
	fake.Reply = func(transport.Request) transport.Result {
		return transport.Result{Body: envelope(t, oneWarning)}
	}
	_, c := startServer(t, Options{Config: testConfig(), Transport: fake, History: st})

	uri := "file:///tmp/f.py"
	require.NoError(t, c.Open(DocumentOpenParams{URI: uri, Text: "x = 1\nprint(y)\n"}))
	_, err = c.Force(uri)
	require.NoError(t, err)
	_, err = c.WaitPublish(uri, 2*time.Second)
	require.NoError(t, err)

	var runs []model.Run
	require.Eventually(t, func() bool {
		runs, err = c.History(HistoryParams{URI: uri})
		return err == nil && len(runs) == 1
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, "ok", runs[0].Outcome)
	assert.Equal(t, 1, runs[0].Total)

	st2, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, 1, st2.HistoryRuns)
}

func TestServe_StdioParseErrorAndEOF(t *testing.T) {
	s, err := NewServer(Options{Config: testConfig(), Transport: transport.NewFake()})
	require.NoError(t, err)

	in := strings.NewReader("not json\n\n" + `{"jsonrpc":"2.0","id":7,"method":"ping"}` + "\n")
	var out bytes.Buffer
	require.NoError(t, s.Serve(in, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"code":-32700`)
	assert.Contains(t, lines[1], `"result":"pong"`)
	assert.Contains(t, lines[1], `"id":7`)
}

func TestReadOneLine_RejectsOversizedLine(t *testing.T) {
	s, err := NewServer(Options{Config: testConfig(), Transport: transport.NewFake()})
	require.NoError(t, err)

	big := strings.Repeat("x", maxLine+1)
	err = s.Serve(strings.NewReader(big+"\n"), io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func waitAddr(t *testing.T, s *Server, timeout time.Duration) string {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if addr := s.Addr(); addr != "" {
			return addr
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server did not start listening within %s", timeout)
	return ""
}
