package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-explorer/notify"
	"github.com/ethereum-optimism/infra/op-explorer/orchestrator"
	"github.com/ethereum-optimism/infra/op-explorer/tree"
	"github.com/ethereum-optimism/infra/op-explorer/types"
)

type fakeExplorer struct {
	mu    sync.Mutex
	calls []string
	err   error

	status orchestrator.Status
	tree   *orchestrator.NodeView
	groups []orchestrator.GroupView
}

func (f *fakeExplorer) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeExplorer) Status(context.Context) (orchestrator.Status, error) {
	return f.status, nil
}
func (f *fakeExplorer) Tree(context.Context) (*orchestrator.NodeView, error) {
	return f.tree, nil
}
func (f *fakeExplorer) StateGroups(context.Context) ([]orchestrator.GroupView, error) {
	return f.groups, nil
}
func (f *fakeExplorer) Build(context.Context) error {
	return f.record("build")
}
func (f *fakeExplorer) RunTests(context.Context) error {
	return f.record("run")
}
func (f *fakeExplorer) ClearSelection(context.Context) error {
	return f.record("clear-selection")
}
func (f *fakeExplorer) ExpandAll(context.Context) error {
	return f.record("expand-all")
}
func (f *fakeExplorer) CollapseAll(context.Context) error {
	return f.record("collapse-all")
}
func (f *fakeExplorer) Select(_ context.Context, path string) error {
	return f.record("select " + path)
}
func (f *fakeExplorer) Navigate(_ context.Context, path string) error {
	return f.record("navigate " + path)
}
func (f *fakeExplorer) SetExpanded(_ context.Context, path string, expanded bool) error {
	if expanded {
		return f.record("expand " + path)
	}
	return f.record("collapse " + path)
}
func (f *fakeExplorer) ToggleStateGroup(_ context.Context, state types.TestState) error {
	return f.record("toggle " + state.String())
}
func (f *fakeExplorer) SetAutoCover(_ context.Context, enabled bool) error {
	if enabled {
		return f.record("autocover on")
	}
	return f.record("autocover off")
}

type staticLog string

func (s staticLog) LogText() string { return string(s) }

func newTestServer(t *testing.T, ex *fakeExplorer) *Server {
	t.Helper()
	return NewServer(Config{
		Log:             log.NewLogger(log.DiscardHandler()),
		Explorer:        ex,
		Logs:            staticLog("--- PASS: TestAdd\n"),
		AllowAllOrigins: true,
	})
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestCommands(t *testing.T) {
	tests := []struct {
		method string
		path   string
		body   string
		call   string
	}{
		{http.MethodPost, "/api/v1/build", "", "build"},
		{http.MethodPost, "/api/v1/run", "", "run"},
		{http.MethodPost, "/api/v1/expand-all", "", "expand-all"},
		{http.MethodPost, "/api/v1/collapse-all", "", "collapse-all"},
		{http.MethodPut, "/api/v1/selection", `{"path":"ProjectA.ClassB"}`, "select ProjectA.ClassB"},
		{http.MethodDelete, "/api/v1/selection", "", "clear-selection"},
		{http.MethodPost, "/api/v1/navigate", `{"path":"ProjectA.ClassB.MethodC"}`, "navigate ProjectA.ClassB.MethodC"},
		{http.MethodPut, "/api/v1/expanded", `{"path":"ProjectA","expanded":true}`, "expand ProjectA"},
		{http.MethodPut, "/api/v1/expanded", `{"path":"ProjectA"}`, "collapse ProjectA"},
		{http.MethodPut, "/api/v1/autocover", `{"enabled":true}`, "autocover on"},
		{http.MethodPost, "/api/v1/groups/failed/toggle", "", "toggle failed"},
	}
	for _, tt := range tests {
		t.Run(tt.call, func(t *testing.T) {
			ex := &fakeExplorer{status: orchestrator.Status{StatusMessage: "Ready"}}
			rec := do(t, newTestServer(t, ex), tt.method, tt.path, tt.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, []string{tt.call}, ex.calls)
		})
	}
}

func TestCommandReturnsStatus(t *testing.T) {
	ex := &fakeExplorer{status: orchestrator.Status{RunnerState: orchestrator.Building, StatusMessage: "Building"}}
	rec := do(t, newTestServer(t, ex), http.MethodPost, "/api/v1/build", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var st map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "Building", st["statusMessage"])
	assert.Equal(t, "building", st["runnerState"])
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{orchestrator.ErrBusy, http.StatusConflict},
		{orchestrator.ErrNoSelection, http.StatusConflict},
		{orchestrator.ErrNoSolution, http.StatusConflict},
		{orchestrator.ErrNotFound, http.StatusNotFound},
		{orchestrator.ErrNoGroup, http.StatusNotFound},
		{orchestrator.ErrNotNavigable, http.StatusBadRequest},
		{orchestrator.ErrStopped, http.StatusServiceUnavailable},
		{errors.New("editor crashed"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			ex := &fakeExplorer{err: tt.err}
			rec := do(t, newTestServer(t, ex), http.MethodPost, "/api/v1/run", "")
			assert.Equal(t, tt.code, rec.Code)
			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.err.Error(), body.Error)
		})
	}
}

func TestBadRequests(t *testing.T) {
	s := newTestServer(t, &fakeExplorer{})

	rec := do(t, s, http.MethodPut, "/api/v1/selection", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/groups/bogus/toggle", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/build", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueries(t *testing.T) {
	ex := &fakeExplorer{
		tree: &orchestrator.NodeView{
			Kind: types.KindSolution, Name: "calc", TestCount: 1,
			Children: []*orchestrator.NodeView{{Kind: types.KindProject, Name: "ProjectA", Path: "ProjectA", State: types.StateFailed}},
		},
		groups: []orchestrator.GroupView{{State: types.StateFailed, Count: 1, Paths: []string{"ProjectA.ClassB.MethodC"}}},
	}
	s := newTestServer(t, ex)

	rec := do(t, s, http.MethodGet, "/api/v1/tree", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view orchestrator.NodeView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "calc", view.Name)
	require.Len(t, view.Children, 1)
	assert.Equal(t, types.StateFailed, view.Children[0].State)

	rec = do(t, s, http.MethodGet, "/api/v1/groups", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"failed"`)

	rec = do(t, s, http.MethodGet, "/api/v1/log", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "--- PASS: TestAdd")

	ex.tree = nil
	rec = do(t, s, http.MethodGet, "/api/v1/tree", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	ex.groups = nil
	rec = do(t, s, http.MethodGet, "/api/v1/groups", "")
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, &fakeExplorer{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	strict := NewServer(Config{Log: log.NewLogger(log.DiscardHandler()), Explorer: &fakeExplorer{}})
	rec = httptest.NewRecorder()
	strict.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewChangeMessage(t *testing.T) {
	root := tree.NewRoot(types.NewTestItem(types.KindSolution, "s", "s",
		types.NewTestItem(types.KindProject, "P", "P",
			types.NewTestItem(types.KindClass, "C", "P.C",
				types.NewTestItem(types.KindMethod, "M", "P.C.M")))), nil)
	leaf := root.Leaves()[0]
	leaf.SetState(types.StateFailed)

	msg := NewChangeMessage(notify.Event{Source: leaf, Property: notify.PropState})
	assert.Equal(t, "node", msg.Source)
	assert.Equal(t, "P.C.M", msg.Path)
	require.NotNil(t, msg.State)
	assert.Equal(t, types.StateFailed, *msg.State)

	msg = NewChangeMessage(notify.Event{Source: leaf, Property: notify.PropExpanded})
	assert.Nil(t, msg.State)

	msg = NewChangeMessage(notify.Event{Source: "orchestrator", Property: notify.PropProgress})
	assert.Equal(t, "explorer", msg.Source)
	assert.Empty(t, msg.Path)
}

func TestWebsocketEvents(t *testing.T) {
	s := newTestServer(t, &fakeExplorer{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	hub := s.Hub()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	hub.Notify(notify.Event{Source: "orchestrator", Property: notify.PropStatus})
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg ChangeMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, notify.PropStatus, msg.Property)
	assert.Equal(t, "explorer", msg.Source)

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, 0, hub.Clients())
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}

func TestHubDropsEventsForSlowClients(t *testing.T) {
	hub := NewHub(log.NewLogger(log.DiscardHandler()), false)
	c := &wsClient{send: make(chan []byte, 1)}
	hub.clients[c] = struct{}{}

	hub.Notify(notify.Event{Source: "x", Property: notify.PropProgress})
	hub.Notify(notify.Event{Source: "x", Property: notify.PropProgress})
	assert.Len(t, c.send, 1)
}

func TestServerStartStop(t *testing.T) {
	s := newTestServer(t, &fakeExplorer{status: orchestrator.Status{StatusMessage: "Ready"}})
	require.NoError(t, s.Start("127.0.0.1:0"))
	addr := s.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/api/v1/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
