package control

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-state-lab/internal/observability"
	"market-state-lab/internal/task"
)

func newTestServer(t *testing.T) (*Server, *task.Control, *Broadcaster, *observability.Metrics) {
	t.Helper()
	ctrl := task.NewControl()
	b := NewBroadcaster()
	m := observability.NewMetrics("test")
	s, err := NewServer(Config{
		Control:  ctrl,
		Progress: b,
		Metrics:  m.Handler(),
		Status:   func() string { return "running" },
	})
	require.NoError(t, err)
	return s, ctrl, b, m
}

func TestNewServer_RequiresControl(t *testing.T) {
	_, err := NewServer(Config{Progress: NewBroadcaster()})
	assert.Error(t, err)
}

func TestStatusPauseResume(t *testing.T) {
	s, ctrl, b, _ := newTestServer(t)
	b.Counting("features")
	b.StepCount("features", 3)
	b.StepStart("features", 0, "")
	b.StepEnd("features", 0, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/pause", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, ctrl.Paused())

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "running", status.State)
	assert.True(t, status.Paused)
	require.Len(t, status.Stages, 1)
	assert.Equal(t, task.Snapshot{Name: "features", Total: 3, Done: 1, Step: 0}, status.Stages[0])

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/resume", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, ctrl.Paused())
	assert.JSONEq(t, `{"paused":false}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _, m := newTestServer(t)
	m.RecordRowsWritten("features", 10)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `test_stage_rows_written_total{stage="features"} 10`))
}

func TestProgressStream(t *testing.T) {
	s, _, b, _ := newTestServer(t)
	b.Counting("features")

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/progress"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventSnapshot, ev.Type)
	require.Len(t, ev.Snapshots, 1)
	assert.Equal(t, "features", ev.Snapshots[0].Name)

	// The client is subscribed once the snapshot has arrived.
	b.StepCount("features", 2)
	b.StepStart("features", 0, "")
	b.StepEnd("features", 0, errors.New("bad row"))

	ev = Event{}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, Event{Type: EventCount, Stage: "features", Step: -1, Total: 2}, ev)

	ev = Event{}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, Event{Type: EventEnd, Stage: "features", Step: 0, Error: "bad row"}, ev)
}

func TestBroadcaster_UnsubscribeAndSlowClient(t *testing.T) {
	b := NewBroadcaster()
	events, unsubscribe := b.Subscribe()

	for i := 0; i < subscriberBuffer+10; i++ {
		b.StepEnd("ranges", i, nil)
	}
	assert.Len(t, events, subscriberBuffer)

	unsubscribe()
	unsubscribe()
	b.mu.Lock()
	assert.Empty(t, b.subs)
	b.mu.Unlock()
}
