package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/voicerelay/internal/adapters/signal"
	"github.com/dkeye/voicerelay/internal/app"
	"github.com/dkeye/voicerelay/internal/app/orch"
	"github.com/dkeye/voicerelay/internal/config"
	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/core/mocks"
	"github.com/dkeye/voicerelay/internal/domain"
	"github.com/dkeye/voicerelay/internal/protocol"
)

func setup(t *testing.T) (*gin.Engine, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rooms, err := app.NewRoomManager([]domain.Room{
		{ID: "general", Name: "General", Kind: domain.RoomKindText},
		{ID: "lounge", Name: "Lounge", Kind: domain.RoomKindVoice},
	})
	require.NoError(t, err)
	o := orch.New(app.NewRegistry(), rooms, app.SimplePolicy{}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = o.Run(ctx) }()

	cfg := &config.Config{
		Mode:       "test",
		StaticPath: t.TempDir(),
		Secret:     "test-secret",
		ICEServers: []string{"stun:stun.example.org:3478"},
	}
	ctrl := signal.NewSignalWSController(o, nil, signal.Options{})
	return SetupRouter(ctx, cfg, o, ctrl), o
}

func get(t *testing.T, r http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_Health(t *testing.T) {
	r, _ := setup(t)
	w := get(t, r, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	require.Contains(t, w.Header().Get("Set-Cookie"), sessionName+"=")
}

func TestRouter_RoomsAndMembers(t *testing.T) {
	r, o := setup(t)

	ctrl := gomock.NewController(t)
	conn := mocks.NewMockSignalConnection(ctrl)
	conn.EXPECT().TrySend(gomock.Any()).Return(nil).AnyTimes()
	conn.EXPECT().Close().AnyTimes()

	require.NoError(t, o.Connect("A", conn))
	require.NoError(t, o.JoinVoiceRoom("A", protocol.JoinVoiceRoom{
		Room: "lounge",
		User: &protocol.UserInfo{ID: "u-1", Username: "alice"},
	}))

	w := get(t, r, "/api/rooms/lounge/members")
	require.Equal(t, http.StatusOK, w.Code)
	var members struct {
		Room    string           `json:"room"`
		Members []core.MemberDTO `json:"members"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &members))
	require.Equal(t, "lounge", members.Room)
	require.Equal(t, []core.MemberDTO{{ID: "A", UserID: "u-1", Username: "alice"}}, members.Members)

	w = get(t, r, "/api/rooms")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"rooms":[
		{"id":"general","name":"General","kind":"text","memberCount":0},
		{"id":"lounge","name":"Lounge","kind":"voice","memberCount":1}
	]}`, w.Body.String())

	w = get(t, r, "/api/rooms/attic/members")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_ICE(t *testing.T) {
	r, _ := setup(t)
	w := get(t, r, "/api/ice")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"iceServers":["stun:stun.example.org:3478"]}`, w.Body.String())
}

func TestRouter_MembersAfterStop(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rooms, err := app.NewRoomManager([]domain.Room{{ID: "lounge", Kind: domain.RoomKindVoice}})
	require.NoError(t, err)
	o := orch.New(app.NewRegistry(), rooms, app.SimplePolicy{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = o.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}

	cfg := &config.Config{StaticPath: t.TempDir(), Secret: "s"}
	r := SetupRouter(context.Background(), cfg, o, signal.NewSignalWSController(o, nil, signal.Options{}))
	w := get(t, r, "/api/rooms/lounge/members")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
