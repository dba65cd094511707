package server_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lambda-feedback/procvisor/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestHttpServer_ServesHandlers(t *testing.T) {
	ping := server.AsHttpHandler("/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pong"))
	}))

	srv := server.NewHttpServer(server.HttpServerParams{
		Context:  context.Background(),
		Config:   server.HttpConfig{Host: "127.0.0.1", Port: 0},
		Handlers: []*server.HttpHandler{ping.Handler},
		Logger:   zap.NewNop(),
	})

	assert.Nil(t, srv.Addr())

	require.NoError(t, srv.Start(context.Background()))
	defer func() {
		assert.NoError(t, srv.Shutdown(context.Background()))
	}()

	res, err := http.Get(fmt.Sprintf("http://%s/ping", srv.Addr()))
	require.NoError(t, err)
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "pong", string(body))
}

func TestHttpServer_StartFailsOnBusyAddress(t *testing.T) {
	first := server.NewHttpServer(server.HttpServerParams{
		Context: context.Background(),
		Config:  server.HttpConfig{Host: "127.0.0.1", Port: 0},
		Logger:  zap.NewNop(),
	})

	require.NoError(t, first.Start(context.Background()))
	defer first.Shutdown(context.Background())

	addr, ok := first.Addr().(*net.TCPAddr)
	require.True(t, ok)

	second := server.NewHttpServer(server.HttpServerParams{
		Context: context.Background(),
		Config:  server.HttpConfig{Host: "127.0.0.1", Port: addr.Port},
		Logger:  zap.NewNop(),
	})

	assert.Error(t, second.Start(context.Background()))
}

func TestNewMux_LogsRequests(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	teapot := server.AsHttpHandler("/teapot", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	mux := server.NewMux([]*server.HttpHandler{teapot.Handler}, zap.New(core))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/teapot", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)

	entries := logs.FilterMessage("request served").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(http.StatusTeapot), entries[0].ContextMap()["status"])
	assert.Equal(t, "/teapot", entries[0].ContextMap()["path"])
}
