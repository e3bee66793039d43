package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/courier/config"
	"github.com/opd-ai/courier/real"
	testsim "github.com/opd-ai/courier/testing"
)

func TestVersionCommand(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "courierd dev\n", out.String())
}

func TestQRCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/qr", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"raw":"ABC","dataUrl":"data:image/png;base64,"}`))
	}))
	defer srv.Close()

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"qr", "--addr", srv.URL + "/"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Scan this QR code")
	assert.Greater(t, out.Len(), 100)
}

func TestQRCommandNoChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"no QR challenge pending","details":"CONNECTED"}`))
	}))
	defer srv.Close()

	root := newRootCommand()
	root.SetArgs([]string{"qr", "--addr", srv.URL})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no QR challenge pending")
}

func TestNewTransportFactory(t *testing.T) {
	cfg := config.Default()

	f, err := newTransportFactory(cfg, false)
	require.NoError(t, err)
	assert.False(t, f.IsUsingSimulation())
	tr, err := f.CreateTransport(nil)
	require.NoError(t, err)
	assert.IsType(t, &real.BridgeTransport{}, tr)

	f, err = newTransportFactory(cfg, true)
	require.NoError(t, err)
	assert.True(t, f.IsUsingSimulation())
	tr, err = f.CreateTransport(nil)
	require.NoError(t, err)
	assert.IsType(t, &testsim.SimulatedTransport{}, tr)

	cfg.Transport.CallTimeout = 0
	_, err = newTransportFactory(cfg, true)
	assert.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, cfg := range []config.SessionConfig{
		{Backend: config.BackendMemory},
		{Backend: config.BackendFile, Path: filepath.Join(dir, "files"), Passphrase: "secret"},
		{Backend: config.BackendSQLite, Path: filepath.Join(dir, "db", "courier.db")},
	} {
		store, closeStore, err := openStore(ctx, cfg)
		require.NoError(t, err, cfg.Backend)
		require.NoError(t, store.Save(ctx, "courier", []byte("blob")))
		got, err := store.Load(ctx, "courier")
		require.NoError(t, err)
		assert.Equal(t, []byte("blob"), got)
		assert.NoError(t, closeStore())
	}

	_, closeStore, err := openStore(ctx, config.SessionConfig{Backend: "redis"})
	assert.ErrorIs(t, err, config.ErrInvalidBackend)
	assert.NotNil(t, closeStore)
}

func TestSetupLogging(t *testing.T) {
	t.Cleanup(func() {
		logrus.SetOutput(os.Stderr)
		logrus.SetLevel(logrus.InfoLevel)
		logrus.SetFormatter(&logrus.TextFormatter{})
	})
	var buf bytes.Buffer
	require.NoError(t, setupLogging(config.LogConfig{Level: "debug", Format: "json"}, &buf))
	logrus.Debug("probe")
	assert.Contains(t, buf.String(), `"msg":"probe"`)
	assert.Error(t, setupLogging(config.LogConfig{Level: "chatty", Format: "text"}, &buf))
}
