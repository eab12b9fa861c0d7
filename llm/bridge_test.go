package llm

import (
	"context"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/m4xw311/playtest/action"
	"github.com/m4xw311/playtest/capture"
	"github.com/m4xw311/playtest/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame() *capture.Frame {
	return &capture.Frame{Image: imaging.New(16, 9, color.White)}
}

type askRecord struct {
	context   string
	apiKey    string
	imageSize int
	mediaType string
}

func bridgeServer(t *testing.T, answer string, status int) (*httptest.Server, *[]askRecord, *int) {
	t.Helper()
	var asks []askRecord
	resets := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		resets++
	})
	mux.HandleFunc("/ask", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("screenshot")
		require.NoError(t, err)
		data, _ := io.ReadAll(file)
		asks = append(asks, askRecord{
			context:   r.FormValue("context"),
			apiKey:    r.FormValue("api_key"),
			imageSize: len(data),
			mediaType: header.Header.Get("Content-Type"),
		})
		w.WriteHeader(status)
		io.WriteString(w, answer)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &asks, &resets
}

func TestBridgeRequestAction(t *testing.T) {
	srv, asks, _ := bridgeServer(t, `{"thought":"tap play","actionType":"Click","screenPosition":{"x":0.5,"y":0.8}}`, http.StatusOK)
	b := NewBridge(srv.URL+"/", "secret", time.Second, nil)
	ctx := context.Background()

	require.NoError(t, b.Initialize(ctx))
	act, err := b.RequestAction(ctx, testFrame(), "[Game Description]\ng\n\n[Current State]\ns")
	require.NoError(t, err)
	assert.Equal(t, action.Click, act.Type)
	assert.Equal(t, "tap play", act.Thought)
	assert.Equal(t, 1.0, act.Duration)

	require.Len(t, *asks, 1)
	got := (*asks)[0]
	assert.Equal(t, "[Game Description]\ng\n\n[Current State]\ns", got.context)
	assert.Equal(t, "secret", got.apiKey)
	assert.Equal(t, "image/jpeg", got.mediaType)
	assert.Positive(t, got.imageSize)
}

func TestBridgeOmitsEmptyAPIKey(t *testing.T) {
	srv, asks, _ := bridgeServer(t, `{"actionType":"Wait"}`, http.StatusOK)
	b := NewBridge(srv.URL, "", time.Second, nil)
	_, err := b.RequestAction(context.Background(), testFrame(), "ctx")
	require.NoError(t, err)
	assert.Equal(t, "", (*asks)[0].apiKey)
}

func TestBridgeErrorKinds(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv, _, _ := bridgeServer(t, "boom", http.StatusInternalServerError)
		_, err := NewBridge(srv.URL, "", time.Second, nil).RequestAction(context.Background(), testFrame(), "")
		assert.Equal(t, errors.KindProtocol, errors.KindOf(err))
	})
	t.Run("parse", func(t *testing.T) {
		srv, _, _ := bridgeServer(t, "I am not sure what to do", http.StatusOK)
		_, err := NewBridge(srv.URL, "", time.Second, nil).RequestAction(context.Background(), testFrame(), "")
		assert.Equal(t, errors.KindParse, errors.KindOf(err))
	})
	t.Run("network", func(t *testing.T) {
		srv, _, _ := bridgeServer(t, "", http.StatusOK)
		srv.Close()
		_, err := NewBridge(srv.URL, "", time.Second, nil).RequestAction(context.Background(), testFrame(), "")
		assert.Equal(t, errors.KindNetwork, errors.KindOf(err))
	})
	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer srv.Close()
		defer close(release)
		_, err := NewBridge(srv.URL, "", 50*time.Millisecond, nil).RequestAction(context.Background(), testFrame(), "")
		assert.Equal(t, errors.KindNetwork, errors.KindOf(err))
	})
}

func TestBridgeInitializeFailures(t *testing.T) {
	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unhealthy.Close()
	err := NewBridge(unhealthy.URL, "", time.Second, nil).Initialize(context.Background())
	assert.True(t, errors.IsKind(err, errors.KindProvider))

	gone := httptest.NewServer(http.NotFoundHandler())
	gone.Close()
	err = NewBridge(gone.URL, "", time.Second, nil).Initialize(context.Background())
	assert.True(t, errors.IsKind(err, errors.KindProvider))
}

func TestBridgeReset(t *testing.T) {
	srv, _, resets := bridgeServer(t, "", http.StatusOK)
	b := NewBridge(srv.URL, "", time.Second, nil)
	require.NoError(t, b.Reset(context.Background()))
	assert.Equal(t, 1, *resets)

	var _ Resetter = b
}
