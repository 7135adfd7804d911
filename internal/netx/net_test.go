package netx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoReq struct {
	Name string `json:"name"`
}

type echoResp struct {
	Greeting string `json:"greeting"`
}

func TestPostJSON(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var gotMethod, gotCT string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotCT = r.Header.Get("Content-Type")
			var in echoReq
			_ = json.NewDecoder(r.Body).Decode(&in)
			_ = json.NewEncoder(w).Encode(echoResp{Greeting: "hi " + in.Name})
		}))
		defer ts.Close()

		var out echoResp
		err := PostJSON(context.Background(), ts.Client(), ts.URL, echoReq{Name: "alice"}, &out)
		require.NoError(t, err)
		assert.Equal(t, http.MethodPost, gotMethod)
		assert.Equal(t, "application/json", gotCT)
		assert.Equal(t, "hi alice", out.Greeting)
	})

	t.Run("non-2xx returns StatusError with body", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error_code":"INVALID_PUBLIC_TOKEN"}`)
		}))
		defer ts.Close()

		err := PostJSON(context.Background(), ts.Client(), ts.URL, echoReq{}, nil)
		var se *StatusError
		require.True(t, errors.As(err, &se), "got %v", err)
		assert.Equal(t, http.StatusBadRequest, se.StatusCode)
		assert.True(t, strings.Contains(se.Error(), "INVALID_PUBLIC_TOKEN"))
	})

	t.Run("bad json body", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "not json")
		}))
		defer ts.Close()

		var out echoResp
		err := PostJSON(context.Background(), ts.Client(), ts.URL, echoReq{}, &out)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode response")
	})

	t.Run("unmarshalable request", func(t *testing.T) {
		err := PostJSON(context.Background(), nil, "http://127.0.0.1:1", make(chan int), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "marshal request")
	})

	t.Run("transport error", func(t *testing.T) {
		err := PostJSON(context.Background(), nil, "http://127.0.0.1:1", echoReq{}, nil)
		require.Error(t, err)
	})

	t.Run("invalid url", func(t *testing.T) {
		err := PostJSON(context.Background(), nil, "://bad", echoReq{}, nil)
		require.Error(t, err)
	})
}
