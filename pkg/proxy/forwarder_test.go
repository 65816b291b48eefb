package proxy

import (
	"compress/gzip"
	"compress/zlib"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardSuccess(t *testing.T) {
	var seen *http.Request
	var seenBody []byte
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Clone(context.Background())
		seenBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"created":true}`))
	}))
	defer upstream.Close()

	f := New()
	in := &Request{
		Method: "POST",
		Header: http.Header{
			"Content-Type": {"application/json"},
			"X-Api-Key":    {"secret"},
			"Connection":   {"keep-alive"},
		},
		Body:       []byte(`{"name":"x"}`),
		Host:       "mock.local:7400",
		RemoteAddr: "192.0.2.10:55000",
	}

	out, err := f.Forward(context.Background(), upstream.URL+"/users/{id}", in, map[string]string{"id": "7"})
	require.NoError(t, err)

	require.NotNil(t, seen)
	assert.Equal(t, "/users/7", seen.URL.Path)
	assert.Equal(t, "POST", seen.Method)
	assert.Equal(t, []byte(`{"name":"x"}`), seenBody)
	assert.Equal(t, "secret", seen.Header.Get("X-Api-Key"))
	assert.Equal(t, "192.0.2.10", seen.Header.Get("X-Forwarded-For"))
	assert.Equal(t, "mock.local:7400", seen.Header.Get("X-Forwarded-Host"))
	assert.Empty(t, seen.Header.Get("Connection"), "hop-by-hop headers are stripped")

	assert.Equal(t, http.StatusCreated, out.Status)
	assert.Equal(t, []byte(`{"created":true}`), out.Body)
	assert.Equal(t, "yes", out.Header.Get("X-Upstream"))
	assert.Empty(t, out.Header.Get("Content-Length"))

	info := out.Info
	require.NotNil(t, info)
	assert.Equal(t, upstream.URL+"/users/7", info.TargetURL)
	assert.Equal(t, http.StatusCreated, info.ResponseStatus)
	assert.Equal(t, `{"created":true}`, info.ResponseBody)
	assert.Equal(t, "secret", info.OutboundHeaders["X-Api-Key"])
	assert.Empty(t, info.Error)
	assert.Empty(t, info.Warnings)
}

func TestForwardAppendsForwardedFor(t *testing.T) {
	var got string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Forwarded-For")
	}))
	defer upstream.Close()

	f := New()
	in := &Request{
		Method:     "GET",
		Header:     http.Header{"X-Forwarded-For": {"203.0.113.5"}},
		RemoteAddr: "192.0.2.10:55000",
	}

	_, err := f.Forward(context.Background(), upstream.URL, in)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.5, 192.0.2.10", got)
}

func TestBuildTargetURL(t *testing.T) {
	tests := []struct {
		name         string
		target       string
		in           *Request
		params       []map[string]string
		want         string
		wantWarnings []string
	}{
		{
			name:   "path param substitution",
			target: "https://api.example.com/users/{id}",
			in:     &Request{},
			params: []map[string]string{{"id": "7"}},
			want:   "https://api.example.com/users/7",
		},
		{
			name:   "path params win over sandbox vars",
			target: "https://api.example.com/{id}",
			in:     &Request{},
			params: []map[string]string{{"id": "from-path"}, {"id": "from-script"}},
			want:   "https://api.example.com/from-path",
		},
		{
			name:   "sandbox var fills the gap",
			target: "https://api.example.com/{tier}/{id}",
			in:     &Request{},
			params: []map[string]string{{"id": "7"}, {"tier": "gold"}},
			want:   "https://api.example.com/gold/7",
		},
		{
			name:         "unresolved token stays verbatim with a warning",
			target:       "https://api.example.com/{missing}",
			in:           &Request{},
			params:       []map[string]string{{"id": "7"}},
			want:         "https://api.example.com/{missing}",
			wantWarnings: []string{"unresolved placeholder {missing}"},
		},
		{
			name:   "token-free target gets the wildcard suffix",
			target: "https://files.example.com/",
			in:     &Request{PathSuffix: "/a/b.txt"},
			want:   "https://files.example.com/a/b.txt",
		},
		{
			name:   "suffix without leading slash is normalized",
			target: "https://files.example.com",
			in:     &Request{PathSuffix: "a.txt"},
			want:   "https://files.example.com/a.txt",
		},
		{
			name:   "query string is appended",
			target: "https://api.example.com/search",
			in:     &Request{Query: "q=x&page=2"},
			want:   "https://api.example.com/search?q=x&page=2",
		},
		{
			name:   "query merges into an existing query",
			target: "https://api.example.com/search?fixed=1",
			in:     &Request{Query: "q=x"},
			want:   "https://api.example.com/search?fixed=1&q=x",
		},
		{
			name:   "tokened target does not get the suffix",
			target: "https://api.example.com/users/{id}",
			in:     &Request{PathSuffix: "/extra"},
			params: []map[string]string{{"id": "7"}},
			want:   "https://api.example.com/users/7",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, warnings := buildTargetURL(tt.target, tt.in, tt.params...)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantWarnings, warnings)
		})
	}
}

func TestForwardDecodesGzip(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Type", "text/plain")
		zw := gzip.NewWriter(w)
		_, _ = zw.Write([]byte("hello compressed world"))
		_ = zw.Close()
	}))
	defer upstream.Close()

	f := New()
	in := &Request{Method: "GET", Header: http.Header{"Accept-Encoding": {"gzip"}}}

	out, err := f.Forward(context.Background(), upstream.URL, in)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello compressed world"), out.Body)
	assert.Empty(t, out.Header.Get("Content-Encoding"))
	assert.Equal(t, "hello compressed world", out.Info.ResponseBody)
}

func TestForwardDecodesDeflate(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "deflate")
		zw := zlib.NewWriter(w)
		_, _ = zw.Write([]byte("deflated payload"))
		_ = zw.Close()
	}))
	defer upstream.Close()

	f := New()
	in := &Request{Method: "GET", Header: http.Header{"Accept-Encoding": {"deflate"}}}

	out, err := f.Forward(context.Background(), upstream.URL, in)
	require.NoError(t, err)
	assert.Equal(t, []byte("deflated payload"), out.Body)
}

func TestForwardTransportFailure(t *testing.T) {
	f := New()
	in := &Request{Method: "GET"}

	out, err := f.Forward(context.Background(), "http://127.0.0.1:1/unreachable", in)
	require.Error(t, err)

	var ferr *Error
	require.ErrorAs(t, err, &ferr)
	assert.False(t, ferr.Timeout)

	require.NotNil(t, out)
	assert.Zero(t, out.Status)
	assert.NotEmpty(t, out.Info.Error)
	assert.Zero(t, out.Info.ResponseStatus, "status stays unset on transport failure")
	assert.Equal(t, "http://127.0.0.1:1/unreachable", out.Info.TargetURL)
}

func TestForwardTimeout(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer upstream.Close()

	f := New(WithTimeout(30 * time.Millisecond))
	in := &Request{Method: "GET"}

	out, err := f.Forward(context.Background(), upstream.URL, in)
	require.Error(t, err)

	var ferr *Error
	require.ErrorAs(t, err, &ferr)
	assert.True(t, ferr.Timeout)
	assert.NotEmpty(t, out.Info.Error)
}

func TestForwardSingleAttempt(t *testing.T) {
	attempts := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	f := New()
	out, err := f.Forward(context.Background(), upstream.URL, &Request{Method: "GET"})
	require.NoError(t, err, "an upstream 5xx is a successful forward")
	assert.Equal(t, http.StatusInternalServerError, out.Status)
	assert.Equal(t, 1, attempts)
}
