package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBuildHTTP2Client(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := BuildHTTP2Client(time.Second)
	if err != nil {
		t.Fatalf("BuildHTTP2Client: %v", err)
	}
	if c.Timeout != time.Second {
		t.Fatalf("timeout = %v", c.Timeout)
	}
	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("unexpected transport %T", c.Transport)
	}
	if _, ok := tr.TLSNextProto["h2"]; !ok {
		t.Fatalf("h2 not registered on the transport")
	}

	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("plain HTTP request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
