package client_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nblabs/httpcore/pkg/client"
	"github.com/nblabs/httpcore/pkg/httpparse"
	"github.com/nblabs/httpcore/pkg/iosock"
	"github.com/nblabs/httpcore/pkg/message"
)

func startEchoServer(t *testing.T) string {
	t.Helper()
	ln, err := iosock.Listen("tcp", "127.0.0.1:0", time.Second, time.Second)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go func() {
		sock, err := ln.Accept()
		if err != nil {
			return
		}
		defer sock.Close(false)
		result, err := httpparse.ParseRequest(sock.BufferedReader(), 0)
		if err != nil {
			return
		}
		resp := message.NewResponse(200, message.HTTP11)
		resp.Header.Set("Content-Type", "text/plain")
		resp.Body.Write([]byte("hello " + string(result.Request.Method)))
		httpparse.WriteResponse(sock, resp, result.Request.Method)
		ln.Close()
	}()
	return ln.Addr().String()
}

func TestDoRoundTrip(t *testing.T) {
	addr := startEchoServer(t)

	req, err := message.NewRequest("GET", "http://"+addr+"/", message.HTTP11)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	c := client.New()
	resp, err := c.Do(context.Background(), req, client.Config{
		ConnTimeout: time.Second,
		ReadTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.Status.Code != 200 {
		t.Fatalf("unexpected status: %d", resp.Status.Code)
	}
	data, err := resp.Body.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "hello GET" {
		t.Fatalf("unexpected body: %q", data)
	}
}

// TestDoConnectionErrorAddrFormatting guards against the host:port address
// being duplicated when Connect fails, since schemeAndPort and
// transport.Connect both handle port substitution independently.
func TestDoConnectionErrorAddrFormatting(t *testing.T) {
	req, err := message.NewRequest("GET", "http://127.0.0.1:1/", message.HTTP11)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	c := client.New()
	_, err = c.Do(context.Background(), req, client.Config{
		ConnTimeout: 200 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected a connection error dialing port 1")
	}
	if strings.Contains(err.Error(), "127.0.0.1:1:1") {
		t.Fatalf("address formatted with duplicated port: %v", err)
	}
}
