package connection_test

import (
	"context"
	"testing"
	"time"

	"github.com/nblabs/httpcore/pkg/connection"
	"github.com/nblabs/httpcore/pkg/iosock"
)

func TestCloseIsIdempotent(t *testing.T) {
	ln, err := iosock.Listen("tcp", "127.0.0.1:0", time.Second, time.Second)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		sock, err := ln.Accept()
		if err != nil {
			return
		}
		conn := connection.New(sock)
		if err := conn.Close(); err != nil {
			t.Errorf("first Close: %v", err)
		}
		if err := conn.Close(); err != nil {
			t.Errorf("second Close: %v", err)
		}
		if !conn.Closed() {
			t.Errorf("expected Closed() to be true")
		}
	}()

	client, err := iosock.Connect(context.Background(), "tcp", ln.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close(false)
	time.Sleep(50 * time.Millisecond)
}
