package iosock_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/nblabs/httpcore/pkg/iosock"
)

func TestListenAcceptRoundTrip(t *testing.T) {
	ln, err := iosock.Listen("tcp", "127.0.0.1:0", time.Second, time.Second)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		sock, err := ln.Accept()
		if err != nil {
			return
		}
		defer sock.Close(false)
		buf := make([]byte, 5)
		if _, err := io.ReadFull(sock.BufferedReader(), buf); err != nil {
			return
		}
		sock.Write(buf)
	}()

	client, err := iosock.Connect(context.Background(), "tcp", ln.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close(false)

	if _, err := client.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	buf := make([]byte, 5)
	if _, err := io.ReadFull(client.BufferedReader(), buf); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("unexpected echo: %q", buf)
	}
	<-done
}
