package transport

import (
	"context"
	"testing"
	"time"
)

func TestMockTransportSendRecvRoundTrip(t *testing.T) {
	fab := NewFabric()
	tr0 := NewMockTransport(fab, 0)
	tr1 := NewMockTransport(fab, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	send := NewBuffer(8)
	copy(send.Data, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	recv := NewBuffer(8)

	sendReq, err := tr0.SendAsync(ctx, 1, send, 0, 8, 42)
	if err != nil {
		t.Fatalf("send_async: %v", err)
	}
	recvReq, err := tr1.RecvAsync(ctx, 0, recv, 0, 8, 42)
	if err != nil {
		t.Fatalf("recv_async: %v", err)
	}

	if err := WaitAll(ctx, []Request{sendReq, recvReq}); err != nil {
		t.Fatalf("wait_all: %v", err)
	}

	for i, b := range send.Data {
		if recv.Data[i] != b {
			t.Fatalf("byte %d: got %d want %d", i, recv.Data[i], b)
		}
	}
}

func TestBufferReleaseRefusedWhileBound(t *testing.T) {
	b := NewBuffer(4)
	b.Bind()
	if err := b.Release(); err == nil {
		t.Fatalf("expected release to fail while bound")
	}
	b.Unbind()
	if err := b.Release(); err != nil {
		t.Fatalf("release after unbind: %v", err)
	}
}

func TestP2PCopyAsyncCopiesBytes(t *testing.T) {
	fab := NewFabric()
	tr := NewMockTransport(fab, 0)
	src := NewBuffer(4)
	copy(src.Data, []byte{9, 8, 7, 6})
	dst := NewBuffer(4)

	req, err := tr.P2PCopyAsync(context.Background(), 0, 1, src, dst, 0, 0, 4)
	if err != nil {
		t.Fatalf("p2p_copy_async: %v", err)
	}
	<-req.Done()
	if err := req.Err(); err != nil {
		t.Fatalf("p2p request error: %v", err)
	}
	for i, b := range src.Data {
		if dst.Data[i] != b {
			t.Fatalf("byte %d: got %d want %d", i, dst.Data[i], b)
		}
	}
}

func TestTestReportsCompletion(t *testing.T) {
	fab := NewFabric()
	tr0 := NewMockTransport(fab, 0)
	tr1 := NewMockTransport(fab, 1)
	ctx := context.Background()

	buf := NewBuffer(1)
	sendReq, _ := tr0.SendAsync(ctx, 1, buf, 0, 1, 7)
	recvBuf := NewBuffer(1)
	recvReq, _ := tr1.RecvAsync(ctx, 0, recvBuf, 0, 1, 7)

	<-sendReq.Done()
	<-recvReq.Done()
	if !Test(sendReq) || !Test(recvReq) {
		t.Fatalf("expected both requests to report complete")
	}
}
