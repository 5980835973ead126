package transport_test

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quill-markets/matchcore/internal/engine"
	"github.com/quill-markets/matchcore/internal/transport"
	"github.com/quill-markets/matchcore/internal/types"
)

// freePort asks the OS for an unused TCP port so concurrent test runs
// don't collide on a fixed address.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestServer_PlaceOrderRoundTripProducesTradeReports(t *testing.T) {
	port := freePort(t)
	eng := engine.New()
	srv := transport.New("127.0.0.1", port, eng)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Run(ctx)

	addr := "127.0.0.1:" + strconv.Itoa(port)
	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	defer conn.Close()

	sell := transport.NewOrderMessage{
		OrderType: types.Limit,
		Side:      types.Sell,
		Price:     100,
		Quantity:  1,
		Symbol:    "BTC-USDT",
	}
	_, err = conn.Write(transport.EncodeNewOrder(sell))
	require.NoError(t, err)

	ackBuf := make([]byte, 4096)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(ackBuf)
	require.NoError(t, err)
	ack, err := transport.DeserializeReport(ackBuf[:n])
	require.NoError(t, err)
	require.Equal(t, transport.AckReport, ack.Kind)

	buy := transport.NewOrderMessage{
		OrderType: types.Limit,
		Side:      types.Buy,
		Price:     100,
		Quantity:  1,
		Symbol:    "BTC-USDT",
	}
	_, err = conn.Write(transport.EncodeNewOrder(buy))
	require.NoError(t, err)

	sawTrade := false
	for i := 0; i < 4; i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, err := conn.Read(ackBuf)
		if err != nil {
			break
		}
		r, err := transport.DeserializeReport(ackBuf[:n])
		require.NoError(t, err)
		if r.Kind == transport.TradeReport {
			sawTrade = true
			break
		}
	}
	require.True(t, sawTrade, "expected a trade report after the crossing buy")
}

func TestServer_CancelUnknownOrderReportsNotFound(t *testing.T) {
	port := freePort(t)
	eng := engine.New()
	srv := transport.New("127.0.0.1", port, eng)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Run(ctx)

	addr := "127.0.0.1:" + strconv.Itoa(port)
	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(transport.EncodeCancelOrder("ORD999999999999"))
	require.NoError(t, err)

	buf := make([]byte, 4096)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	require.NoError(t, err)

	r, err := transport.DeserializeReport(buf[:n])
	require.NoError(t, err)
	require.Equal(t, transport.ErrorReport, r.Kind)
	require.Equal(t, engine.ErrOrderNotFound.Error(), r.ErrStr)
}
