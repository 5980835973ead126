package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/quill-markets/matchcore/internal/transport"
	"github.com/quill-markets/matchcore/internal/types"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the matching engine server")
	action := flag.String("action", "place", "Action to perform: ['place', 'cancel']")

	symbol := flag.String("symbol", "BTC-USDT", "Symbol")
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	typeStr := flag.String("type", "limit", "Order type: market|limit|ioc|fok|stop_loss|stop_limit|take_profit")
	price := flag.Float64("price", 0, "Limit/stop-limit price")
	stopPrice := flag.Float64("stop", 0, "Stop price (stop orders only)")
	qty := flag.Float64("qty", 1.0, "Quantity")

	orderID := flag.String("order-id", "", "Order id to cancel")

	flag.Parse()

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("connected to %s\n", *serverAddr)

	go readReports(conn)

	switch strings.ToLower(*action) {
	case "place":
		side := parseSide(*sideStr)
		orderType := parseOrderType(*typeStr)
		msg := transport.NewOrderMessage{
			OrderType:     orderType,
			Side:          side,
			Price:         *price,
			Quantity:      *qty,
			StopPrice:     *stopPrice,
			Symbol:        types.Symbol(*symbol),
			ClientOrderID: uuid.New().String(),
		}
		if _, err := conn.Write(transport.EncodeNewOrder(msg)); err != nil {
			log.Fatalf("failed to send order: %v", err)
		}
		fmt.Printf("-> sent %s %s %s qty=%.8f price=%.8f stop=%.8f\n", *sideStr, *typeStr, *symbol, *qty, *price, *stopPrice)

	case "cancel":
		if *orderID == "" {
			log.Fatal("-order-id is required for cancellation")
		}
		if _, err := conn.Write(transport.EncodeCancelOrder(types.OrderID(*orderID))); err != nil {
			log.Fatalf("failed to send cancel: %v", err)
		}
		fmt.Printf("-> sent cancel for %s\n", *orderID)

	default:
		log.Fatalf("unknown action: %s", *action)
	}

	fmt.Println("listening for reports... (Ctrl+C to exit)")
	select {}
}

func parseSide(s string) types.Side {
	if strings.EqualFold(s, "sell") {
		return types.Sell
	}
	return types.Buy
}

func parseOrderType(s string) types.OrderType {
	switch strings.ToLower(s) {
	case "market":
		return types.Market
	case "ioc":
		return types.IOC
	case "fok":
		return types.FOK
	case "stop_loss", "stoploss":
		return types.StopLoss
	case "stop_limit", "stoplimit":
		return types.StopLimit
	case "take_profit", "takeprofit":
		return types.TakeProfit
	default:
		return types.Limit
	}
}

func readReports(conn net.Conn) {
	for {
		buf := make([]byte, 4*1024)
		n, err := conn.Read(buf)
		if err != nil {
			if err != io.EOF {
				log.Printf("connection lost: %v", err)
			}
			os.Exit(0)
		}

		r, err := transport.DeserializeReport(buf[:n])
		if err != nil {
			log.Printf("error parsing report: %v", err)
			continue
		}

		switch r.Kind {
		case transport.ErrorReport:
			fmt.Printf("\n[ERROR] %s\n", r.ErrStr)
		case transport.TradeReport:
			fmt.Printf("\n[TRADE] %s order=%s qty=%.8f price=%.8f vs=%s\n",
				strings.ToUpper(r.Side.String()), r.OrderID, r.Quantity, r.Price, r.Counterparty)
		case transport.AckReport:
			fmt.Printf("\n[ACK] order=%s status=%s\n", r.OrderID, r.Status)
		}
	}
}
