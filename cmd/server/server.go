package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/quill-markets/matchcore/internal/engine"
	"github.com/quill-markets/matchcore/internal/transport"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	eng := engine.New()
	srv := transport.New("0.0.0.0", 9001, eng)

	go srv.Run(ctx)
	<-ctx.Done()
}
