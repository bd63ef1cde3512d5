package common

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// CreateContextWithShutdown returns a context that is cancelled when the
// application receives SIGINT or SIGTERM.
func CreateContextWithShutdown() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
	}()
	return ctx
}
