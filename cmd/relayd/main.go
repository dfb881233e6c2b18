package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/marcshearer/Contract-Whist-Scorecard-sub001/internal/relay"
)

var (
	flagAddr = flag.String("addr", "", "Address to listen on (default: auto-port on localhost)")
)

func main() {
	flag.Parse()

	started := make(chan string, 1)
	ctx := context.Background()

	go func() {
		addr := <-started
		fmt.Printf("Whist relay listening on ws://%s/ws\n", addr)
	}()

	if err := relay.Run(ctx, *flagAddr, started); err != nil {
		log.Fatal(err)
	}
}
