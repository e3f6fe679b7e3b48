package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/huntermatuse/simple-canary-mqtt-forwarder"
)

func main() {
	cfg, err := canarybridge.LoadConfig("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pub, deliveries, closeDeliveries := canarybridge.NewChannelPublisher("fanout", 256)
	defer closeDeliveries()

	go fanoutWorker("latest", deliveries)

	rt, err := canarybridge.NewRuntime(cfg, canarybridge.WithPublisher(pub))
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}
	if err := rt.Run(ctx); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}

// fanoutWorker keeps the most recent payload per topic.
func fanoutWorker(name string, deliveries <-chan canarybridge.Delivery) {
	latest := make(map[string][]byte)
	for d := range deliveries {
		if _, seen := latest[d.Topic]; !seen {
			fmt.Printf("[%s] first value for %s: %s\n", name, d.Topic, d.Payload)
		}
		latest[d.Topic] = d.Payload
	}
}
