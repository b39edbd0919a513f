// Command mqgw is a small operational tool around the queue gateway: it
// connects to the configured queue manager and performs a single put, get,
// peek, drain or depth operation against a named queue.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/architeacher/mq-gateway/internal/config"
	"github.com/architeacher/mq-gateway/internal/infrastructure"
	"github.com/architeacher/mq-gateway/internal/shared/backoff"
	"github.com/architeacher/mq-gateway/pkg/amqptransport"
	"github.com/architeacher/mq-gateway/pkg/gateway"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		queueName = flag.String("queue", "", "queue name to operate on")
		message   = flag.String("message", "", "message body for -op=put")
		filePath  = flag.String("file", "messages.log", "target file for -op=drain")
		operation = flag.String("op", "depth", "operation: put, get, peek, drain or depth")
		dump      = flag.Bool("dump-config", false, "print the effective configuration and exit")
	)
	flag.Parse()

	cfg, err := config.Init()
	if err != nil {
		return err
	}

	if *dump {
		cfg.Dump()

		return nil
	}

	if *queueName == "" {
		return fmt.Errorf("a queue name is required, pass -queue")
	}

	logger := infrastructure.NewLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	transport := amqptransport.New(
		amqptransport.WithLogger(logger),
		amqptransport.WithHeartbeat(cfg.Gateway.Heartbeat),
		amqptransport.WithConnectTimeout(cfg.Gateway.ConnectTimeout),
		amqptransport.WithVhost(cfg.Gateway.Vhost),
		amqptransport.WithCredentials("guest", cfg.Gateway.Password),
	)

	gw, err := gateway.New(cfg.Gateway.Manager, transport,
		gateway.WithLogger(logger),
		gateway.WithReconnectDelay(cfg.Gateway.ReconnectDelay),
		gateway.WithBrowseWait(cfg.Gateway.BrowseWait),
	)
	if err != nil {
		return err
	}
	defer gw.Close()

	if err := connectWithRetry(ctx, gw, cfg.Gateway, backoff.NewExponentialStrategy(cfg.Backoff)); err != nil {
		return err
	}

	switch *operation {
	case "put":
		return gw.Write(ctx, *queueName, *message)

	case "get":
		msg, err := gw.Read(ctx, *queueName)
		if err != nil {
			return err
		}
		fmt.Println(msg)

	case "peek":
		msg, err := gw.Peek(ctx, *queueName)
		if err != nil {
			return err
		}
		fmt.Println(msg)

	case "drain":
		msg, err := gw.ReadSafe(ctx, *queueName, *filePath, nil)
		if err != nil {
			return err
		}
		fmt.Println(msg)

	case "depth":
		depth, err := gw.Depth(ctx, *queueName)
		if err != nil {
			return err
		}
		fmt.Println(depth)

	default:
		return fmt.Errorf("unknown operation %q", *operation)
	}

	return nil
}

func connectWithRetry(ctx context.Context, gw *gateway.Gateway, cfg config.GatewayConfig, strategy backoff.Strategy) error {
	var err error

	for attempt := 0; attempt <= cfg.MaxConnectRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(strategy.Backoff(attempt))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()

				return ctx.Err()
			}
		}

		if err = gw.Connect(ctx, cfg.Host, cfg.Channel, cfg.Port, cfg.UserID); err == nil {
			return nil
		}
	}

	return fmt.Errorf("connect to %s after %d attempts: %w", cfg.Manager, cfg.MaxConnectRetries+1, err)
}
