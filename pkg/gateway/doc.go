// Package gateway provides a client-side gateway to a message-queueing
// service: a managed connection to a named queue manager with serialized
// enqueue, destructive dequeue, non-destructive peek, depth inspection and
// connection recovery.
//
// # Overview
//
// A Gateway owns exactly one logical connection. The wire protocol lives
// behind the Provider interface, so the same state machine runs against the
// AMQP transport in package amqptransport, the in-memory transport in
// package memtransport, or any other implementation of the provider
// contract.
//
// # Basic Usage
//
// Creating and connecting a gateway:
//
//	gw, err := gateway.New("QM1", amqptransport.New())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer gw.Close()
//
//	if err := gw.Connect(ctx, "localhost", "DEV.APP.SVRCONN", 5672, ""); err != nil {
//		log.Fatal(err)
//	}
//
// Queue operations:
//
//	err = gw.Write(ctx, "Q.TEST", "hello")
//	msg, err := gw.Read(ctx, "Q.TEST")
//	msg, err = gw.Peek(ctx, "Q.TEST")
//	depth, err := gw.Depth(ctx, "Q.TEST")
//
// Read and Peek return an empty string with a nil error when the queue is
// empty; a non-nil error always means the operation itself failed.
//
// # Keep-Alive
//
// Every queue operation accepts WithKeepAlive. Passing false closes the
// connection before the call returns, success or failure:
//
//	msg, err := gw.Read(ctx, "Q.TEST", gateway.WithKeepAlive(false))
//
// Because the connection is shared, a keep-alive of false affects every
// other caller of the same Gateway instance.
//
// # Concurrency
//
// All operations on one Gateway are serialized by an instance-wide mutex;
// bodies of concurrent calls never interleave. Operations block until the
// provider responds, bounded only by the supplied context.
//
// # Recovery
//
// Depth distinguishes the provider's broken-connection failure and runs one
// reconnection attempt with the properties captured at connect time.
// Reconnect can also be driven directly from a caller's retry loop.
package gateway
