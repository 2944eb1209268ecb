// Package metrics provides operational metrics collection.
//
// # Metric Categories
//
//   - Latency: gRPC request duration histograms by method, settlement latency
//   - Errors: gRPC request counts by method and status code
//   - Trading: offers created, cancelled and expired, accept outcomes
//   - Delivery: outbox event deliveries by type and outcome
//
// # Integration
//
// gRPC metrics are collected via a unary server interceptor; everything is
// exposed in Prometheus format through Handler.
package metrics
