// Package discovery holds the in-network address conventions shared by the
// catmarket processes.
package discovery

import (
	"strconv"
	"strings"
)

const (
	// ServiceTrading is the trading gRPC service identity.
	ServiceTrading = "trading"
	// ServiceWorker is the worker health service identity.
	ServiceWorker = "worker"
	// ServicePayments is the external payment service identity.
	ServicePayments = "payments"
)

var grpcPorts = map[string]int{
	ServiceTrading: 8090,
	ServiceWorker:  8089,
}

var httpPorts = map[string]int{
	ServicePayments: 8095,
}

// DefaultGRPCAddr returns the canonical gRPC address for a service.
func DefaultGRPCAddr(service string) string {
	return defaultAddr(strings.TrimSpace(service), grpcPorts)
}

// DefaultHTTPAddr returns the canonical HTTP address for a service.
func DefaultHTTPAddr(service string) string {
	return defaultAddr(strings.TrimSpace(service), httpPorts)
}

// OrDefaultGRPCAddr returns value when set, otherwise the service convention.
func OrDefaultGRPCAddr(value, service string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	return DefaultGRPCAddr(service)
}

// OrDefaultHTTPBaseURL returns value when set, otherwise http://<host:port>.
func OrDefaultHTTPBaseURL(value, service string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	addr := DefaultHTTPAddr(service)
	if addr == "" {
		return ""
	}
	return "http://" + addr
}

func defaultAddr(service string, ports map[string]int) string {
	port, ok := ports[service]
	if !ok || port <= 0 {
		return ""
	}
	return service + ":" + strconv.Itoa(port)
}
