package utils

import (
	"fmt"
	"net"
	"net/url"
	"time"
)

// PingService checks if a service is reachable at the given URL
func PingService(serviceURL string, timeout time.Duration) error {
	parsedURL, err := url.Parse(serviceURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	host := parsedURL.Hostname()
	port := parsedURL.Port()

	// Default ports if not specified
	if port == "" {
		switch parsedURL.Scheme {
		case "https":
			port = "443"
		case "amqp":
			port = "5672"
		case "amqps":
			port = "5671"
		default:
			port = "80"
		}
	}

	address := net.JoinHostPort(host, port)

	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	defer conn.Close()

	return nil
}

// PingContentStore checks if a content store is reachable
func PingContentStore(storeURL string) error {
	return PingService(storeURL, 1500*time.Millisecond)
}

// PingBroker checks if the message broker is reachable
func PingBroker(amqpURL string) error {
	return PingService(amqpURL, 1500*time.Millisecond)
}
