// Command healthcheck probes the local ops server; it is the container HEALTHCHECK.
// It exits 0 when the probed endpoint answers 200 and 1 otherwise.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	path := flag.String("path", "/healthz", "endpoint to probe, e.g. /readyz")
	flag.Parse()
	os.Exit(probe(probeURL(os.Getenv("HTTP_ADDR"), *path)))
}

// probeURL turns a listen address such as ":8080" or "0.0.0.0:9000" into a
// localhost URL.
func probeURL(addr, path string) string {
	if addr == "" {
		addr = ":8080"
	}
	port := addr
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		port = addr[i+1:]
	}
	return "http://localhost:" + port + path
}

func probe(url string) int {
	client := &http.Client{Timeout: 3 * time.Second}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		return 1
	}
	resp, err := client.Do(req)
	if err != nil {
		return 1
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}
