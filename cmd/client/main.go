// client is a small interactive tester for the search server. Queries come
// from the command line or stdin, one per line; each response line is
// printed as received.
package main

import (
	"bufio"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"net"
	"os"
	"time"
)

func main() {
	addr := flag.String("addr", "localhost:8443", "server address")
	useTLS := flag.Bool("tls", false, "connect over TLS")
	insecure := flag.Bool("insecure", false, "skip TLS certificate verification")
	caFile := flag.String("ca", "", "PEM file with the CA certificate to trust")
	timeout := flag.Duration("timeout", 10*time.Second, "per-request timeout")
	flag.Parse()

	conn, err := dial(*addr, *useTLS, *insecure, *caFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect failed: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	if args := flag.Args(); len(args) > 0 {
		for _, query := range args {
			if err := roundTrip(conn, reader, query, *timeout); err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
				os.Exit(1)
			}
		}
		return
	}

	stdin := bufio.NewScanner(os.Stdin)
	for stdin.Scan() {
		if err := roundTrip(conn, reader, stdin.Text(), *timeout); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}
}

func dial(addr string, useTLS, insecure bool, caFile string) (net.Conn, error) {
	if !useTLS {
		return net.DialTimeout("tcp", addr, 5*time.Second)
	}
	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: insecure,
	}
	if caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", caFile)
		}
		tlsCfg.RootCAs = pool
	}
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	return tls.DialWithDialer(dialer, "tcp", addr, tlsCfg)
}

func roundTrip(conn net.Conn, reader *bufio.Reader, query string, timeout time.Duration) error {
	conn.SetDeadline(time.Now().Add(timeout))
	if _, err := fmt.Fprintf(conn, "%s\n", query); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	response, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read failed: %w", err)
	}
	fmt.Print(response)
	return nil
}
