// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/quadtherm/pkg/measurement"
)

var (
	queryTimeout  int
	queryCount    int
	queryInterval time.Duration
)

var queryCmd = &cobra.Command{
	Use:   "query [host:port]",
	Short: "Fetch readings from a running node",
	Long: `Connect to a node's TCP responder and print the record it sends.

The responder waits for the next reading before replying, so a query takes
up to one sampling interval.

Exit codes:
  0 - Every query returned a record
  1 - Timeout waiting for a record
  2 - Connection error or malformed record`,
	Args: cobra.MaximumNArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().IntVar(&queryTimeout, "timeout", 5, "Timeout in seconds per query")
	queryCmd.Flags().IntVarP(&queryCount, "count", "n", 1, "Number of queries")
	queryCmd.Flags().DurationVar(&queryInterval, "interval", time.Second, "Delay between queries")
}

func runQuery(cmd *cobra.Command, args []string) error {
	addr := "localhost:1234"
	if len(args) == 1 {
		addr = args[0]
	}
	timeout := time.Duration(queryTimeout) * time.Second

	for i := 0; i < queryCount; i++ {
		if i > 0 {
			time.Sleep(queryInterval)
		}

		raw, err := fetchReport(addr, timeout)
		var netErr net.Error
		switch {
		case errors.As(err, &netErr) && netErr.Timeout():
			fmt.Fprintf(os.Stderr, "Timeout: no record from %s within %v\n", addr, timeout)
			os.Exit(1)
		case err != nil:
			fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
			os.Exit(2)
		}

		report, err := measurement.ParseReport(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v: %q\n", err, raw)
			os.Exit(2)
		}

		fmt.Printf("%s  %s  (%s °C)\n", time.Now().Format("15:04:05"), raw, report.Temperature)
	}

	return nil
}

// fetchReport reads one record; the responder closes the connection after it
func fetchReport(addr string, timeout time.Duration) ([]byte, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	return io.ReadAll(conn)
}
