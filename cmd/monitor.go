// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/quadtherm/pkg/telemetry"
)

var (
	monitorListen   string
	monitorPath     string
	monitorUsername string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Receive and print telemetry from nodes",
	Long: `Accept WebSocket uplink connections from nodes and print every telemetry
frame they send.

Point a node at the monitor with:
  quadtherm run --uplink-url ws://<monitor-host>:8080/telemetry

With --username set, nodes must authenticate with HTTP Basic auth. The
password is read from the QUADTHERM_UPLINK_PASSWORD environment variable or
prompted interactively.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorListen, "listen", ":8080", "Listen address")
	monitorCmd.Flags().StringVar(&monitorPath, "path", "/telemetry", "WebSocket endpoint path")
	monitorCmd.Flags().StringVarP(&monitorUsername, "username", "u", "", "Require HTTP Basic auth with this username")
}

// frameMonitor prints frames from every connected node
type frameMonitor struct {
	username string
	password string
	upgrader websocket.Upgrader
	stats    *telemetry.Statistics
}

func (m *frameMonitor) authorized(req *http.Request) bool {
	if m.username == "" {
		return true
	}
	user, pass, ok := req.BasicAuth()
	return ok &&
		subtle.ConstantTimeCompare([]byte(user), []byte(m.username)) == 1 &&
		subtle.ConstantTimeCompare([]byte(pass), []byte(m.password)) == 1
}

func (m *frameMonitor) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if !m.authorized(req) {
		w.Header().Set("WWW-Authenticate", `Basic realm="quadtherm"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := m.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	fmt.Printf("=== %s connected ===\n", req.RemoteAddr)
	defer fmt.Printf("=== %s disconnected ===\n", req.RemoteAddr)

	decoder := telemetry.NewDecoder()
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		for _, b := range data {
			f, err := decoder.DecodeByte(b)
			if f == nil && err == nil {
				continue
			}
			anomalies := m.stats.Update(f, err)
			if err != nil {
				fmt.Printf("[%s] Decode error: %v\n", time.Now().Format("15:04:05.000"), err)
				continue
			}
			line := telemetry.FormatFrame(f)
			if len(anomalies) > 0 {
				msgs := make([]string, len(anomalies))
				for i, a := range anomalies {
					msgs[i] = a.Message
				}
				line += "  ⚠ " + strings.Join(msgs, "; ")
			}
			fmt.Println(line)
		}
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	m := &frameMonitor{username: monitorUsername, stats: telemetry.NewStatistics()}
	if monitorUsername != "" {
		pw, err := GetPassword(uplinkPasswordEnv, "Uplink password")
		if err != nil {
			return err
		}
		m.password = pw
	}

	mux := http.NewServeMux()
	mux.Handle(monitorPath, m)
	srv := &http.Server{
		Addr:              monitorListen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("Quadtherm - Telemetry Monitor\n")
	fmt.Printf("Listening: ws://%s%s\n", monitorListen, monitorPath)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	fmt.Printf("\n%s", m.stats)
	return err
}
