// Command dronegate is a realtime gateway between browser clients and
// the Wheatley order/drone backend. Clients connect over a websocket,
// authenticate with LOGIN and drive orders and drones through typed
// commands; the gateway relays each to the backend and keeps just enough
// session state to recover a delivery when its courier disappears.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"dronegate/client/wheatley"
	"dronegate/config"
	"dronegate/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	log.Printf("configuration loaded: %v", cfg)

	port := cfg.Port
	if port == 0 {
		port, err = askPort(os.Stdin, os.Stdout)
		if err != nil {
			log.Fatalf("read port: %v", err)
		}
	}

	backend := wheatley.New(cfg.Wheatley.BaseURL, cfg.Wheatley.Username, cfg.Wheatley.Password)
	srv := server.New(cfg, backend)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: srv.Router(),
	}

	go func() {
		log.Printf("WebSocket server listening on ws://localhost:%d", port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigc:
		srv.Shutdown()
	case <-srv.Done():
		// a QUIT command already ran the shutdown
	}

	log.Printf("Server shutting down.")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}

// askPort prompts until it reads a port in the registered range.
func askPort(in io.Reader, out io.Writer) (int, error) {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprintf(out, "Enter port (%d-%d): ", config.MinPort, config.MaxPort)
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return 0, err
			}
			return 0, io.EOF
		}
		port, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
		if err == nil && port >= config.MinPort && port <= config.MaxPort {
			return port, nil
		}
		fmt.Fprintln(out, "Invalid port. Try again.")
	}
}
