package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"relaychat/internal/server"
)

func main() {
	def := server.DefaultConfig()
	addr := flag.String("addr", def.Addr, "TCP address to listen on")
	historyDepth := flag.Int("history-depth", def.HistoryReplayDepth, "number of public messages replayed on entering chat")
	rateCap := flag.Int("rate-cap", def.RateCap, "per-user /send messages allowed per wall-clock hour")
	flag.Parse()

	srv := server.New(server.Config{
		Addr:               *addr,
		HistoryReplayDepth: *historyDepth,
		RateCap:            *rateCap,
	})

	// Graceful shutdown on SIGINT / SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("[server] shutting down…")
		srv.Shutdown()
	}()

	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("[server] stopped: %v", err)
	}
}
