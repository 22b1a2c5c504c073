package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"github.com/torosent/tcpcrank/internal/frame"
)

type serverMode string

const (
	modeAck   serverMode = "ack"
	modeEcho  serverMode = "echo"
	modeClose serverMode = "close"
)

func main() {
	mode := flag.String("mode", string(modeAck), "Server mode: ack, echo, close")
	port := flag.Int("port", 1234, "Listening port")
	latency := flag.Duration("latency", 0, "Delay before each response")
	flag.Parse()

	if *port <= 0 {
		log.Fatalf("port must be > 0")
	}

	switch serverMode(*mode) {
	case modeAck, modeEcho, modeClose:
	default:
		log.Fatalf("unknown mode %q", *mode)
	}

	log.Fatal(runServer(serverMode(*mode), *port, *latency))
}

func runServer(mode serverMode, port int, latency time.Duration) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	log.Printf("framed %s server listening on %s", mode, ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go serve(conn, mode, latency)
	}
}

func serve(conn net.Conn, mode serverMode, latency time.Duration) {
	defer conn.Close()
	if mode == modeClose {
		return
	}
	for {
		payload, err := frame.Read(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("read from %s: %v", conn.RemoteAddr(), err)
			}
			return
		}
		if latency > 0 {
			time.Sleep(latency)
		}
		reply := []byte("ack")
		if mode == modeEcho {
			reply = payload
		}
		if _, err := conn.Write(reply); err != nil {
			log.Printf("write to %s: %v", conn.RemoteAddr(), err)
			return
		}
	}
}
