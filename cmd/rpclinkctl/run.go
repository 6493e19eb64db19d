package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/danmuck/rpclink/internal/admin"
	"github.com/danmuck/rpclink/internal/config"
	"github.com/danmuck/rpclink/internal/protocol/frame"
	"github.com/danmuck/rpclink/internal/protocol/message"
	"github.com/danmuck/rpclink/internal/protocol/queue"
	"github.com/danmuck/rpclink/internal/transport"
	"github.com/rs/zerolog/log"
)

const dialTimeout = 5 * time.Second

// run bridges one connection to line-delimited JSON-RPC on in/out.
func run(ctx context.Context, cfg config.LinkConfig, in io.Reader, out io.Writer) error {
	conn, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info().Str("link", cfg.Name).Str("mode", cfg.Mode).Str("remote", conn.RemoteAddr().String()).Msg("connected")

	tr, err := transport.Start(conn, queue.NewClassified(), transport.NewFlags(), transport.WithName(cfg.Name))
	if err != nil {
		return err
	}

	adminCtx, cancelAdmin := context.WithCancel(ctx)
	defer cancelAdmin()
	if cfg.AdminAddr != "" {
		srv := admin.New(tr)
		go func() {
			if err := srv.ListenAndServe(adminCtx, cfg.AdminAddr); err != nil {
				log.Error().Err(err).Str("addr", cfg.AdminAddr).Msg("admin server failed")
			}
		}()
	}

	printed := make(chan error, 1)
	go func() {
		printed <- printInbound(tr, out)
	}()

	forwarded := make(chan error, 1)
	go func() {
		forwarded <- forward(ctx, in, tr.Sender())
	}()

	var fwdErr error
	select {
	case fwdErr = <-forwarded:
	case <-ctx.Done():
	case <-tr.ReaderStopD():
		log.Info().Str("link", cfg.Name).Msg("peer stream ended")
	}

	joinErr := drain(tr, conn, cfg.DrainTimeout)
	printErr := <-printed
	return errors.Join(fwdErr, joinErr, printErr)
}

func connect(ctx context.Context, cfg config.LinkConfig) (net.Conn, error) {
	switch cfg.Mode {
	case config.ModeListen:
		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, "tcp", cfg.Address)
		if err != nil {
			return nil, err
		}
		defer ln.Close()
		stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
		defer stop()
		log.Info().Str("addr", ln.Addr().String()).Msg("waiting for peer")
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		return conn, nil
	default:
		dialer := net.Dialer{Timeout: dialTimeout}
		return dialer.DialContext(ctx, "tcp", cfg.Address)
	}
}

// forward sends each non-empty input line as one message. Lines that do not
// decode are logged and skipped.
func forward(ctx context.Context, in io.Reader, sender *transport.Sender) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), frame.DefaultLimits().MaxPayloadBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		msg, err := message.Decode([]byte(line))
		if err != nil {
			log.Warn().Err(err).Msg("skipping input line")
			continue
		}
		if err := sender.SendContext(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
	return scanner.Err()
}

// drain closes the sender and waits for the writer to flush what it already
// accepted. It then asks the reader to exit and closes the connection if the
// peer stays idle past timeout.
func drain(tr *transport.Transport, conn io.Closer, timeout time.Duration) error {
	tr.Sender().Close()
	<-tr.WriterStopD()
	tr.Flags().SetReaderExit()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-tr.StopD():
	case <-timer.C:
		log.Warn().Str("link", tr.Name()).Dur("timeout", timeout).Msg("reader idle past drain timeout, closing connection")
		_ = conn.Close()
	}
	return tr.Join()
}

// printInbound writes queued inbound messages to out as JSON lines until the
// transport stops.
func printInbound(tr *transport.Transport, out io.Writer) error {
	q := tr.Queues()
	w := bufio.NewWriter(out)
	flush := func() error {
		for _, kind := range message.Kinds() {
			for {
				msg, ok := q.PopFront(kind)
				if !ok {
					break
				}
				payload, err := message.Encode(msg)
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintf(w, "%s\n", payload); err != nil {
					return err
				}
			}
		}
		return w.Flush()
	}

	for {
		select {
		case <-q.Requests.Ready():
		case <-q.Notifications.Ready():
		case <-q.Responses.Ready():
		case <-tr.StopD():
			return flush()
		}
		if err := flush(); err != nil {
			return err
		}
	}
}
