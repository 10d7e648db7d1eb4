// Command eventtail follows the security event topic and prints one line
// per event. It is an operator tool for watching bans and denials live.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/twmb/franz-go/pkg/kgo"

	"gatekeeper/internal/audit"
	"gatekeeper/internal/platform/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "eventtail: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	defaults, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("eventtail", flag.ContinueOnError)
	brokers := fs.String("brokers", defaults.Kafka.Brokers, "Comma-separated seed brokers")
	topic := fs.String("topic", defaults.Kafka.Topic, "Security event topic")
	action := fs.String("action", "", "Only print events with this action")
	fromStart := fs.Bool("from-start", false, "Replay the topic from the earliest offset")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *brokers == "" {
		return errors.New("no brokers: set KAFKA_BROKERS or -brokers")
	}

	offset := kgo.NewOffset().AtEnd()
	if *fromStart {
		offset = kgo.NewOffset().AtStart()
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(strings.Split(*brokers, ",")...),
		kgo.ConsumeTopics(*topic),
		kgo.ConsumeResetOffset(offset),
	)
	if err != nil {
		return fmt.Errorf("create kafka client: %w", err)
	}
	defer client.Close()

	for {
		fetches := client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(t string, p int32, err error) {
			fmt.Fprintf(os.Stderr, "eventtail: fetch %s[%d]: %v\n", t, p, err)
		})
		fetches.EachRecord(func(rec *kgo.Record) {
			var e audit.Event
			if err := json.Unmarshal(rec.Value, &e); err != nil {
				fmt.Fprintf(os.Stderr, "eventtail: skip offset %d: %v\n", rec.Offset, err)
				return
			}
			if *action != "" && string(e.Action) != *action {
				return
			}
			fmt.Fprintln(out, format(e))
		})
	}
}

func format(e audit.Event) string {
	line := fmt.Sprintf("%s %-20s identity=%s path=%s", e.Timestamp.UTC().Format("2006-01-02T15:04:05Z"), e.Action, e.Identity, e.Path)
	if e.Reason != "" {
		line += " reason=" + e.Reason
	}
	if e.Client != "" {
		line += fmt.Sprintf(" client=%q", e.Client)
	}
	return line
}
