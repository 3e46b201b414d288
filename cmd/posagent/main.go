// Command posagent is the till-side companion of the backend. It keeps sales
// captured without connectivity in a local queue and replays them in order.
//
//	posagent enqueue [-file sale.json]   queue one sale (stdin by default)
//	posagent sync                        replay the queue once
//	posagent status                      show queued and rejected sales
//	posagent run                         replay on a timer and whenever the
//	                                     server comes back, until interrupted
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"goodsale/backend/internal/config"
	"goodsale/backend/internal/domain"
	"goodsale/backend/internal/offline"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("ignoring .env: %v", err)
	}
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config.LoadAgent(), os.Args[1], os.Args[2:], os.Stdin, os.Stdout); err != nil {
		log.Fatalf("posagent %s: %v", os.Args[1], err)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: posagent <enqueue|sync|status|run> [flags]")
}

type agent struct {
	cfg    config.AgentConfig
	client *offline.Client
	queue  *offline.Queue
	syncer *offline.Syncer
}

func openAgent(cfg config.AgentConfig) (*agent, error) {
	queue, err := offline.OpenQueue(cfg.QueuePath, cfg.DeviceID)
	if err != nil {
		return nil, err
	}
	client := offline.NewClient(cfg.ServerURL, &http.Client{Timeout: cfg.SyncTimeout}, cfg.Username, cfg.Password)
	return &agent{cfg: cfg, client: client, queue: queue, syncer: offline.NewSyncer(queue, client, cfg.SyncTimeout)}, nil
}

func run(ctx context.Context, cfg config.AgentConfig, command string, args []string, stdin io.Reader, stdout io.Writer) error {
	switch command {
	case "enqueue", "sync", "status", "run":
	default:
		usage(stdout)
		return fmt.Errorf("unknown command %q", command)
	}

	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	file := fs.String("file", "", "sale JSON to enqueue (stdin when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (command == "sync" || command == "run") && (cfg.Username == "" || cfg.Password == "") {
		return errors.New("AGENT_USERNAME and AGENT_PASSWORD are required to reach the server")
	}

	a, err := openAgent(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.queue.Close(); err != nil {
			log.Printf("[sync] close queue: %v", err)
		}
	}()

	switch command {
	case "enqueue":
		return a.enqueue(*file, stdin, stdout)
	case "sync":
		report, err := a.syncer.Sync(ctx)
		if encodeErr := writeOutput(stdout, report); encodeErr != nil {
			return encodeErr
		}
		return err
	case "status":
		return a.status(stdout)
	default:
		log.Printf("[sync] device %s replaying to %s every %s", cfg.DeviceID, cfg.ServerURL, cfg.SyncInterval)
		a.syncer.Run(ctx, cfg.SyncInterval, offline.WatchConnectivity(ctx, a.client, cfg.PingInterval))
		return nil
	}
}

func (a *agent) enqueue(path string, stdin io.Reader, stdout io.Writer) error {
	src := stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}

	var draft domain.SaleDraft
	dec := json.NewDecoder(src)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&draft); err != nil {
		return fmt.Errorf("decode sale: %w", err)
	}
	if len(draft.Items) == 0 {
		return errors.New("sale has no items")
	}
	if !draft.PaymentMethod.Valid() {
		return fmt.Errorf("unknown payment method %q", draft.PaymentMethod)
	}

	entry, err := a.queue.Enqueue(draft)
	if err != nil {
		return err
	}
	return writeOutput(stdout, entry)
}

func (a *agent) status(stdout io.Writer) error {
	pending, err := a.queue.Pending()
	if err != nil {
		return err
	}
	rejected, err := a.queue.Rejected()
	if err != nil {
		return err
	}
	return writeOutput(stdout, map[string]any{
		"device_id": a.cfg.DeviceID,
		"pending":   pending,
		"rejected":  rejected,
	})
}

func writeOutput(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
