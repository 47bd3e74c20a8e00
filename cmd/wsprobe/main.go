// Command wsprobe logs in to a runtime gateway, fetches a WebSocket token and
// prints every frame published under the given topics as one JSON line.
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
	"sync"
	"syscall"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/mattn/go-isatty"

	"webdsl/internal/logging"
	"webdsl/pkg/client"
	"webdsl/pkg/wsclient"
)

// topicList collects repeated -topic flags; a comma separated value adds several.
type topicList []string

func (t *topicList) String() string { return strings.Join(*t, ",") }

func (t *topicList) Set(v string) error {
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			*t = append(*t, s)
		}
	}
	return nil
}

type options struct {
	apiURL     string
	wsURL      string
	username   string
	password   string
	topics     topicList
	retries    int
	retryDelay time.Duration
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("wsprobe", flag.ContinueOnError)
	fs.StringVar(&o.apiURL, "api", "http://localhost:8080", "gateway base URL")
	fs.StringVar(&o.wsURL, "ws", "ws://localhost:8765/", "WebSocket URL")
	fs.StringVar(&o.username, "user", "", "login user; empty connects without a token")
	fs.StringVar(&o.password, "password", os.Getenv("WSPROBE_PASSWORD"), "login password (prompted when empty on a terminal)")
	fs.Var(&o.topics, "topic", "topic to print, repeatable")
	fs.IntVar(&o.retries, "retries", wsclient.DefaultMaxRetries, "failed connection attempts before giving up, negative allows a single attempt")
	fs.DurationVar(&o.retryDelay, "retry-delay", wsclient.DefaultRetryDelay, "delay between reconnects")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if len(o.topics) == 0 {
		return o, errors.New("at least one -topic is required")
	}
	return o, nil
}

// resolvePassword prompts for the password when it is missing and stdin is a
// terminal.
func resolvePassword(o *options, interactive bool, ask func(string) (string, error)) error {
	if o.username == "" || o.password != "" {
		return nil
	}
	if !interactive {
		return errors.New("password required: set -password or WSPROBE_PASSWORD")
	}
	pw, err := ask(fmt.Sprintf("Password for %s:", o.username))
	if err != nil {
		return err
	}
	o.password = pw
	return nil
}

func askPassword(msg string) (string, error) {
	var out string
	err := survey.AskOne(&survey.Password{Message: msg}, &out, survey.WithValidator(survey.Required))
	return out, err
}

// printer writes frames as {"topic":..., "payload":...} lines.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) listener(topic string) wsclient.Listener {
	return func(payload json.RawMessage) {
		b, err := json.Marshal(struct {
			Topic   string          `json:"topic"`
			Payload json.RawMessage `json:"payload"`
		}{topic, payload})
		if err != nil {
			return
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		fmt.Fprintln(p.w, string(b))
	}
}

func run(ctx context.Context, o options, out io.Writer, log *logging.Logger) error {
	var tokens wsclient.TokenSource
	if o.username != "" {
		c, err := client.New(client.Options{BaseURL: o.apiURL, Timeout: 10 * time.Second, Logger: log})
		if err != nil {
			return err
		}
		if _, err := c.Login(ctx, o.username, o.password); err != nil {
			return fmt.Errorf("login: %w", err)
		}
		defer func() {
			lctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = c.Logout(lctx)
		}()
		tokens = c.TokenSource()
	}

	ws := wsclient.New(wsclient.Options{
		URL:          o.wsURL,
		Token:        tokens,
		RequireToken: tokens != nil,
		MaxRetries:   o.retries,
		RetryDelay:   o.retryDelay,
		Logger:       log,
	})
	p := &printer{w: out}
	for _, t := range o.topics {
		ws.Subscribe(t, p.listener(t))
	}

	err := ws.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func main() {
	log := logging.New(os.Stderr, time.Local).With("wsprobe")

	o, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	if err := resolvePassword(&o, interactive, askPassword); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, os.Stdout, log); err != nil {
		log.Error("probe_failed", err, nil)
		os.Exit(1)
	}
}
