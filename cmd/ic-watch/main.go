// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ic-watch monitors instruments through an ic-ctl server and sends
// mail alerts when they report errors or become unreachable.
//
// Usage: ic-watch [OPTIONS] CONFIG.yaml
//
// Example of configuration file:
//
//	ctl: localhost:8877
//	period: 30s
//	max-alerts: 5
//	mail:
//	  server: smtp.example.org
//	  port: 587
//	  targets: [shifter@example.org]
//	instruments:
//	  - name: ptr-1
//	    addr: 192.168.0.10
//
// The mail credentials are read from the MAIL_USERNAME and MAIL_PASSWORD
// environment variables.
package main // import "github.com/go-lpc/ionitof/cmd/ic-watch"

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-lpc/ionitof/ctl"
	"github.com/go-lpc/ionitof/icapi"
	"golang.org/x/sync/errgroup"
	mail "gopkg.in/gomail.v2"
	"gopkg.in/yaml.v3"
)

func main() {
	log.SetPrefix("ic-watch: ")
	log.SetFlags(0)

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		log.Fatalf("missing configuration file")
	}

	cfg, err := loadConfig(flag.Arg(0))
	if err != nil {
		log.Fatalf("%+v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	cli, err := ctl.Dial(cfg.Ctl)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	defer cli.Close()

	w := newWatcher(cfg, cli, mailer(cfg.Mail))
	err = w.run(ctx)
	if err != nil && ctx.Err() == nil {
		log.Fatalf("%+v", err)
	}
}

// Config is the configuration of ic-watch.
type Config struct {
	Ctl         string        `yaml:"ctl"`
	Period      time.Duration `yaml:"period"`
	MaxAlerts   int           `yaml:"max-alerts"`
	Mail        Mail          `yaml:"mail"`
	Instruments []Instrument  `yaml:"instruments"`
}

// Mail describes how alerts are sent.
type Mail struct {
	Server  string   `yaml:"server"`
	Port    int      `yaml:"port"`
	Targets []string `yaml:"targets"`
}

// Instrument is a monitored instrument.
type Instrument struct {
	Name string `yaml:"name"`
	Addr string `yaml:"addr"`
}

func loadConfig(fname string) (Config, error) {
	f, err := os.Open(fname)
	if err != nil {
		return Config{}, fmt.Errorf("could not open configuration file: %w", err)
	}
	defer f.Close()
	return parseConfig(f)
}

func parseConfig(r io.Reader) (Config, error) {
	cfg := Config{
		Ctl:       "localhost:8877",
		Period:    30 * time.Second,
		MaxAlerts: 5,
	}
	err := yaml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return cfg, fmt.Errorf("could not decode configuration: %w", err)
	}
	if len(cfg.Instruments) == 0 {
		return cfg, fmt.Errorf("no instrument to watch")
	}
	for i, inst := range cfg.Instruments {
		if inst.Addr == "" {
			return cfg, fmt.Errorf("instrument #%d has no address", i)
		}
		if inst.Name == "" {
			cfg.Instruments[i].Name = inst.Addr
		}
	}
	return cfg, nil
}

type caller interface {
	Call(name, addr string, args, reply any) error
}

type watcher struct {
	cfg  Config
	cli  caller
	send func(subject, body string) error

	mu     sync.Mutex
	alerts map[string]int     // number of alerts sent, per alert key
	codes  map[string][]int32 // last error codes, per instrument
}

func newWatcher(cfg Config, cli caller, send func(subject, body string) error) *watcher {
	return &watcher{
		cfg:    cfg,
		cli:    cli,
		send:   send,
		alerts: make(map[string]int),
		codes:  make(map[string][]int32),
	}
}

func (w *watcher) run(ctx context.Context) error {
	var grp errgroup.Group
	for _, inst := range w.cfg.Instruments {
		grp.Go(func() error {
			tck := time.NewTicker(w.cfg.Period)
			defer tck.Stop()
			for {
				w.check(inst)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-tck.C:
				}
			}
		})
	}
	return grp.Wait()
}

func (w *watcher) check(inst Instrument) {
	var st ctl.StateReply
	err := w.cli.Call("state", inst.Addr, nil, &st)
	if err != nil {
		w.alert(inst, "unreachable", fmt.Sprintf("could not get state: %+v", err))
		return
	}
	switch st.Server {
	case icapi.StateOK, icapi.StateBusy:
	default:
		w.alert(inst, "state-"+st.ServerName, fmt.Sprintf(
			"server state: %s\nmeasure state: %s", st.ServerName, st.MeasureName,
		))
	}

	var errs ctl.ErrorsReply
	err = w.cli.Call("errors", inst.Addr, nil, &errs)
	if err != nil {
		w.alert(inst, "unreachable", fmt.Sprintf("could not get errors: %+v", err))
		return
	}

	w.mu.Lock()
	prev := w.codes[inst.Addr]
	w.codes[inst.Addr] = errs.Codes
	w.mu.Unlock()

	fresh := newCodes(prev, errs.Codes)
	if len(fresh) == 0 {
		return
	}
	body := new(strings.Builder)
	for _, code := range fresh {
		fmt.Fprintf(body, "error code: %d\n", code)
	}
	for _, info := range errs.Infos {
		fmt.Fprintf(body, "info: %s\n", info)
	}
	w.alert(inst, fmt.Sprintf("errors-%v", fresh), body.String())
}

func newCodes(prev, cur []int32) []int32 {
	seen := make(map[int32]bool, len(prev))
	for _, code := range prev {
		seen[code] = true
	}
	var out []int32
	for _, code := range cur {
		if !seen[code] {
			out = append(out, code)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (w *watcher) alert(inst Instrument, key, body string) {
	key = inst.Addr + ":" + key

	w.mu.Lock()
	w.alerts[key]++
	n := w.alerts[key]
	w.mu.Unlock()

	log.Printf("alert for %s (%s): %s", inst.Name, inst.Addr, body)
	if n > w.cfg.MaxAlerts {
		return
	}

	err := w.send(
		fmt.Sprintf("[ic-watch] %s alert (%d/%d)", inst.Name, n, w.cfg.MaxAlerts),
		fmt.Sprintf("instrument: %s\naddr: %s\n\n%s", inst.Name, inst.Addr, body),
	)
	if err != nil {
		log.Printf("could not send alert: %+v", err)
	}
}

var (
	alertMailUsr = os.Getenv("MAIL_USERNAME")
	alertMailPwd = os.Getenv("MAIL_PASSWORD")
)

func mailer(cfg Mail) func(subject, body string) error {
	return func(subject, body string) error {
		if alertMailUsr == "" || alertMailPwd == "" ||
			cfg.Server == "" || cfg.Port == 0 || len(cfg.Targets) == 0 {
			return fmt.Errorf("could not send mail alert: missing credentials")
		}

		msg := mail.NewMessage()
		msg.SetHeader("From", alertMailUsr)
		msg.SetHeader("Bcc", cfg.Targets...)
		msg.SetHeader("Subject", subject)
		msg.SetBody("text/plain", body)

		dial := mail.NewDialer(cfg.Server, cfg.Port, alertMailUsr, alertMailPwd)
		dial.TLSConfig = &tls.Config{
			ServerName: cfg.Server,
		}
		return dial.DialAndSend(msg)
	}
}
