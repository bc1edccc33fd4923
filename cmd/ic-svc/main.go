// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ic-svc serves the control protocol for a set of instruments,
// backed by the in-memory instrument library.
//
// Usage: ic-svc [OPTIONS] ADDR1 [ADDR2 [ADDR3 ...]]
package main // import "github.com/go-lpc/ionitof/cmd/ic-svc"

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-lpc/ionitof/bridge"
	"github.com/go-lpc/ionitof/ctl"
	"github.com/go-lpc/ionitof/internal/sim"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sbinet/pmon"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		addr    = flag.String("addr", ":8877", "ic-ctl [addr]:port")
		metrics = flag.String("metrics", ":9100", "prometheus [addr]:port (empty to disable)")
		period  = flag.Duration("period", 1*time.Second, "acquisition cycle period")
		fileLen = flag.Int("file-len", 3600, "number of cycles per data file")
		timeout = flag.Duration("timeout", 1*time.Second, "default timeout of blocking calls")

		doMon  = flag.Bool("pmon", false, "enable pmon monitoring")
		doFreq = flag.Duration("freq", 1*time.Second, "pmon frequency")
	)

	log.SetPrefix("ic-svc: ")
	log.SetFlags(0)

	flag.Parse()

	insts := flag.Args()
	if len(insts) == 0 {
		insts = []string{"localhost"}
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

	if *doMon {
		p, err := pmon.Monitor(os.Getpid())
		if err != nil {
			log.Fatalf("could not start monitoring: %+v", err)
		}
		p.W = os.Stderr
		p.Freq = *doFreq
		go func() {
			err := p.Run()
			if err != nil {
				log.Printf("could not run pmon: %+v", err)
			}
		}()
		defer func() { _ = p.Kill() }()
	}

	err := run(ctx, *addr, *metrics, insts, *period, *fileLen, *timeout)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(ctx context.Context, addr, metrics string, insts []string, period time.Duration, fileLen int, timeout time.Duration) error {
	lib := sim.New(sim.WithLogger(log.New(os.Stdout, "ic-sim: ", 0)))
	for _, inst := range insts {
		lib.Add(inst, sim.NewInstrument())
	}

	cli := bridge.New(lib, bridge.WithTimeout(timeout))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := ctl.NewServer(addr, cli, ctl.WithRegisterer(reg))
	if err != nil {
		return fmt.Errorf("could not create ic-ctl server: %w", err)
	}

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		<-ctx.Done()
		return srv.Close()
	})
	grp.Go(func() error {
		log.Printf("serving ic-ctl on %q...", srv.Addr())
		err := srv.Run()
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	for _, inst := range insts {
		grp.Go(func() error {
			return lib.Run(ctx, inst, period, fileLen)
		})
	}

	if metrics != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		hsrv := &http.Server{Addr: metrics, Handler: mux}
		grp.Go(func() error {
			<-ctx.Done()
			return hsrv.Close()
		})
		grp.Go(func() error {
			log.Printf("serving metrics on %q...", metrics)
			err := hsrv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}

	err = grp.Wait()
	if err != nil {
		return fmt.Errorf("could not run ic-svc: %w", err)
	}
	return nil
}
