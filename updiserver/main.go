package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/BertoldVdb/go-misc/httplog"
	"github.com/BertoldVdb/updiprog/updi"
	"github.com/BertoldVdb/updiprog/updi/updiopen"
	"github.com/BertoldVdb/updiprog/updiserver/config"
	"github.com/BertoldVdb/updiprog/updiserver/discovery"
	"github.com/BertoldVdb/updiprog/updiserver/httpaddhost"
)

func main() {
	configFile := flag.String("config", "", "YAML configuration file")
	apiKey := flag.String("apikey", "", "API key to use")
	address := flag.String("addr", config.DefaultListen, "Address to listen on")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	lineBreak := flag.Bool("linebreak", false, "Use the UART break condition instead of the slow baud break")
	mdns := flag.Bool("mdns", false, "Announce the server using mDNS")
	mdnsIface := flag.String("mdns-iface", "", "Interface to announce on (default all)")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name")

	flag.Parse()

	cfg := &config.Config{
		Listen: *address,
		APIKey: *apiKey,
		MDNS: config.MDNSConfig{
			Enabled:   *mdns,
			Instance:  *mdnsName,
			Interface: *mdnsIface,
		},
	}

	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			log.Fatalln("Failed to load config:", err)
		}
		applyFlagOverrides(flag.CommandLine, cfg)
	}

	for i, m := range flag.Args() {
		t := parseTargetArg(m, len(cfg.Target)+i)
		t.LineBreak = *lineBreak
		cfg.Target = append(cfg.Target, t)
	}

	if err := config.Validate(cfg); err != nil {
		log.Fatalln("Invalid configuration:", err)
	}

	if cfg.APIKey != "" {
		user, pass := authCalculate(cfg.APIKey, "example", time.Now().AddDate(10, 0, 0))
		log.Printf("Password for username '%s': %s", user, pass)
	}

	closeChan := make(chan os.Signal, 1)
	signal.Notify(closeChan, os.Interrupt)

	logOut := log.Printf
	if !*verbose {
		logOut = nil
	}

	var targets []mountedTarget
	for _, t := range cfg.Target {
		log.Printf("Initializing target '%s' at '%s':", t.Name, t.OpenPath())

		session, err := updiopen.Open(t.OpenPath(), logOut, updi.WithLineBreak(t.LineBreak))
		if err != nil {
			log.Printf(" -> Failed to open: %v", err)
			continue
		}
		defer session.Close()

		if sib, err := session.GetSIB(); err == nil {
			log.Println(" -> Target ready:", sib)
		} else {
			log.Println(" -> Target ready, SIB unavailable:", err)
		}

		targets = append(targets, mountedTarget{name: t.Name, target: session})
	}

	if len(targets) == 0 {
		log.Println("No targets available")
		return
	}

	mux, err := buildMux(targets, log.Printf)
	if err != nil {
		log.Println(err)
		return
	}

	logger := httplog.HTTPLog{
		LogOut:     log.Printf,
		ServerName: "UPDIProg",
	}

	server := &http.Server{
		Handler: logger.GetHandler(authProcess(mux.ServeHTTP, cfg.APIKey, time.Now)),

		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
		ReadHeaderTimeout: 30 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		log.Println("Failed to listen:", err)
		return
	}

	if cfg.MDNS.Enabled {
		names := make([]string, len(targets))
		for i, m := range targets {
			names[i] = m.name
		}

		port := listener.Addr().(*net.TCPAddr).Port
		adv := discovery.NewAdvertiser(cfg.MDNS.Instance, port, names, cfg.APIKey != "")
		if err := adv.Start(cfg.MDNS.Interface, 10*time.Second); err != nil {
			log.Println("mDNS announcement failed:", err)
		} else {
			log.Println("Announcing on mDNS as", strconv.Quote(adv.CurrentAddress()))
			defer adv.Stop()
		}
	}

	go func() {
		log.Printf("Starting server on: http://%s", listener.Addr())
		log.Println("Server stopped:", server.Serve(httpaddhost.Wrap(listener, "updiserver")))

		select {
		case closeChan <- nil:
		default:
		}
	}()

	<-closeChan
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	server.Shutdown(ctx)
	cancel()
}
