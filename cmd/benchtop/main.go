package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	yml "gopkg.in/yaml.v2"

	"github.com/converter-bench/benchtop/bench"
	"github.com/converter-bench/benchtop/config"
	"github.com/converter-bench/benchtop/httpapi"
	"github.com/converter-bench/benchtop/sequence"
	"github.com/converter-bench/benchtop/session"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like; json and yaml both work
	ConfigFileName = "benchtop.yml"
)

func root() {
	str := `benchtop drives the DC/DC converter test bench and exposes an HTTP
interface to it.  This enables a server-client architecture: panels and
scripts can use the excellent HTTP libraries of any programming language.

Usage:
	benchtop <command> [configfile]

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `benchtop is configured via its config file (yaml or json).

Keys:
	addr             HTTP listen address, default :8000
	log_level        logrus level name, default info
	oscilloscope_ip  default connect target for the scope
	power_supply_ip  default connect target for the supply
	workbook         master spreadsheet sessions append to
	transcript_dir   directory for flat text transcripts
	limits:
	  scope_amplitude_v  interlock ceiling, default 20
	  supply_voltage_v   interlock ceiling, default 32

A missing config file is not an error; the server starts with defaults
and reports the absence.  Connecting with "simulated": true rehearses a
run with no hardware attached.`
	fmt.Println(str)
}

func mkconf() {
	f, err := os.Create(ConfigFileName)
	if err != nil {
		logrus.Fatal(err)
	}
	defer f.Close()
	if err := yml.NewEncoder(f).Encode(config.Default()); err != nil {
		logrus.Fatal(err)
	}
}

func printconf(path string) {
	cfg, _, err := config.Load(path)
	if err != nil {
		logrus.Fatal(err)
	}
	if err := yml.NewEncoder(os.Stdout).Encode(cfg); err != nil {
		logrus.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("benchtop version %v\n", Version)
}

func run(path string) {
	cfg, found, err := config.Load(path)
	if err != nil {
		logrus.Fatalf("error loading config: %v", err)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	if !found {
		log.Warnf("config file %s not found, using defaults", path)
	}

	sessionLog := session.NewLog()
	sessionLog.Append("System Initialized. Configuration loaded.")
	manager := bench.NewManager(sessionLog)
	controller := sequence.NewController(cfg.Policy(), manager, sessionLog)
	srv := &httpapi.Server{
		Manager:    manager,
		Controller: controller,
		Log:        sessionLog,
		Cfg:        cfg,
		Logger:     log,
	}

	log.Infof("benchtop v%s listening at %s", Version, cfg.Addr)
	log.Fatal(http.ListenAndServe(cfg.Addr, srv.Routes()))
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	path := ConfigFileName
	if len(args) > 2 {
		path = args[2]
	}
	switch strings.ToLower(args[1]) {
	case "help":
		help()
	case "mkconf":
		mkconf()
	case "conf":
		printconf(path)
	case "run":
		run(path)
	case "version":
		pversion()
	default:
		logrus.Fatal("unknown command")
	}
}
