// Command ptzmixer is the CCTV PTZ control transcoder/mixer: it reads a
// directive file (spec §6), builds the dispatch graph it describes, and
// runs the epoll event loop until the config file is rewritten, at which
// point it rebuilds from scratch, following original_source/main.c's
// outer "while(true) { run_protozoa(); }" daemon loop.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/spf13/viper"

	"github.com/boxofrox/ptzmixer/internal/config"
	"github.com/boxofrox/ptzmixer/internal/deferred"
	"github.com/boxofrox/ptzmixer/internal/eventloop"
	"github.com/boxofrox/ptzmixer/internal/ptzlog"
)

var (
	VERSION    = "dev"
	BUILD_DATE = "unknown"
)

const banner = "ptzmixer: CCTV PTZ control transcoder/mixer"

func usage() string {
	return `ptzmixer - CCTV PTZ control transcoder/mixer

Usage:
  ptzmixer [-c FILE] [--debug] [--packet] [--stats] [--daemonize]
  ptzmixer -n [-c FILE]
  ptzmixer -h
  ptzmixer -V

Options:
  -c, --config FILE   Directive file to read (default /etc/ptzmixer.conf, or $PROTOZOA_CONFIG).
  -n, --dryrun        Parse and verify the configuration, then exit.
  --debug             Log a summary of the loaded configuration.
  --packet            Log every decoded neutral packet before dispatch.
  --stats             Log periodic packet counters.
  --daemonize         Detach from the controlling terminal and run in the background.
  -h, --help          Show this help.
  -V, --version       Show version information.
`
}

func version() string {
	return fmt.Sprintf("ptzmixer version %s, build %s\n", VERSION, BUILD_DATE)
}

func main() {
	args, err := docopt.Parse(usage(), nil, true, version(), false)
	if err != nil {
		panic(err)
	}

	viper.SetEnvPrefix("protozoa")
	viper.AutomaticEnv()
	viper.SetDefault("config", "/etc/ptzmixer.conf")
	if v, ok := args["--config"].(string); ok && v != "" {
		viper.Set("config", v)
	}
	configPath := viper.GetString("config")

	debug, _ := args["--debug"].(bool)
	wantPacket, _ := args["--packet"].(bool)
	wantStats, _ := args["--stats"].(bool)
	dryrun, _ := args["--dryrun"].(bool)
	daemonize, _ := args["--daemonize"].(bool)

	log := ptzlog.New(os.Stderr)

	if daemonize {
		if os.Getenv("PTZMIXER_DAEMONIZED") == "" {
			if err := reexecDetached(); err != nil {
				fmt.Fprintf(os.Stderr, "ptzmixer: daemonize failed: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	log.Logf(banner)
	if dryrun {
		if err := verifyConfig(configPath); err != nil {
			log.Logf("config error: %v", err)
			os.Exit(1)
		}
		log.Logf("config OK: %s", configPath)
		return
	}

	signal.Ignore(syscall.SIGHUP)

	for {
		rc := runOnce(configPath, debug, wantPacket, wantStats, log)
		if rc == nil {
			log.Logf("%s modified, reloading", configPath)
			time.Sleep(time.Second)
			continue
		}
		log.Logf("error: %v", rc)
		os.Exit(1)
	}
}

// reexecDetached spawns a copy of this process in a new session (so it
// survives the parent's terminal closing) and exits the foreground
// process, the idiomatic Go stand-in for original_source/main.c's
// daemon(0, 0) call (which this port has no libc equivalent for).
func reexecDetached() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), "PTZMIXER_DAEMONIZED=1")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Start()
}

// verifyConfig mirrors config_verify: parse the directive file and
// confirm it names at least one channel, without building any channel
// or starting the event loop.
func verifyConfig(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	directives, err := config.Scan(f)
	if err != nil {
		return err
	}
	if len(directives) == 0 {
		return fmt.Errorf("no directives in %s", path)
	}
	return nil
}

// runOnce builds one Graph/Loop pair from configPath and runs it until
// error or config reload. A nil
// return means the caller should rebuild and run again.
func runOnce(configPath string, debug, wantPacket, wantStats bool, log ptzlog.Sink) error {
	f, err := os.Open(configPath)
	if err != nil {
		return err
	}
	directives, err := config.Scan(f)
	f.Close()
	if err != nil {
		return err
	}
	if len(directives) == 0 {
		return fmt.Errorf("no directives in %s", configPath)
	}

	dq := deferred.New()
	graph, err := config.Build(directives, dq, log)
	if err != nil {
		return err
	}
	if wantPacket {
		for _, r := range graph.Readers {
			r.LogPackets = true
		}
	}

	onConfig := func(path string) bool {
		err := verifyConfig(path)
		if err != nil {
			log.Logf("config %s rejected: %v", path, err)
			return false
		}
		return true
	}

	loop, err := eventloop.New(graph.Channels, dq, configPath, onConfig, log)
	if err != nil {
		return err
	}
	defer loop.Close()

	if wantStats {
		go reportStats(graph, log)
	}
	if debug {
		log.Logf("loaded %d directive(s), %d channel(s)", len(directives), len(graph.Channels))
	}

	err = loop.Run()
	if err == eventloop.ErrReload {
		return nil
	}
	return err
}

func reportStats(graph *config.Graph, log ptzlog.Sink) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		for _, r := range graph.Readers {
			log.Logf("-- reader %s --", r.Name)
			r.Stats.Display(log)
		}
		for _, w := range graph.Writers {
			log.Logf("-- writer %s --", w.Name)
			w.Stats.Display(log)
		}
	}
}
