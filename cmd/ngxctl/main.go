// ngxctl talks to a controller directly over the serial adapter, without the
// server. Useful on the bench and for scripted flashing.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"go.uber.org/zap"

	"github.com/KevinKickass/ngxconfig/internal/auth"
	"github.com/KevinKickass/ngxconfig/internal/config"
)

// adminPasswordEnv holds the plain Admin password for -mode admin.
const adminPasswordEnv = "NGX_ADMIN_PASSWORD"

type globalFlags struct {
	configPath string
	port       string
	mode       string
	simulate   bool
	verbose    bool
}

type command struct {
	name  string
	usage string
	run   func(g *globalFlags, args []string) error
}

var commands = []command{
	{"ports", "list serial ports", runPorts},
	{"presets", "list configuration presets", runPresets},
	{"read", "read the device configuration into a JSON file", runRead},
	{"write", "write a JSON file or preset to the device", runWrite},
	{"reset", "restore factory defaults on the device", runReset},
	{"export", "export the cases of a configuration as CSV", runExport},
	{"adapter", "configure the GridConnect adapter for 250 kbit/s", runAdapter},
	{"hash-password", "print an argon2id hash for the Admin password", runHashPassword},
}

func main() {
	g := &globalFlags{}
	flag.StringVar(&g.configPath, "config", "", "path to the YAML configuration (optional)")
	flag.StringVar(&g.port, "port", "", "serial port, overrides serial.port")
	flag.StringVar(&g.mode, "mode", "advanced", "view mode: basic, advanced or admin")
	flag.BoolVar(&g.simulate, "simulate", false, "use the built-in controller simulator")
	flag.BoolVar(&g.verbose, "v", false, "verbose logging")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	name, args := flag.Arg(0), flag.Args()[1:]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		if err := c.run(g, args); err != nil {
			pterm.Error.Println(err)
			os.Exit(1)
		}
		return
	}

	pterm.Error.Printf("Unknown command: %s\n", name)
	usage()
	os.Exit(2)
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: ngxctl [flags] <command> [args]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-14s %s\n", c.name, c.usage)
	}
	fmt.Fprintf(os.Stderr, "\nFlags:\n")
	flag.PrintDefaults()
}

func (g *globalFlags) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	if g.port != "" {
		cfg.Serial.Port = g.port
	}
	if g.simulate {
		cfg.Serial.Simulate = true
	}

	// Ausgabe läuft über pterm, Logs nur auf Wunsch
	logger := zap.NewNop()
	if g.verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			return nil, nil, err
		}
	}
	return cfg, logger, nil
}

// require checks that the selected view mode grants perm.
func (g *globalFlags) require(cfg *config.Config, logger *zap.Logger, perm auth.Permission) error {
	mode, err := auth.ParseViewMode(g.mode)
	if err != nil {
		return err
	}

	state := auth.NewAuthService(cfg.Auth, logger).NewModeState()
	if err := state.Set(mode, os.Getenv(adminPasswordEnv)); err != nil {
		return fmt.Errorf("%s mode: %w", mode, err)
	}
	if !state.Current().Allows(perm) {
		return fmt.Errorf("%s mode does not allow %s", state.Current(), perm)
	}
	return nil
}
