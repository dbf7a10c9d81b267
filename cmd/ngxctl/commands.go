package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"go.uber.org/zap"

	"github.com/KevinKickass/ngxconfig/internal/auth"
	"github.com/KevinKickass/ngxconfig/internal/config"
	"github.com/KevinKickass/ngxconfig/internal/configdata"
	"github.com/KevinKickass/ngxconfig/internal/eeprom"
	"github.com/KevinKickass/ngxconfig/internal/export"
	"github.com/KevinKickass/ngxconfig/internal/presets"
	"github.com/KevinKickass/ngxconfig/internal/transport"
)

func runPorts(g *globalFlags, args []string) error {
	ports, err := transport.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		pterm.Warning.Println("No serial ports found")
		return nil
	}

	data := pterm.TableData{{"Port", "USB", "VID:PID", "Product", "Serial"}}
	for _, p := range ports {
		usb, ids := "", ""
		if p.IsUSB {
			usb = "yes"
			ids = p.VID + ":" + p.PID
		}
		data = append(data, []string{p.Name, usb, ids, p.Product, p.SerialNumber})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runPresets(g *globalFlags, args []string) error {
	cfg, logger, err := g.load()
	if err != nil {
		return err
	}
	catalog, err := presets.LoadCatalog(cfg.Presets.SearchPaths, logger)
	if err != nil {
		return err
	}

	data := pterm.TableData{{"ID", "Name", "Source", "Description"}}
	for _, p := range catalog.List() {
		data = append(data, []string{p.ID, p.Name, p.Source, p.Description})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runRead(g *globalFlags, args []string) error {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	out := fs.String("o", "ngx-config.json", "output file for a full read")
	system := fs.Bool("system", false, "read the system settings only")
	input := fs.Int("input", 0, "read a single input (1-44)")
	fs.Parse(args)

	cfg, logger, err := g.load()
	if err != nil {
		return err
	}
	s, err := openSession(cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()
	stop := s.trackProgress()

	switch {
	case *system:
		rr, err := s.seq.ReadSystemConfig(ctx)
		stop()
		if err != nil {
			return err
		}
		printFailed(rr.Failed)
		sys, rep := eeprom.DecodeSystem(rr.Values)
		printSystem(sys, rep.Firmware)
		return nil

	case *input != 0:
		rr, err := s.seq.ReadInput(ctx, *input)
		stop()
		if err != nil {
			return err
		}
		printFailed(rr.Failed)
		in, rep := eeprom.DecodeInput(rr.Values, *input)
		printReport(rep)

		full := configdata.NewFullConfiguration()
		full.Inputs[*input-1] = in
		return printCases(full)

	default:
		rr, err := s.seq.ReadFullConfiguration(ctx)
		stop()
		if err != nil {
			return err
		}
		printFailed(rr.Failed)
		full, rep := eeprom.DecodeConfiguration(rr.Values)
		printReport(rep)

		if err := configdata.SaveFile(*out, full); err != nil {
			return err
		}
		pterm.Success.Printf("Configuration saved to %s (%s)\n", *out, rr.Duration.Round(time.Millisecond))
		return nil
	}
}

func runWrite(g *globalFlags, args []string) error {
	fs := flag.NewFlagSet("write", flag.ExitOnError)
	file := fs.String("f", "", "configuration JSON file")
	preset := fs.String("preset", "", "preset ID")
	system := fs.Bool("system", false, "write the system settings only")
	fs.Parse(args)

	cfg, logger, err := g.load()
	if err != nil {
		return err
	}
	perm := auth.PermWriteConfig
	if *system {
		perm = auth.PermSystemWrite
	}
	if err := g.require(cfg, logger, perm); err != nil {
		return err
	}
	full, err := loadConfiguration(cfg, logger, *file, *preset)
	if err != nil {
		return err
	}

	s, err := openSession(cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()
	stop := s.trackProgress()

	if *system {
		wr, err := s.seq.WriteSystemConfig(ctx, full.System)
		stop()
		if err != nil {
			return err
		}
		pterm.Success.Printf("System settings written (%d operations)\n", wr.Written)
		return nil
	}

	wr, err := s.seq.WriteConfiguration(ctx, full)
	stop()
	if err != nil {
		return err
	}
	pterm.Success.Printf("Configuration written (%d operations, %s)\n", wr.Written, wr.Duration.Round(time.Millisecond))
	return nil
}

func runReset(g *globalFlags, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	yes := fs.Bool("yes", false, "do not ask for confirmation")
	fs.Parse(args)

	cfg, logger, err := g.load()
	if err != nil {
		return err
	}
	if err := g.require(cfg, logger, auth.PermFactoryReset); err != nil {
		return err
	}

	if !*yes {
		ok, err := pterm.DefaultInteractiveConfirm.Show("Restore factory defaults on the device?")
		if err != nil {
			return err
		}
		if !ok {
			pterm.Info.Println("Aborted")
			return nil
		}
	}

	s, err := openSession(cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()
	stop := s.trackProgress()

	wr, err := s.seq.FactoryReset(ctx)
	stop()
	if err != nil {
		return err
	}
	pterm.Success.Printf("Factory defaults restored (%d operations)\n", wr.Written)
	return nil
}

func runExport(g *globalFlags, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	file := fs.String("f", "", "configuration JSON file")
	preset := fs.String("preset", "", "preset ID")
	out := fs.String("o", "", "output CSV file (default stdout)")
	fs.Parse(args)

	cfg, logger, err := g.load()
	if err != nil {
		return err
	}
	full, err := loadConfiguration(cfg, logger, *file, *preset)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	n, err := export.WriteCSV(w, full)
	if err != nil {
		return err
	}
	if *out != "" {
		pterm.Success.Printf("%d rows written to %s\n", n, *out)
	}
	return nil
}

func runAdapter(g *globalFlags, args []string) error {
	cfg, logger, err := g.load()
	if err != nil {
		return err
	}
	if err := g.require(cfg, logger, auth.PermAdapter); err != nil {
		return err
	}
	s, err := openSession(cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()

	spinner, _ := pterm.DefaultSpinner.Start("Configuring adapter")
	err = s.bus.ConfigureAdapter(ctx, func(step, total int, cmd transport.AdapterCommand) {
		spinner.UpdateText(fmt.Sprintf("[%d/%d] %s", step, total, cmd.Description))
	})
	if err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success("Adapter configured, power-cycle it to apply")
	return nil
}

func runHashPassword(g *globalFlags, args []string) error {
	var password string
	if len(args) > 0 {
		password = args[0]
	} else {
		pterm.Info.Println("Enter the Admin password, then press Enter:")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return errors.New("empty password")
	}

	hash, err := auth.NewPasswordHasher().HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

// loadConfiguration reads exactly one of file or preset.
func loadConfiguration(cfg *config.Config, logger *zap.Logger, file, preset string) (*configdata.FullConfiguration, error) {
	switch {
	case file != "" && preset != "":
		return nil, errors.New("use either -f or -preset")

	case file != "":
		v, err := configdata.NewValidator()
		if err != nil {
			return nil, err
		}
		return configdata.LoadFile(file, v)

	case preset != "":
		catalog, err := presets.LoadCatalog(cfg.Presets.SearchPaths, logger)
		if err != nil {
			return nil, err
		}
		p, err := catalog.Get(preset)
		if err != nil {
			return nil, err
		}
		return p.Build()

	default:
		return nil, errors.New("missing -f or -preset")
	}
}
