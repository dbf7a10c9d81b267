package main

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"

	"github.com/KevinKickass/ngxconfig/internal/configdata"
	"github.com/KevinKickass/ngxconfig/internal/eeprom"
	"github.com/KevinKickass/ngxconfig/internal/export"
)

func pgnAddress(p configdata.PGNAddress) string {
	return fmt.Sprintf("%04X / SA %02X", p.PGN(), p.SA)
}

func printSystem(s configdata.SystemConfig, fw configdata.FirmwareVersion) {
	pterm.DefaultSection.Println("System")

	data := pterm.TableData{
		{"Firmware", fmt.Sprintf("%d.%d", fw.Major, fw.Minor)},
		{"Customer", s.CustomerName},
		{"Serial", fmt.Sprintf("0x%02X", s.SerialNumber)},
		{"Bitrate", fmt.Sprintf("0x%02X", uint8(s.Bitrate))},
		{"Rebroadcast", fmt.Sprintf("0x%02X", uint8(s.Rebroadcast))},
		{"Heartbeat", pgnAddress(s.Heartbeat)},
		{"Write", pgnAddress(s.Write)},
		{"Read", pgnAddress(s.Read)},
		{"Response", pgnAddress(s.Response)},
		{"Diagnostic", pgnAddress(s.Diagnostic)},
	}
	pterm.DefaultTable.WithData(data).Render()
}

func printReport(rep *eeprom.DecodeReport) {
	if rep == nil {
		return
	}
	if rep.Firmware != (configdata.FirmwareVersion{}) {
		pterm.Info.Printf("Firmware %d.%d\n", rep.Firmware.Major, rep.Firmware.Minor)
	}
	for _, slot := range rep.StaleSlots {
		pterm.Warning.Printf("Slot %s has data but no guard byte, treated as empty\n", slot)
	}
}

func printCases(cfg *configdata.FullConfiguration) error {
	rows := export.Rows(cfg)
	if len(rows) == 0 {
		pterm.Info.Println("No cases configured")
		return nil
	}

	data := pterm.TableData{{"Input", "Name", "", "Case", "Enabled", "Mode", "Device", "Data"}}
	for _, r := range rows {
		msg := ""
		if r.HasData {
			msg = fmt.Sprintf("% X", r.Data[:])
		}
		data = append(data, []string{
			strconv.Itoa(r.Input),
			r.Name,
			r.Kind,
			strconv.Itoa(r.Case),
			strconv.FormatBool(r.Enabled),
			string(r.Mode),
			r.Device,
			msg,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
