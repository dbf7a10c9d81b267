// Package export writes a configuration as CSV, one row per configured case.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/KevinKickass/ngxconfig/internal/configdata"
)

var Header = []string{
	"input", "name", "type", "case", "enabled", "mode",
	"device", "pgn", "sa", "data",
}

// Row is one exported case. A case that drives no output still yields a row
// with empty device columns.
type Row struct {
	Input   int
	Name    string
	Kind    string // ON / OFF
	Case    int
	Enabled bool
	Mode    configdata.CaseMode
	Device  string
	PGN     uint32
	SA      uint8
	Data    [configdata.MessageLen]byte
	HasData bool
}

func (r Row) record() []string {
	rec := []string{
		strconv.Itoa(r.Input),
		r.Name,
		r.Kind,
		strconv.Itoa(r.Case),
		strconv.FormatBool(r.Enabled),
		string(r.Mode),
		"", "", "", "",
	}
	if r.HasData {
		rec[6] = r.Device
		rec[7] = fmt.Sprintf("0x%04X", r.PGN)
		rec[8] = fmt.Sprintf("0x%02X", r.SA)
		rec[9] = hexBytes(r.Data[:])
	}
	return rec
}

func hexBytes(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, " ")
}

// Rows lists the configured cases in input order, ON before OFF.
func Rows(cfg *configdata.FullConfiguration) []Row {
	var rows []Row
	for _, in := range cfg.Inputs {
		rows = appendCases(rows, in, "ON", in.OnCases)
		rows = appendCases(rows, in, "OFF", in.OffCases)
	}
	return rows
}

func appendCases(rows []Row, in configdata.InputConfig, kind string, cases []configdata.CaseConfig) []Row {
	for i, c := range cases {
		if c.IsDefault() {
			continue
		}
		base := Row{
			Input:   in.InputNumber,
			Name:    in.DisplayName(),
			Kind:    kind,
			Case:    i + 1,
			Enabled: c.Enabled,
			Mode:    c.Mode,
		}

		msgs := c.CANMessages()
		if len(msgs) == 0 {
			rows = append(rows, base)
			continue
		}
		for _, m := range msgs {
			r := base
			r.PGN = uint32(m.PGNHigh)<<8 | uint32(m.PGNLow)
			r.SA = m.SA
			r.Data = m.Data
			r.HasData = true
			if dev, ok := configdata.DeviceByPGN(m.PGNHigh, m.PGNLow); ok {
				r.Device = dev.ID
			}
			rows = append(rows, r)
		}
	}
	return rows
}

// WriteCSV writes the header followed by Rows(cfg).
func WriteCSV(w io.Writer, cfg *configdata.FullConfiguration) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return 0, err
	}

	rows := Rows(cfg)
	for _, r := range rows {
		if err := cw.Write(r.record()); err != nil {
			return 0, fmt.Errorf("write row input %d case %d: %w", r.Input, r.Case, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, err
	}
	return len(rows), nil
}
