// cmd/micctl/commands.go
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/desertbit/grumble"
	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"

	"micmgmt-service/internal/device"
	"micmgmt-service/internal/model"
	"micmgmt-service/pkg/micsdk"
)

const commandTimeout = 30 * time.Second

// AddCommands registers the shell commands.
func AddCommands(app *grumble.App) {
	app.AddCommand(&grumble.Command{
		Name:    "devices",
		Aliases: []string{"ls"},
		Help:    "rescan and list installed cards",
		Run: func(c *grumble.Context) error {
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			defer cancel()
			if _, err := current.discovery.Sync(ctx); err != nil {
				return err
			}
			devices := current.devices.ListDevices()
			if len(devices) == 0 {
				c.App.Println("no cards found")
				return nil
			}
			c.App.Println(RenderDeviceTable(devices))
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "open",
		Help: "open the channels of a card",
		Args: indexArg,
		Run: func(c *grumble.Context) error {
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			defer cancel()
			index := c.Args.Int("index")
			if err := current.devices.OpenDevice(ctx, index); err != nil {
				return describe(err)
			}
			c.App.Printf("mic%d open\n", index)
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "close",
		Help: "close the channels of a card",
		Args: indexArg,
		Run: func(c *grumble.Context) error {
			index := c.Args.Int("index")
			if err := current.devices.CloseDevice(index); err != nil {
				return describe(err)
			}
			c.App.Printf("mic%d closed\n", index)
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "thermal",
		Help: "show temperatures and fan readings",
		Args: indexArg,
		Run: func(c *grumble.Context) error {
			info, err := current.devices.Thermal(c.Args.Int("index"))
			if err != nil {
				return describe(err)
			}
			samples := append(info.Sensors, info.FanRPM, info.FanPWM)
			c.App.Println(RenderSampleTable(samples))
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "power",
		Help: "show power draw",
		Args: indexArg,
		Run: func(c *grumble.Context) error {
			usage, err := current.devices.Power(c.Args.Int("index"))
			if err != nil {
				return describe(err)
			}
			c.App.Println(RenderSampleTable(usage.Sensors))
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "voltage",
		Help: "show rail voltages",
		Args: indexArg,
		Run: func(c *grumble.Context) error {
			info, err := current.devices.Voltage(c.Args.Int("index"))
			if err != nil {
				return describe(err)
			}
			c.App.Println(RenderSampleTable(info.Sensors))
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "smc-read",
		Help: "read an SMC register",
		Args: func(a *grumble.Args) {
			a.Int("index", "card index")
			a.String("offset", "register offset, decimal or 0x prefixed hex")
		},
		Run: func(c *grumble.Context) error {
			offset, err := parseOffset(c.Args.String("offset"))
			if err != nil {
				return err
			}
			value, err := current.devices.ReadSmcRegister(c.Args.Int("index"), offset)
			if err != nil {
				return describe(err)
			}
			t := newTable()
			t.AppendHeader(table.Row{"Offset", "Size", "Access", "Data"})
			t.AppendRow(table.Row{fmt.Sprintf("0x%02x", value.Offset), value.Size, value.Access, value.Data})
			c.App.Println(t.Render())
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "smc-write",
		Help: "write an SMC register (requires security.smc_write_enabled)",
		Args: func(a *grumble.Args) {
			a.Int("index", "card index")
			a.String("offset", "register offset, decimal or 0x prefixed hex")
			a.String("data", "hex encoded register data")
		},
		Run: func(c *grumble.Context) error {
			offset, err := parseOffset(c.Args.String("offset"))
			if err != nil {
				return err
			}
			data, err := hex.DecodeString(c.Args.String("data"))
			if err != nil {
				return fmt.Errorf("data must be hex encoded: %w", err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			defer cancel()
			operation, err := current.operations.WriteSmcRegister(ctx, c.Args.Int("index"), offset, data, "")
			return reportOperation(c, operation, err)
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "led",
		Help: "show or set the LED mode",
		Args: indexArg,
		Flags: func(f *grumble.Flags) {
			f.String("s", "set", "", "new mode: normal or identify")
		},
		Run: func(c *grumble.Context) error {
			index := c.Args.Int("index")
			if set := c.Flags.String("set"); set != "" {
				var mode uint32
				switch set {
				case "normal":
					mode = device.LedNormal
				case "identify":
					mode = device.LedIdentify
				default:
					return fmt.Errorf("unknown LED mode %q", set)
				}
				ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
				defer cancel()
				operation, err := current.operations.SetLedMode(ctx, index, mode, "")
				return reportOperation(c, operation, err)
			}

			state, err := current.devices.Led(index)
			if err != nil {
				return describe(err)
			}
			mode := "normal"
			if state.Identify {
				mode = "identify"
			}
			c.App.Printf("mic%d LED: %s\n", index, mode)
			return nil
		},
	})

	app.AddCommand(&grumble.Command{
		Name: "turbo",
		Help: "show or set turbo mode",
		Args: indexArg,
		Flags: func(f *grumble.Flags) {
			f.String("s", "set", "", "new state: on or off")
		},
		Run: func(c *grumble.Context) error {
			index := c.Args.Int("index")
			if set := c.Flags.String("set"); set != "" {
				var enabled bool
				switch set {
				case "on":
					enabled = true
				case "off":
				default:
					return fmt.Errorf("unknown turbo state %q", set)
				}
				ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
				defer cancel()
				operation, err := current.operations.SetTurbo(ctx, index, enabled, "")
				return reportOperation(c, operation, err)
			}

			state, err := current.devices.Turbo(index)
			if err != nil {
				return describe(err)
			}
			t := newTable()
			t.AppendHeader(table.Row{"Enabled", "Available", "Active"})
			t.AppendRow(table.Row{state.Enabled, state.Available, state.Active})
			c.App.Println(t.Render())
			return nil
		},
	})
}

func indexArg(a *grumble.Args) {
	a.Int("index", "card index")
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

// RenderDeviceTable formats the managed cards.
func RenderDeviceTable(devices []*model.DeviceSummary) string {
	t := newTable()
	t.AppendHeader(table.Row{"Card", "Status", "State", "Family", "Mode", "Post code", "Last error"})
	for _, d := range devices {
		t.AppendRow(table.Row{d.Name, d.Status, d.CardState, d.Family, d.Mode, d.PostCode, d.LastError})
	}
	return t.Render()
}

// RenderSampleTable formats sensor readings. Invalid readings show as n/a.
func RenderSampleTable(samples []device.Sample) string {
	t := newTable()
	t.AppendHeader(table.Row{"Sensor", "Value", "Unit"})
	for _, s := range samples {
		value := "n/a"
		if s.Valid {
			value = s.Value.String()
		}
		t.AppendRow(table.Row{s.Name, value, s.Unit})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})
	return t.Render()
}

func reportOperation(c *grumble.Context, operation *model.ControlOperation, err error) error {
	if err != nil {
		return describe(err)
	}
	c.App.Printf("%s on %s: %s (%dms)\n", operation.OperationType, operation.DeviceName, operation.Status, derefInt(operation.DurationMs))
	return nil
}

// describe prefixes err with its result code.
func describe(err error) error {
	code := micsdk.CodeOf(err)
	return fmt.Errorf("[0x%02x %s] %w", uint32(code), code, err)
}

func parseOffset(raw string) (uint8, error) {
	offset, err := strconv.ParseUint(raw, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid register offset %q", raw)
	}
	return uint8(offset), nil
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
