// internal/device/units.go
package device

import (
	"github.com/shopspring/decimal"
)

// Decimal exponents of the raw units systoolsd reports.
const (
	unitBase  int32 = 0
	unitMilli int32 = -3
	unitMicro int32 = -6
	unitMega  int32 = 6
)

// Sample is one named sensor reading scaled to its base unit.
type Sample struct {
	Name  string          `json:"name"`
	Value decimal.Decimal `json:"value"`
	Unit  string          `json:"unit"`
	Valid bool            `json:"valid"`
}

func newSample(name string, raw uint32, exp int32, unit string) Sample {
	return Sample{
		Name:  name,
		Value: decimal.New(int64(raw), exp),
		Unit:  unit,
		Valid: true,
	}
}

func invalidSample(name, unit string) Sample {
	return Sample{Name: name, Value: decimal.Zero, Unit: unit}
}

func celsius(name string, raw uint32) Sample {
	return newSample(name, raw, unitBase, "C")
}

func millivolts(name string, raw uint32) Sample {
	return newSample(name, raw, unitMilli, "V")
}

func microwatts(name string, raw uint32) Sample {
	return newSample(name, raw, unitMicro, "W")
}

func megahertz(name string, raw uint32) Sample {
	return newSample(name, raw, unitMega, "Hz")
}

func kibibytes(name string, raw uint32) Sample {
	return Sample{
		Name:  name,
		Value: decimal.NewFromInt(int64(raw) * 1024),
		Unit:  "B",
		Valid: true,
	}
}

// Sensor labels in the order systoolsd payloads carry them.
var (
	temperatureSensors = []string{"Die", "Fan Exhaust", "VCCP", "VCCCLR", "VCCMP", "West", "East"}

	voltageSensors = []string{
		"VCCP", "VCCU", "VCCCLR", "VCCMLB", "VCCMP", "NTB1",
		"VCCPIO", "VCCSFR", "PCH", "VCCMFUSE", "NTB2", "VPP",
	}

	powerSensors = []string{
		"PCIe", "2x3", "2x4", "Average 0", "Current", "Maximum",
		"VCCP", "VCCU", "VCCCLR", "VCCMLB", "VCCMP", "NTB1",
	}
)

// Fan readings with either of the two top bits set are unavailable.
const fanInvalidMask = 0xC0000000

func fanReading(name string, raw, mask uint32, unit string) Sample {
	if raw&fanInvalidMask != 0 {
		return invalidSample(name, unit)
	}
	return newSample(name, raw&mask, unitBase, unit)
}

// coreVoltageMillivolts decodes the SMBIOS processor voltage byte.
func coreVoltageMillivolts(v uint8) uint32 {
	if v&(1<<7) != 0 {
		return uint32(v&0x7f) * 100
	}
	switch {
	case v&(1<<0) != 0:
		return 5000
	case v&(1<<1) != 0:
		return 3300
	case v&(1<<2) != 0:
		return 2900
	default:
		return 0
	}
}
