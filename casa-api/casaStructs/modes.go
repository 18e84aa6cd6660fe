package casaStructs

import (
	"fmt"

	"golang.org/x/exp/slices"
)

type ModeEntry struct {
	Code int
	Name string
}

// ModeTable maps device codes to option names in both directions. The same
// table serves decoding of polled values and encoding of writes.
type ModeTable struct {
	Object   ObjectId
	Fallback string
	entries  []ModeEntry
}

func NewModeTable(object ObjectId, fallback string, entries ...ModeEntry) ModeTable {
	return ModeTable{Object: object, Fallback: fallback, entries: entries}
}

func (t ModeTable) Name(code int) (string, bool) {
	idx := slices.IndexFunc(t.entries, func(e ModeEntry) bool { return e.Code == code })
	if idx == -1 {
		return "", false
	}
	return t.entries[idx].Name, true
}

// NameOrFallback resolves a code, falling back to the table default for
// codes the firmware added after this table was written.
func (t ModeTable) NameOrFallback(code int) string {
	if name, ok := t.Name(code); ok {
		return name
	}
	return t.Fallback
}

func (t ModeTable) Code(name string) (int, bool) {
	idx := slices.IndexFunc(t.entries, func(e ModeEntry) bool { return e.Name == name })
	if idx == -1 {
		return 0, false
	}
	return t.entries[idx].Code, true
}

func (t ModeTable) Options() []string {
	options := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		options = append(options, e.Name)
	}
	return options
}

// Describe renders a code for display, Unknown(N) when not in the table.
func (t ModeTable) Describe(code int) string {
	if name, ok := t.Name(code); ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", code)
}

const (
	ClimateAway      = "Away"
	ClimateHome      = "Home"
	ClimateBoost     = "Boost"
	ClimateTravel    = "Travel"
	ClimateOff       = "Off"
	ClimateFireplace = "Fireplace"

	ModeOff    = "Off"
	ModeOn     = "On"
	ModeUser   = "User"
	ModeLow    = "Low"
	ModeNormal = "Normal"
	ModeHigh   = "High"
	ModeFull   = "Full"
)

const (
	ClimateCodeHome   = 2
	ClimateCodeTravel = 4
	ClimateCodeOff    = 5
)

var (
	ClimateModes = NewModeTable(ClimateMode, ClimateHome,
		ModeEntry{1, ClimateAway},
		ModeEntry{2, ClimateHome},
		ModeEntry{3, ClimateBoost},
		ModeEntry{4, ClimateTravel},
		ModeEntry{5, ClimateOff},
		ModeEntry{6, ClimateFireplace},
	)

	FireplaceModes = NewModeTable(FireplaceMode, ModeOff,
		ModeEntry{0, ModeOff},
		ModeEntry{1, ModeOn},
	)

	TravelModes = NewModeTable(TravelMode, ModeOff,
		ModeEntry{0, ModeOff},
		ModeEntry{1, ModeOn},
	)

	AutoHumidityControlModes = NewModeTable(AutoHumidityControlMode, ModeOff,
		ModeEntry{0, ModeOff},
		ModeEntry{1, ModeUser},
		ModeEntry{2, ModeLow},
		ModeEntry{3, ModeNormal},
		ModeEntry{4, ModeHigh},
		ModeEntry{5, ModeFull},
	)

	// the firmware orders User last here, unlike the humidity control table
	SummerNightCoolingModes = NewModeTable(SummerNightCoolingMode, ModeOff,
		ModeEntry{0, ModeOff},
		ModeEntry{1, ModeLow},
		ModeEntry{2, ModeNormal},
		ModeEntry{3, ModeHigh},
		ModeEntry{4, ModeFull},
		ModeEntry{5, ModeUser},
	)
)

// ModeTableFor returns the mode table for a mode object.
func ModeTableFor(id ObjectId) (ModeTable, bool) {
	for _, t := range []ModeTable{ClimateModes, FireplaceModes, TravelModes, AutoHumidityControlModes, SummerNightCoolingModes} {
		if t.Object == id {
			return t, true
		}
	}
	return ModeTable{}, false
}
