package casaStructs

import "golang.org/x/exp/slices"

// ObjectId names a single property exposed by the Casa controller firmware.
type ObjectId string

const (
	TemperatureSupply         ObjectId = "17"
	TemperatureRoom           ObjectId = "18"
	TemperatureOutside        ObjectId = "19"
	HumidityPercentage        ObjectId = "22"
	HumidityAbsolute          ObjectId = "23"
	CurrentFanSpeed           ObjectId = "27"
	VentilationLevelIn        ObjectId = "28"
	VentilationLevelOut       ObjectId = "29"
	BoostCountdown            ObjectId = "31"
	TravelModeTemperatureDrop ObjectId = "121"
	SetpointSupplyTemperature ObjectId = "163"
	ClimateMode               ObjectId = "111"
	FireplaceMode             ObjectId = "153"
	TravelMode                ObjectId = "154"
	AutoHumidityControlMode   ObjectId = "200"
	SummerNightCoolingMode    ObjectId = "201"
)

// ValueProperty is the property key under which every object carries its value.
const ValueProperty = "85"

// DeviceAddress is the device number used in every object reference.
const DeviceAddress = 255

type ObjectKind int

const (
	KindMeasurement ObjectKind = iota
	KindSetting
	KindMode
)

type ObjectInfo struct {
	Id          ObjectId
	Key         string
	Name        string
	Unit        string
	DeviceClass string
	Kind        ObjectKind
}

// Catalog lists every known object in read order.
var Catalog = []ObjectInfo{
	{Id: TemperatureSupply, Key: "supply_temperature", Name: "FTX Supply Temperature", Unit: "°C", DeviceClass: "temperature", Kind: KindMeasurement},
	{Id: TemperatureRoom, Key: "room_temperature", Name: "FTX Room Temperature", Unit: "°C", DeviceClass: "temperature", Kind: KindMeasurement},
	{Id: TemperatureOutside, Key: "outside_temperature", Name: "FTX Outside Temperature", Unit: "°C", DeviceClass: "temperature", Kind: KindMeasurement},
	{Id: HumidityPercentage, Key: "humidity_percentage", Name: "FTX Humidity", Unit: "%", DeviceClass: "humidity", Kind: KindMeasurement},
	{Id: HumidityAbsolute, Key: "humidity_absolute", Name: "FTX Absolute Humidity", Unit: "g/m³", Kind: KindMeasurement},
	{Id: CurrentFanSpeed, Key: "fan_speed", Name: "FTX Fan Speed", Unit: "RPM", Kind: KindMeasurement},
	{Id: VentilationLevelIn, Key: "ventilation_level_in", Name: "FTX Ventilation Level In", Unit: "%", Kind: KindMeasurement},
	{Id: VentilationLevelOut, Key: "ventilation_level_out", Name: "FTX Ventilation Level Out", Unit: "%", Kind: KindMeasurement},
	{Id: BoostCountdown, Key: "boost_countdown", Name: "FTX Boost Countdown", Unit: "min", DeviceClass: "duration", Kind: KindMeasurement},
	{Id: TravelModeTemperatureDrop, Key: "travel_temp_drop", Name: "FTX Travel Mode Temperature Drop", Unit: "°C", DeviceClass: "temperature", Kind: KindSetting},
	{Id: SetpointSupplyTemperature, Key: "supply_temp_setpoint", Name: "FTX Supply Temperature Setpoint", Unit: "°C", DeviceClass: "temperature", Kind: KindSetting},
	{Id: ClimateMode, Key: "climate_mode", Name: "FTX Current Mode", Kind: KindMode},
	{Id: FireplaceMode, Key: "fireplace_mode", Name: "FTX Fireplace Mode", Kind: KindMode},
	{Id: TravelMode, Key: "travel_mode", Name: "FTX Travel Mode", Kind: KindMode},
	{Id: AutoHumidityControlMode, Key: "auto_humidity_control_mode", Name: "FTX Auto Humidity Control Mode", Kind: KindMode},
	{Id: SummerNightCoolingMode, Key: "summer_night_cooling_mode", Name: "FTX Summer Night Cooling Mode", Kind: KindMode},
}

// ReadIds is the fixed list of objects requested on every read.
var ReadIds = []ObjectId{
	TemperatureSupply,
	TemperatureRoom,
	TemperatureOutside,
	HumidityPercentage,
	HumidityAbsolute,
	CurrentFanSpeed,
	VentilationLevelIn,
	VentilationLevelOut,
	BoostCountdown,
	TravelModeTemperatureDrop,
	SetpointSupplyTemperature,
	ClimateMode,
	FireplaceMode,
	TravelMode,
	AutoHumidityControlMode,
	SummerNightCoolingMode,
}

func Lookup(id ObjectId) (ObjectInfo, bool) {
	idx := slices.IndexFunc(Catalog, func(o ObjectInfo) bool { return o.Id == id })
	if idx == -1 {
		return ObjectInfo{}, false
	}
	return Catalog[idx], true
}
