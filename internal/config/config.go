// Package config loads the end-device controller's YAML configuration,
// grounded on internal/config/config.go's Load/applyEnvOverrides/
// PrintConfigSummary shape, trimmed from a multi-service network-server/
// gateway-bridge/application-server config to one device's activation
// parameters, radio simulation, and ambient stack (log, debug API, NATS,
// MQTT).
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lorawan-server/lorawan-enddevice/internal/controller"
	"github.com/lorawan-server/lorawan-enddevice/pkg/lorawan"
)

// Config is the root configuration document.
type Config struct {
	Server DeviceConfig     `yaml:"server"`
	Device ActivationConfig `yaml:"device"`
	MAC    MACConfig        `yaml:"mac"`
	Radio  RadioConfig      `yaml:"radio"`
	Log    LogConfig        `yaml:"log"`
	API    APIConfig        `yaml:"api"`
	NATS   NATSConfig       `yaml:"nats"`
	MQTT   MQTTConfig       `yaml:"mqtt"`
}

// DeviceConfig names this controller instance in the -show-config summary.
type DeviceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// ActivationConfig carries the keys and identifiers for whichever
// activation mode is selected; the unused half (OTAA vs ABP) is ignored.
type ActivationConfig struct {
	DevEUI  string `yaml:"dev_eui"`
	Mode    string `yaml:"mode"`            // OTAA | ABP
	Version string `yaml:"lorawan_version"` // 1.0.2 | 1.0.3 | 1.1

	// OTAA
	JoinEUI string `yaml:"join_eui"`
	AppKey  string `yaml:"app_key"`
	NwkKey  string `yaml:"nwk_key"` // v1.1 only

	// ABP
	DevAddr     string `yaml:"dev_addr"`
	NwkSKey     string `yaml:"nwk_s_key"`
	AppSKey     string `yaml:"app_s_key"`
	FNwkSIntKey string `yaml:"f_nwk_s_int_key"` // v1.1
	SNwkSIntKey string `yaml:"s_nwk_s_int_key"` // v1.1
	NwkSEncKey  string `yaml:"nwk_s_enc_key"`   // v1.1
}

// MACConfig mirrors controller.Options, the compile-time MAC behavior knobs.
type MACConfig struct {
	Region                    string        `yaml:"region"`
	AutomaticUplink           bool          `yaml:"automatic_uplink"`
	DefaultAppPort            uint8         `yaml:"default_app_port"`
	ComplianceTestingEnabled  bool          `yaml:"compliance_testing_enabled"`
	ClassBEnabled             bool          `yaml:"class_b_enabled"`
	PingSlotPeriodicity       uint8         `yaml:"ping_slot_periodicity"`
	BeaconAcquisitionAttempts int           `yaml:"beacon_acquisition_attempts"`
	BeaconlessPeriod          time.Duration `yaml:"beaconless_period"`
	RejoinType1SendPeriod     time.Duration `yaml:"rejoin_type1_send_period"`
	MaxConfirmedMsgRetries    int           `yaml:"max_confirmed_msg_retries"`
	ADRAckLimit               int           `yaml:"adr_ack_limit"`
	ConfirmedRetryBackoff     time.Duration `yaml:"confirmed_retry_backoff"`
	TAIUTCOffsetSeconds       int           `yaml:"tai_utc_offset_seconds"`
}

// RadioConfig configures internal/radiosim's simulated transceiver timing.
type RadioConfig struct {
	TimeOnAir time.Duration `yaml:"time_on_air"`
	RX1Delay  time.Duration `yaml:"rx1_delay"`
	RX2Delay  time.Duration `yaml:"rx2_delay"`
	RXWindow  time.Duration `yaml:"rx_window"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// APIConfig configures the debug HTTP API guarding a single operator principal.
type APIConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	CORSOrigins        []string      `yaml:"cors_origins"`
	JWTSecret          string        `yaml:"jwt_secret"`
	AccessTokenTTL     time.Duration `yaml:"access_token_ttl"`
	OperatorSecretHash string        `yaml:"operator_secret_hash"`
}

// NATSConfig configures internal/eventbus's mirror connection. URL == ""
// disables the bus entirely.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// MQTTConfig configures internal/appbridge. BrokerURL == "" disables the bridge.
type MQTTConfig struct {
	BrokerURL   string `yaml:"broker_url"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TLS         bool   `yaml:"tls"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// Load reads and parses a YAML config file, then applies environment
// variable overrides the way the teacher's deployment tooling expects.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DEV_EUI"); v != "" {
		c.Device.DevEUI = v
	}
	if v := os.Getenv("APP_KEY"); v != "" {
		c.Device.AppKey = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.API.JWTSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv("MQTT_BROKER_URL"); v != "" {
		c.MQTT.BrokerURL = v
	}
}

func (c *Config) setDefaults() {
	if c.MAC.Region == "" {
		c.MAC.Region = "EU868"
	}
	if c.MAC.MaxConfirmedMsgRetries == 0 {
		c.MAC.MaxConfirmedMsgRetries = 8
	}
	if c.MAC.ADRAckLimit == 0 {
		c.MAC.ADRAckLimit = 64
	}
	if c.MAC.BeaconAcquisitionAttempts == 0 {
		c.MAC.BeaconAcquisitionAttempts = 8
	}
	if c.MAC.BeaconlessPeriod == 0 {
		c.MAC.BeaconlessPeriod = 120 * time.Minute
	}
	if c.MAC.RejoinType1SendPeriod == 0 {
		c.MAC.RejoinType1SendPeriod = 12 * time.Hour
	}
	if c.MAC.ConfirmedRetryBackoff == 0 {
		c.MAC.ConfirmedRetryBackoff = 2 * time.Second
	}
	if c.MAC.TAIUTCOffsetSeconds == 0 {
		c.MAC.TAIUTCOffsetSeconds = 19
	}
	if c.Radio.TimeOnAir == 0 {
		c.Radio.TimeOnAir = 200 * time.Millisecond
	}
	if c.Radio.RX1Delay == 0 {
		c.Radio.RX1Delay = time.Second
	}
	if c.Radio.RX2Delay == 0 {
		c.Radio.RX2Delay = 2 * time.Second
	}
	if c.Radio.RXWindow == 0 {
		c.Radio.RXWindow = 500 * time.Millisecond
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.API.AccessTokenTTL == 0 {
		c.API.AccessTokenTTL = 24 * time.Hour
	}
	if c.Server.Version == "" {
		c.Server.Version = "dev"
	}
	if c.MQTT.QoS == 0 {
		c.MQTT.QoS = 1
	}
}

func (c *Config) validate() error {
	if c.Device.DevEUI == "" {
		return fmt.Errorf("device.dev_eui is required")
	}
	switch c.Device.Mode {
	case "OTAA", "ABP":
	default:
		return fmt.Errorf("device.mode must be OTAA or ABP, got %q", c.Device.Mode)
	}
	switch c.Device.Version {
	case "1.0.2", "1.0.3", "1.1":
	default:
		return fmt.Errorf("device.lorawan_version must be 1.0.2, 1.0.3 or 1.1, got %q", c.Device.Version)
	}
	return nil
}

// ControllerOptions builds controller.Options from the MAC section.
func (c *Config) ControllerOptions() controller.Options {
	major := lorawan.LoRaWAN1_0
	if c.Device.Version == "1.1" {
		major = lorawan.LoRaWAN1_1
	}
	mode := lorawan.OTAA
	if c.Device.Mode == "ABP" {
		mode = lorawan.ABP
	}
	return controller.Options{
		DefaultActivation:         mode,
		SpecVersion:               major,
		AutomaticUplink:           c.MAC.AutomaticUplink,
		DefaultAppPort:            c.MAC.DefaultAppPort,
		ComplianceTestingEnabled:  c.MAC.ComplianceTestingEnabled,
		ClassBEnabled:             c.MAC.ClassBEnabled,
		PingSlotPeriodicity:       c.MAC.PingSlotPeriodicity,
		BeaconAcquisitionAttempts: c.MAC.BeaconAcquisitionAttempts,
		BeaconlessPeriod:          c.MAC.BeaconlessPeriod,
		RejoinType1SendPeriod:     c.MAC.RejoinType1SendPeriod,
		MaxConfirmedMsgRetries:    c.MAC.MaxConfirmedMsgRetries,
		ADRAckLimit:               c.MAC.ADRAckLimit,
		ConfirmedRetryBackoff:     c.MAC.ConfirmedRetryBackoff,
		TAIUTCOffsetSeconds:       c.MAC.TAIUTCOffsetSeconds,
		Region:                    c.MAC.Region,
	}
}

// ActivationParams builds controller.ActivationParams from Device, parsing
// the hex-encoded identifiers and keys the YAML document carries as strings.
func (c *Config) ActivationParams() (controller.ActivationParams, error) {
	var params controller.ActivationParams

	devEUI, err := parseEUI64(c.Device.DevEUI)
	if err != nil {
		return params, fmt.Errorf("device.dev_eui: %w", err)
	}
	params.DevEUI = devEUI

	if c.Device.Mode == "ABP" {
		params.Mode = lorawan.ABP
		devAddr, err := parseDevAddr(c.Device.DevAddr)
		if err != nil {
			return params, fmt.Errorf("device.dev_addr: %w", err)
		}
		params.DevAddr = devAddr

		nwkSKey, err := parseAES128Key(c.Device.NwkSKey)
		if err != nil {
			return params, fmt.Errorf("device.nwk_s_key: %w", err)
		}
		params.NwkSKey = nwkSKey

		appSKey, err := parseAES128Key(c.Device.AppSKey)
		if err != nil {
			return params, fmt.Errorf("device.app_s_key: %w", err)
		}
		params.AppSKey = appSKey

		if c.Device.Version == "1.1" {
			if params.FNwkSIntKey, err = optionalAES128Key(c.Device.FNwkSIntKey); err != nil {
				return params, fmt.Errorf("device.f_nwk_s_int_key: %w", err)
			}
			if params.SNwkSIntKey, err = optionalAES128Key(c.Device.SNwkSIntKey); err != nil {
				return params, fmt.Errorf("device.s_nwk_s_int_key: %w", err)
			}
			if params.NwkSEncKey, err = optionalAES128Key(c.Device.NwkSEncKey); err != nil {
				return params, fmt.Errorf("device.nwk_s_enc_key: %w", err)
			}
		}
		return params, nil
	}

	params.Mode = lorawan.OTAA
	joinEUI, err := parseEUI64(c.Device.JoinEUI)
	if err != nil {
		return params, fmt.Errorf("device.join_eui: %w", err)
	}
	params.JoinEUI = joinEUI

	appKey, err := parseAES128Key(c.Device.AppKey)
	if err != nil {
		return params, fmt.Errorf("device.app_key: %w", err)
	}
	params.AppKey = appKey

	if c.Device.Version == "1.1" {
		if params.NwkKey, err = optionalAES128Key(c.Device.NwkKey); err != nil {
			return params, fmt.Errorf("device.nwk_key: %w", err)
		}
	}
	return params, nil
}

func parseEUI64(s string) (lorawan.EUI64, error) {
	var eui lorawan.EUI64
	b, err := hex.DecodeString(s)
	if err != nil {
		return eui, err
	}
	if len(b) != 8 {
		return eui, fmt.Errorf("expected 8 bytes, got %d", len(b))
	}
	copy(eui[:], b)
	return eui, nil
}

func parseDevAddr(s string) (lorawan.DevAddr, error) {
	var addr lorawan.DevAddr
	b, err := hex.DecodeString(s)
	if err != nil {
		return addr, err
	}
	if len(b) != 4 {
		return addr, fmt.Errorf("expected 4 bytes, got %d", len(b))
	}
	copy(addr[:], b)
	return addr, nil
}

func parseAES128Key(s string) (lorawan.AES128Key, error) {
	var key lorawan.AES128Key
	b, err := hex.DecodeString(s)
	if err != nil {
		return key, err
	}
	if len(b) != 16 {
		return key, fmt.Errorf("expected 16 bytes, got %d", len(b))
	}
	copy(key[:], b)
	return key, nil
}

func optionalAES128Key(s string) (*lorawan.AES128Key, error) {
	if s == "" {
		return nil, nil
	}
	key, err := parseAES128Key(s)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// PrintConfigSummary prints the resolved configuration to stdout (the
// -show-config output).
func (c *Config) PrintConfigSummary() {
	fmt.Printf("=== LoRaWAN End-Device Controller ===\n")
	fmt.Printf("Device: %s v%s\n", c.Server.Name, c.Server.Version)
	fmt.Printf("DevEUI: %s  Mode: %s  Version: %s\n", c.Device.DevEUI, c.Device.Mode, c.Device.Version)
	fmt.Printf("Region: %s  ClassB: %v  ADRAckLimit: %d\n", c.MAC.Region, c.MAC.ClassBEnabled, c.MAC.ADRAckLimit)
	if c.NATS.URL != "" {
		fmt.Printf("Event bus: %s\n", c.NATS.URL)
	}
	if c.MQTT.BrokerURL != "" {
		fmt.Printf("Application bridge: %s (%s)\n", c.MQTT.BrokerURL, c.MQTT.TopicPrefix)
	}
	fmt.Printf("Debug API: %s:%d\n", c.API.Host, c.API.Port)
	fmt.Printf("======================================\n")
}
