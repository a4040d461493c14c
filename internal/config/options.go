package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Options selects which snapshot fields are exposed as display/control units.
// Mirrors the capability selections collected during setup.
type Options struct {
	ScanIntervalSeconds int      `json:"scan_interval_seconds"`
	DeviceFields        []string `json:"device_fields"`
	AccountFields       []string `json:"account_fields"`
	EnableSwitch        bool     `json:"enable_switch"`
}

func DefaultOptions() Options {
	return Options{
		ScanIntervalSeconds: int(DefaultScanInterval / time.Second),
		DeviceFields:        []string{"data_usage", "status", "plan", "monthly_cost"},
		AccountFields: []string{
			"account_balance", "total_sims", "active_sims", "inactive_sims",
			"total_data_usage", "total_monthly_cost",
		},
		EnableSwitch: true,
	}
}

// OptionsHolder serves the current options and hot-reloads them on file change.
type OptionsHolder struct {
	current atomic.Value // holds Options
}

func NewOptionsHolder() (*OptionsHolder, error) {
	v := viper.New()

	v.SetConfigName("simwatch")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/simwatch/config") // Volume-mounted config
	v.AddConfigPath("/etc/simwatch")            // System config
	v.AddConfigPath(".")                        // Current directory (dev mode)

	v.SetEnvPrefix("SIMWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return newOptionsHolder(v)
}

// newOptionsHolder reads options through a prepared viper instance. Defaults
// are registered before the read and resolved per key, so a partial config
// file inherits the default for every key it omits.
func newOptionsHolder(v *viper.Viper) (*OptionsHolder, error) {
	defaults := DefaultOptions()
	v.SetDefault("options.scanIntervalSeconds", defaults.ScanIntervalSeconds)
	v.SetDefault("options.deviceFields", defaults.DeviceFields)
	v.SetDefault("options.accountFields", defaults.AccountFields)
	v.SetDefault("options.enableSwitch", defaults.EnableSwitch)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	opts := optionsFromViper(v)
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	holder := &OptionsHolder{}
	holder.current.Store(opts)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := optionsFromViper(v)
		if err := validateOptions(updated); err != nil {
			log.Printf("[options] invalid options ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[options] reloaded from %s", e.Name)
	})

	return holder, nil
}

// optionsFromViper resolves each key independently so defaults apply per key
// rather than only when the whole options block is missing.
func optionsFromViper(v *viper.Viper) Options {
	return Options{
		ScanIntervalSeconds: v.GetInt("options.scanIntervalSeconds"),
		DeviceFields:        v.GetStringSlice("options.deviceFields"),
		AccountFields:       v.GetStringSlice("options.accountFields"),
		EnableSwitch:        v.GetBool("options.enableSwitch"),
	}
}

// NewStaticOptionsHolder returns a holder pinned to fixed options, with no
// file watching. Used by tests and by callers without a config file.
func NewStaticOptionsHolder(opts Options) *OptionsHolder {
	holder := &OptionsHolder{}
	holder.current.Store(opts)
	return holder
}

func (h *OptionsHolder) Get() Options {
	return h.current.Load().(Options)
}

func validateOptions(opts Options) error {
	if opts.ScanIntervalSeconds < 0 {
		return errors.New("options.scanIntervalSeconds cannot be negative")
	}
	return nil
}
