/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind          string
	dayDuration   time.Duration
	maxPlayers    int
	nightDuration time.Duration
	port          int
	prefix        string
	profile       bool
	roomTimeout   time.Duration
	skipNight     int
	tlsCert       string
	tlsKey        string
	verbose       bool
	version       bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.nightDuration < 5*time.Second || c.dayDuration < 5*time.Second {
		return errors.New("phase durations must be at least 5s")
	}
	if c.maxPlayers < minPlayers {
		return fmt.Errorf("--max-players must be at least %d", minPlayers)
	}
	if c.skipNight < 0 {
		return errors.New("--skip-night cannot be negative")
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// timing derives the per-room phase countdowns, in whole seconds.
func (c *Config) timing() roomTiming {
	return roomTiming{
		night:     int(c.nightDuration.Seconds()),
		day:       int(c.dayDuration.Seconds()),
		skipNight: c.skipNight,
	}
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("MAFIA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "mafia",
		Short:         "A real-time Mafia party game, played in rooms over WebSockets.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: MAFIA_BIND)")
	fs.DurationVar(&cfg.dayDuration, "day-duration", 2*time.Minute, "length of the day discussion and voting phase (env: MAFIA_DAY_DURATION)")
	fs.IntVar(&cfg.maxPlayers, "max-players", 10, "maximum players per room (env: MAFIA_MAX_PLAYERS)")
	fs.DurationVar(&cfg.nightDuration, "night-duration", time.Minute, "length of the night action phase (env: MAFIA_NIGHT_DURATION)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: MAFIA_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: MAFIA_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: MAFIA_PROFILE)")
	fs.DurationVar(&cfg.roomTimeout, "room-timeout", 60*time.Minute, "time before idle rooms are reaped (env: MAFIA_ROOM_TIMEOUT)")
	fs.IntVar(&cfg.skipNight, "skip-night", 2, "night number with no role actions, 0 to disable (env: MAFIA_SKIP_NIGHT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: MAFIA_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: MAFIA_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: MAFIA_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: MAFIA_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("mafia v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
