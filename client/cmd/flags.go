package cmd

import (
	"time"

	"github.com/netbirdio/peerctl/shared/management/client/config"
)

// durationFlag accepts plain milliseconds as well as Go durations, matching the WG_* variables
type durationFlag struct {
	d *time.Duration
}

func newDurationFlag(p *time.Duration, def time.Duration) *durationFlag {
	*p = def
	return &durationFlag{d: p}
}

func (f *durationFlag) String() string {
	if f == nil || f.d == nil {
		return "0s"
	}
	return f.d.String()
}

func (f *durationFlag) Set(value string) error {
	d, err := config.ParseDuration(value)
	if err != nil {
		return err
	}
	*f.d = d
	return nil
}

func (f *durationFlag) Type() string {
	return "duration"
}
