package config

import (
	"reflect"
	"sort"
	"strings"

	logx "delaybot/pkg/logx"
)

// Change summarises the difference between two config versions.
type Change struct {
	// Sections that changed and can be applied live.
	Sections []string
	// Attrs are safe to log (never tokens or passwords).
	Attrs []logx.Field
	// Restart lists changes that only take effect after a restart.
	Restart []string
}

func (c Change) Empty() bool { return len(c.Sections) == 0 && len(c.Restart) == 0 }

// Summarize compares two configs.
func Summarize(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		ch.Sections = append(ch.Sections, "logging")
		ch.Attrs = append(ch.Attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	oldBots := map[string]BotConfig{}
	for _, b := range oldCfg.Bots {
		oldBots[b.Name] = b
	}
	newNames := map[string]bool{}
	for _, nb := range newCfg.Bots {
		newNames[nb.Name] = true
		ob, ok := oldBots[nb.Name]
		if !ok {
			ch.Restart = append(ch.Restart, "bots."+nb.Name+" (added)")
			continue
		}
		if !sameIDs(ob.OwnerUserIDs, nb.OwnerUserIDs) {
			ch.Sections = append(ch.Sections, "bots."+nb.Name+".owner_user_ids")
			ch.Attrs = append(ch.Attrs, logx.Int("bots."+nb.Name+".owner_count", len(nb.OwnerUserIDs)))
		}
		if ob.Token != nb.Token {
			ch.Restart = append(ch.Restart, "bots."+nb.Name+".token")
		}
		if ob.FrontEnd != nb.FrontEnd {
			ch.Restart = append(ch.Restart, "bots."+nb.Name+".front_end")
		}
		if !reflect.DeepEqual(ob.Storage, nb.Storage) {
			ch.Restart = append(ch.Restart, "bots."+nb.Name+".storage")
		}
		if ob.PollTimeout != nb.PollTimeout || ob.RatePerSec != nb.RatePerSec {
			ch.Restart = append(ch.Restart, "bots."+nb.Name+" (transport)")
		}
	}
	for name := range oldBots {
		if !newNames[name] {
			ch.Restart = append(ch.Restart, "bots."+name+" (removed)")
		}
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		ch.Restart = append(ch.Restart, "scheduler")
	}
	if !reflect.DeepEqual(oldCfg.Health, newCfg.Health) {
		ch.Restart = append(ch.Restart, "health")
	}

	sort.Strings(ch.Sections)
	sort.Strings(ch.Restart)
	if len(ch.Sections) > 0 {
		ch.Attrs = append(ch.Attrs, logx.String("sections", strings.Join(ch.Sections, ",")))
	}
	return ch
}

func sameIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]int64(nil), a...)
	y := append([]int64(nil), b...)
	sort.Slice(x, func(i, j int) bool { return x[i] < x[j] })
	sort.Slice(y, func(i, j int) bool { return y[i] < y[j] })
	return reflect.DeepEqual(x, y)
}
