package report

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/masahide/huginn-discord/pkg/huginn"
	"github.com/masahide/huginn-discord/pkg/schedule"
)

// Unavailable is the message shown when no status could be fetched.
func Unavailable() Message {
	return Message{Lines: []Line{
		{plain("Could not connect to server. The server is probably "), strong("OFFLINE")},
	}}
}

type Formatter struct {
	eval *schedule.Evaluator
	now  func() time.Time
	log  zerolog.Logger
}

type Option func(*Formatter)

// WithClock overrides time.Now, used to compute time to the next job run.
func WithClock(now func() time.Time) Option {
	return func(f *Formatter) { f.now = now }
}

func NewFormatter(eval *schedule.Evaluator, opts ...Option) *Formatter {
	f := &Formatter{
		eval: eval,
		now:  time.Now,
		log:  log.With().Str("component", "report").Logger(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Render builds the status report, or the Unavailable message when res holds no status.
func (f *Formatter) Render(res huginn.Result) Message {
	st, ok := res.Status()
	if !ok {
		return Unavailable()
	}
	return f.Report(st)
}

// Report builds the message for a decoded status:
//
//	<name> is ONLINE|OFFLINE
//	Version: <version>
//	Installed mods: ...              (bepinex enabled with mods only)
//	There are currently <n> active players
//
//	Time to next server update check: ...   (enabled AUTO_UPDATE only)
//	Time to next server backup: ...         (enabled AUTO_BACKUP only)
func (f *Formatter) Report(st huginn.Status) Message {
	now := f.now()
	lines := []Line{statusLine(st), versionLine(st)}
	if l, ok := modsLine(st.BepInEx); ok {
		lines = append(lines, l)
	}
	lines = append(lines, playersLine(st), Line{})
	if l, ok := f.jobLine(st.Jobs, huginn.JobAutoUpdate, "Time to next server update check: ", now); ok {
		lines = append(lines, l)
	}
	if l, ok := f.jobLine(st.Jobs, huginn.JobAutoBackup, "Time to next server backup: ", now); ok {
		lines = append(lines, l)
	}
	return Message{Lines: lines}
}

func statusLine(st huginn.Status) Line {
	state := "OFFLINE"
	if st.Online {
		state = "ONLINE"
	}
	return Line{strong(st.Name), plain(" is "), strong(state)}
}

func versionLine(st huginn.Status) Line {
	return Line{plain("Version: "), strong(st.Version)}
}

// modsLine lists mod names without their ".dll" suffix. A ", " goes before
// every mod except the first and the last one, so the last two names are
// joined without a separator.
func modsLine(b huginn.BepInEx) (Line, bool) {
	if !b.Enabled || len(b.Mods) == 0 {
		return nil, false
	}
	last := len(b.Mods) - 1
	l := Line{plain("Installed mods: ")}
	for i, m := range b.Mods {
		if i != 0 && i != last {
			l = append(l, plain(", "))
		}
		l = append(l, strong(strings.Replace(m.Name, ".dll", "", 1)))
	}
	return l, true
}

func playersLine(st huginn.Status) Line {
	return Line{plain("There are currently "), strong(strconv.Itoa(st.Players)), plain(" active players")}
}

func (f *Formatter) jobLine(jobs []huginn.Job, name, label string, now time.Time) (Line, bool) {
	job, ok := firstEnabledJob(jobs, name)
	if !ok {
		return nil, false
	}
	d, ok, err := f.eval.TimeToNext(job.Schedule, now)
	if err != nil {
		f.log.Warn().Err(err).Str("job", job.Name).Str("schedule", job.Schedule).Msg("skipping job with invalid schedule")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return Line{plain(label + schedule.Humanize(d))}, true
}

func firstEnabledJob(jobs []huginn.Job, name string) (huginn.Job, bool) {
	for _, j := range jobs {
		if j.Enabled && j.Name == name {
			return j, true
		}
	}
	return huginn.Job{}, false
}
