// Command shelfpress drives the resumable discovery/download/package
// pipeline against a subscription-gated digital library.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/alecthomas/kong"
	charm "github.com/charmbracelet/log"

	"github.com/blampe/shelfpress/internal/config"
	"github.com/blampe/shelfpress/internal/discovery"
	"github.com/blampe/shelfpress/internal/epub"
	"github.com/blampe/shelfpress/internal/job"
	"github.com/blampe/shelfpress/internal/logging"
	"github.com/blampe/shelfpress/internal/progress"
	"github.com/blampe/shelfpress/internal/session"
	"github.com/blampe/shelfpress/internal/store"
	"github.com/blampe/shelfpress/internal/xmetrics"
)

// cli contains our command-line flags. The topic catalogue's on-disk
// format and the interactive wizard that produces it belong to external
// tooling; this CLI only consumes a flat JSON array of
// {name, expected_count} as the simplest faithful input.
type cli struct {
	Discover discoverCmd `cmd:"" help:"Run discovery for every topic and write topic manifests."`
	Download downloadCmd `cmd:"" help:"Download and package every book in the topic manifests that is not already on disk."`
	Run      runCmd      `cmd:"" help:"Run discovery followed by download in one job."`
	Verify   verifyCmd   `cmd:"" help:"Print the last run's progress summary, re-check every built EPUB, and exit 3 if either shows failures."`
}

type commonFlags struct {
	logconfig

	TopicsFile        string        `required:"" help:"Path to a JSON array of {\"name\":..., \"expected_count\":...} topics."`
	CookieFile        string        `required:"" help:"Path to the initial (and persisted) cookie jar."`
	Upstream          string        `required:"" help:"Upstream book-provider host, e.g. www.example.com."`
	BaseDirectory     string        `default:"books_by_skills" help:"Output root for e-book packages."`
	BookIDsDirectory  string        `default:"book_ids" help:"Output root for topic manifests."`
	DiscoveryAPI      string        `default:"v2" enum:"v1,v2" help:"Search pagination dialect."`
	MaxBooksPerSkill  int           `default:"0" help:"Per-topic book cap (0 = unlimited)."`
	MaxPagesPerSkill  int           `default:"100" help:"Hard per-topic page cap."`
	DiscoveryDelaySec float64       `default:"1.5" help:"Seconds between discovery requests."`
	DownloadDelaySec  float64       `default:"10" help:"Seconds between book downloads."`
	SessionReuseSec   float64       `default:"2" help:"Seconds between new book sessions."`
	EPUBFormat        string        `default:"dual" enum:"legacy,enhanced,kindle,dual" help:"Which e-book profile(s) to build."`
	Resume            bool          `default:"true" negatable:"" help:"Honor an existing progress file."`
	ForceRedownload   bool          `help:"Ignore the on-disk existence check and redownload everything."`
	TokenSaveInterval int           `default:"5" help:"Persist cookies every N successful book downloads."`
	ProgressFile      string        `help:"Progress checkpoint path (default: <base-directory>/progress.json)."`
	LedgerFile        string        `default:"" help:"Path to the sqlite resume ledger (empty disables it)."`
	ManifestFreshness time.Duration `default:"24h" help:"Reuse a topic manifest younger than this instead of re-running discovery."`
}

func (f *commonFlags) buildConfig() config.Config {
	return config.WithDefaults(config.Config{
		BaseDirectory:     f.BaseDirectory,
		BookIDsDirectory:  f.BookIDsDirectory,
		DiscoveryAPI:      config.DiscoveryAPIVersion(f.DiscoveryAPI),
		MaxBooksPerSkill:  f.MaxBooksPerSkill,
		MaxPagesPerSkill:  f.MaxPagesPerSkill,
		DiscoveryDelay:    time.Duration(f.DiscoveryDelaySec * float64(time.Second)),
		DownloadDelay:     time.Duration(f.DownloadDelaySec * float64(time.Second)),
		SessionReuseDelay: time.Duration(f.SessionReuseSec * float64(time.Second)),
		EPUBFormat:        config.EPUBFormat(f.EPUBFormat),
		Resume:            f.Resume,
		ForceRedownload:   f.ForceRedownload,
		TokenSaveInterval: f.TokenSaveInterval,
		ProgressFile:      f.ProgressFile,
		Upstream:          f.Upstream,
		CookieFile:        f.CookieFile,
		Concurrency:       1,
		ManifestFreshness: f.ManifestFreshness,
	})
}

func (f *commonFlags) loadTopics() ([]discovery.Topic, error) {
	data, err := os.ReadFile(f.TopicsFile)
	if err != nil {
		return nil, fmt.Errorf("reading topics file: %w", err)
	}
	var raw []struct {
		Name          string `json:"name"`
		ExpectedCount int    `json:"expected_count"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing topics file: %w", err)
	}
	topics := make([]discovery.Topic, 0, len(raw))
	for _, t := range raw {
		topics = append(topics, discovery.Topic{Name: t.Name, ExpectedCount: t.ExpectedCount})
	}
	return topics, nil
}

// setup loads the topic catalogue and cookie jar, opens the optional
// resume ledger, and wires a Controller for the flags in f.
func (f *commonFlags) setup(ctx context.Context) (*job.Controller, []discovery.Topic, error) {
	cfg := f.buildConfig()
	topics, err := f.loadTopics()
	if err != nil {
		return nil, nil, err
	}

	jar, err := session.LoadJar(cfg.CookieFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading cookie jar: %w", err)
	}

	var ledger *store.Ledger
	if f.LedgerFile != "" {
		ledger, err = store.NewLedger(ctx, f.LedgerFile)
		if err != nil {
			return nil, nil, fmt.Errorf("opening resume ledger: %w", err)
		}
	}

	metrics := xmetrics.New()
	ctrl := job.New(cfg, jar, ledger, metrics)
	return ctrl, topics, nil
}

type logconfig struct {
	Verbose bool `help:"increase log verbosity"`
}

func (c *logconfig) apply() {
	if c.Verbose {
		logging.Default().SetLevel(charm.DebugLevel)
	}
}

// interruptContext returns a context canceled on SIGINT/SIGTERM, so the
// controller can finish its in-flight request, flush state, and exit
// status 130 rather than being killed mid-write.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

type discoverCmd struct {
	commonFlags
}

func (d *discoverCmd) Run() error {
	d.apply()
	ctx, cancel := interruptContext()
	defer cancel()

	ctrl, topics, err := d.setup(ctx)
	if err != nil {
		os.Exit(int(job.ExitConfigError))
	}
	code, runErr := ctrl.RunDiscover(ctx, topics)
	printSummary(ctrl.Progress())
	return exitWith(code, runErr)
}

type downloadCmd struct {
	commonFlags
}

func (d *downloadCmd) Run() error {
	d.apply()
	ctx, cancel := interruptContext()
	defer cancel()

	ctrl, topics, err := d.setup(ctx)
	if err != nil {
		os.Exit(int(job.ExitConfigError))
	}
	code, runErr := ctrl.RunDownload(ctx, topics)
	printSummary(ctrl.Progress())
	return exitWith(code, runErr)
}

type runCmd struct {
	commonFlags
}

func (r *runCmd) Run() error {
	r.apply()
	ctx, cancel := interruptContext()
	defer cancel()

	ctrl, topics, err := r.setup(ctx)
	if err != nil {
		os.Exit(int(job.ExitConfigError))
	}

	code, runErr := ctrl.RunDiscover(ctx, topics)
	if code != job.ExitSuccess && code != job.ExitPartialSuccess {
		return exitWith(code, runErr)
	}

	code, runErr = ctrl.RunDownload(ctx, topics)
	printSummary(ctrl.Progress())
	return exitWith(code, runErr)
}

type verifyCmd struct {
	logconfig
	ProgressFile  string `required:"" help:"Path to the progress file to summarize."`
	BaseDirectory string `default:"books_by_skills" help:"Output root to re-validate already-built EPUBs under."`
}

// Run prints the last run's progress summary, then re-checks every
// already-built EPUB under BaseDirectory against the packager's
// invariants (manifest completeness, spine completeness, navigation
// targets resolve). This is a read-only re-validation of artifacts
// already on disk -- it never re-fetches or rebuilds anything.
func (v *verifyCmd) Run() error {
	v.apply()
	st, err := loadProgressForVerify(v.ProgressFile)
	if err != nil {
		logging.Default().Error("reading progress file", "err", err)
		os.Exit(int(job.ExitConfigError))
	}
	printSummary(st)

	failures := verifyEPUBsUnder(v.BaseDirectory)
	for _, f := range failures {
		logging.Default().Error("epub verification failed", "err", f)
	}

	if len(st.FailedItems) > 0 || len(failures) > 0 {
		os.Exit(int(job.ExitPartialSuccess))
	}
	return nil
}

// verifyEPUBsUnder walks dir for every .epub file and runs
// epub.VerifyPackage against each, returning one error per failure.
func verifyEPUBsUnder(dir string) []error {
	var failures []error
	_ = filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || !strings.HasSuffix(p, ".epub") {
			return nil
		}
		if verr := epub.VerifyPackage(p); verr != nil {
			failures = append(failures, verr)
		}
		return nil
	})
	return failures
}

// loadProgressForVerify reads path's progress file, treating a missing
// file as a config error rather than an empty summary.
func loadProgressForVerify(path string) (*progress.State, error) {
	st, err := progress.Load(path)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("no progress file at %s", path)
	}
	return st, nil
}

func exitWith(code job.ExitCode, err error) error {
	if err != nil {
		logging.Default().Error("fatal", "err", err)
	}
	if code != job.ExitSuccess {
		os.Exit(int(code))
	}
	return nil
}

func main() {
	kctx := kong.Parse(&cli{})
	if err := kctx.Run(); err != nil {
		logging.Default().Error("fatal", "err", err)
		os.Exit(1)
	}
}

func init() {
	// Limit our memory to 90% of the cgroup memory limit, falling back to
	// total system memory. The asset cache in internal/cache has a fixed
	// cost bound and does not size itself from GOMEMLIMIT.
	_, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(0.9),
		memlimit.WithProvider(
			memlimit.ApplyFallback(
				memlimit.FromCgroup,
				memlimit.FromSystem,
			),
		),
	)
	if err != nil {
		panic(err)
	}
}
