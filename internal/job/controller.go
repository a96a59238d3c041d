// Package job orchestrates the end-to-end pipeline: discovery per topic,
// then per-book fetch/asset/package, driven against the shared session,
// rate policy, and progress tracker.
package job

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/blampe/shelfpress/internal/asset"
	"github.com/blampe/shelfpress/internal/bookfetch"
	"github.com/blampe/shelfpress/internal/cache"
	"github.com/blampe/shelfpress/internal/config"
	"github.com/blampe/shelfpress/internal/discovery"
	"github.com/blampe/shelfpress/internal/epub"
	"github.com/blampe/shelfpress/internal/logging"
	"github.com/blampe/shelfpress/internal/naming"
	"github.com/blampe/shelfpress/internal/progress"
	"github.com/blampe/shelfpress/internal/ratelimit"
	"github.com/blampe/shelfpress/internal/session"
	"github.com/blampe/shelfpress/internal/shelferrors"
	"github.com/blampe/shelfpress/internal/store"
	"github.com/blampe/shelfpress/internal/xmetrics"
	"github.com/google/uuid"
)

// ExitCode enumerates the controller's terminal states.
type ExitCode int

const (
	ExitSuccess        ExitCode = 0
	ExitAuthFailed     ExitCode = 1
	ExitConfigError    ExitCode = 2
	ExitPartialSuccess ExitCode = 3
	ExitInterrupted    ExitCode = 130
)

// Controller runs one job: discovery, or download, or both.
type Controller struct {
	cfg        config.Config
	client     *session.Client
	policy     *ratelimit.Policy
	metrics    *xmetrics.Metrics
	ledger     *store.Ledger
	assetCache cache.Cache[[]byte]

	progress     *progress.State
	progressPath string

	booksSinceTokenSave int
}

// assetCacheMaxCost bounds the in-process memoization cache used to dedupe
// asset downloads shared across books in the same topic (e.g. a
// publisher-wide stylesheet).
const assetCacheMaxCost = 64 << 20 // 64MiB

// New builds a Controller from a fully defaulted Config and a loaded
// cookie jar.
func New(cfg config.Config, jar *session.Jar, ledger *store.Ledger, metrics *xmetrics.Metrics) *Controller {
	policy := ratelimit.NewPolicy(cfg.DiscoveryDelay, cfg.DownloadDelay, cfg.SessionReuseDelay)
	client := session.NewClient(cfg.Upstream, jar, policy, cfg.CookieFile, cfg.TokenSaveInterval)
	ratelimit.Guard(context.Background(), cfg.Concurrency)

	assetCache, err := cache.New[[]byte](assetCacheMaxCost)
	if err != nil {
		logging.Default().Warn("asset cache disabled", "err", err)
		assetCache = nil
	}

	return &Controller{
		cfg:        cfg,
		client:     client,
		policy:     policy,
		metrics:    metrics,
		ledger:     ledger,
		assetCache: assetCache,
	}
}

// loadOrInitProgress reads an existing progress file (upgrading its
// schema as needed) or starts a fresh session.
func (c *Controller) loadOrInitProgress(totalSkills int) error {
	path := c.progressPathFor()
	c.progressPath = path

	if c.cfg.Resume {
		existing, err := progress.Load(path)
		if err != nil {
			return shelferrors.Wrap(shelferrors.ResumeConflict, "loading progress file", err)
		}
		if existing != nil {
			if existing.SchemaVersion > progress.CurrentSchemaVersion {
				return shelferrors.New(shelferrors.ResumeConflict,
					fmt.Sprintf("progress file schema %d is newer than supported schema %d", existing.SchemaVersion, progress.CurrentSchemaVersion))
			}
			existing.Resume()
			c.progress = existing
			return nil
		}
	}

	c.progress = progress.New(uuid.NewString(), totalSkills)
	return nil
}

func (c *Controller) progressPathFor() string {
	if c.cfg.ProgressFile != "" {
		return c.cfg.ProgressFile
	}
	return filepath.Join(c.cfg.BaseDirectory, "progress.json")
}

// orderTopics sorts ascending by expected_count (unknown/zero counts
// last) so fast topics complete first and ETA stabilizes quickly.
func orderTopics(topics []discovery.Topic) []discovery.Topic {
	ordered := make([]discovery.Topic, len(topics))
	copy(ordered, topics)
	sort.SliceStable(ordered, func(i, j int) bool {
		ei, ej := ordered[i].ExpectedCount, ordered[j].ExpectedCount
		if ei <= 0 {
			ei = int(^uint(0) >> 1)
		}
		if ej <= 0 {
			ej = int(^uint(0) >> 1)
		}
		return ei < ej
	})
	return ordered
}

// RunDiscover runs discovery for every topic and writes topic manifests.
func (c *Controller) RunDiscover(ctx context.Context, topics []discovery.Topic) (ExitCode, error) {
	if err := c.loadOrInitProgress(len(topics)); err != nil {
		return ExitConfigError, err
	}
	c.progress.BeginPass(len(topics), 0)
	ordered := orderTopics(topics)
	engine := discovery.New(c.client, c.cfg)

	for _, topic := range ordered {
		select {
		case <-ctx.Done():
			c.progress.Pause()
			c.finalize()
			return ExitInterrupted, ctx.Err()
		default:
		}

		if fresh, age := c.manifestIsFresh(topic.Name); fresh {
			logging.Log(ctx).Info("skip", "topic", topic.Name, "reason", "manifest fresher than manifest_freshness window", "age", age)
			c.progress.RecordSkillDone()
			continue
		}

		c.progress.BeginItem("discover:" + topic.Name)
		topicCtx := logging.WithRequestID(ctx, "discover-"+topic.Name)
		manifest, err := engine.Run(topicCtx, topic)
		if shelferrors.Is(err, shelferrors.AuthFailed) {
			c.progress.Fail()
			c.finalize()
			return ExitAuthFailed, err
		}
		if err != nil {
			c.progress.RecordFailure(topic.Name, string(shelferrors.Classify(err)), err.Error())
			logging.Log(topicCtx).Error("discovery failed", "topic", topic.Name, "err", err)
			continue
		}

		if _, err := discovery.WriteManifest(c.cfg.BookIDsDirectory, manifest); err != nil {
			c.progress.RecordFailure(topic.Name, string(shelferrors.TransportError), err.Error())
			continue
		}

		if c.metrics != nil {
			c.metrics.BooksDiscovered.WithLabelValues(topic.Name).Add(float64(manifest.TotalBooks))
			c.metrics.DiscoveryPages.WithLabelValues(topic.Name).Add(float64(manifest.PagesFetched))
		}

		c.progress.RecordSkillDone()
		c.progress.Checkpoint(topic.Name)
		logging.Log(ctx).Info("discover", "topic", topic.Name, "books", manifest.TotalBooks,
			"pages", manifest.PagesFetched, "stop_reason", manifest.StopReason)

		// A completed topic is always flushed, not just every tenth --
		// the existence check is authoritative for resume, but on-disk
		// progress still shouldn't lag an unbounded number of topics
		// behind memory.
		c.flush()
	}

	c.progress.CompleteIfDone()
	c.finalize()
	if len(c.progress.FailedItems) > 0 {
		return ExitPartialSuccess, nil
	}
	return ExitSuccess, nil
}

// RunDownload iterates every topic manifest (smallest first) and
// downloads+packages every book not already present on disk.
func (c *Controller) RunDownload(ctx context.Context, topics []discovery.Topic) (ExitCode, error) {
	if err := c.loadOrInitProgress(len(topics)); err != nil {
		return ExitConfigError, err
	}
	ordered := orderTopics(topics)
	downloader := asset.New(c.client, c.assetCache)
	if c.metrics != nil {
		downloader.OnRetry = func(class asset.Class) {
			c.metrics.AssetRetries.WithLabelValues(string(class)).Inc()
		}
	}
	c.logCrashedBooks(ctx)

	// Read every manifest up front so the progress tracker knows the full
	// book total before the first download; ETA is meaningless otherwise.
	manifests := make(map[string]*discovery.Manifest, len(ordered))
	totalBooks := 0
	for _, topic := range ordered {
		m, err := discovery.ReadManifest(discovery.ManifestPath(c.cfg.BookIDsDirectory, topic.Name))
		if err != nil || m == nil {
			logging.Log(ctx).Warn("no manifest for topic, skipping", "topic", topic.Name)
			continue
		}
		manifests[topic.Name] = m
		totalBooks += m.TotalBooks
	}
	c.progress.BeginPass(len(topics), totalBooks)

	for _, topic := range ordered {
		select {
		case <-ctx.Done():
			c.progress.Pause()
			c.finalize()
			return ExitInterrupted, ctx.Err()
		default:
		}

		manifest := manifests[topic.Name]
		if manifest == nil {
			continue
		}

		topicDir := filepath.Join(c.cfg.BaseDirectory, naming.TopicFolder(topic.Name))
		exitCode, err := c.downloadTopic(ctx, topicDir, *manifest, downloader)
		if exitCode == ExitAuthFailed {
			return exitCode, err
		}
		if exitCode == ExitInterrupted {
			return exitCode, err
		}

		c.progress.RecordSkillDone()
		c.progress.Checkpoint(topic.Name)
		c.flush()
	}

	c.progress.CompleteIfDone()
	c.finalize()
	if len(c.progress.FailedItems) > 0 {
		return ExitPartialSuccess, nil
	}
	return ExitSuccess, nil
}

// manifestIsFresh reports whether topic's manifest already exists and is
// younger than cfg.ManifestFreshness, letting RunDiscover skip re-running
// the search pagination entirely for it. Resume-only: force_redownload
// doesn't bear on discovery, and an unreadable or absent manifest is
// simply not fresh.
func (c *Controller) manifestIsFresh(topicName string) (bool, time.Duration) {
	if !c.cfg.Resume || c.cfg.ManifestFreshness <= 0 {
		return false, 0
	}
	manifest, err := discovery.ReadManifest(discovery.ManifestPath(c.cfg.BookIDsDirectory, topicName))
	if err != nil || manifest == nil {
		return false, 0
	}
	age := time.Since(manifest.DiscoveredAt)
	return age < c.cfg.ManifestFreshness, age
}

// logCrashedBooks reports every book the ledger still shows in-flight
// from a prior run -- a crash mid-book leaves its entry behind, and this
// surfaces that on the next run. It's advisory only: the existence check
// in naming.Exists remains the sole authority over what gets skipped.
func (c *Controller) logCrashedBooks(ctx context.Context) {
	if c.ledger == nil {
		return
	}
	entries, err := c.ledger.Persisted(ctx)
	if err != nil {
		logging.Log(ctx).Warn("reading resume ledger failed", "err", err)
		return
	}
	for _, e := range entries {
		logging.Log(ctx).Warn("book was in-flight when the prior run ended",
			"book", e.BookID, "topic", e.Topic, "profile", e.Profile, "started_at", e.StartedAt)
	}
}

func (c *Controller) downloadTopic(ctx context.Context, topicDir string, manifest discovery.Manifest, downloader *asset.Downloader) (ExitCode, error) {
	profiles := profilesFor(c.cfg.EPUBFormat)

	for _, ref := range manifest.Books {
		select {
		case <-ctx.Done():
			c.progress.Pause()
			c.finalize()
			return ExitInterrupted, ctx.Err()
		default:
		}

		bookDir := filepath.Join(topicDir, naming.BookFolder(ref.Title, ref.BookID))
		c.progress.BeginItem("download:" + ref.BookID)

		if !c.cfg.ForceRedownload && naming.Exists(bookDir, ref.Title, namingProfiles(profiles)) {
			logging.Log(ctx).Info("skip", "book", ref.BookID, "title", ref.Title)
			if c.metrics != nil {
				c.metrics.BooksSkipped.WithLabelValues(manifest.TopicName).Inc()
			}
			// An already-present book still counts toward completion, or a
			// resumed run could never reach its totals.
			c.progress.RecordBookDone()
			continue
		}

		// Both pacing rules apply at the book boundary only: the
		// inter-book download delay and the session-reuse delay. The
		// chapter/asset requests within one book are not individually
		// throttled beyond the shared retry/backoff policy.
		if err := c.policy.Wait(ctx, ratelimit.Download); err != nil {
			c.progress.Pause()
			c.finalize()
			return ExitInterrupted, err
		}
		if err := c.policy.WaitSessionBoundary(ctx); err != nil {
			c.progress.Pause()
			c.finalize()
			return ExitInterrupted, err
		}

		bookCtx := logging.WithRequestID(ctx, "book-"+ref.BookID)
		if c.metrics != nil {
			c.metrics.ActiveBooks.Set(1)
		}
		err := c.downloadOneBook(bookCtx, manifest.TopicName, bookDir, ref, profiles, downloader)
		if c.metrics != nil {
			c.metrics.ActiveBooks.Set(0)
		}
		if err != nil {
			if shelferrors.Is(err, shelferrors.AuthFailed) {
				c.progress.Fail()
				c.finalize()
				return ExitAuthFailed, err
			}
			c.progress.RecordFailure(ref.BookID, string(shelferrors.Classify(err)), err.Error())
			if c.metrics != nil {
				c.metrics.BooksFailed.WithLabelValues(manifest.TopicName, string(shelferrors.Classify(err))).Inc()
			}
			logging.Log(bookCtx).Error("download failed", "book", ref.BookID, "err", err)
			c.saveProgress()
			continue
		}

		c.progress.RecordBookDone()
		if c.metrics != nil {
			c.metrics.BooksDownloaded.WithLabelValues(manifest.TopicName).Inc()
		}

		c.booksSinceTokenSave++
		interval := c.client.TokenSaveInterval()
		if interval <= 0 {
			interval = 1
		}
		if c.booksSinceTokenSave >= interval {
			c.booksSinceTokenSave = 0
			if err := c.client.PersistCookies(); err != nil {
				logging.Log(ctx).Warn("cookie persist failed", "err", err)
			}
		}

		// Every completed item is checkpointed, independent of the
		// N-book cookie-save cadence above.
		c.saveProgress()
	}

	return ExitSuccess, nil
}

func (c *Controller) downloadOneBook(ctx context.Context, topicName, bookDir string, ref discovery.BookRef, profiles []epub.Profile, downloader *asset.Downloader) error {
	if c.ledger != nil {
		_ = c.ledger.Persist(ctx, ref.BookID, topicName, string(c.cfg.EPUBFormat), time.Now())
		defer func() { _ = c.ledger.Delete(ctx, ref.BookID, topicName, string(c.cfg.EPUBFormat)) }()
	}

	book, err := bookfetch.FetchBook(ctx, c.client, ref.BookID)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(bookDir, 0o755); err != nil {
		return shelferrors.Wrap(shelferrors.TransportError, "creating book directory", err)
	}

	if data, err := json.MarshalIndent(book.Metadata, "", "  "); err == nil {
		if err := store.AtomicWrite(filepath.Join(bookDir, "metadata.json"), data, 0o644); err != nil {
			logging.Log(ctx).Warn("metadata sidecar write failed", "book", ref.BookID, "err", err)
		}
	}

	styleResults := downloader.DownloadAll(ctx, filepath.Join(bookDir, "Styles"), book.Stylesheets, asset.ClassStylesheet)
	for _, r := range styleResults {
		if r.Err != nil {
			delete(book.Stylesheets, r.LocalName)
		}
	}

	// External stylesheets may themselves reference background images via
	// CSS url(...); those only surface once the stylesheet is on disk.
	cssImages := downloader.ExtractCSSImages(ctx, filepath.Join(bookDir, "Styles"), book.Stylesheets)
	for name, src := range cssImages {
		book.Images[name] = src
	}

	imgResults := downloader.DownloadAll(ctx, filepath.Join(bookDir, "Images"), book.Images, asset.ClassImage)
	for _, r := range imgResults {
		if r.Err != nil {
			delete(book.Images, r.LocalName)
		}
	}

	firstAuthor := book.Metadata.FirstAuthor()
	for _, profile := range profiles {
		filename := naming.EPUBFilename(ref.Title, firstAuthor, naming.Profile(profile))
		outputPath := filepath.Join(bookDir, filename)
		if err := epub.Build(book, ref.BookID, bookDir, outputPath, profile); err != nil {
			return shelferrors.Wrap(shelferrors.ParseError, "building epub", err)
		}
	}

	return nil
}

func profilesFor(format config.EPUBFormat) []epub.Profile {
	switch format {
	case config.FormatKindle:
		return []epub.Profile{epub.ProfileKindle}
	case config.FormatDual:
		return []epub.Profile{epub.ProfileStandard, epub.ProfileKindle}
	default:
		return []epub.Profile{epub.ProfileStandard}
	}
}

func namingProfiles(profiles []epub.Profile) []naming.Profile {
	out := make([]naming.Profile, len(profiles))
	for i, p := range profiles {
		out[i] = naming.Profile(p)
	}
	return out
}

// saveProgress serializes progress state only. Cookie persistence is
// gated separately by TokenSaveInterval (see downloadTopic), since the
// two have independent cadences -- conflating them would persist cookies
// on every completed item instead of every N books.
func (c *Controller) saveProgress() {
	if c.progress == nil {
		return
	}
	if err := c.progress.Save(c.progressPath); err != nil {
		logging.Default().Error("failed to save progress", "err", err)
	}
}

// flush saves progress and unconditionally persists cookies, regardless
// of the N-book interval. Called after every completed topic and, through
// finalize, at every true exit point.
func (c *Controller) flush() {
	c.saveProgress()
	if c.progress == nil {
		return
	}
	if err := c.client.PersistCookies(); err != nil {
		logging.Default().Error("failed to persist cookies", "err", err)
	}
}

// finalize flushes progress and cookies, then writes the job's final
// human-readable summary file alongside the progress file. Called at
// every true exit point (completion, interruption, or fatal error) --
// never at periodic mid-run checkpoints.
func (c *Controller) finalize() {
	c.flush()
	if c.progress == nil || c.progressPath == "" {
		return
	}
	summaryPath := strings.TrimSuffix(c.progressPath, filepath.Ext(c.progressPath)) + "_summary.txt"
	data := []byte(c.progress.Summary(time.Now()))
	if err := store.AtomicWrite(summaryPath, data, 0o644); err != nil {
		logging.Default().Error("failed to write summary", "err", err)
	}
}

// Progress exposes the controller's progress state for summary reporting.
func (c *Controller) Progress() *progress.State { return c.progress }
