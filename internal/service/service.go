package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/Dclef/renpybox-sub001/internal/archive"
	"github.com/Dclef/renpybox-sub001/internal/cache"
	"github.com/Dclef/renpybox-sub001/internal/checker"
	"github.com/Dclef/renpybox-sub001/internal/config"
	"github.com/Dclef/renpybox-sub001/internal/dispatch"
	"github.com/Dclef/renpybox-sub001/internal/glossary"
	"github.com/Dclef/renpybox-sub001/internal/persistence"
	"github.com/Dclef/renpybox-sub001/internal/provider"
	"github.com/Dclef/renpybox-sub001/internal/script"
	"github.com/Dclef/renpybox-sub001/pkg/file"
	"github.com/Dclef/renpybox-sub001/pkg/log"
)

// translatedDirName is where rewritten scripts land under the project dir.
const translatedDirName = "translated"

// Service drives the full localization pipeline: discover scripts, build
// the cache, dispatch translation rounds, write results back and audit.
type Service struct {
	cfg      *config.Config
	platform config.Platform
	store    *cache.Store
	ledger   *persistence.SQLiteStore
	pool     *provider.Pool
	cron     *cron.Cron

	stopped atomic.Bool
	group   singleflight.Group

	// prober overrides the capacity probe in tests.
	prober dispatch.SlotProber
}

func New(cfg *config.Config, platform config.Platform, ledger *persistence.SQLiteStore, c *cron.Cron) *Service {
	return &Service{
		cfg:      cfg,
		platform: platform,
		store:    cache.NewStore(),
		ledger:   ledger,
		pool:     provider.NewPool(),
		cron:     c,
	}
}

// Stop flags the pipeline to wind down and tears the connection pool
// down so in-flight requests abort instead of running to timeout.
func (s *Service) Stop() {
	s.stopped.Store(true)
	s.pool.CloseAll()
}

// Schedule registers the pipeline on the cron instance. Overlapping
// triggers collapse into one run. The cache autosave flush is not a cron
// entry: dispatch workers write item fields without per-item locking, so
// the flush may only run at round boundaries (see translate).
func (s *Service) Schedule(ctx context.Context) error {
	runFunc := func() {
		_, _, _ = s.group.Do("run", func() (any, error) {
			if err := s.Run(ctx); err != nil {
				log.Error("Translation run failed: %v", err)
			}
			return nil, nil
		})
	}
	if s.cfg.ScheduleSpec == "" {
		runFunc()
		return nil
	}
	if _, err := s.cron.AddFunc(s.cfg.ScheduleSpec, runFunc); err != nil {
		return fmt.Errorf("schedule run: %w", err)
	}
	return nil
}

// Run executes one full pipeline pass.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.UnpackArchives {
		if err := s.unpackArchives(); err != nil {
			return err
		}
	}

	scripts, err := file.FindByExt(s.cfg.GameDir, ".rpy")
	if err != nil {
		return fmt.Errorf("scan game dir: %w", err)
	}
	if len(scripts) == 0 {
		return fmt.Errorf("no .rpy scripts under %s", s.cfg.GameDir)
	}
	log.Info("Found %d script files under %s", len(scripts), s.cfg.GameDir)

	previous := cache.NewStore()
	previous.Load(s.cfg.ProjectDir)

	items := s.readItems(scripts)
	if merged := mergePastTranslations(items, previous.Items()); merged > 0 {
		log.Info("Reused %d translations from previous cache", merged)
	}
	s.store.SetItems(items)

	srcTag := cache.DetectSourceLanguage(items)
	srcBase, _ := srcTag.Base()
	s.store.SetProject(cache.Project{
		Name:           filepath.Base(s.cfg.GameDir),
		SourceLanguage: srcBase.String(),
		TargetLanguage: s.cfg.TargetLanguage,
		ItemCount:      len(items),
		CreatedAt:      previousOrNow(previous.Project().CreatedAt),
		UpdatedAt:      time.Now(),
	})

	gloss := s.loadGlossary()
	if err := s.translate(ctx, gloss); err != nil {
		return err
	}

	if err := s.store.Save(s.cfg.ProjectDir); err != nil {
		log.Error("Failed to save cache: %v", err)
	}
	s.writeBack()
	if s.cfg.PackOutput {
		if err := s.packOutput(); err != nil {
			return err
		}
	}

	gloss = s.loadGlossary()
	chk := checker.New(checker.Config{
		SourceLanguage: srcBase.String(),
		RetryThreshold: s.cfg.RetryThreshold,
	}, gloss)
	if _, err := chk.Run(s.store.Items(), s.cfg.ProjectDir); err != nil {
		log.Error("Result audit failed: %v", err)
	}
	s.logLedgerSummary(ctx)
	return nil
}

// logLedgerSummary reports a project's accumulated token spend and its
// latest round from the ledger.
func (s *Service) logLedgerSummary(ctx context.Context) {
	if s.ledger == nil {
		return
	}
	project := s.store.Project().Name

	usage, err := s.ledger.TokenUsage(ctx, project)
	if err != nil {
		log.Warn("Failed to read token usage: %v", err)
		return
	}
	log.Info("Project %s: %d rounds recorded, %d input / %d output tokens total",
		project, usage.Rounds, usage.InputTokens, usage.OutputTokens)

	rounds, err := s.ledger.ListRounds(ctx, project)
	if err != nil {
		log.Warn("Failed to list rounds: %v", err)
		return
	}
	if len(rounds) > 0 {
		last := rounds[len(rounds)-1]
		log.Info("Last round %d: %d completed, %d failed, %d blocked batches",
			last.RoundNo, last.BatchesCompleted, last.BatchesFailed, last.BatchesBlocked)
	}
}

// unpackArchives extracts every .rpa archive under the game directory in
// place, so packed games expose their scripts to discovery.
func (s *Service) unpackArchives() error {
	archives, err := file.FindByExt(s.cfg.GameDir, ".rpa")
	if err != nil {
		return fmt.Errorf("scan for archives: %w", err)
	}
	if len(archives) == 0 {
		return nil
	}

	tool := archive.NewRpa(s.cfg.RPAToolPath)
	for _, path := range archives {
		members, err := tool.List(path)
		if err != nil {
			return err
		}
		log.Info("Unpacking %s (%d members)", path, len(members))
		if err := tool.Unpack(path, s.cfg.GameDir); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) readItems(scripts []string) []*cache.Item {
	var items []*cache.Item
	for _, path := range scripts {
		entries, err := script.ParseFile(path)
		if err != nil {
			log.Warn("Failed to parse %s: %v", path, err)
			continue
		}
		rel := file.RelPath(s.cfg.GameDir, path)
		items = append(items, itemsFromEntries(rel, entries)...)
	}
	return items
}

// translate runs dispatch rounds until nothing is left untranslated or
// the round budget is spent. Echoed results are reverted at the top of
// each round so failed batches get another chance.
func (s *Service) translate(ctx context.Context, gloss glossary.Glossary) error {
	prov, err := provider.New(s.platform.ProviderConfig(), s.pool)
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}
	limiter := dispatch.NewLimiter(s.platform.RPS, s.platform.RPM)
	workers := dispatch.ComputeWorkerCount(ctx, s.platform.APIURL, s.platform.Workers, s.platform.RPM, s.prober)
	d := dispatch.New(prov, limiter, workers, s.stopped.Load)
	builder := promptBuilder{targetLanguage: s.cfg.TargetLanguage, gloss: gloss}
	log.Info("Dispatching with %d workers on %s (%s)", workers, s.platform.Name, s.platform.APIFormat)

	for round := 1; round <= s.cfg.MaxRound; round++ {
		if s.stopped.Load() || ctx.Err() != nil {
			log.Warn("Stopping before round %d", round)
			break
		}
		if reverted := s.store.ResetSameTranslationItems(); reverted > 0 {
			log.Info("Reverted %d echoed translations for retry", reverted)
		}

		chunks, preceding := s.store.GenerateChunks(s.cfg.LineLimit, s.cfg.ContextLines)
		if len(chunks) == 0 {
			log.Info("Nothing left to translate after round %d", round-1)
			break
		}

		batches := make([]dispatch.Batch, len(chunks))
		itemCount := 0
		for i, chunk := range chunks {
			batches[i] = dispatch.Batch{
				Items:    chunk,
				Messages: builder.Build(chunk, preceding[i]),
			}
			itemCount += len(chunk)
		}
		log.Info("Round %d: %d batches, %d items", round, len(batches), itemCount)

		started := time.Now()
		stats := d.Run(ctx, batches)
		builder.gloss = s.mergeGlossary(builder.gloss, stats.NewTerms)
		s.recordRound(ctx, round, started, stats, itemCount)

		// The round boundary is the only quiescent point: d.Run has
		// returned, so no worker is writing item fields while the
		// snapshot encoder reads them.
		s.store.RequestSave(s.cfg.ProjectDir)
		s.store.Flush()

		if stats.Skipped == len(batches) {
			break
		}
	}
	return nil
}

func (s *Service) loadGlossary() glossary.Glossary {
	path := filepath.Join(s.cfg.ProjectDir, s.cfg.GlossaryFile)
	gloss, err := glossary.Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("Failed to load glossary %s: %v", path, err)
		}
		return nil
	}
	log.Info("Loaded %d glossary terms", len(gloss))
	return gloss
}

// mergeGlossary appends model-proposed terms not yet known and persists
// the result.
func (s *Service) mergeGlossary(gloss glossary.Glossary, terms []glossary.Term) glossary.Glossary {
	if len(terms) == 0 {
		return gloss
	}
	known := make(map[string]bool, len(gloss))
	for _, t := range gloss {
		known[t.Src] = true
	}
	added := 0
	for _, t := range terms {
		if t.Src == "" || t.Dst == "" || known[t.Src] {
			continue
		}
		known[t.Src] = true
		gloss = append(gloss, t)
		added++
	}
	if added == 0 {
		return gloss
	}

	path := filepath.Join(s.cfg.ProjectDir, s.cfg.GlossaryFile)
	if err := glossary.Save(path, gloss); err != nil {
		log.Warn("Failed to save glossary: %v", err)
	} else {
		log.Info("Added %d glossary terms", added)
	}
	return gloss
}

func (s *Service) recordRound(ctx context.Context, round int, started time.Time, stats dispatch.Stats, itemCount int) {
	log.Info("Round %d done in %s: %d completed, %d failed, %d blocked, %d skipped, %d/%d tokens",
		round, time.Since(started).Round(time.Second),
		stats.Completed, stats.Failed, stats.Blocked, stats.Skipped,
		stats.InputTokens, stats.OutputTokens)
	if s.ledger == nil {
		return
	}

	project := s.store.Project().Name
	roundNo, err := s.ledger.NextRoundNo(ctx, project)
	if err != nil {
		log.Warn("Failed to compute round number: %v", err)
		roundNo = round
	}
	_, err = s.ledger.RecordRound(ctx, persistence.Round{
		Project:          project,
		RoundNo:          roundNo,
		StartedAt:        started,
		FinishedAt:       time.Now(),
		BatchesCompleted: stats.Completed,
		BatchesFailed:    stats.Failed,
		BatchesBlocked:   stats.Blocked,
		ItemsTranslated:  itemCount,
		InputTokens:      stats.InputTokens,
		OutputTokens:     stats.OutputTokens,
	})
	if err != nil {
		log.Warn("Failed to record round: %v", err)
	}
}

// writeBack splices translations into copies of the source scripts under
// the project's translated directory.
func (s *Service) writeBack() {
	outDir := filepath.Join(s.cfg.ProjectDir, translatedDirName)
	written := 0
	for rel, group := range groupByFile(s.store.Items()) {
		entries := entriesForWriteBack(group)
		if len(entries) == 0 {
			continue
		}
		src := filepath.Join(s.cfg.GameDir, filepath.FromSlash(rel))
		dst := filepath.Join(outDir, filepath.FromSlash(rel))
		if err := script.WriteFile(dst, src, entries); err != nil {
			log.Error("Failed to write %s: %v", dst, err)
			continue
		}
		written++
	}
	log.Info("Wrote %d translated script files under %s", written, outDir)
}

// packOutput bundles the translated scripts into one .rpa archive. A
// missing rpatool binary is a hard error here, not a soft skip.
func (s *Service) packOutput() error {
	srcDir := filepath.Join(s.cfg.ProjectDir, translatedDirName)
	if _, err := os.Stat(srcDir); err != nil {
		return fmt.Errorf("nothing to pack: %w", err)
	}
	archivePath := filepath.Join(s.cfg.ProjectDir, s.store.Project().Name+".rpa")
	return archive.NewRpa(s.cfg.RPAToolPath).Pack(srcDir, archivePath)
}

func previousOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
