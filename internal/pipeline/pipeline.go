// Package pipeline runs the daily mood map stages in order over the store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/abelbrown/moodmap/internal/aggregate"
	"github.com/abelbrown/moodmap/internal/analog"
	"github.com/abelbrown/moodmap/internal/brain"
	"github.com/abelbrown/moodmap/internal/briefing"
	"github.com/abelbrown/moodmap/internal/config"
	"github.com/abelbrown/moodmap/internal/embed"
	"github.com/abelbrown/moodmap/internal/entities"
	"github.com/abelbrown/moodmap/internal/eventlog"
	"github.com/abelbrown/moodmap/internal/gdelt"
	"github.com/abelbrown/moodmap/internal/index"
	"github.com/abelbrown/moodmap/internal/logging"
	"github.com/abelbrown/moodmap/internal/mood"
	"github.com/abelbrown/moodmap/internal/store"
)

// ErrNoData means the window holds no events with both a country and a URL.
var ErrNoData = errors.New("pipeline: no events in window")

// Stage names, as used in run counts and events.
const (
	StageAggregate = "aggregate"
	StageEntities  = "entities"
	StageEmbed     = "embed"
	StageAnalogs   = "analogs"
	StageBriefing  = "briefing"
	StageMood      = "mood"
)

// Options carries every stage's settings for one run.
type Options struct {
	Reference     time.Time
	WindowDays    int
	RetentionDays int
	EmbedChars    int
	TopN          int

	Aggregate aggregate.Options
	Entities  entities.Options
	Analog    analog.Options
	Briefing  briefing.Options
	Mood      mood.Options
}

// OptionsFrom builds run options from the pipeline config.
func OptionsFrom(p config.Pipeline) Options {
	ref := p.Today()
	return Options{
		Reference:     ref,
		WindowDays:    p.WindowDays,
		RetentionDays: p.RetentionDays,
		EmbedChars:    p.EmbedChars,
		TopN:          p.TopN,
		Aggregate: aggregate.Options{
			Reference:     ref,
			WindowDays:    p.WindowDays,
			MaxEventCodes: p.MaxEventCodes,
			MaxSampleURLs: p.MaxSampleURLs,
		},
		Entities: entities.Options{
			Reference:  ref,
			WindowDays: p.WindowDays,
			Top:        p.TopEntities,
		},
		Analog: analog.Options{
			OverFetch:    p.OverFetch,
			TopK:         p.AnalogTopK,
			SnippetChars: p.SnippetChars,
			Jobs:         p.SearchJobs,
		},
		Briefing: briefing.Options{
			ContextChars: p.ContextChars,
			Temperature:  p.Temperature,
			MaxTokens:    p.MaxTokens,
			Jobs:         p.GenerateJobs,
		},
		Mood: mood.Options{
			Temperature:     p.Temperature,
			SentimentTokens: p.SentimentTokens,
			SummaryTokens:   p.SummaryTokens,
			Jobs:            p.GenerateJobs,
		},
	}
}

// Report summarises a finished run.
type Report struct {
	RunID     string
	Reference time.Time
	Counts    map[string]int // rows written per stage
	Dropped   int
	Duration  time.Duration
}

// NewIndexFunc builds an empty similarity index for a run.
type NewIndexFunc func() (index.Index, error)

// Runner executes the stages. Concurrent Run calls share one execution,
// since every stage replaces its table wholesale.
type Runner struct {
	store    *store.Store
	embedder embed.Embedder
	provider brain.Provider
	newIndex NewIndexFunc
	events   *eventlog.Logger // may be nil
	opts     Options

	group singleflight.Group
	now   func() time.Time
}

// NewRunner creates a Runner. events may be nil.
func NewRunner(st *store.Store, e embed.Embedder, p brain.Provider, newIndex NewIndexFunc, events *eventlog.Logger, opts Options) *Runner {
	if newIndex == nil {
		newIndex = func() (index.Index, error) { return index.NewExact(), nil }
	}
	return &Runner{
		store:    st,
		embedder: e,
		provider: p,
		newIndex: newIndex,
		events:   events,
		opts:     opts,
		now:      time.Now,
	}
}

// Run executes stages 1 through 6 once. Callers that overlap a running call
// wait for it and receive its result.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	v, err, _ := r.group.Do("run", func() (any, error) {
		return r.run(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Report), nil
}

// run holds the per-run state shared by the stages.
type run struct {
	*Runner
	id      string
	counts  map[string]int
	dropped int

	topics  []aggregate.CountryDay
	tops    map[string]entities.TopEntities
	index   index.Index
	records []analog.Record
}

func (r *Runner) run(ctx context.Context) (*Report, error) {
	started := r.now()
	ru := &run{Runner: r, id: uuid.NewString(), counts: make(map[string]int)}
	ref := r.opts.Reference.Format(gdelt.DateLayout)

	if err := r.store.StartRun(ru.id, r.opts.Reference, started); err != nil {
		return nil, err
	}
	r.events.Emit(eventlog.Event{Level: eventlog.LevelInfo, Kind: eventlog.KindRunStart, RunID: ru.id, Date: ref})
	logging.Info("Run started", "run", ru.id, "reference_date", ref)

	stages := []struct {
		name string
		fn   func(context.Context) (int, error)
	}{
		{StageAggregate, ru.aggregate},
		{StageEntities, ru.entities},
		{StageEmbed, ru.embed},
		{StageAnalogs, ru.analogs},
		{StageBriefing, ru.briefings},
		{StageMood, ru.mood},
	}

	var runErr error
	for _, s := range stages {
		if runErr = ctx.Err(); runErr != nil {
			break
		}
		stageStart := time.Now()
		r.events.Emit(eventlog.Event{Level: eventlog.LevelInfo, Kind: eventlog.KindStageStart, RunID: ru.id, Stage: s.name})

		n, err := s.fn(ctx)
		if err != nil {
			runErr = fmt.Errorf("%s: %w", s.name, err)
			break
		}
		ru.counts[s.name] = n
		r.events.Emit(eventlog.Event{Level: eventlog.LevelInfo, Kind: eventlog.KindStageDone, RunID: ru.id,
			Stage: s.name, Count: n, Dur: time.Since(stageStart)})
		logging.Info("Stage done", "run", ru.id, "stage", s.name, "rows", n, "took", time.Since(stageStart).Round(time.Millisecond))
	}

	finished := r.now()
	if err := r.store.FinishRun(ru.id, finished, ru.counts, runErr); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		r.events.Emit(eventlog.Event{Level: eventlog.LevelError, Kind: eventlog.KindRunError, RunID: ru.id, Err: runErr.Error()})
		logging.Error("Run failed", "run", ru.id, "err", runErr)
		return nil, runErr
	}

	rep := &Report{
		RunID:     ru.id,
		Reference: r.opts.Reference,
		Counts:    ru.counts,
		Dropped:   ru.dropped,
		Duration:  finished.Sub(started),
	}
	r.events.Emit(eventlog.Event{Level: eventlog.LevelInfo, Kind: eventlog.KindRunDone, RunID: ru.id,
		Count: ru.counts[StageMood], Dur: rep.Duration})
	logging.Info("Run done", "run", ru.id, "moodmap_rows", ru.counts[StageMood], "dropped", ru.dropped)
	return rep, nil
}

// window returns the first and last day of the trailing window.
func (r *Runner) window() (time.Time, time.Time) {
	return r.opts.Reference.AddDate(0, 0, -r.opts.WindowDays), r.opts.Reference
}

// drop returns the callback that records a row left out of stage. Stage
// workers call it concurrently; the run's drop total is taken from the
// stage results instead.
func (ru *run) drop(stage string) func(country string, date time.Time, err error) {
	return func(country string, date time.Time, err error) {
		ru.events.Emit(eventlog.Event{Level: eventlog.LevelWarn, Kind: eventlog.KindRowDrop, RunID: ru.id,
			Stage: stage, Country: country, Date: date.Format(gdelt.DateLayout), Err: err.Error()})
	}
}

// aggregate reads the window and replaces daily_country_topics.
func (ru *run) aggregate(ctx context.Context) (int, error) {
	from, to := ru.window()
	events, err := ru.store.EventsBetween(from, to)
	if err != nil {
		return 0, err
	}

	ru.topics = aggregate.Build(events, ru.opts.Aggregate)
	if len(ru.topics) == 0 {
		return 0, ErrNoData
	}
	if err := ru.store.ReplaceTopics(ru.topics); err != nil {
		return 0, err
	}
	return len(ru.topics), nil
}

// entities joins windowed events to their GKG records and replaces
// daily_top_entities.
func (ru *run) entities(ctx context.Context) (int, error) {
	from, to := ru.window()
	events, err := ru.store.EventsBetween(from, to)
	if err != nil {
		return 0, err
	}

	var kept []gdelt.Event
	var urls []string
	seen := make(map[string]struct{})
	for _, ev := range events {
		if ev.Country == "" || ev.URL == "" {
			continue
		}
		kept = append(kept, ev)
		if _, ok := seen[ev.URL]; !ok {
			seen[ev.URL] = struct{}{}
			urls = append(urls, ev.URL)
		}
	}

	docs, err := ru.store.KnowledgeForURLs(urls)
	if err != nil {
		return 0, err
	}
	tops := entities.Rank(gdelt.Enrich(kept, docs), ru.opts.Entities)
	if err := ru.store.ReplaceEntities(tops); err != nil {
		return 0, err
	}

	ru.tops = make(map[string]entities.TopEntities, len(tops))
	for _, t := range tops {
		ru.tops[t.Key()] = t
	}
	return len(tops), nil
}

// embed embeds every aggregate, replaces news_embeddings and loads the
// vectors into a fresh index.
func (ru *run) embed(ctx context.Context) (int, error) {
	if ru.embedder == nil || !ru.embedder.Available() {
		return 0, errors.New("embedder not available")
	}

	texts := make([]string, len(ru.topics))
	for i, d := range ru.topics {
		texts[i] = embed.Truncate(d.TopicDoc, ru.opts.EmbedChars)
	}
	vecs, err := ru.embedCached(ctx, texts)
	if err != nil {
		return 0, err
	}

	embs := make([]store.Embedding, len(ru.topics))
	ru.records = make([]analog.Record, len(ru.topics))
	for i, d := range ru.topics {
		embs[i] = store.Embedding{ID: d.Key(), Date: d.Date, Country: d.Country, TopicDoc: texts[i], Vector: vecs[i]}
		ru.records[i] = analog.Record{ID: d.Key(), Date: d.Date, Country: d.Country, TopicDoc: texts[i]}
	}
	if err := ru.store.ReplaceEmbeddings(embs); err != nil {
		return 0, err
	}

	ru.index, err = buildIndex(ru.newIndex, embs)
	if err != nil {
		return 0, err
	}
	return len(embs), nil
}

// embedCached embeds texts, reusing cached vectors for text the current
// model has seen before.
func (ru *run) embedCached(ctx context.Context, texts []string) ([][]float32, error) {
	model := modelName(ru.embedder)
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = store.CacheKey(model, t)
	}
	cached, err := ru.store.CachedVectors(keys)
	if err != nil {
		return nil, err
	}

	vecs := make([][]float32, len(texts))
	var missing []string
	var missingAt []int
	for i, k := range keys {
		if v, ok := cached[k]; ok {
			vecs[i] = v
			continue
		}
		missing = append(missing, texts[i])
		missingAt = append(missingAt, i)
	}
	logging.Debug("Embedding cache", "hits", len(texts)-len(missing), "misses", len(missing))

	fresh, err := embed.EmbedAll(ctx, ru.embedder, missing)
	if err != nil {
		return nil, err
	}
	toCache := make(map[string][]float32, len(fresh))
	for j, v := range fresh {
		i := missingAt[j]
		vecs[i] = v
		toCache[keys[i]] = v
	}
	if err := ru.store.CacheVectors(model, toCache); err != nil {
		return nil, err
	}
	return vecs, nil
}

// analogs retrieves the cohort's historical analogs and replaces both
// analog tables.
func (ru *run) analogs(ctx context.Context) (int, error) {
	cohort := analog.Cohort(ru.topics, ru.opts.TopN)
	days, err := analog.NewRetriever(ru.index, ru.records, ru.opts.Analog).Retrieve(ctx, cohort)
	if err != nil {
		return 0, err
	}
	if err := ru.store.ReplaceAnalogs(days); err != nil {
		return 0, err
	}
	return len(days), nil
}

// briefings generates one narrative per cohort country from the stored
// analogs, aggregates and entities.
func (ru *run) briefings(ctx context.Context) (int, error) {
	days, err := ru.store.Analogs()
	if err != nil {
		return 0, err
	}
	byKey := make(map[string]aggregate.CountryDay, len(ru.topics))
	for _, d := range ru.topics {
		byKey[d.Key()] = d
	}

	inputs := make([]briefing.Input, 0, len(days))
	for _, d := range days {
		topic, ok := byKey[d.Key()]
		if !ok {
			continue
		}
		in := briefing.Input{Day: topic, AnalogsText: d.Text}
		if t, ok := ru.tops[d.Key()]; ok {
			in.Themes = t.ThemeLabels()
			in.People = t.PeopleLabels()
		}
		inputs = append(inputs, in)
	}

	out, err := briefing.NewGenerator(ru.provider, ru.opts.Briefing, ru.drop(StageBriefing)).Generate(ctx, inputs)
	if err != nil {
		return 0, err
	}
	ru.dropped += len(inputs) - len(out)
	if err := ru.store.ReplaceBriefings(out); err != nil {
		return 0, err
	}
	return len(out), nil
}

// mood scores the latest date's briefings and replaces daily_moodmap.
func (ru *run) mood(ctx context.Context) (int, error) {
	all, err := ru.store.Briefings()
	if err != nil {
		return 0, err
	}
	var latest time.Time
	for _, b := range all {
		if b.EventDate.After(latest) {
			latest = b.EventDate
		}
	}

	tones := make(map[string]float64, len(ru.topics))
	for _, d := range ru.topics {
		tones[d.Key()] = d.AvgTone
	}

	var inputs []mood.Input
	for _, b := range all {
		if !b.EventDate.Equal(latest) {
			continue
		}
		in := mood.Input{Briefing: b}
		if tone, ok := tones[b.Key()]; ok {
			in.AvgTone = &tone
		}
		if t, ok := ru.tops[b.Key()]; ok {
			in.TopThemes = t.Themes
		}
		inputs = append(inputs, in)
	}

	entries, err := mood.NewBlender(ru.provider, ru.opts.Mood, ru.drop(StageMood)).Score(ctx, inputs)
	if err != nil {
		return 0, err
	}
	ru.dropped += len(inputs) - len(entries)
	if err := ru.store.ReplaceMoodMap(entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

func modelName(e embed.Embedder) string {
	if n, ok := e.(embed.Named); ok && n.Model() != "" {
		return n.Model()
	}
	return "default"
}
