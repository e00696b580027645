package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"goamcc/adapters/classifier"
	"goamcc/adapters/excel"
	"goamcc/adapters/explainer"
	"goamcc/domain/core"
	"goamcc/domain/counterfactual"
	"goamcc/domain/dataset"
	"goamcc/domain/explain"
	"goamcc/domain/run"
	"goamcc/domain/transition"
	"goamcc/internal"
	"goamcc/internal/config"
	ds "goamcc/internal/dataset"
	"goamcc/internal/errors"
	"goamcc/internal/metrics"
	"goamcc/internal/timeout"
	"goamcc/ports"
)

// CodeVersion is recorded in every run fingerprint
const CodeVersion = "v0.3.0"

// Messages reported per searched instance
const (
	MsgSuccess = "Successful modification."
	MsgFailure = "Failed modification."
)

// CounterfactualService runs batch counterfactual searches over the test
// partition of a dataset
type CounterfactualService struct {
	logger  *internal.Logger
	metrics *metrics.Metrics
	repo    ports.RunRepository
	now     func() time.Time
}

// ServiceOption configures a CounterfactualService
type ServiceOption func(*CounterfactualService)

// WithMetrics records per-search metrics
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *CounterfactualService) { s.metrics = m }
}

// WithRepository persists every finished report
func WithRepository(repo ports.RunRepository) ServiceOption {
	return func(s *CounterfactualService) { s.repo = repo }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) ServiceOption {
	return func(s *CounterfactualService) { s.now = now }
}

// NewCounterfactualService creates the batch runner
func NewCounterfactualService(logger *internal.Logger, opts ...ServiceOption) *CounterfactualService {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	s := &CounterfactualService{logger: logger.Named("runner"), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Batch holds the trained components one run searches with
type Batch struct {
	Dataset    *dataset.Dataset
	Classifier ports.Classifier
	Explainer  ports.Explainer
	// Accuracy of Classifier on the test partition, reported as is
	Accuracy float64
}

// LoadDataset reads the data file and encodes it into categorical features
func (s *CounterfactualService) LoadDataset(cfg config.RunConfig, log *internal.Logger) (*dataset.Dataset, error) {
	readerOpts := []excel.ReaderOption{excel.WithDelimiter(cfg.Delimiter), excel.WithLogger(log)}
	if !cfg.HasHeader() {
		readerOpts = append(readerOpts, excel.WithoutHeader())
	}
	table, err := excel.NewDataReader(cfg.DataPath, readerOpts...).ReadTable()
	if err != nil {
		return nil, errors.DatasetError(err, "failed to read data file")
	}

	data, err := ds.Build(table, ds.Spec{
		TargetIdx:            cfg.TargetIdx,
		FeatureNames:         cfg.FeatureNames,
		TestSize:             cfg.TestSize,
		Seed:                 cfg.Seed,
		CategoricalThreshold: cfg.CategoricalThreshold,
	})
	if err != nil {
		return nil, errors.DatasetError(err, "failed to encode dataset")
	}
	log.Debug("[Runner] Encoded %d features, %d classes (train=%d test=%d)",
		len(data.Features), len(data.ClassNames), data.Train.Len(), data.Test.Len())
	return data, nil
}

// Prepare loads the dataset, trains the classifier and builds the explainer
func (s *CounterfactualService) Prepare(ctx context.Context, cfg config.RunConfig, log *internal.Logger) (*Batch, error) {
	data, err := s.LoadDataset(cfg, log)
	if err != nil {
		return nil, err
	}

	nb := classifier.NewNaiveBayes(classifier.DefaultAlpha)
	if err := nb.Train(data); err != nil {
		return nil, errors.Wrap(err, "failed to train classifier")
	}
	accuracy, err := nb.Accuracy(ctx, data.Test)
	if err != nil {
		return nil, errors.ClassifierError(err)
	}
	log.Info("Classifier accuracy: %.3f", accuracy)

	return &Batch{
		Dataset:    data,
		Classifier: nb,
		Explainer: explainer.NewAnchor(nb, data,
			explainer.WithThreshold(cfg.ThreshProb),
			explainer.WithSeed(cfg.Seed)),
		Accuracy: accuracy,
	}, nil
}

// Run prepares the components for cfg and executes the batch. sink receives
// the user-facing messages as they happen and may be nil.
func (s *CounterfactualService) Run(ctx context.Context, cfg config.RunConfig, sink *internal.Sink) (*run.Report, error) {
	return s.RunWithID(ctx, core.NewRunID(), cfg, sink)
}

// RunWithID is Run with a caller-chosen run identifier
func (s *CounterfactualService) RunWithID(ctx context.Context, runID core.RunID, cfg config.RunConfig, sink *internal.Sink) (report *run.Report, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RunStarted()
		defer func() { s.metrics.RunFinished(err) }()
	}

	log := s.runLogger(sink)
	batch, err := s.Prepare(ctx, cfg, log)
	if err != nil {
		log.Error("Run failed: %v", err)
		return nil, err
	}
	return s.execute(ctx, runID, cfg, batch, log)
}

// Execute searches with already prepared components
func (s *CounterfactualService) Execute(ctx context.Context, cfg config.RunConfig, batch *Batch, sink *internal.Sink) (*run.Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return s.execute(ctx, core.NewRunID(), cfg, batch, s.runLogger(sink))
}

func (s *CounterfactualService) runLogger(sink *internal.Sink) *internal.Logger {
	if sink == nil {
		return s.logger
	}
	return s.logger.WithSink(sink)
}

// target is one test row selected for search
type target struct {
	row      int
	instance dataset.Instance
	label    dataset.Label
}

func (s *CounterfactualService) execute(ctx context.Context, runID core.RunID, cfg config.RunConfig, batch *Batch, log *internal.Logger) (*run.Report, error) {
	data := batch.Dataset
	rules, dropped, err := transition.ParseWithDropped(cfg.TransitionRules, data.FeatureNames())
	if err != nil {
		return nil, &errors.AppError{Code: errors.CodeConfigInvalid, Message: "invalid transition rules", Cause: err}
	}
	for _, d := range dropped {
		log.Warn("Ignoring transition rule %q for feature %q", d.Symbol, d.Feature)
	}

	params := run.Parameters{
		DataPath:        cfg.DataPath,
		TargetIdx:       cfg.TargetIdx,
		ThreshProb:      cfg.ThreshProb,
		IgnoreIndices:   cfg.IgnoreIndices,
		TransitionRules: cfg.TransitionRules,
		TimeoutSeconds:  cfg.TimeoutSeconds,
		Seed:            cfg.Seed,
		UndesiredLabel:  cfg.UndesiredLabel,
		MaxDepth:        cfg.MaxDepth,
	}
	report := &run.Report{
		RunID:       runID,
		Parameters:  params,
		Fingerprint: run.NewFingerprint(params, CodeVersion),
		Accuracy:    batch.Accuracy,
		OutputFile:  cfg.OutputFile,
		StartedAt:   s.now(),
	}

	targets, err := s.selectTargets(ctx, batch, dataset.Label(cfg.UndesiredLabel))
	if err != nil {
		return nil, err
	}
	log.Debug("[Runner] %d of %d test rows selected for search", len(targets), data.Test.Len())

	engine := counterfactual.NewEngine(batch.Classifier, rules)
	outcomes := make([]run.Outcome, len(targets))
	sem := semaphore.NewWeighted(int64(cfg.Workers))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range targets {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			o, err := s.searchOne(gctx, cfg, batch, engine, t, log)
			if err != nil {
				return fmt.Errorf("test instance %d: %w", t.row, err)
			}
			outcomes[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("Run failed: %v", err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report.Outcomes = outcomes
	for _, o := range outcomes {
		report.Messages = append(report.Messages, OutcomeMessages(o)...)
	}
	report.Finalize(s.now())
	log.Info("Run %s finished: %d/%d modified", runID, report.Summary.Successes, report.Summary.Instances)

	if cfg.OutputFile != "" {
		if err := excel.NewReportWriter(cfg.OutputFile).Write(run.TableHeader, run.Table(outcomes)); err != nil {
			return nil, errors.Wrapf(err, "failed to write results to %s", cfg.OutputFile)
		}
	}
	if s.repo != nil {
		if err := s.repo.SaveReport(ctx, report); err != nil {
			return report, errors.PersistenceError(err, "failed to save run report")
		}
	}
	return report, nil
}

// selectTargets returns the test rows whose true and predicted label both
// equal undesired, in test order
func (s *CounterfactualService) selectTargets(ctx context.Context, batch *Batch, undesired dataset.Label) ([]target, error) {
	var out []target
	test := batch.Dataset.Test
	for i, x := range test.Rows {
		if test.Labels[i] != undesired {
			continue
		}
		label, err := batch.Classifier.Predict(ctx, x)
		if err != nil {
			return nil, errors.ClassifierError(err)
		}
		if label == undesired {
			out = append(out, target{row: i, instance: x, label: label})
		}
	}
	return out, nil
}

func (s *CounterfactualService) searchOne(
	ctx context.Context,
	cfg config.RunConfig,
	batch *Batch,
	engine *counterfactual.Engine,
	t target,
	log *internal.Logger,
) (run.Outcome, error) {
	data := batch.Dataset
	outcome := run.Outcome{Index: t.row, Original: t.instance.Clone()}

	rule, err := batch.Explainer.Explain(ctx, t.instance)
	if err != nil {
		return outcome, errors.ExplainerError(err)
	}
	outcome.Explanation = rule

	names, skipped := explain.ExtractClauses(rule)
	for _, c := range skipped {
		log.Debug("[Runner] Skipping clause %q", c)
	}
	outcome.Features = names

	ignored := cfg.Ignored()
	eligible := make([]int, 0, len(names))
	for _, name := range names {
		idx, err := data.FeatureIndex(name)
		if err != nil {
			log.Warn("Skipping unknown feature %q in explanation", name)
			continue
		}
		if _, skip := ignored[idx]; skip {
			continue
		}
		eligible = append(eligible, idx)
	}

	guard := timeout.New(cfg.TimeoutSeconds)
	var stats counterfactual.Stats
	result, err := timeout.Do(ctx, guard, func(ctx context.Context) (*counterfactual.Result, error) {
		return engine.Search(ctx, t.instance, t.label, data.Domains,
			counterfactual.WithEligible(eligible...),
			counterfactual.WithExcluded(cfg.IgnoreIndices...),
			counterfactual.WithMaxDepth(cfg.MaxDepth),
			counterfactual.WithStats(&stats))
	})

	switch {
	case err != nil && core.IsTimeoutError(err):
		if ctx.Err() != nil {
			return outcome, ctx.Err()
		}
		outcome.Status = run.StatusTimeout
		log.Warn("Search for test instance %d timed out after %s", t.row, guard.Limit())
		s.observe(outcome)
		return outcome, nil
	case err != nil:
		if ctx.Err() != nil {
			return outcome, ctx.Err()
		}
		if errors.IsAppError(err) {
			return outcome, err
		}
		return outcome, errors.ClassifierError(err)
	}

	outcome.Elapsed, outcome.HasElapsed = guard.Elapsed()
	outcome.Expansions = stats.Expansions
	if result != nil {
		outcome.Status = run.StatusFound
		outcome.Modified = result.Instance
		for _, idx := range t.instance.Diff(result.Instance) {
			outcome.Changes = append(outcome.Changes, run.Change{
				Index:   idx,
				Feature: data.Features[idx].Name,
				From:    data.CategoryName(idx, t.instance[idx]),
				To:      data.CategoryName(idx, result.Instance[idx]),
			})
		}
	} else {
		outcome.Status = run.StatusAbsent
	}

	for _, msg := range OutcomeMessages(outcome) {
		log.Info("%s", msg)
	}
	s.observe(outcome)
	return outcome, nil
}

func (s *CounterfactualService) observe(o run.Outcome) {
	if s.metrics != nil {
		s.metrics.ObserveSearch(string(o.Status), o.Elapsed, o.Expansions)
	}
}

// OutcomeMessages returns the user-facing messages for one outcome. Timed
// out searches report nothing.
func OutcomeMessages(o run.Outcome) []string {
	switch o.Status {
	case run.StatusFound:
		return []string{MsgSuccess, "Modified Instances: " + run.FormatChanges(o.Changes)}
	case run.StatusAbsent:
		return []string{MsgFailure}
	default:
		return nil
	}
}
