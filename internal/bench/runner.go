package bench

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/okian/runtest/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// Results holds per-run timings in seconds, indexed by run.
type Results struct {
	ServerTimes []float64 `json:"serverTimes"`
	ClientTimes []float64 `json:"clientTimes"`
}

// Summary describes one timing series.
type Summary struct {
	Min  float64
	Mean float64
	Max  float64
}

// Run executes cfg.Runs requests and returns their timings.
// Any failed run fails the whole set.
func Run(ctx context.Context, cfg *Config) (*Results, error) {
	if err := validation.Validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.Get().Named("bench")
	log.Info(ctx, "starting bench",
		logger.String("url", cfg.URL),
		logger.Int("items", len(cfg.Items)),
		logger.Float64("budget", cfg.Budget),
		logger.Int("runs", cfg.Runs),
		logger.Int("concurrency", cfg.Concurrency),
		logger.Float64("rps", cfg.RPS))

	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	limiter := rate.NewLimiter(limit, 1)

	res := &Results{
		ServerTimes: make([]float64, cfg.Runs),
		ClientTimes: make([]float64, cfg.Runs),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for i := 0; i < cfg.Runs; i++ {
		if err := limiter.Wait(gctx); err != nil {
			break
		}
		g.Go(func() error {
			s, err := client.Do(gctx)
			if err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
			// Each goroutine owns index i.
			res.ServerTimes[i] = s.Server
			res.ClientTimes[i] = s.Client
			log.Debug(gctx, "run complete",
				logger.Int("run", i),
				logger.Float64("server", s.Server),
				logger.Float64("client", s.Client))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Summarize returns min, mean and max of values.
func Summarize(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, ErrNoResults
	}
	s := Summary{Min: math.Inf(1), Max: math.Inf(-1)}
	var sum float64
	for _, v := range values {
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
		sum += v
	}
	s.Mean = sum / float64(len(values))
	return s, nil
}

// LogSummary logs the server and client summaries.
func (r *Results) LogSummary(ctx context.Context) {
	log := logger.Get().Named("bench")
	for _, series := range []struct {
		name   string
		values []float64
	}{
		{"server", r.ServerTimes},
		{"client", r.ClientTimes},
	} {
		s, err := Summarize(series.values)
		if err != nil {
			log.Warn(ctx, "nothing to summarize", logger.String("series", series.name))
			continue
		}
		log.Info(ctx, "timing summary",
			logger.String("series", series.name),
			logger.Int("runs", len(series.values)),
			logger.Float64("min", s.Min),
			logger.Float64("mean", s.Mean),
			logger.Float64("max", s.Max))
	}
}

// Save writes the results as JSON to path.
func (r *Results) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(path, data, filePermission); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return nil
}
