package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/dataflow/pkg/backend"
	"github.com/matzehuels/dataflow/pkg/backend/disk"
	"github.com/matzehuels/dataflow/pkg/backend/gpu"
	"github.com/matzehuels/dataflow/pkg/cache"
	"github.com/matzehuels/dataflow/pkg/config"
	"github.com/matzehuels/dataflow/pkg/ctxthread"
	"github.com/matzehuels/dataflow/pkg/data"
	"github.com/matzehuels/dataflow/pkg/evaluator"
	"github.com/matzehuels/dataflow/pkg/metrics"
	"github.com/matzehuels/dataflow/pkg/network"
	"github.com/matzehuels/dataflow/pkg/processors"
	"github.com/matzehuels/dataflow/pkg/repr"
	"github.com/matzehuels/dataflow/pkg/workerpool"
)

// services are the long-lived objects one command works with. Every
// dependency is created here and passed down explicitly.
type services struct {
	cfg      config.Config
	logger   *log.Logger
	queue    *ctxthread.Queue
	device   *gpu.Device // nil when the GPU backend is disabled
	cache    cache.Cache
	registry *repr.Registry
	metrics  *metrics.Registry
	pool     *workerpool.Pool
}

// newServices builds services from cfg. Callers must call close.
func newServices(cfg config.Config, logger *log.Logger) (*services, error) {
	s := &services{
		cfg:      cfg,
		logger:   logger,
		queue:    ctxthread.New(logger),
		registry: repr.NewRegistry(),
		metrics:  metrics.NewRegistry(),
	}
	hooks := s.metrics.Hooks()

	c, err := openCache(cfg.Cache)
	if err != nil {
		s.close()
		return nil, err
	}
	s.cache = cache.WithHooks(c, hooks.Cache)

	deps := backend.Deps{}
	if cfg.GPU.Enabled {
		if s.device, err = gpu.NewDevice(s.queue, cfg.GPU.MemoryLimit); err != nil {
			s.close()
			return nil, err
		}
		deps.Device = s.device
	}
	if cfg.Cache.Backend != "none" {
		store, err := disk.NewStore(s.cache, nil)
		if err != nil {
			s.close()
			return nil, err
		}
		store.SetTTL(time.Duration(cfg.Cache.TTL))
		deps.Store = store
	}
	if err := backend.Register(s.registry, deps); err != nil {
		s.close()
		return nil, err
	}

	if s.pool, err = workerpool.New(cfg.Pool.Workers, logger); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func openCache(cfg config.CacheConfig) (cache.Cache, error) {
	switch cfg.Backend {
	case "none":
		return cache.NewNullCache(), nil
	case "redis":
		return cache.NewRedisCache(context.Background(), cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			Retry: cache.RetryPolicy{
				Attempts: cfg.Redis.Retries,
				Delay:    time.Duration(cfg.Redis.RetryDelay),
			},
		})
	default:
		return cache.NewFileCache(cfg.Dir)
	}
}

// env returns the processor environment.
func (s *services) env() processors.Env {
	return processors.Env{
		Data: data.Options{
			Registry: s.registry,
			Queue:    s.queue,
			Hooks:    s.metrics.Hooks().Conversion,
			Logger:   s.logger,
		},
		Logger: s.logger,
	}
}

// loadNetwork builds the network described by a pipeline file.
func (s *services) loadNetwork(path string) (*network.Network, error) {
	p, err := config.LoadPipeline(path)
	if err != nil {
		return nil, err
	}
	net := network.New(s.logger)
	if err := processors.Build(net, p, s.env()); err != nil {
		return nil, fmt.Errorf("build %s: %w", path, err)
	}
	return net, nil
}

// evaluator creates an evaluator for net on the shared pool.
func (s *services) evaluator(net *network.Network) (*evaluator.Evaluator, error) {
	return evaluator.New(net, evaluator.Options{
		Logger: s.logger,
		Pool:   s.pool,
		Hooks:  s.metrics.Hooks().Evaluation,
	})
}

// close releases every service. It is safe on partially built services.
func (s *services) close() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Warn("close cache", "err", err)
		}
	}
	if err := s.queue.Close(); err != nil {
		s.logger.Warn("close context queue", "err", err)
	}
}

// runToCompletion evaluates until no pass makes progress and no background
// task is in flight. It returns the per-pass results.
func runToCompletion(ctx context.Context, ev *evaluator.Evaluator) ([]*evaluator.Result, error) {
	var results []*evaluator.Result
	for {
		res, err := ev.Evaluate(ctx)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			return results, err
		}
		if res.Dispatched > 0 || len(ev.InFlight()) > 0 {
			waitIdle(ctx, ev)
			continue
		}
		if res.Processed == 0 && res.Failed == 0 {
			return results, nil
		}
	}
}

// waitIdle waits for background tasks, giving up when ctx is done.
func waitIdle(ctx context.Context, ev *evaluator.Evaluator) {
	done := make(chan struct{})
	go func() {
		ev.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// processorStates counts processors per state name.
func processorStates(net *network.Network) map[string]int {
	counts := make(map[string]int)
	for _, n := range net.Processors() {
		counts[n.State().String()]++
	}
	return counts
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
