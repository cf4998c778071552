package engine

import (
	"context"
	"sync"

	"github.com/memstrat/memstrat-go/pkg/assembler"
	"github.com/memstrat/memstrat-go/pkg/extractor"
	"github.com/memstrat/memstrat-go/pkg/learning"
	"github.com/memstrat/memstrat-go/pkg/memory"
	"github.com/memstrat/memstrat-go/pkg/policy"
	"github.com/memstrat/memstrat-go/pkg/reaper"
)

// AsyncEngine provides asynchronous engine operations.
//
// It wraps the synchronous Engine and executes operations in separate
// goroutines, returning results over channels. Wait blocks until every
// launched operation has finished.
//
// Example:
//
//	async, _ := engine.NewAsyncEngine(config)
//	defer async.Close()
//
//	resultChan := async.ExtractFromMessageAsync(ctx, msg, policy.StrategyHybrid)
//	result := <-resultChan
//	if result.Error != nil {
//	    log.Fatal(result.Error)
//	}
type AsyncEngine struct {
	*Engine
	wg sync.WaitGroup
}

// NewAsyncEngine creates an asynchronous engine.
func NewAsyncEngine(cfg *Config, opts ...Option) (*AsyncEngine, error) {
	eng, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &AsyncEngine{Engine: eng}, nil
}

// ExtractResult carries the outcome of an asynchronous extraction.
type ExtractResult struct {
	Records []*memory.Record
	Error   error
}

// BundleResult carries the outcome of an asynchronous context assembly.
type BundleResult struct {
	Bundle *assembler.Bundle
	Error  error
}

// LearningResult carries the outcome of an asynchronous learning pass.
type LearningResult struct {
	Stats *learning.Stats
	Error error
}

// CleanupResult carries the outcome of an asynchronous retention sweep.
type CleanupResult struct {
	Stats *reaper.CleanupStats
	Error error
}

// ExtractFromMessageAsync extracts memories in a separate goroutine.
func (ae *AsyncEngine) ExtractFromMessageAsync(ctx context.Context, msg *extractor.Message, strategy policy.Strategy) <-chan *ExtractResult {
	resultChan := make(chan *ExtractResult, 1)
	ae.wg.Add(1)

	go func() {
		defer ae.wg.Done()
		records, err := ae.ExtractFromMessage(ctx, msg, strategy)
		resultChan <- &ExtractResult{
			Records: records,
			Error:   err,
		}
		close(resultChan)
	}()

	return resultChan
}

// GetContextAsync assembles conversation context in a separate goroutine.
func (ae *AsyncEngine) GetContextAsync(ctx context.Context, conversationID, userID string, strategy policy.Strategy, opts ...assembler.Option) <-chan *BundleResult {
	resultChan := make(chan *BundleResult, 1)
	ae.wg.Add(1)

	go func() {
		defer ae.wg.Done()
		bundle, err := ae.GetContext(ctx, conversationID, userID, strategy, opts...)
		resultChan <- &BundleResult{
			Bundle: bundle,
			Error:  err,
		}
		close(resultChan)
	}()

	return resultChan
}

// RunCrossLearningAsync runs a learning pass in a separate goroutine.
func (ae *AsyncEngine) RunCrossLearningAsync(ctx context.Context, userID string) <-chan *LearningResult {
	resultChan := make(chan *LearningResult, 1)
	ae.wg.Add(1)

	go func() {
		defer ae.wg.Done()
		stats, err := ae.RunCrossLearning(ctx, userID)
		resultChan <- &LearningResult{
			Stats: stats,
			Error: err,
		}
		close(resultChan)
	}()

	return resultChan
}

// CleanupExpiredAsync runs a retention sweep in a separate goroutine.
func (ae *AsyncEngine) CleanupExpiredAsync(ctx context.Context) <-chan *CleanupResult {
	resultChan := make(chan *CleanupResult, 1)
	ae.wg.Add(1)

	go func() {
		defer ae.wg.Done()
		stats, err := ae.CleanupExpired(ctx)
		resultChan <- &CleanupResult{
			Stats: stats,
			Error: err,
		}
		close(resultChan)
	}()

	return resultChan
}

// Wait blocks until all asynchronous operations complete.
func (ae *AsyncEngine) Wait() {
	ae.wg.Wait()
}

// Close waits for pending operations and closes the underlying engine.
func (ae *AsyncEngine) Close() error {
	ae.Wait()
	return ae.Engine.Close()
}
