package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jaa/game-acquire/internal/fileops"
	"github.com/jaa/game-acquire/internal/library"
	"github.com/jaa/game-acquire/internal/sidecar"
)

type StopOptions struct {
	// SettleDelay is waited only when workers were found by enumeration
	// and no handle was available to wait on.
	SettleDelay   time.Duration
	Timeout       time.Duration
	DeleteRetries int
	DeleteBackoff time.Duration
}

type TerminatorOptions struct {
	Enumerator  ProcessEnumerator
	Registry    *Registry
	Store       *sidecar.Store
	Resolver    *library.Resolver
	Executables []string
	Stop        StopOptions
	Logger      *zap.Logger
}

// Terminator stops an item's workers and reconciles its on-disk state.
type Terminator struct {
	enumerator  ProcessEnumerator
	registry    *Registry
	store       *sidecar.Store
	resolver    *library.Resolver
	executables []string
	opts        StopOptions
	logger      *zap.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewTerminator(opts TerminatorOptions) *Terminator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	executables := opts.Executables
	if len(executables) == 0 {
		executables = DownloadWorkers()
	}
	store := opts.Store
	if store == nil {
		store = sidecar.NewStore()
	}
	stop := opts.Stop
	if stop.Timeout <= 0 {
		stop.Timeout = 10 * time.Second
	}
	return &Terminator{
		enumerator:  opts.Enumerator,
		registry:    opts.Registry,
		store:       store,
		resolver:    opts.Resolver,
		executables: executables,
		opts:        stop,
		logger:      logger,
		sleep:       sleepContext,
	}
}

// Stop kills every worker for itemName, waits for them to exit, marks the
// sidecar stopped and, when deleteContents is set, removes the item
// folder. Nothing on disk is touched before the workers are gone.
func (t *Terminator) Stop(ctx context.Context, itemName string, deleteContents bool) error {
	item := library.SanitizeName(itemName)
	log := t.logger.With(zap.String("item", item))

	var pids []int32
	if t.enumerator != nil {
		found, err := t.enumerator.Find(ctx, t.executables, item)
		if err != nil {
			log.Warn("process enumeration failed", zap.Error(err))
		}
		pids = found
	}

	for _, pid := range pids {
		if err := t.enumerator.KillTree(ctx, pid); err != nil {
			log.Warn("kill worker failed", zap.Int32("pid", pid), zap.Error(err))
		}
	}
	if len(pids) > 0 {
		if err := waitGone(ctx, t.enumerator, pids, t.opts.Timeout); err != nil {
			return err
		}
	}

	var handle *Process
	if t.registry != nil {
		handle, _ = t.registry.Take(item)
	}
	if handle != nil {
		handle.Kill()
		if err := handle.WaitExit(ctx, t.opts.Timeout); err != nil {
			return err
		}
	} else if len(pids) > 0 && t.opts.SettleDelay > 0 {
		if err := t.sleep(ctx, t.opts.SettleDelay); err != nil {
			return err
		}
	}
	log.Info("workers stopped", zap.Int("enumerated", len(pids)), zap.Bool("had_handle", handle != nil))

	loc, err := t.resolver.Locate(item)
	if err != nil {
		if errors.Is(err, library.ErrItemNotFound) {
			return nil
		}
		return err
	}

	err = t.store.Update(loc.ItemDir, item, func(record *sidecar.Record) error {
		record.Downloading = sidecar.StoppedState()
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, sidecar.ErrNotFound):
	default:
		if !deleteContents {
			return fmt.Errorf("mark %s stopped: %w", item, err)
		}
		log.Warn("mark stopped failed before delete", zap.Error(err))
	}

	if !deleteContents {
		return nil
	}

	if err := fileops.RemoveAllWithRetry(ctx, loc.ItemDir, t.opts.DeleteRetries, t.opts.DeleteBackoff); err != nil {
		if errors.Is(err, fileops.ErrRetriesExhausted) {
			return fmt.Errorf("%w: %w", ErrDeleteRetriesExhausted, err)
		}
		return err
	}
	log.Info("item directory deleted", zap.String("dir", loc.ItemDir))
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
