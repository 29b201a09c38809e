package server

import (
	"context"
	"sync"
	"time"

	"memeflow/internal/archive"
	"memeflow/internal/model"
	"memeflow/internal/publish"
	"memeflow/internal/ws"
	"memeflow/logger"
)

// Dispatcher fans a completed run out to the optional sinks: the S3
// archive, the Kafka topic and the websocket stream. Sinks run off the
// request path and fail independently; a broken sink never affects the
// HTTP response.
type Dispatcher struct {
	archiver    *archive.Archiver
	publisher   *publish.Publisher
	broadcaster *ws.Broadcaster
	timeout     time.Duration
	wg          sync.WaitGroup
	log         *logger.Log
}

// NewDispatcher accepts nil for any sink that is disabled.
func NewDispatcher(archiver *archive.Archiver, publisher *publish.Publisher, broadcaster *ws.Broadcaster) *Dispatcher {
	return &Dispatcher{
		archiver:    archiver,
		publisher:   publisher,
		broadcaster: broadcaster,
		timeout:     10 * time.Second,
		log:         logger.GetLogger(),
	}
}

// Dispatch hands the run to every configured sink and returns
// immediately.
func (d *Dispatcher) Dispatch(result *model.Result) {
	if d.archiver != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()
			if err := d.archiver.ArchiveRun(ctx, result); err != nil {
				d.log.WithComponent("dispatcher").WithError(err).Warn("archive sink failed")
			}
		}()
	}

	if d.publisher != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()
			if err := d.publisher.PublishRun(ctx, result); err != nil {
				d.log.WithComponent("dispatcher").WithError(err).Warn("kafka sink failed")
			}
		}()
	}

	if d.broadcaster != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.broadcaster.BroadcastRun(result)
		}()
	}
}

// Wait blocks until all in-flight sink deliveries finish. Used during
// shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
