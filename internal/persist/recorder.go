package persist

import (
	"context"
	"sync"
	"time"

	"cliffhop/server/internal/sim"
	"cliffhop/server/internal/telemetry"
)

const (
	defaultQueueDepth   = 256
	defaultWriteTimeout = 2 * time.Second
)

// RecorderConfig tunes the async writer.
type RecorderConfig struct {
	QueueDepth   int
	WriteTimeout time.Duration
	Logger       telemetry.Logger
	Metrics      telemetry.Metrics
}

type record struct {
	tick   uint64
	stage  string
	events []sim.Event
	result *StageResult
}

// Recorder buffers simulation records and writes them off the tick goroutine.
// When the queue is full, records are dropped and counted; the tick never
// waits on the database.
type Recorder struct {
	store *Store
	cfg   RecorderConfig
	queue chan record

	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
}

func NewRecorder(store *Store, cfg RecorderConfig) *Recorder {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	r := &Recorder{
		store: store,
		cfg:   cfg,
		queue: make(chan record, cfg.QueueDepth),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// RecordTick stores the events of one tick. Ticks without events produce no
// rows.
func (r *Recorder) RecordTick(tick uint64, stage string, actors int, events []sim.Event) {
	if len(events) == 0 {
		return
	}
	copied := make([]sim.Event, len(events))
	copy(copied, events)
	r.enqueue(record{tick: tick, stage: stage, events: copied})
}

// RecordStageResult stores one player's stage outcome.
func (r *Recorder) RecordStageResult(stage string, playerID string, score int, deaths int, stageTicks uint64, won bool) {
	r.enqueue(record{result: &StageResult{
		Stage:      stage,
		PlayerID:   playerID,
		Score:      score,
		Deaths:     deaths,
		StageTicks: stageTicks,
		Won:        won,
	}})
}

func (r *Recorder) enqueue(rec record) {
	select {
	case <-r.quit:
		return
	default:
	}
	select {
	case r.queue <- rec:
	default:
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.Add(telemetry.KeyRecorderDropped, 1)
		}
		if r.cfg.Logger != nil {
			r.cfg.Logger.Printf("persist queue full, dropping record")
		}
	}
}

// Close stops the writer after draining what it can before ctx expires.
func (r *Recorder) Close(ctx context.Context) error {
	r.quitOnce.Do(func() { close(r.quit) })
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for {
		select {
		case rec := <-r.queue:
			r.write(rec)
		case <-r.quit:
			for {
				select {
				case rec := <-r.queue:
					r.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(rec record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteTimeout)
	defer cancel()

	var err error
	if rec.result != nil {
		err = r.store.InsertStageResult(ctx, *rec.result)
	} else {
		err = r.store.InsertTickEvents(ctx, rec.tick, rec.stage, rec.events)
	}
	if err != nil {
		if r.cfg.Logger != nil {
			r.cfg.Logger.Printf("persist write failed: %v", err)
		}
		return
	}
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.Add(telemetry.KeyRecorderWrites, 1)
	}
}

var _ sim.Recorder = (*Recorder)(nil)
