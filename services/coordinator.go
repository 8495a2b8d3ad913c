package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"news-faces/metrics"
)

var (
	// ErrBusy wird zurückgegeben, wenn bereits ein Lauf aktiv ist.
	ErrBusy = errors.New("pipeline run already in progress")

	// ErrLeaseLost meldet einen Lauf, der abgebrochen wurde, weil der Run-Lock verloren ging.
	ErrLeaseLost = errors.New("run lock lost during pipeline run")
)

// Runner führt einen Pipeline-Lauf aus; implementiert von IngestionPipeline.
type Runner interface {
	Run(ctx context.Context) (*RunSummary, error)
}

// everySchedule feuert exakt im Abstand d, ohne auf volle Sekunden zu runden.
type everySchedule struct {
	d time.Duration
}

func (s everySchedule) Next(t time.Time) time.Time {
	return t.Add(s.d)
}

// RunCoordinator lässt höchstens einen Lauf gleichzeitig zu. Manuelle Trigger
// bekommen ErrBusy, geplante Läufe werden bei belegtem Lock still übersprungen.
// Läufe nutzen den Root-Context des Coordinators, nicht den der Anfrage.
type RunCoordinator struct {
	Pipeline        Runner
	Lock            RunLock
	RefreshInterval time.Duration
	StartupDelay    time.Duration
	Logger          *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	mu      sync.Mutex
	started bool
	stopped bool
	cron    *cron.Cron
	startup *time.Timer
}

func NewRunCoordinator(ctx context.Context, pipeline Runner, lock RunLock, refreshInterval, startupDelay time.Duration, logger *zap.Logger) *RunCoordinator {
	ctx, cancel := context.WithCancel(ctx)
	return &RunCoordinator{
		Pipeline:        pipeline,
		Lock:            lock,
		RefreshInterval: refreshInterval,
		StartupDelay:    startupDelay,
		Logger:          logger,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Running meldet, ob in diesem Prozess gerade ein Lauf aktiv ist.
func (c *RunCoordinator) Running() bool {
	return c.running.Load()
}

// acquire registriert den Lauf in wg und belegt den Lock. Bei Erfolg muss der
// Aufrufer execute aufrufen, das wg.Done übernimmt.
func (c *RunCoordinator) acquire(ctx context.Context) (*Lease, error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil, context.Canceled
	}
	c.wg.Add(1)
	c.mu.Unlock()

	lease, err := c.Lock.TryAcquire(ctx)
	if err != nil {
		c.wg.Done()
		return nil, err
	}
	if lease == nil {
		c.wg.Done()
		return nil, ErrBusy
	}
	return lease, nil
}

func (c *RunCoordinator) execute(lease *Lease, trigger string) (*RunSummary, error) {
	defer c.wg.Done()
	defer lease.Release()
	c.running.Store(true)
	defer c.running.Store(false)

	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	var lost atomic.Bool
	go func() {
		select {
		case <-lease.Lost():
			lost.Store(true)
			c.Logger.Error("Run-Lock verloren, breche Lauf ab", zap.String("trigger", trigger))
			cancel()
		case <-ctx.Done():
		}
	}()

	c.Logger.Info("Starte Pipeline-Lauf", zap.String("trigger", trigger))
	summary, err := c.Pipeline.Run(ctx)
	if err != nil && lost.Load() {
		return nil, ErrLeaseLost
	}
	return summary, err
}

// TriggerNow führt einen Lauf synchron aus. ctx wird nur für die Lock-Anfrage genutzt.
func (c *RunCoordinator) TriggerNow(ctx context.Context) (*RunSummary, error) {
	lease, err := c.acquire(ctx)
	if err != nil {
		if errors.Is(err, ErrBusy) {
			metrics.BusyRejections.WithLabelValues("manual").Inc()
		}
		return nil, err
	}
	return c.execute(lease, "manual")
}

// TriggerAsync belegt den Lock synchron und führt den Lauf im Hintergrund aus.
func (c *RunCoordinator) TriggerAsync(ctx context.Context) error {
	lease, err := c.acquire(ctx)
	if err != nil {
		if errors.Is(err, ErrBusy) {
			metrics.BusyRejections.WithLabelValues("manual").Inc()
		}
		return err
	}
	go func() {
		if _, err := c.execute(lease, "manual_async"); err != nil {
			c.Logger.Error("Asynchroner Lauf fehlgeschlagen", zap.Error(err))
		}
	}()
	return nil
}

// RunScheduled ist der Einstiegspunkt des Schedulers.
func (c *RunCoordinator) RunScheduled() {
	lease, err := c.acquire(c.ctx)
	if errors.Is(err, ErrBusy) {
		metrics.BusyRejections.WithLabelValues("scheduled").Inc()
		c.Logger.Debug("Lauf aktiv, überspringe geplanten Trigger")
		return
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.Logger.Error("Run-Lock nicht verfügbar", zap.Error(err))
		}
		return
	}
	if _, err := c.execute(lease, "scheduled"); err != nil {
		c.Logger.Error("Geplanter Lauf fehlgeschlagen", zap.Error(err))
	}
}

// Start plant einen Lauf nach StartupDelay. Erst danach beginnt der Takt von
// RefreshInterval.
func (c *RunCoordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.stopped {
		return
	}
	c.started = true
	c.startup = time.AfterFunc(c.StartupDelay, c.startupRun)
	c.Logger.Info("Scheduler gestartet",
		zap.Duration("startup_delay", c.StartupDelay),
		zap.Duration("refresh_interval", c.RefreshInterval))
}

func (c *RunCoordinator) startupRun() {
	c.RunScheduled()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	cl := NewCronLogger(c.Logger)
	c.cron = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl)))
	c.cron.Schedule(everySchedule{d: c.RefreshInterval}, cron.FuncJob(c.RunScheduled))
	c.cron.Start()
}

// Stop beendet den Scheduler, bricht laufende Läufe ab und wartet bis ctx abläuft.
// Danach lehnen alle Trigger mit context.Canceled ab.
func (c *RunCoordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.stopped = true
	if c.startup != nil {
		c.startup.Stop()
	}
	var cronDone context.Context
	if c.cron != nil {
		cronDone = c.cron.Stop()
	}
	c.mu.Unlock()

	c.cancel()

	done := make(chan struct{})
	go func() {
		if cronDone != nil {
			<-cronDone.Done()
		}
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CronLogger leitet die Meldungen von robfig/cron an zap weiter.
type CronLogger struct {
	log *zap.SugaredLogger
}

func NewCronLogger(logger *zap.Logger) CronLogger {
	return CronLogger{log: logger.Named("cron").Sugar()}
}

func (l CronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
