// Package service wires the readings pipeline, simulation, auth and
// notifications into the operations served by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/okian/padmon/internal/adapters/auth"
	"github.com/okian/padmon/internal/adapters/mq/kafka"
	eventqueue "github.com/okian/padmon/internal/adapters/mq/queue"
	workerpool "github.com/okian/padmon/internal/adapters/mq/worker"
	"github.com/okian/padmon/internal/adapters/mqtt"
	"github.com/okian/padmon/internal/adapters/notify"
	"github.com/okian/padmon/internal/adapters/repository"
	"github.com/okian/padmon/internal/config"
	"github.com/okian/padmon/internal/domain/analytics"
	"github.com/okian/padmon/internal/domain/dedupe"
	"github.com/okian/padmon/internal/domain/export"
	"github.com/okian/padmon/internal/domain/model"
	"github.com/okian/padmon/internal/domain/profile"
	"github.com/okian/padmon/internal/domain/risk"
	"github.com/okian/padmon/internal/domain/simulator"
	"github.com/okian/padmon/pkg/logger"
	"github.com/okian/padmon/pkg/metrics"
)

// Errors returned by Service operations.
var (
	ErrNotStarted         = errors.New("service not started")
	ErrQueueFull          = errors.New("reading queue is full")
	ErrDuplicate          = errors.New("reading already received")
	ErrInvalidMeasurement = errors.New("invalid measurement")
	ErrEmailRequired      = errors.New("please enter your doctor's email address")
	ErrInvalidDoctorEmail = errors.New("doctor email address is badly formatted")
)

// DoctorRequest is a recorded invitation for a doctor to view a patient's
// data.
type DoctorRequest struct {
	PatientEmail string    `json:"patientEmail"`
	DoctorEmail  string    `json:"doctorEmail"`
	Message      string    `json:"message,omitempty"`
	RequestedAt  time.Time `json:"requestedAt"`
}

// Service implements the API dependencies for the monitor.
type Service struct {
	mu  sync.RWMutex
	cfg *config.Config

	// Core components
	store      repository.Store
	ownsStore  bool
	redis      *redis.Client
	deduper    dedupe.Deduper
	queue      eventqueue.Queue
	workerPool *workerpool.Pool
	runner     *simulator.Runner
	generator  *simulator.Generator
	auth       *auth.Provider
	hub        *notify.Hub
	publisher  workerpool.Publisher
	kafka      *kafka.Publisher
	mqtt       *mqtt.Subscriber

	doctorMu sync.Mutex
	doctors  []DoctorRequest

	profileMu sync.Mutex
	profiles  map[string]profile.Profile

	clock func() time.Time

	// State
	started bool
	runCtx  context.Context
	cancel  context.CancelFunc

	// Logging
	logger logger.Logger
}

// New constructs a Service. Components are created by Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:      config.New(),
		clock:    time.Now,
		profiles: make(map[string]profile.Profile),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	s.hub = notify.NewHub(
		notify.WithHistory(s.cfg.NotificationHistory),
		notify.WithLogger(s.logger),
		notify.WithClock(s.clock),
	)
	s.auth = auth.NewProvider(
		auth.WithSessionTTL(s.cfg.SessionTTL),
		auth.WithBcryptCost(s.cfg.BcryptCost),
		auth.WithClock(s.clock),
	)
	return s
}

// Start initializes and starts the service components. It is a no-op when
// already started.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting monitor service...")

	runCtx, cancel := context.WithCancel(ctx)
	if err := s.openStore(runCtx); err != nil {
		cancel()
		return err
	}
	if err := s.openPublisher(runCtx); err != nil {
		cancel()
		s.closeStore(ctx)
		return err
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.cfg.QueueSize))

	poolOpts := []workerpool.Option{
		workerpool.WithLogger(s.logger),
		workerpool.WithFailureHandler(s.onAppendFailure),
	}
	if s.publisher != nil {
		poolOpts = append(poolOpts, workerpool.WithPublisher(s.publisher))
	}
	s.workerPool = workerpool.NewPool(s.cfg.WorkerCount, s.queue, s.store, poolOpts...)
	s.workerPool.Start(runCtx)

	if s.generator == nil {
		s.generator = simulator.NewGenerator(simulator.WithSymptomProbability(s.cfg.SymptomProbability))
	}
	s.runner = simulator.NewRunner(s.generator, s.enqueue,
		simulator.WithInterval(s.cfg.SimulationInterval),
		simulator.WithClock(s.clock),
		simulator.WithLogger(s.logger),
		simulator.WithErrorHandler(func(ctx context.Context, _ error) {
			s.reportStoreFailure(ctx)
		}),
	)

	s.runCtx, s.cancel = runCtx, cancel
	s.started = true

	if s.cfg.MQTTEnabled {
		if err := s.startMQTT(runCtx); err != nil {
			s.logger.Error(ctx, "mqtt ingest disabled", logger.Error(err))
			notify.Error(ctx, s.hub, "MQTT ingest unavailable", err)
		}
	}

	s.logger.Info(ctx, "monitor service started",
		logger.String("store", s.cfg.StoreBackend),
		logger.Int("workers", s.cfg.WorkerCount),
		logger.Int("queueSize", s.cfg.QueueSize),
		logger.Duration("interval", s.cfg.SimulationInterval),
	)

	if s.cfg.SimulationAutostart && s.store.Count(ctx) == 0 {
		s.logger.Info(ctx, "store is empty, starting simulation")
		s.startSimulationLocked(ctx)
	}
	return nil
}

// Stop shuts the service down: simulation first, then ingest, then the
// worker pool drains the queue, then the store closes.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping monitor service...")

	s.runner.Stop()
	if s.mqtt != nil {
		s.mqtt.Close()
		s.mqtt = nil
	}

	var errs []error
	if err := s.workerPool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.kafka != nil {
		if err := s.kafka.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka publisher: %w", err))
		}
		s.kafka = nil
		s.publisher = nil
	}
	s.cancel()
	s.closeStore(ctx)

	s.started = false
	s.logger.Info(ctx, "monitor service stopped")
	return errors.Join(errs...)
}

func (s *Service) openStore(ctx context.Context) error {
	if s.store != nil {
		return nil
	}
	switch s.cfg.StoreBackend {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     s.cfg.RedisAddr,
			Password: s.cfg.RedisPassword,
			DB:       s.cfg.RedisDB,
		})
		store, err := repository.NewRedisStore(ctx, client, s.logger.Named("redis-store"),
			repository.WithStreamKey(s.cfg.RedisStream),
			repository.WithMaxLen(s.cfg.RedisMaxLen),
		)
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("open redis store: %w", err)
		}
		s.store, s.redis = store, client
	default:
		s.store = repository.NewMemoryStore(ctx, repository.WithRetention(s.cfg.Retention))
	}
	s.ownsStore = true
	s.logger.Info(ctx, "using store", logger.String("backend", s.cfg.StoreBackend))
	return nil
}

func (s *Service) closeStore(ctx context.Context) {
	if !s.ownsStore {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "error closing store", logger.Error(err))
	}
	if s.redis != nil {
		_ = s.redis.Close()
		s.redis = nil
	}
	s.store, s.ownsStore = nil, false
}

func (s *Service) openPublisher(ctx context.Context) error {
	if s.publisher != nil || !s.cfg.KafkaEnabled {
		return nil
	}
	p, err := kafka.NewPublisher(s.cfg.Brokers(), s.cfg.KafkaTopic, kafka.WithLogger(s.logger))
	if err != nil {
		return fmt.Errorf("open kafka publisher: %w", err)
	}
	s.kafka, s.publisher = p, p
	s.logger.Info(ctx, "publishing readings to kafka", logger.String("topic", s.cfg.KafkaTopic))
	return nil
}

func (s *Service) startMQTT(ctx context.Context) error {
	sub := mqtt.NewSubscriber(mqtt.Config{
		Broker:   s.cfg.MQTTBroker,
		ClientID: s.cfg.MQTTClientID,
		Username: s.cfg.MQTTUsername,
		Password: s.cfg.MQTTPassword,
		Topic:    s.cfg.MQTTTopic,
		QoS:      byte(s.cfg.MQTTQoS),
	}, func(ctx context.Context, m model.Measurement) error {
		_, err := s.ingest(ctx, m, model.SourceMQTT)
		if errors.Is(err, ErrDuplicate) {
			return nil
		}
		return err
	}, s.logger)
	if err := sub.Start(ctx); err != nil {
		return err
	}
	s.mqtt = sub
	return nil
}

// enqueue is the simulation sink.
func (s *Service) enqueue(ctx context.Context, r model.SensorReading) error { //nolint:gocritic // readings travel by value
	if !s.queue.Enqueue(ctx, r) {
		return ErrQueueFull
	}
	return nil
}

// onAppendFailure reports a reading the store rejected. Readings with an
// external id are forgotten so the producer may resend them.
func (s *Service) onAppendFailure(ctx context.Context, r model.SensorReading, _ error) { //nolint:gocritic // readings travel by value
	if r.ExternalID != "" {
		s.deduper.Unrecord(ctx, r.ExternalID)
	}
	s.reportStoreFailure(ctx)
}

// reportStoreFailure is shown whenever a reading could not be persisted.
func (s *Service) reportStoreFailure(ctx context.Context) {
	s.hub.Notify(ctx, notify.Notification{
		Level:       notify.LevelError,
		Title:       "Error",
		Description: "Failed to add sensor reading to database",
	})
}

// ReportFetchFailure is shown whenever readings could not be loaded or a
// live feed ended with an error.
func (s *Service) ReportFetchFailure(ctx context.Context) {
	s.hub.Notify(ctx, notify.Notification{
		Level:       notify.LevelError,
		Title:       "Data Error",
		Description: "Failed to fetch sensor readings from database",
	})
}

// Ingest scores a caller supplied measurement and queues it for storage.
// Measurements repeating a known readingId return ErrDuplicate.
func (s *Service) Ingest(ctx context.Context, m model.Measurement) (model.SensorReading, error) {
	return s.ingest(ctx, m, model.SourceAPI)
}

func (s *Service) ingest(ctx context.Context, m model.Measurement, source string) (model.SensorReading, error) {
	if err := validateMeasurement(m); err != nil {
		return model.SensorReading{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return model.SensorReading{}, ErrNotStarted
	}

	if m.ReadingID != "" && s.deduper.SeenAndRecord(ctx, m.ReadingID) {
		s.logger.Debug(ctx, "duplicate reading skipped", logger.String("readingId", m.ReadingID))
		return model.SensorReading{}, ErrDuplicate
	}

	r := risk.Assess(m, s.clock(), source)
	if !s.queue.Enqueue(ctx, r) {
		if m.ReadingID != "" {
			s.deduper.Unrecord(ctx, m.ReadingID)
		}
		s.reportStoreFailure(ctx)
		return model.SensorReading{}, ErrQueueFull
	}
	return r, nil
}

func validateMeasurement(m model.Measurement) error {
	for name, v := range map[string]float64{
		"bloodFlow":   m.BloodFlow,
		"temperature": m.Temperature,
		"pressure":    m.Pressure,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not a number", ErrInvalidMeasurement, name)
		}
	}
	if m.BloodFlow < 0 || m.Pressure < 0 {
		return fmt.Errorf("%w: bloodFlow and pressure must not be negative", ErrInvalidMeasurement)
	}
	for _, v := range []float64{m.Motion.X, m.Motion.Y, m.Motion.Z} {
		if v < -1 || v > 1 {
			return fmt.Errorf("%w: motion axes must be within [-1, 1]", ErrInvalidMeasurement)
		}
	}
	if m.Timestamp < 0 {
		return fmt.Errorf("%w: timestamp must not be negative", ErrInvalidMeasurement)
	}
	return nil
}

// ReadingsLimit turns a requested limit into the one served: zero means the
// default, anything above the maximum is capped.
func (s *Service) ReadingsLimit(requested int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case requested <= 0:
		return s.cfg.DefaultReadingsLimit
	case requested > s.cfg.MaxReadingsLimit:
		return s.cfg.MaxReadingsLimit
	default:
		return requested
	}
}

// Readings returns the newest readings in ascending order.
func (s *Service) Readings(ctx context.Context, limit int) (model.Snapshot, error) {
	store, err := s.currentStore()
	if err != nil {
		return model.Snapshot{}, err
	}
	snap, err := store.Recent(ctx, s.ReadingsLimit(limit))
	if err != nil {
		s.logger.Error(ctx, "failed to load readings", logger.Error(err))
		s.ReportFetchFailure(ctx)
		return model.Snapshot{}, err
	}
	return snap, nil
}

// Subscribe streams snapshots of the newest readings until ctx is done or
// the subscription is closed.
func (s *Service) Subscribe(ctx context.Context, limit int) (*repository.Subscription, error) {
	store, err := s.currentStore()
	if err != nil {
		return nil, err
	}
	sub, err := store.Subscribe(ctx, repository.Query{OrderBy: repository.OrderByTimestamp, Limit: s.ReadingsLimit(limit)})
	if err != nil {
		s.logger.Error(ctx, "failed to subscribe to readings", logger.Error(err))
		s.ReportFetchFailure(ctx)
		return nil, err
	}
	return sub, nil
}

// Analytics computes statistics over the readings inside r.
func (s *Service) Analytics(ctx context.Context, r analytics.Range) (analytics.Stats, error) {
	store, err := s.currentStore()
	if err != nil {
		return analytics.Stats{}, err
	}
	now := s.clock()
	readings, err := store.Since(ctx, r.Cutoff(now))
	if err != nil {
		s.ReportFetchFailure(ctx)
		return analytics.Stats{}, fmt.Errorf("load readings: %w", err)
	}
	return analytics.Compute(readings, r, now), nil
}

// Export writes the newest limit readings to w and returns the suggested
// file name.
func (s *Service) Export(ctx context.Context, w io.Writer, f export.Format, fields export.Fields, limit int) (string, error) {
	snap, err := s.Readings(ctx, limit)
	if err != nil {
		return "", err
	}
	if len(snap.Readings) == 0 {
		s.hub.Notify(ctx, notify.Notification{
			Level:       notify.LevelError,
			Title:       "No data to export",
			Description: "There are no readings available to export.",
		})
		return "", export.ErrNoData
	}
	if err := export.Write(w, f, snap.Readings, fields); err != nil {
		return "", err
	}
	notify.Success(ctx, s.hub, "Data Exported Successfully",
		fmt.Sprintf("Your data has been exported as a %s file.", strings.ToUpper(string(f))))
	return export.Filename(f, s.clock()), nil
}

// StartSimulation starts the reading simulator. It returns false when it was
// already running.
func (s *Service) StartSimulation(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return false, ErrNotStarted
	}
	return s.startSimulationLocked(ctx), nil
}

func (s *Service) startSimulationLocked(ctx context.Context) bool {
	// The runner outlives the request that started it.
	if !s.runner.Start(s.runCtx) {
		return false
	}
	notify.Info(ctx, s.hub, "Simulation Started", "Generating sensor data every "+everyInterval(s.cfg.SimulationInterval))
	return true
}

// everyInterval renders d the way the start notification reads it:
// "5 seconds", "1 minute", or d.String() for fractional intervals.
func everyInterval(d time.Duration) string {
	units := []struct {
		size time.Duration
		name string
	}{{time.Hour, "hour"}, {time.Minute, "minute"}, {time.Second, "second"}}
	for _, u := range units {
		if d < u.size || d%u.size != 0 {
			continue
		}
		if n := int64(d / u.size); n != 1 {
			return fmt.Sprintf("%d %ss", n, u.name)
		}
		return "1 " + u.name
	}
	return d.String()
}

// StopSimulation stops the reading simulator. It returns false when it was
// not running.
func (s *Service) StopSimulation(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return false, ErrNotStarted
	}
	if !s.runner.Stop() {
		return false, nil
	}
	notify.Info(ctx, s.hub, "Simulation Stopped", "Sensor data generation is paused")
	return true, nil
}

// Simulation reports the simulator state.
func (s *Service) Simulation() simulator.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return simulator.Status{Interval: s.cfg.SimulationInterval}
	}
	return s.runner.Status()
}

// ApplyConfig applies the settings that can change at runtime: log level
// and simulation interval.
func (s *Service) ApplyConfig(ctx context.Context, cfg *config.Config) {
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		s.logger.Warn(ctx, "ignoring log level", logger.String("level", cfg.LogLevel), logger.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.LogLevel = cfg.LogLevel
	s.cfg.SimulationInterval = cfg.SimulationInterval
	s.cfg.DefaultReadingsLimit = cfg.DefaultReadingsLimit
	s.cfg.MaxReadingsLimit = cfg.MaxReadingsLimit
	if s.runner != nil {
		s.runner.SetInterval(cfg.SimulationInterval)
	}
	s.logger.Info(ctx, "runtime config applied",
		logger.String("logLevel", cfg.LogLevel),
		logger.Duration("interval", cfg.SimulationInterval),
	)
}

// SignUp registers a user and reports the outcome.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (auth.Session, error) {
	sess, err := s.auth.SignUp(ctx, email, password, displayName)
	if err != nil {
		notify.Error(ctx, s.hub, "Sign Up Error", err)
		return auth.Session{}, err
	}
	notify.Success(ctx, s.hub, "Account created!", "You have successfully signed up.")
	return sess, nil
}

// SignIn opens a session and reports the outcome.
func (s *Service) SignIn(ctx context.Context, email, password string) (auth.Session, error) {
	sess, err := s.auth.SignIn(ctx, email, password)
	if err != nil {
		notify.Error(ctx, s.hub, "Login Error", err)
		return auth.Session{}, err
	}
	notify.Success(ctx, s.hub, "Welcome back!", "You have successfully logged in.")
	return sess, nil
}

// SignOut ends a session and reports the outcome.
func (s *Service) SignOut(ctx context.Context, token string) error {
	if err := s.auth.SignOut(ctx, token); err != nil {
		notify.Error(ctx, s.hub, "Logout Error", err)
		return err
	}
	notify.Success(ctx, s.hub, "Logged out", "You have been successfully logged out.")
	return nil
}

// Session returns the live session for token.
func (s *Service) Session(ctx context.Context, token string) (auth.Session, error) {
	return s.auth.Current(ctx, token)
}

// WatchSessions streams session changes until ctx is done.
func (s *Service) WatchSessions(ctx context.Context) <-chan auth.SessionEvent {
	return s.auth.Watch(ctx)
}

// ConnectDoctor records an invitation for a doctor to view the patient's
// data.
func (s *Service) ConnectDoctor(ctx context.Context, patient auth.Session, doctorEmail, message string) (DoctorRequest, error) {
	doctorEmail = strings.TrimSpace(doctorEmail)
	if doctorEmail == "" {
		notify.Error(ctx, s.hub, "Email Required", ErrEmailRequired)
		return DoctorRequest{}, ErrEmailRequired
	}
	if addr, err := mail.ParseAddress(doctorEmail); err != nil || addr.Address != doctorEmail {
		notify.Error(ctx, s.hub, "Error", ErrInvalidDoctorEmail)
		return DoctorRequest{}, ErrInvalidDoctorEmail
	}

	req := DoctorRequest{
		PatientEmail: patient.Email,
		DoctorEmail:  strings.ToLower(doctorEmail),
		Message:      strings.TrimSpace(message),
		RequestedAt:  s.clock(),
	}
	s.doctorMu.Lock()
	s.doctors = append(s.doctors, req)
	s.doctorMu.Unlock()

	s.logger.Info(ctx, "doctor connection requested",
		logger.String("patient", req.PatientEmail),
		logger.String("doctor", req.DoctorEmail),
	)
	notify.Success(ctx, s.hub, "Connection Request Sent", "Your doctor will receive an invitation to view your health data.")
	return req, nil
}

// DoctorRequests returns the recorded invitations of patientEmail.
func (s *Service) DoctorRequests(patientEmail string) []DoctorRequest {
	s.doctorMu.Lock()
	defer s.doctorMu.Unlock()
	var out []DoctorRequest
	for _, r := range s.doctors {
		if r.PatientEmail == patientEmail {
			out = append(out, r)
		}
	}
	return out
}

// Profile returns the profile of the signed in patient, or an empty one
// seeded from the account when none was saved yet.
func (s *Service) Profile(patient auth.Session) profile.Profile {
	s.profileMu.Lock()
	defer s.profileMu.Unlock()
	return s.profileLocked(patient)
}

// UpdatePersonalInfo replaces the personal section of the patient's profile.
func (s *Service) UpdatePersonalInfo(ctx context.Context, patient auth.Session, p profile.Personal) (profile.Profile, error) {
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		notify.Error(ctx, s.hub, "Error", err)
		return profile.Profile{}, err
	}

	s.profileMu.Lock()
	out := s.profileLocked(patient)
	out.Personal, out.UpdatedAt = p, s.clock()
	s.profiles[patient.UserID] = out
	s.profileMu.Unlock()

	s.logger.Info(ctx, "personal information updated", logger.String("patient", patient.Email))
	notify.Success(ctx, s.hub, "Profile Updated", "Your personal information has been updated successfully.")
	return out, nil
}

// UpdateMedicalInfo replaces the medical section of the patient's profile.
func (s *Service) UpdateMedicalInfo(ctx context.Context, patient auth.Session, m profile.Medical) (profile.Profile, error) {
	m = m.Normalize()
	if err := m.Validate(); err != nil {
		notify.Error(ctx, s.hub, "Error", err)
		return profile.Profile{}, err
	}

	s.profileMu.Lock()
	out := s.profileLocked(patient)
	out.Medical, out.UpdatedAt = m, s.clock()
	s.profiles[patient.UserID] = out
	s.profileMu.Unlock()

	s.logger.Info(ctx, "medical information updated", logger.String("patient", patient.Email))
	notify.Success(ctx, s.hub, "Medical Information Updated", "Your medical information has been updated successfully.")
	return out, nil
}

// profileLocked returns the stored profile of patient. Callers hold
// s.profileMu.
func (s *Service) profileLocked(patient auth.Session) profile.Profile {
	if p, ok := s.profiles[patient.UserID]; ok {
		return p
	}
	return profile.New(patient.Email, patient.DisplayName)
}

// Notifications returns up to limit recent notifications, newest first.
func (s *Service) Notifications(limit int) []notify.Notification {
	return s.hub.Recent(limit)
}

// ListenNotifications streams new notifications until ctx is done.
func (s *Service) ListenNotifications(ctx context.Context) <-chan notify.Notification {
	return s.hub.Listen(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":      s.started,
		"storeBackend": s.cfg.StoreBackend,
		"workerCount":  s.cfg.WorkerCount,
		"queueSize":    s.cfg.QueueSize,
		"dedupeSize":   s.cfg.DedupeSize,
		"sessions":     s.auth.Sessions(),
		"kafka":        s.publisher != nil,
		"mqtt":         s.mqtt != nil,
	}

	if s.started {
		stored := s.store.Count(ctx)
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["storedReadings"] = stored
		stats["readingsPersisted"] = s.workerPool.Stored()
		stats["dedupeEntries"] = s.deduper.Size()
		stats["simulation"] = s.runner.Status()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateStoredReadings(stored)
	}
	return stats
}

func (s *Service) currentStore() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}
