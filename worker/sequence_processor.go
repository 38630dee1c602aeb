package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"churchpilot/models"
	"churchpilot/provider"
	"churchpilot/utils"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProcessorOptions configures one SequenceProcessor. Everything is explicit;
// the processor never reads the environment.
type ProcessorOptions struct {
	Interval          time.Duration
	BatchSize         int
	TenantConcurrency int
	MaxRetries        int
	RetryCooldown     time.Duration

	AppURL string
	Secret []byte
}

// ProcessorStatus is the snapshot exposed for operators and the progress stream
type ProcessorStatus struct {
	IsRunning  bool       `json:"is_running"`
	IntervalMS int64      `json:"interval_ms"`
	BatchSize  int        `json:"batch_size"`
	LastTickAt *time.Time `json:"last_tick_at,omitempty"`
	Processed  int        `json:"processed"`
	Failed     int        `json:"failed"`
}

// TickResult counts one church's outcomes for a single sweep
type TickResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// SequenceProcessor is the periodic sweep across all tenants: it advances due
// enrollments into pending messages, dispatches them through the provider
// registry, retries failures after a cooldown, and refreshes analytics.
// One instance lives for the whole process and is injected where needed.
type SequenceProcessor struct {
	db        *gorm.DB
	registry  *provider.Registry
	analytics *utils.AnalyticsAggregator
	prefs     *utils.PreferenceStore
	logger    *log.Logger
	opts      ProcessorOptions

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	lastTick  *time.Time
	processed int
	failed    int
}

func NewSequenceProcessor(db *gorm.DB, registry *provider.Registry, logger *log.Logger, opts ProcessorOptions) *SequenceProcessor {
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.TenantConcurrency <= 0 {
		opts.TenantConcurrency = 5
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryCooldown <= 0 {
		opts.RetryCooldown = 5 * time.Minute
	}

	return &SequenceProcessor{
		db:        db,
		registry:  registry,
		analytics: utils.NewAnalyticsAggregator(db, logger),
		prefs:     utils.NewPreferenceStore(db),
		logger:    logger,
		opts:      opts,
	}
}

// Start launches the periodic sweep. Calling Start on a running processor is
// a logged no-op.
func (sp *SequenceProcessor) Start(ctx context.Context) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.running {
		sp.logger.Println("Sequence processor already running, ignoring Start")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	sp.running = true
	sp.cancel = cancel

	go sp.run(runCtx)
	sp.logger.Printf("Sequence processor started (interval %s, batch %d)", sp.opts.Interval, sp.opts.BatchSize)
}

// Stop cancels the timer. An in-flight tick runs to completion; every row
// update inside it commits independently, so abandoning the rest is safe.
func (sp *SequenceProcessor) Stop() {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if !sp.running {
		return
	}
	sp.cancel()
	sp.running = false
	sp.logger.Println("Sequence processor stopped")
}

// Status returns a snapshot of the processor state
func (sp *SequenceProcessor) Status() ProcessorStatus {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	return ProcessorStatus{
		IsRunning:  sp.running,
		IntervalMS: sp.opts.Interval.Milliseconds(),
		BatchSize:  sp.opts.BatchSize,
		LastTickAt: sp.lastTick,
		Processed:  sp.processed,
		Failed:     sp.failed,
	}
}

func (sp *SequenceProcessor) run(ctx context.Context) {
	ticker := time.NewTicker(sp.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sp.tick(ctx)
		}
	}
}

// tick sweeps every active church with a bounded fan-out. A failing church is
// logged and captured, never allowed to stop the poller or touch its siblings.
func (sp *SequenceProcessor) tick(ctx context.Context) {
	var churches []models.Church
	if err := sp.db.Where("is_active = ?", true).Find(&churches).Error; err != nil {
		sp.logger.Printf("Failed to list churches: %v", err)
		return
	}

	var (
		wg            sync.WaitGroup
		sem           = make(chan struct{}, sp.opts.TenantConcurrency)
		mu            sync.Mutex
		tickProcessed int
		tickFailed    int
	)

	for _, church := range churches {
		churchID := church.ID
		wg.Add(1)
		sem <- struct{}{}

		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					err := fmt.Errorf("panic processing church %d: %v", churchID, r)
					sp.logger.Println(err)
					sentry.CaptureException(err)
				}
			}()

			result, err := sp.ProcessChurch(ctx, churchID)
			if err != nil {
				sp.logger.Printf("Error processing church %d: %v", churchID, err)
				sentry.WithScope(func(scope *sentry.Scope) {
					scope.SetTag("church_id", fmt.Sprintf("%d", churchID))
					sentry.CaptureException(err)
				})
				return
			}

			mu.Lock()
			tickProcessed += result.Processed
			tickFailed += result.Failed
			mu.Unlock()
		}()
	}
	wg.Wait()

	sp.mu.Lock()
	sp.lastTick = utils.Pointer(time.Now())
	sp.processed = tickProcessed
	sp.failed = tickFailed
	sp.mu.Unlock()

	if tickProcessed > 0 || tickFailed > 0 {
		sp.logger.Printf("Tick complete: %d processed, %d failed across %d churches",
			tickProcessed, tickFailed, len(churches))
	}
}

// ProcessChurch runs one tenant's full tick: advance due enrollments, dispatch
// pending messages, sweep retries when anything failed, refresh analytics.
// Also the manual entry point for operator-triggered reprocessing.
func (sp *SequenceProcessor) ProcessChurch(ctx context.Context, churchID uint) (*TickResult, error) {
	var church models.Church
	if err := sp.db.First(&church, churchID).Error; err != nil {
		return nil, fmt.Errorf("church %d not found", churchID)
	}

	if err := sp.advanceDueEnrollments(&church); err != nil {
		return nil, err
	}

	result := sp.dispatchPending(ctx, &church)

	if result.Failed > 0 {
		sp.retrySweep(churchID)
	}

	if err := sp.analytics.RefreshChurchToday(churchID); err != nil {
		sp.logger.Printf("Analytics refresh failed for church %d: %v", churchID, err)
	}

	return result, nil
}

// advanceDueEnrollments materializes a pending message for every enrollment
// whose next_send_at has passed, moves its step pointer forward, and completes
// enrollments with no further steps. Content is not rendered here.
func (sp *SequenceProcessor) advanceDueEnrollments(church *models.Church) error {
	var due []models.SequenceEnrollment
	err := sp.db.Where("church_id = ? AND status = ? AND next_send_at <= ?",
		church.ID, models.EnrollmentStatusActive, time.Now()).
		Find(&due).Error
	if err != nil {
		return err
	}

	for i := range due {
		if err := sp.advanceEnrollment(church, &due[i]); err != nil {
			sp.logger.Printf("Failed to advance enrollment %d: %v", due[i].ID, err)
		}
	}
	return nil
}

func (sp *SequenceProcessor) advanceEnrollment(church *models.Church, enrollment *models.SequenceEnrollment) error {
	var sequence models.Sequence
	if err := sp.db.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_order ASC")
	}).First(&sequence, enrollment.SequenceID).Error; err != nil {
		return err
	}
	if !sequence.IsActive {
		// A deactivated sequence holds its enrollments where they are;
		// reactivating it resumes them from the same step
		return nil
	}

	contact, err := utils.ResolveContact(sp.db, church.ID, enrollment.MemberID, enrollment.VisitorID, enrollment.PrayerRequestID)
	if err != nil {
		return sp.cancelEnrollment(enrollment, "contact no longer resolvable")
	}

	pref, err := sp.prefs.GetForContact(church.ID, contact)
	if err != nil {
		return err
	}
	if pref != nil && (pref.GlobalUnsubscribe || !pref.AllowsSequence(sequence.ID)) {
		return sp.cancelEnrollment(enrollment, "unsubscribed")
	}

	// Walk forward past steps this enrollment cannot receive: inactive steps,
	// unmet send conditions, channels the contact is unreachable or opted out on
	cursor := enrollment.CurrentStep
	var step *models.SequenceStep
	for {
		candidate := utils.NextActiveStep(sequence.Steps, cursor)
		if candidate == nil {
			return sp.completeEnrollment(enrollment, cursor)
		}
		cursor = candidate.StepOrder

		if !matchConditions(candidate.SendConditions, enrollment.EnrollmentData) {
			continue
		}
		if contact.Address(candidate.Channel) == "" {
			continue
		}
		if pref != nil && !pref.AllowsChannel(candidate.Channel) {
			continue
		}
		step = candidate
		break
	}

	message := models.SequenceMessage{
		ChurchID:     church.ID,
		EnrollmentID: enrollment.ID,
		SequenceID:   sequence.ID,
		StepID:       step.ID,
		MessageID:    uuid.New().String(),
		Channel:      step.Channel,
		Recipient:    contact.Address(step.Channel),
		Status:       models.MessageStatusPending,
		ScheduledFor: time.Now(),
		Priority:     sequence.Priority + enrollment.PriorityBoost,
	}
	if err := sp.db.Create(&message).Error; err != nil {
		return err
	}

	next := utils.NextActiveStep(sequence.Steps, step.StepOrder)
	if next == nil {
		// Final step materialized: the enrollment is done scheduling
		return sp.db.Model(enrollment).Updates(map[string]interface{}{
			"current_step": step.StepOrder,
			"status":       models.EnrollmentStatusCompleted,
			"next_send_at": nil,
			"completed_at": time.Now(),
		}).Error
	}

	return sp.db.Model(enrollment).Updates(map[string]interface{}{
		"current_step": step.StepOrder,
		"next_send_at": time.Now().Add(time.Duration(next.DelayMinutes) * time.Minute),
	}).Error
}

// dispatchPending renders and sends up to BatchSize due messages, highest
// priority first. Messages are handled strictly in order within the church so
// a later step never overtakes an earlier one; each failure stays its own.
func (sp *SequenceProcessor) dispatchPending(ctx context.Context, church *models.Church) *TickResult {
	result := &TickResult{}

	var pending []models.SequenceMessage
	err := sp.db.Where("church_id = ? AND status = ? AND scheduled_for <= ?",
		church.ID, models.MessageStatusPending, time.Now()).
		Order("priority DESC, scheduled_for ASC").
		Limit(sp.opts.BatchSize).
		Find(&pending).Error
	if err != nil {
		sp.logger.Printf("Failed to fetch pending messages for church %d: %v", church.ID, err)
		return result
	}

	for i := range pending {
		if err := sp.dispatchOne(ctx, church, &pending[i]); err != nil {
			result.Failed++
			continue
		}
		result.Processed++
	}
	return result
}

func (sp *SequenceProcessor) dispatchOne(ctx context.Context, church *models.Church, message *models.SequenceMessage) error {
	var enrollment models.SequenceEnrollment
	if err := sp.db.First(&enrollment, message.EnrollmentID).Error; err != nil {
		return sp.markFailed(message, "enrollment missing")
	}
	var step models.SequenceStep
	if err := sp.db.Preload("Template").First(&step, message.StepID).Error; err != nil {
		return sp.markFailed(message, "step missing")
	}

	contact, err := utils.ResolveContact(sp.db, church.ID, enrollment.MemberID, enrollment.VisitorID, enrollment.PrayerRequestID)
	if err != nil {
		return sp.markFailed(message, "contact missing")
	}

	unsubURL := utils.UnsubscribeURL(sp.opts.AppURL, utils.UnsubscribeClaims{
		ChurchID:   church.ID,
		MemberID:   enrollment.MemberID,
		Email:      contact.Email,
		Phone:      contact.Phone,
		SequenceID: utils.Pointer(message.SequenceID),
	}, sp.opts.Secret)

	renderCtx := utils.BuildMessageContext(contact, church, &enrollment, message.Recipient, unsubURL)

	subject := step.Subject
	if subject == "" {
		subject = step.Template.Subject
	}
	message.Subject = utils.RenderTemplate(subject, renderCtx)
	message.Content = utils.RenderTemplate(step.Template.Content, renderCtx)
	if message.Channel == models.ChannelEmail {
		message.Content = utils.InjectTracking(message.Content, sp.opts.AppURL, message.MessageID, sp.opts.Secret)
	}

	outbound := &provider.OutboundMessage{
		MessageID: message.MessageID,
		ChurchID:  church.ID,
		Channel:   message.Channel,
		Recipient: message.Recipient,
		Subject:   message.Subject,
		Body:      message.Content,
	}

	sendResult, err := sp.registry.Dispatch(ctx, outbound)
	if err != nil {
		// Rate limited or no provider for the channel: the transport was
		// never contacted, the message waits for a later tick's retry sweep
		return sp.markFailed(message, err.Error())
	}
	if sendResult.Status != provider.StatusSent {
		return sp.markFailed(message, sendResult.ErrorMessage)
	}

	return sp.db.Model(message).Updates(map[string]interface{}{
		"status":        models.MessageStatusSent,
		"sent_at":       time.Now(),
		"subject":       message.Subject,
		"content":       message.Content,
		"provider":      sendResult.Provider,
		"external_id":   sendResult.ExternalID,
		"error_message": "",
	}).Error
}

// retrySweep resets failed messages that have cooled down and still have
// retries left. They go back to pending and the next tick picks them up.
func (sp *SequenceProcessor) retrySweep(churchID uint) {
	cutoff := time.Now().Add(-sp.opts.RetryCooldown)

	err := sp.db.Model(&models.SequenceMessage{}).
		Where("church_id = ? AND status = ? AND failed_at <= ? AND retry_count < ?",
			churchID, models.MessageStatusFailed, cutoff, sp.opts.MaxRetries).
		Updates(map[string]interface{}{
			"status":        models.MessageStatusPending,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"scheduled_for": time.Now(),
			"failed_at":     nil,
			"error_message": "",
		}).Error
	if err != nil {
		sp.logger.Printf("Retry sweep failed for church %d: %v", churchID, err)
	}
}

func (sp *SequenceProcessor) markFailed(message *models.SequenceMessage, reason string) error {
	err := sp.db.Model(message).Updates(map[string]interface{}{
		"status":        models.MessageStatusFailed,
		"failed_at":     time.Now(),
		"subject":       message.Subject,
		"content":       message.Content,
		"error_message": reason,
	}).Error
	if err != nil {
		return err
	}
	return fmt.Errorf("message %s failed: %s", message.MessageID, reason)
}

func (sp *SequenceProcessor) cancelEnrollment(enrollment *models.SequenceEnrollment, reason string) error {
	return sp.db.Model(enrollment).Updates(map[string]interface{}{
		"status":        models.EnrollmentStatusCancelled,
		"status_reason": reason,
		"next_send_at":  nil,
		"cancelled_at":  time.Now(),
	}).Error
}

func (sp *SequenceProcessor) completeEnrollment(enrollment *models.SequenceEnrollment, lastStep int) error {
	return sp.db.Model(enrollment).Updates(map[string]interface{}{
		"current_step": lastStep,
		"status":       models.EnrollmentStatusCompleted,
		"next_send_at": nil,
		"completed_at": time.Now(),
	}).Error
}

// matchConditions checks a step's send conditions against the enrollment
// context: every condition key must be present and equal
func matchConditions(conditions, data map[string]string) bool {
	for key, want := range conditions {
		if data[key] != want {
			return false
		}
	}
	return true
}
