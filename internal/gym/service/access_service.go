package service

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/policy"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/types"
)

const instrumentationName = "github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/service"

var (
	ErrInvalidExternalKey = errors.New("external_key is required")
	ErrInvalidKioskID     = errors.New("kiosk_id is required")
	ErrUnknownKiosk       = errors.New("kiosk is not registered")
)

const defaultDecisionTimeout = 3 * time.Second

// auditTimeout bounds the best-effort SYSTEM_ERROR write made after the
// decision context has already failed.
const auditTimeout = 2 * time.Second

type AccessPolicy struct {
	// DuplicateWindow rejects a grant within this long of the previous one.
	DuplicateWindow time.Duration
	// DuplicateSameDay rejects a second grant on the same local day.
	DuplicateSameDay bool
	// Location is the gym's time zone. Defaults to UTC.
	Location *time.Location
	// DecisionTimeout bounds a whole check-in. Defaults to 3s.
	DecisionTimeout time.Duration
	// RequireKnownKiosk rejects check-ins from kiosks that are not enabled.
	RequireKnownKiosk bool
}

// Stores are the collaborators the engine reads from and the ledger it
// appends to.
type Stores struct {
	Members store.MemberStore
	Plans   store.PlanStore
	Billing store.BillingStore
	Ledger  store.AccessLedger
}

type Option func(*AccessService)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *AccessService) { s.now = now }
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *AccessService) { s.meter = mp.Meter(instrumentationName) }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *AccessService) { s.tracer = tp.Tracer(instrumentationName) }
}

// AccessService is the access decision engine. It holds no per-request
// state; the only thing it writes is the access ledger.
type AccessService struct {
	registry *KioskRegistry
	stores   Stores
	policy   AccessPolicy
	quota    *QuotaCounter
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time

	tracer    trace.Tracer
	meter     metric.Meter
	decisions metric.Int64Counter
	duration  metric.Float64Histogram
}

func NewAccessService(reg *KioskRegistry, stores Stores, pol AccessPolicy, logger *slog.Logger, opts ...Option) *AccessService {
	if pol.Location == nil {
		pol.Location = time.UTC
	}
	if pol.DecisionTimeout <= 0 {
		pol.DecisionTimeout = defaultDecisionTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &AccessService{
		registry: reg,
		stores:   stores,
		policy:   pol,
		quota:    NewQuotaCounter(stores.Ledger),
		logger:   logger.With("component", "access_service"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	s.decisions, err = s.meter.Int64Counter("dmgfit.checkin.decisions",
		metric.WithDescription("Check-in verdicts by reason code."))
	if err != nil {
		s.decisions = noop.Int64Counter{}
	}
	s.duration, err = s.meter.Float64Histogram("dmgfit.checkin.duration",
		metric.WithDescription("Check-in decision latency."),
		metric.WithUnit("ms"))
	if err != nil {
		s.duration = noop.Float64Histogram{}
	}
	return s
}

func (s *AccessService) rules() policy.Rules {
	return policy.Rules{
		DuplicateWindow:  s.policy.DuplicateWindow,
		DuplicateSameDay: s.policy.DuplicateSameDay,
		Location:         s.policy.Location,
	}
}

// checkIn carries one request through the gates.
type checkIn struct {
	key         string
	kioskID     string
	credHash    []byte
	requestedAt *time.Time
	now         time.Time

	member types.Member
	plan   *types.Plan
	window types.CycleWindow
}

func (c *checkIn) attempt(granted bool, reason types.ReasonCode) types.AccessAttempt {
	return types.AccessAttempt{
		ID:               uuid.NewString(),
		MemberID:         c.member.ID,
		CredentialHash:   c.credHash,
		KioskID:          c.kioskID,
		Timestamp:        c.now,
		RequestedAt:      c.requestedAt,
		Granted:          granted,
		Reason:           reason,
		CycleWindowStart: c.window.Start,
	}
}

// CheckIn decides whether the credential presented at a kiosk may enter.
//
// Grants and policy denials are returned with a nil error and are always
// recorded in the access ledger. Input errors return a validation
// *types.AppError and record nothing. Infrastructure failures return an
// upstream *types.AppError together with a SYSTEM_ERROR response the kiosk
// can render; such a response never has Allowed set.
func (s *AccessService) CheckIn(ctx context.Context, req types.CheckInRequest) (types.CheckInResponse, error) {
	start := s.now()

	c, err := s.admit(ctx, req)
	if err != nil {
		return types.CheckInResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "AccessService.CheckIn",
		trace.WithAttributes(attribute.String("kiosk.id", c.kioskID)))
	defer span.End()

	dctx, cancel := context.WithTimeout(ctx, s.policy.DecisionTimeout)
	defer cancel()

	resp, rec, err := s.decide(dctx, c)
	if err != nil {
		resp, err = s.failClosed(ctx, c, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "check-in failed")
	}

	elapsed := s.now().Sub(start)
	reason := resp.ReasonCode
	span.SetAttributes(
		attribute.String("checkin.reason", string(reason)),
		attribute.Bool("checkin.allowed", resp.Allowed),
	)
	s.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
	s.duration.Record(ctx, float64(elapsed.Microseconds())/1000, metric.WithAttributes(attribute.String("reason", string(reason))))

	if err == nil {
		s.logger.Info("check-in decided",
			"kiosk_id", c.kioskID,
			"member_id", c.member.ID,
			"attempt_id", rec.ID,
			"allowed", resp.Allowed,
			"reason", reason,
			"latency_ms", elapsed.Milliseconds(),
		)
	}
	return resp, err
}

// admit validates the request and the kiosk. Nothing it rejects reaches
// the ledger.
func (s *AccessService) admit(ctx context.Context, req types.CheckInRequest) (*checkIn, error) {
	key := strings.TrimSpace(req.ExternalKey)
	kioskID := strings.TrimSpace(req.KioskID)

	if err := s.validate.Var(key, "required,max=64,printascii"); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationExternalKey, ErrInvalidExternalKey.Error(), ErrInvalidExternalKey)
	}
	if err := s.validate.Var(kioskID, "required,max=64,printascii"); err != nil {
		return nil, invalidKiosk()
	}

	known, err := s.registry.IsKnown(ctx, kioskID)
	if err != nil && s.policy.RequireKnownKiosk {
		s.logger.Error("kiosk lookup failed", "kiosk_id", kioskID, "error", err)
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable, "kiosk registry unavailable", err)
	}
	_ = s.registry.NoteSeen(ctx, kioskID, known)
	if s.policy.RequireKnownKiosk && !known {
		return nil, types.NewAppError(types.ErrCodeValidationUnknownKiosk, ErrUnknownKiosk.Error(), ErrUnknownKiosk)
	}

	sum := sha256.Sum256([]byte(key))
	return &checkIn{
		key:         key,
		kioskID:     kioskID,
		credHash:    sum[:],
		requestedAt: parseOptionalTimestamp(req.RequestedAt),
		now:         s.now().UTC(),
	}, nil
}

func invalidKiosk() error {
	return types.NewAppError(types.ErrCodeValidationKioskID, ErrInvalidKioskID.Error(), ErrInvalidKioskID)
}

// decide runs the gates in order: assignment, status, payment, then quota,
// duplicate and schedule inside the ledger reservation.
func (s *AccessService) decide(ctx context.Context, c *checkIn) (types.CheckInResponse, types.AccessAttempt, error) {
	member, err := s.stores.Members.ResolveMember(ctx, c.key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return s.deny(ctx, c, types.ReasonNoAssignment)
	case err != nil:
		return types.CheckInResponse{}, types.AccessAttempt{}, fmt.Errorf("resolve member: %w", err)
	}
	c.member = member

	if !member.Assigned() {
		return s.deny(ctx, c, types.ReasonNoAssignment)
	}

	plan, history, err := s.loadPlanAndHistory(ctx, member)
	if err != nil {
		return types.CheckInResponse{}, types.AccessAttempt{}, err
	}
	c.plan = plan

	if plan != nil {
		c.window = policy.ComputeCycle(member, *plan, history, c.now)
	}
	if v, ok := policy.Precheck(member, plan, c.window, c.now); !ok {
		if v.Reason != types.ReasonPaymentBlocked {
			c.window = types.CycleWindow{}
		}
		return s.deny(ctx, c, v.Reason)
	}

	return s.reserve(ctx, c)
}

// loadPlanAndHistory fetches the plan and payment history concurrently. A
// missing plan is reported as a nil plan, not an error.
func (s *AccessService) loadPlanAndHistory(ctx context.Context, m types.Member) (*types.Plan, []types.PaymentEvent, error) {
	var (
		plan    *types.Plan
		history []types.PaymentEvent
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.stores.Plans.GetPlan(gctx, m.PlanRef)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get plan %s: %w", m.PlanRef, err)
		}
		plan = &p
		return nil
	})
	g.Go(func() error {
		h, err := s.stores.Billing.GetPaymentHistory(gctx, m.ID)
		if err != nil {
			return fmt.Errorf("get payment history: %w", err)
		}
		history = h
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return plan, history, nil
}

// reserve applies the ledger-dependent gates atomically and records the
// outcome. A grant slot taken by a concurrent writer is retried once.
func (s *AccessService) reserve(ctx context.Context, c *checkIn) (types.CheckInResponse, types.AccessAttempt, error) {
	plan := *c.plan

	var (
		v   policy.Verdict
		rec types.AccessAttempt
		err error
	)
	for try := 0; try < 2; try++ {
		rec, err = s.stores.Ledger.Reserve(ctx, c.member.ID, c.window, func(snap types.LedgerSnapshot) types.AccessAttempt {
			v = policy.Admit(plan, snap, c.now, s.rules())
			return c.attempt(v.Granted, v.Reason)
		})
		if !errors.Is(err, store.ErrConflict) {
			break
		}
		s.logger.Warn("grant slot taken, retrying", "member_id", c.member.ID, "kiosk_id", c.kioskID)
	}
	if err != nil {
		return types.CheckInResponse{}, types.AccessAttempt{}, fmt.Errorf("reserve: %w", err)
	}

	return s.respond(c, v, rec), rec, nil
}

// deny records a denial reached before the reservation step.
func (s *AccessService) deny(ctx context.Context, c *checkIn, reason types.ReasonCode) (types.CheckInResponse, types.AccessAttempt, error) {
	rec := c.attempt(false, reason)
	if err := s.stores.Ledger.AppendAttempt(ctx, rec); err != nil {
		return types.CheckInResponse{}, types.AccessAttempt{}, fmt.Errorf("append attempt: %w", err)
	}
	return s.respond(c, policy.Verdict{Reason: reason}, rec), rec, nil
}

func (s *AccessService) respond(c *checkIn, v policy.Verdict, rec types.AccessAttempt) types.CheckInResponse {
	resp := types.CheckInResponse{
		Allowed:    rec.Granted,
		ReasonCode: rec.Reason,
		Message:    policy.Message(v, c.window, s.policy.Location),
		Remaining:  v.Remaining,
		MemberName: c.member.Name,
		AvatarRef:  c.member.AvatarRef,
		AttemptID:  rec.ID,
		KioskID:    c.kioskID,
		ServerTime: c.now.Format(time.RFC3339Nano),
	}
	if c.plan != nil {
		resp.PlanName = c.plan.Name
	}
	if !c.window.End.IsZero() {
		resp.ValidUntil = c.window.End.In(s.policy.Location).Format(policy.DateLayout)
	}
	return resp
}

// failClosed turns an infrastructure failure into a SYSTEM_ERROR verdict
// and makes a best-effort attempt to record it.
func (s *AccessService) failClosed(ctx context.Context, c *checkIn, cause error) (types.CheckInResponse, error) {
	code := types.ErrCodeUpstreamUnavailable
	if errors.Is(cause, context.DeadlineExceeded) {
		code = types.ErrCodeUpstreamTimeout
	}

	s.logger.Error("check-in failed closed",
		"kiosk_id", c.kioskID,
		"member_id", c.member.ID,
		"code", code,
		"error", cause,
	)

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	rec := c.attempt(false, types.ReasonSystemError)
	rec.CycleWindowStart = time.Time{}
	if err := s.stores.Ledger.AppendAttempt(actx, rec); err != nil {
		s.logger.Warn("system error attempt not recorded", "kiosk_id", c.kioskID, "error", err)
		rec.ID = ""
	}

	resp := types.CheckInResponse{
		Allowed:    false,
		ReasonCode: types.ReasonSystemError,
		Message:    policy.SystemErrorMessage,
		AttemptID:  rec.ID,
		KioskID:    c.kioskID,
		ServerTime: c.now.Format(time.RFC3339Nano),
	}
	return resp, types.NewAppError(code, "could not validate access", cause)
}

// Usage reports the member's current cycle and visit count for the kiosk
// info screen. It records nothing.
func (s *AccessService) Usage(ctx context.Context, externalKey string) (types.UsageResponse, error) {
	key := strings.TrimSpace(externalKey)
	if err := s.validate.Var(key, "required,max=64,printascii"); err != nil {
		return types.UsageResponse{}, types.NewAppError(types.ErrCodeValidationExternalKey, ErrInvalidExternalKey.Error(), ErrInvalidExternalKey)
	}

	ctx, cancel := context.WithTimeout(ctx, s.policy.DecisionTimeout)
	defer cancel()

	member, err := s.stores.Members.ResolveMember(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return types.UsageResponse{}, types.NewAppError(types.ErrCodeNotFoundMember, "member not found", err)
	}
	if err != nil {
		return types.UsageResponse{}, s.upstream(fmt.Errorf("resolve member: %w", err))
	}
	if !member.Assigned() {
		return types.UsageResponse{}, types.NewAppError(types.ErrCodeNotFoundMember, "member has no plan", nil)
	}

	plan, history, err := s.loadPlanAndHistory(ctx, member)
	if err != nil {
		return types.UsageResponse{}, s.upstream(err)
	}
	if plan == nil {
		return types.UsageResponse{}, types.NewAppError(types.ErrCodeNotFoundMember, "member has no plan", nil)
	}

	now := s.now().UTC()
	w := policy.ComputeCycle(member, *plan, history, now)
	used, err := s.quota.CountGrantedInWindow(ctx, member.ID, w)
	if err != nil {
		return types.UsageResponse{}, s.upstream(err)
	}

	loc := s.policy.Location
	return types.UsageResponse{
		MemberName: member.Name,
		PlanName:   plan.Name,
		CycleStart: w.Start.In(loc).Format(policy.DateLayout),
		CycleEnd:   w.End.In(loc).Format(policy.DateLayout),
		Grace:      w.Grace,
		Used:       used,
		Limit:      plan.VisitLimit,
		Remaining:  policy.Remaining(*plan, used),
		ServerTime: now.Format(time.RFC3339Nano),
	}, nil
}

func (s *AccessService) upstream(err error) error {
	code := types.ErrCodeUpstreamUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		code = types.ErrCodeUpstreamTimeout
	}
	s.logger.Error("usage lookup failed", "code", code, "error", err)
	return types.NewAppError(code, "could not load usage", err)
}

// parseOptionalTimestamp parses a kiosk-reported RFC 3339 timestamp.
// It returns nil if s is empty or unparseable.
func parseOptionalTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	u := t.UTC()
	return &u
}
