package identity

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
)

// leadTransitions is the conversion pipeline graph. Transitions only move
// forward; closed is reachable from every non-terminal status.
var leadTransitions = map[LeadStatus][]LeadStatus{
	LeadStatusNew:              {LeadStatusContacted, LeadStatusClosed},
	LeadStatusContacted:        {LeadStatusInProgress, LeadStatusClosed},
	LeadStatusInProgress:       {LeadStatusVerificationSent, LeadStatusClosed},
	LeadStatusVerificationSent: {LeadStatusConverted, LeadStatusClosed},
	LeadStatusConverted:        {},
	LeadStatusClosed:           {},
}

// CanTransitionLead reports whether the pipeline allows moving a lead from
// one status to another.
func CanTransitionLead(from, to LeadStatus) bool {
	for _, allowed := range leadTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// VerificationRequester kicks off the account verification flow for an email.
type VerificationRequester interface {
	Execute(ctx context.Context, event AccountVerificationMessage) error
}

// LeadSubmission is the public eligibility form payload.
type LeadSubmission struct {
	FullName             string
	Email                string
	Phone                string
	StudyCountry         string
	AdmissionStatus      string
	Intake               string
	UniversityPreference string
	LoanRange            string
}

// LeadPipeline drives leads through the conversion graph and owns the
// lead-to-account handoff.
type LeadPipeline struct {
	repo          RepositoryManager
	verifier      VerificationRequester
	activitySink  ActivitySink
	logger        Logger
	now           func() time.Time
	defaultRegion string
}

var _ LeadConverter = (*LeadPipeline)(nil)

type LeadPipelineOption func(*LeadPipeline)

// WithLeadPipelineClock injects a custom clock (useful for tests).
func WithLeadPipelineClock(clock func() time.Time) LeadPipelineOption {
	return func(p *LeadPipeline) {
		if clock != nil {
			p.now = clock
		}
	}
}

// WithLeadPipelineRegion sets the region used to parse national phone
// numbers submitted without a country prefix.
func WithLeadPipelineRegion(region string) LeadPipelineOption {
	return func(p *LeadPipeline) {
		if region != "" {
			p.defaultRegion = region
		}
	}
}

func NewLeadPipeline(repo RepositoryManager, opts ...LeadPipelineOption) *LeadPipeline {
	p := &LeadPipeline{
		repo:          repo,
		activitySink:  noopActivitySink{},
		logger:        defLogger{},
		now:           time.Now,
		defaultRegion: "IN",
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p
}

func (p *LeadPipeline) WithLogger(logger Logger) *LeadPipeline {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// WithActivitySink configures an ActivitySink for emitting pipeline events.
func (p *LeadPipeline) WithActivitySink(sink ActivitySink) *LeadPipeline {
	p.activitySink = normalizeActivitySink(sink)
	return p
}

// WithVerificationRequester wires the handler used to send account invites.
func (p *LeadPipeline) WithVerificationRequester(verifier VerificationRequester) *LeadPipeline {
	p.verifier = verifier
	return p
}

// Submit records a new eligibility form submission. The phone number is
// normalized to E.164 before it is stored.
func (p *LeadPipeline) Submit(ctx context.Context, input LeadSubmission) (*Lead, error) {
	phone, err := p.normalizePhone(input.Phone)
	if err != nil {
		return nil, err
	}

	lead := &Lead{
		FullName:             strings.TrimSpace(input.FullName),
		Email:                NormalizeEmail(input.Email),
		Phone:                phone,
		StudyCountry:         strings.TrimSpace(input.StudyCountry),
		AdmissionStatus:      strings.TrimSpace(input.AdmissionStatus),
		Intake:               strings.TrimSpace(input.Intake),
		UniversityPreference: strings.TrimSpace(input.UniversityPreference),
		LoanRange:            strings.TrimSpace(input.LoanRange),
		Status:               LeadStatusNew,
	}

	lead, err = p.repo.Leads().Submit(ctx, lead)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store lead")
	}

	recordActivity(ctx, p.activitySink, p.logger, ActivityEvent{
		EventType:   ActivityEventLeadSubmitted,
		TargetEmail: lead.Email,
	})

	return lead, nil
}

// MarkContacted advances a new lead to contacted and stamps the contact
// time. A lead already in contacted gets the stamp refreshed; leads past
// contacted are rejected.
func (p *LeadPipeline) MarkContacted(ctx context.Context, actor *User, leadID uuid.UUID) (*Lead, error) {
	lead, err := p.repo.Leads().GetByID(ctx, leadID.String())
	if err != nil {
		return nil, err
	}

	if lead.Status == LeadStatusContacted {
		now := p.now()
		lead.LastContactedAt = &now

		lead, err = p.repo.Leads().Update(ctx, lead)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to refresh contact time")
		}

		recordActivity(ctx, p.activitySink, p.logger, ActivityEvent{
			EventType:   ActivityEventLeadStatusChanged,
			ActorUserID: actorID(actor),
			TargetEmail: lead.Email,
			Metadata: map[string]any{
				"from": LeadStatusContacted,
				"to":   LeadStatusContacted,
			},
		})

		return lead, nil
	}

	return p.transition(ctx, actor, lead, LeadStatusContacted)
}

// SetStatus moves the lead to the requested status, enforcing the pipeline
// graph.
func (p *LeadPipeline) SetStatus(ctx context.Context, actor *User, leadID uuid.UUID, to LeadStatus) (*Lead, error) {
	lead, err := p.repo.Leads().GetByID(ctx, leadID.String())
	if err != nil {
		return nil, err
	}

	return p.transition(ctx, actor, lead, to)
}

func (p *LeadPipeline) transition(ctx context.Context, actor *User, lead *Lead, to LeadStatus) (*Lead, error) {
	from := lead.Status

	if !CanTransitionLead(from, to) {
		return nil, ErrInvalidStatusTransition.WithMetadata(map[string]any{
			"from": from,
			"to":   to,
		})
	}

	now := p.now()
	lead.Status = to

	if to == LeadStatusContacted {
		lead.LastContactedAt = &now
	}

	lead, err := p.repo.Leads().Update(ctx, lead)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update lead status")
	}

	recordActivity(ctx, p.activitySink, p.logger, ActivityEvent{
		EventType:   ActivityEventLeadStatusChanged,
		ActorUserID: actorID(actor),
		TargetEmail: lead.Email,
		Metadata: map[string]any{
			"from": from,
			"to":   to,
		},
	})

	return lead, nil
}

// SendVerification creates (or finds) the pending account for the lead and
// sends the verification link, moving the lead to verification_sent. The
// created account id is derived from the email so retries stay idempotent.
func (p *LeadPipeline) SendVerification(ctx context.Context, actor *User, leadID uuid.UUID) (*Lead, error) {
	lead, err := p.repo.Leads().GetByID(ctx, leadID.String())
	if err != nil {
		return nil, err
	}

	if !CanTransitionLead(lead.Status, LeadStatusVerificationSent) {
		return nil, ErrInvalidStatusTransition.WithMetadata(map[string]any{
			"status": lead.Status,
		})
	}

	if _, err := p.ensureAccountForLead(ctx, lead); err != nil {
		return nil, err
	}

	if p.verifier == nil {
		return nil, goerrors.New("no verification requester configured", goerrors.CategoryInternal)
	}

	if err := p.verifier.Execute(ctx, AccountVerificationMessage{Email: lead.Email}); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to send verification link")
	}

	now := p.now()
	lead.VerificationSentAt = &now
	if actor != nil {
		lead.VerificationSentBy = actor.Email
	}

	lead, err = p.transition(ctx, actor, lead, LeadStatusVerificationSent)
	if err != nil {
		return nil, err
	}

	recordActivity(ctx, p.activitySink, p.logger, ActivityEvent{
		EventType:   ActivityEventLeadVerificationSent,
		ActorUserID: actorID(actor),
		TargetEmail: lead.Email,
	})

	return lead, nil
}

// MarkConvertedByEmail advances the open lead for the address to converted.
// It is called after a successful email verification; a missing lead or a
// lead that never went through the invite flow is not an error.
func (p *LeadPipeline) MarkConvertedByEmail(ctx context.Context, email string) error {
	lead, err := p.repo.Leads().GetOpenByEmail(ctx, email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up lead for conversion")
	}

	if lead.Status != LeadStatusVerificationSent {
		return nil
	}

	if _, err := p.transition(ctx, nil, lead, LeadStatusConverted); err != nil {
		return err
	}

	recordActivity(ctx, p.activitySink, p.logger, ActivityEvent{
		EventType:   ActivityEventLeadConverted,
		TargetEmail: lead.Email,
	})

	return nil
}

// ensureAccountForLead finds or creates the pending account behind an
// invite. The account id is a hash of the email, so concurrent invites for
// the same lead land on the same row.
func (p *LeadPipeline) ensureAccountForLead(ctx context.Context, lead *Lead) (*User, error) {
	user, err := p.repo.Users().GetByEmail(ctx, lead.Email)
	if err == nil {
		return user, nil
	}

	if !goerrors.IsNotFound(err) {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up account for lead")
	}

	user = &User{
		Role:  RoleStudent,
		Name:  lead.FullName,
		Email: lead.Email,
		Phone: lead.Phone,
	}

	if id, err := hashid.NewUUID(lead.Email); err == nil {
		user.ID = id
	}

	user, err = p.repo.Users().Register(ctx, user)
	if err != nil {
		// A concurrent invite won the insert; the row is ours to reuse.
		if isUniqueViolation(err) {
			return p.repo.Users().GetByEmail(ctx, lead.Email)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create account for lead")
	}

	return user, nil
}

func (p *LeadPipeline) normalizePhone(raw string) (string, error) {
	return NormalizePhone(raw, p.defaultRegion)
}

// NormalizePhone parses the number with the given fallback region and
// formats it as E.164. Empty input is passed through.
func NormalizePhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}

	num, err := phonenumbers.Parse(raw, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", goerrors.New("invalid phone number", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"phone": raw})
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}
