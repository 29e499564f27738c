package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/originsignal/ingestion/internal/ingestion/application/ports"
	"github.com/originsignal/ingestion/internal/ingestion/domain"
	apperrors "github.com/originsignal/ingestion/pkg/errors"
	"github.com/originsignal/ingestion/pkg/logger"
	"github.com/originsignal/ingestion/pkg/tracer"
)

// pipelineTracer names the span source for the worker's C5-C9 stages, so a
// slow stitch or a lock wait shows up per-stage in a trace rather than as
// one opaque "process event" span.
var pipelineTracer = otel.Tracer("ingestion.worker")

// endSpan records err on span, if any, and ends it. Called via defer right
// after a stage's span is started, so every exit path closes the span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// ProcessEventConfig carries the ingestion windows from config.IngestionConfig
// that the C5-C9 pipeline needs: session reuse timeout, the IP-stitching
// lookback, and the cookie-presence window that guards it (§4.5, §4.6).
type ProcessEventConfig struct {
	SessionTimeout       time.Duration
	IPStitchWindow       time.Duration
	CookiePresenceWindow time.Duration
}

// ProcessResult reports what the pipeline actually wrote, for the worker's
// logging and any dead-letter bookkeeping. It is not returned to an HTTP
// caller — the synchronous response was already sent by IngestEventUseCase.
type ProcessResult struct {
	EventID    int64
	CustomerID int64
	SessionID  int64
	NoCustomer bool
}

// ProcessEventUseCase runs the worker half of the pipeline: identity
// resolution, dimension normalization, sessionization, event persistence,
// touch management, and conversion attribution, all inside the single
// transaction a UnitOfWork opens per job (§5, §9: "the entire C5-C9 sequence
// commits or rolls back atomically").
type ProcessEventUseCase struct {
	uow   domain.UnitOfWork
	clock ports.Clock
	cfg   ProcessEventConfig
}

// NewProcessEventUseCase constructs the use case. uow must open a fresh
// transaction per call to Execute — the worker invokes Execute once per
// delivered EventPayload.
func NewProcessEventUseCase(uow domain.UnitOfWork, clock ports.Clock, cfg ProcessEventConfig) *ProcessEventUseCase {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &ProcessEventUseCase{uow: uow, clock: clock, cfg: cfg}
}

// Execute runs C5 -> C4 -> C6 -> C8 -> C7 -> C9 against a decoded
// EventPayload inside one transaction, per §5's ordering and atomicity
// requirements. A duplicate idempotency key (caught by the TOCTOU re-check
// mandated by §4.3 and §9) and the NoCustomer path both commit an empty
// transaction and return without error — neither is a processing failure.
func (uc *ProcessEventUseCase) Execute(ctx context.Context, payload EventPayload) (*ProcessResult, error) {
	ctx, span := pipelineTracer.Start(ctx, "process_event")
	span.SetAttributes(tracer.WebsiteID(payload.WebsiteID))
	var err error
	defer func() { endSpan(span, err) }()

	started := uc.clock.Now()
	var txCtx context.Context
	txCtx, err = uc.uow.Begin(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDBTransaction, "failed to begin transaction")
	}

	var result *ProcessResult
	result, err = uc.run(txCtx, payload)
	if err != nil {
		if rbErr := uc.uow.Rollback(txCtx); rbErr != nil {
			logger.FromContext(ctx).Error().Err(rbErr).Msg("rollback failed after processing error")
		}
		return nil, err
	}

	if cErr := uc.uow.Commit(txCtx); cErr != nil {
		err = apperrors.Wrap(cErr, apperrors.ErrCodeDBTransaction, "failed to commit transaction")
		return nil, err
	}

	logger.FromContext(ctx).Info().
		Int64("website_id", payload.WebsiteID).
		Str("idempotency_key", payload.IdempotencyKey).
		Str("step", "C9").
		Dur("duration", uc.clock.Now().Sub(started)).
		Int64("event_id", result.EventID).
		Int64("customer_id", result.CustomerID).
		Bool("no_customer", result.NoCustomer).
		Msg("event processed")

	return result, nil
}

// run implements the pipeline body. It assumes ctx already carries the
// worker's transaction (set by uc.uow.Begin).
func (uc *ProcessEventUseCase) run(ctx context.Context, payload EventPayload) (*ProcessResult, error) {
	events := uc.uow.EventRepository()

	// TOCTOU re-check (§4.3, §9): a concurrent delivery of the same
	// idempotency key may have already committed between C3's pre-check and
	// this job running.
	existing, err := events.FindByIdempotencyKey(ctx, payload.IdempotencyKey)
	if err != nil && !errors.Is(err, domain.ErrEventNotFound) {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDBQuery, "failed to re-check idempotency key")
	}
	if existing != nil {
		return &ProcessResult{EventID: existing.ID, CustomerID: existing.CustomerID, SessionID: existing.SessionID}, nil
	}

	// C5: Identity Resolver.
	spanCtx, span := pipelineTracer.Start(ctx, "C5_identity_resolver")
	customer, err := uc.resolveCustomer(spanCtx, payload)
	endSpan(span, err)
	if err != nil {
		if errors.Is(err, domain.ErrNoCustomer) {
			return &ProcessResult{NoCustomer: true}, nil
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDBQuery, "identity resolution failed")
	}

	// C4: Dimension Normalizer.
	spanCtx, span = pipelineTracer.Start(ctx, "C4_dimension_normalizer")
	dims, err := uc.normalizeDimensions(spanCtx, payload)
	endSpan(span, err)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDBQuery, "dimension normalization failed")
	}

	// C6: Sessionizer.
	spanCtx, span = pipelineTracer.Start(ctx, "C6_sessionizer")
	session, err := uc.resolveSession(spanCtx, customer, payload, dims)
	if err == nil {
		err = uc.bindUTMs(spanCtx, domain.TrackableKindSession, session.ID, dims.utmValueIDs)
	}
	endSpan(span, err)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDBQuery, "sessionization failed")
	}

	// C8: Event Writer.
	spanCtx, span = pipelineTracer.Start(ctx, "C8_event_writer")
	event, err := uc.writeEvent(spanCtx, customer, session, payload)
	if err == nil {
		err = uc.bindUTMs(spanCtx, domain.TrackableKindEvent, event.ID, dims.utmValueIDs)
	}
	endSpan(span, err)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateEvent) {
			// Lost the race against another delivery of the same key after
			// our own re-check above; treat it the same way C3 would.
			dup, findErr := events.FindByIdempotencyKey(ctx, payload.IdempotencyKey)
			if findErr == nil && dup != nil {
				return &ProcessResult{EventID: dup.ID, CustomerID: dup.CustomerID, SessionID: dup.SessionID}, nil
			}
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDBQuery, "failed to write event")
	}

	// C7: Touch Manager.
	spanCtx, span = pipelineTracer.Start(ctx, "C7_touch_manager")
	err = uc.manageTouches(spanCtx, customer, session, payload, dims)
	endSpan(span, err)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDBQuery, "touch management failed")
	}

	// C9: Conversion Attributor.
	if event.IsConversion() {
		spanCtx, span = pipelineTracer.Start(ctx, "C9_conversion_attributor")
		err = uc.attributeConversion(spanCtx, customer, session, event, payload, dims)
		endSpan(span, err)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeDBQuery, "conversion attribution failed")
		}
	}

	return &ProcessResult{EventID: event.ID, CustomerID: customer.ID, SessionID: session.ID}, nil
}

// ----------------------------------------------------------------------
// C5: Identity Resolver
// ----------------------------------------------------------------------

// resolveCustomer implements §4.5's five-step priority ladder: explicit
// customer_id, identity lookup/link, email cross-match, IP-based cookie
// stitching, and finally a brand new customer.
func (uc *ProcessEventUseCase) resolveCustomer(ctx context.Context, payload EventPayload) (*domain.Customer, error) {
	customers := uc.uow.CustomerRepository()
	identities := uc.uow.IdentityRepository()
	links := uc.uow.CustomerIdentityLinkRepository()

	// Step 1: explicit customer_id, if it resolves within this website.
	if payload.CustomerID != "" {
		if id, err := strconv.ParseInt(payload.CustomerID, 10, 64); err == nil {
			cust, err := customers.FindByID(ctx, payload.WebsiteID, id)
			if err == nil {
				return cust, nil
			}
			if !errors.Is(err, domain.ErrCustomerNotFound) {
				return nil, err
			}
			// Unknown id: fall through to identity resolution rather than
			// failing the event outright.
		}
	}

	if payload.IdentityType == "" {
		return nil, domain.ErrNoCustomer
	}

	identityType := domain.IdentityType(payload.IdentityType)
	valueHash := domain.HashIdentityValue(payload.IdentityValue)

	// Step 2: resolve (or intern) the Identity, then its existing link.
	identity, err := identities.FindByHash(ctx, payload.WebsiteID, identityType, valueHash)
	isNewIdentity := false
	switch {
	case errors.Is(err, domain.ErrIdentityNotFound):
		identity = domain.NewIdentity(payload.WebsiteID, identityType, payload.IdentityValue)
		if err := identities.Create(ctx, identity); err != nil {
			return nil, err
		}
		isNewIdentity = true
	case err != nil:
		return nil, err
	}

	if !isNewIdentity {
		link, err := links.FindByIdentityID(ctx, identity.ID)
		if err != nil {
			return nil, err
		}
		if link != nil {
			return customers.FindByID(ctx, payload.WebsiteID, link.CustomerID)
		}
	}

	now := uc.clock.Now()

	// Step 3: email cross-match, only meaningful for a freshly seen
	// email_hash identity (an existing one would have hit the link above).
	if identityType == domain.IdentityTypeEmailHash {
		cust, err := customers.FindByEmailHash(ctx, payload.WebsiteID, valueHash)
		if err != nil && !errors.Is(err, domain.ErrCustomerNotFound) {
			return nil, err
		}
		if cust != nil {
			link := domain.NewCustomerIdentityLink(cust.ID, identity.ID, domain.ConfidenceEmailCrossMatch, domain.LinkSourceHeuristic)
			if err := links.Create(ctx, link); err != nil {
				return nil, err
			}
			return cust, nil
		}
	}

	// Step 4: IP-based cookie stitching. We resolve C5 before C6 runs, so a
	// candidate whose cookie identity was refreshed inside the cookie
	// presence window is treated as still "owned" by its active session and
	// is not stitched onto by this new cookie sighting.
	if identityType == domain.IdentityTypeCookie && payload.ClientIP != "" {
		candidate, err := links.FindRecentByIP(ctx, payload.WebsiteID, payload.ClientIP, identity.ID, now.Add(-uc.cfg.IPStitchWindow))
		if err != nil {
			return nil, err
		}
		if candidate != nil && candidate.UpdatedAt.Before(now.Add(-uc.cfg.CookiePresenceWindow)) {
			link := domain.NewCustomerIdentityLink(candidate.CustomerID, identity.ID, domain.ConfidenceIPStitchHeuristic, domain.LinkSourceHeuristic)
			if err := links.Create(ctx, link); err != nil {
				return nil, err
			}
			return customers.FindByID(ctx, payload.WebsiteID, candidate.CustomerID)
		}
	}

	// Step 5: brand new customer.
	var emailHash *string
	if identityType == domain.IdentityTypeEmailHash {
		emailHash = &valueHash
	}
	customer := domain.NewCustomer(payload.WebsiteID, emailHash)
	if err := customers.Create(ctx, customer); err != nil {
		return nil, err
	}
	confidence, source := domain.DefaultConfidenceAndSource(identityType)
	link := domain.NewCustomerIdentityLink(customer.ID, identity.ID, confidence, source)
	if err := links.Create(ctx, link); err != nil {
		return nil, err
	}
	return customer, nil
}

// ----------------------------------------------------------------------
// C4: Dimension Normalizer
// ----------------------------------------------------------------------

// dimensions carries everything C4 resolves, so C6/C7/C8/C9 don't each have
// to re-derive it.
type dimensions struct {
	referrerDomainID *int64
	landingPageID    *int64
	utmValueIDs      []int64
	utms             domain.UTMSet
}

func (uc *ProcessEventUseCase) normalizeDimensions(ctx context.Context, payload EventPayload) (dimensions, error) {
	var dims dimensions
	dims.utms = make(domain.UTMSet, len(payload.UTMs))

	if host, ok := domain.ExtractReferrerDomain(payload.Referrer); ok {
		rd := domain.NewReferrerDomain(payload.WebsiteID, host)
		id, err := uc.uow.ReferrerDomainRepository().FindOrCreate(ctx, rd)
		if err != nil {
			return dims, err
		}
		dims.referrerDomainID = &id
	}

	path := domain.ExtractLandingPath(payload.URL)
	lp := domain.NewLandingPage(payload.WebsiteID, path, payload.URL)
	landingID, err := uc.uow.LandingPageRepository().FindOrCreate(ctx, lp)
	if err != nil {
		return dims, err
	}
	dims.landingPageID = &landingID

	params := uc.uow.CustomUtmParameterRepository()
	values := uc.uow.CustomUtmValueRepository()
	for name, value := range payload.UTMs {
		if value == "" {
			continue
		}
		paramID, err := params.FindOrCreate(ctx, domain.NewCustomUtmParameter(payload.WebsiteID, name))
		if err != nil {
			return dims, err
		}
		valueID, err := values.FindOrCreate(ctx, domain.NewCustomUtmValue(paramID, value))
		if err != nil {
			return dims, err
		}
		dims.utmValueIDs = append(dims.utmValueIDs, valueID)
		dims.utms[name] = value
	}

	return dims, nil
}

func (uc *ProcessEventUseCase) bindUTMs(ctx context.Context, kind domain.TrackableKind, trackableID int64, utmValueIDs []int64) error {
	bindings := uc.uow.TrackableUtmValueRepository()
	for _, valueID := range utmValueIDs {
		if err := bindings.Create(ctx, domain.NewTrackableUtmValue(kind, trackableID, valueID)); err != nil {
			return err
		}
	}
	return nil
}

// ----------------------------------------------------------------------
// C6: Sessionizer
// ----------------------------------------------------------------------

func (uc *ProcessEventUseCase) resolveSession(ctx context.Context, customer *domain.Customer, payload EventPayload, dims dimensions) (*domain.Session, error) {
	sessions := uc.uow.SessionRepository()
	now := uc.clock.Now()

	if payload.SessionID != "" {
		if id, err := strconv.ParseInt(payload.SessionID, 10, 64); err == nil {
			sess, err := sessions.FindByID(ctx, payload.WebsiteID, id)
			if err != nil {
				return nil, err
			}
			if sess != nil && sess.IsActive(now, uc.cfg.SessionTimeout) {
				return sess, nil
			}
		}
	}

	sess, err := sessions.FindActiveByCustomer(ctx, payload.WebsiteID, customer.ID)
	if err != nil {
		return nil, err
	}
	if sess != nil && sess.IsActive(now, uc.cfg.SessionTimeout) {
		return sess, nil
	}

	newSession := domain.NewSession(payload.WebsiteID, customer.ID, payload.OccurredAt, payload.URL, payload.Referrer, payload.ClientIP, payload.UserAgent)
	newSession.LandingPageID = dims.landingPageID
	newSession.ReferrerDomainID = dims.referrerDomainID
	if err := sessions.Create(ctx, newSession); err != nil {
		return nil, err
	}
	return newSession, nil
}

// ----------------------------------------------------------------------
// C8: Event Writer
// ----------------------------------------------------------------------

func (uc *ProcessEventUseCase) writeEvent(ctx context.Context, customer *domain.Customer, session *domain.Session, payload EventPayload) (*domain.Event, error) {
	props, err := marshalProperties(payload.Properties)
	if err != nil {
		return nil, err
	}
	event := domain.NewEvent(payload.WebsiteID, session.ID, customer.ID, classifyEventType(payload.EventName), payload.EventName, payload.OccurredAt, payload.IdempotencyKey, props)
	if payload.Revenue != nil {
		currency := payload.Currency
		event.SetRevenue(*payload.Revenue, currency)
	}
	if err := uc.uow.EventRepository().Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// marshalProperties serializes the event's custom properties for storage.
// An absent properties object is stored as "{}" rather than JSON null, so
// downstream readers never have to special-case the empty case.
func marshalProperties(properties map[string]interface{}) (json.RawMessage, error) {
	if len(properties) == 0 {
		return json.RawMessage(`{}`), nil
	}
	raw, err := json.Marshal(properties)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

// classifyEventType maps the caller-supplied event name onto the small set
// of types the rest of the pipeline reasons about (§4.8, §4.9). Any name
// not recognized here is still stored verbatim in Event.Name; Type only
// drives touch/conversion behavior.
func classifyEventType(name string) domain.EventType {
	switch strings.ToLower(name) {
	case "purchase", "order", "conversion":
		return domain.EventTypeConversion
	case "page_view", "pageview":
		return domain.EventTypePageview
	case "click":
		return domain.EventTypeClick
	case "form_submit":
		return domain.EventTypeFormSubmit
	default:
		return domain.EventTypeCustom
	}
}

// ----------------------------------------------------------------------
// C7: Touch Manager
// ----------------------------------------------------------------------

func (uc *ProcessEventUseCase) manageTouches(ctx context.Context, customer *domain.Customer, session *domain.Session, payload EventPayload, dims dimensions) error {
	if session.IsBot {
		return nil
	}

	touches := uc.uow.TouchRepository()

	landing, err := touches.FindLandingBySession(ctx, session.ID)
	if err != nil {
		return err
	}

	hasUTM := !dims.utms.IsEmpty()
	hasReferrer := dims.referrerDomainID != nil

	var touch *domain.Touch
	switch {
	case landing == nil && (hasUTM || hasReferrer):
		touch = domain.NewTouch(payload.WebsiteID, customer.ID, session.ID, domain.TouchTypeLanding, session.StartedAt).WithDimensions(dims.referrerDomainID, dims.landingPageID)
		if err := touches.Create(ctx, touch); err != nil {
			return err
		}
	case landing == nil:
		// No campaign context at all yet; nothing to record as a touch.
		return nil
	default:
		// A landing touch already exists for the session; reuse it and just
		// bind any newly discovered UTM values to it (§4.7).
		touch = landing
	}

	if err := uc.bindUTMs(ctx, domain.TrackableKindTouch, touch.ID, dims.utmValueIDs); err != nil {
		return err
	}

	customer.SetFirstTouch(touch.ID)
	customer.SetLastTouch(touch.ID)
	return uc.uow.CustomerRepository().UpdateTouches(ctx, customer)
}

// ----------------------------------------------------------------------
// C9: Conversion Attributor
// ----------------------------------------------------------------------

// conversionEventNames are the event names that trigger attribution (§4.9).
// "checkout_completed" is deliberately excluded — only these three count.
var conversionEventNames = map[string]bool{
	"purchase":   true,
	"order":      true,
	"conversion": true,
}

func (uc *ProcessEventUseCase) attributeConversion(ctx context.Context, customer *domain.Customer, session *domain.Session, event *domain.Event, payload EventPayload, dims dimensions) error {
	if session.IsBot {
		return nil
	}
	if !conversionEventNames[strings.ToLower(payload.EventName)] {
		return nil
	}

	touches := uc.uow.TouchRepository()
	trackableUTMs := uc.uow.TrackableUtmValueRepository()

	currentTouch, err := touches.FindBySession(ctx, session.ID)
	if err != nil {
		return err
	}
	lastTouch, err := touches.FindLastNonDirectByCustomer(ctx, customer.ID, payload.OccurredAt)
	if err != nil {
		return err
	}
	var firstTouch *domain.Touch
	if customer.FirstTouchID != nil {
		firstTouch, err = touches.FindByID(ctx, *customer.FirstTouchID)
		if err != nil {
			return err
		}
	}

	currentUTMs := dims.utms
	lastUTMs := domain.UTMSet{}
	if lastTouch != nil {
		if lastUTMs, err = trackableUTMs.FindByTrackable(ctx, domain.TrackableKindTouch, lastTouch.ID); err != nil {
			return err
		}
	}
	firstUTMs := domain.UTMSet{}
	if firstTouch != nil {
		if firstUTMs, err = trackableUTMs.FindByTrackable(ctx, domain.TrackableKindTouch, firstTouch.ID); err != nil {
			return err
		}
	}

	var currentTouchID, lastTouchID, firstTouchID *int64
	if currentTouch != nil {
		id := currentTouch.ID
		currentTouchID = &id
	}
	if lastTouch != nil {
		id := lastTouch.ID
		lastTouchID = &id
	}
	if firstTouch != nil {
		id := firstTouch.ID
		firstTouchID = &id
	}

	conversion := domain.NewConversion(payload.WebsiteID, event.ID, customer.ID, payload.OccurredAt)
	conversion.ResolveAttribution(currentUTMs, lastUTMs, firstUTMs, currentTouchID, lastTouchID, firstTouchID)
	if payload.Revenue != nil {
		conversion.SetRevenue(domain.RevenueToMinorUnits(*payload.Revenue), payload.Currency)
	}
	orderID, orderNumber := extractOrderFields(payload.Properties)
	conversion.SetOrder(orderID, orderNumber)

	return uc.uow.ConversionRepository().Create(ctx, conversion)
}

// extractOrderFields reads the order identifiers a conversion event's
// properties carry, per §4.9: "order_id and order_number (or order_key),
// when present in properties". Non-string values are ignored rather than
// rejected — a numeric order id is still usable as a string identifier.
func extractOrderFields(properties map[string]interface{}) (orderID, orderNumber *string) {
	if v, ok := stringProperty(properties, "order_id"); ok {
		orderID = &v
	}
	if v, ok := stringProperty(properties, "order_number"); ok {
		orderNumber = &v
	} else if v, ok := stringProperty(properties, "order_key"); ok {
		orderNumber = &v
	}
	return orderID, orderNumber
}

func stringProperty(properties map[string]interface{}, key string) (string, bool) {
	raw, ok := properties[key]
	if !ok {
		return "", false
	}
	switch v := raw.(type) {
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}
