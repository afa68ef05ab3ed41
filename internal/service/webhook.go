package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rafflehub/platform/internal/domain"
	"github.com/rafflehub/platform/internal/ledger"
	"github.com/rafflehub/platform/internal/provider"
)

// WebhookService authenticates provider notifications and applies them to
// payment requests exactly once per (gateway, event id).
type WebhookService struct {
	db       DB
	repos    Repositories
	gateways Gateways
	life     *lifecycle
	logger   *slog.Logger
}

// NewWebhookService creates a WebhookService.
func NewWebhookService(db DB, repos Repositories, gateways Gateways, engine *ledger.Engine, logger *slog.Logger) *WebhookService {
	return &WebhookService{
		db:       db,
		repos:    repos,
		gateways: gateways,
		life:     &lifecycle{repos: repos, ledger: engine, logger: logger},
		logger:   logger,
	}
}

// WebhookOutcome tells the caller what a delivery did.
type WebhookOutcome struct {
	EventID   string                  `json:"event_id"`
	Kind      domain.WebhookEventKind `json:"kind"`
	Duplicate bool                    `json:"duplicate"`
}

// Ingest verifies a raw delivery for kind and handles it. A bad signature is
// UNAUTHORIZED; a gateway without a live client is GATEWAY_UNAVAILABLE.
func (s *WebhookService) Ingest(ctx context.Context, kind domain.GatewayKind, body []byte, headers http.Header) (*WebhookOutcome, error) {
	if !kind.Valid() {
		return nil, domain.ErrNotFound("gateway", string(kind))
	}
	client, err := s.gateways.Client(kind)
	if err != nil {
		return nil, domain.ErrGatewayUnavailable(kind, err.Error())
	}

	ev, err := client.VerifyWebhook(ctx, body, headers)
	if err != nil {
		metrics.GetOrCreateCounter(`webhook_events_total{gateway="` + kind.Lower() + `",result="rejected"}`).Inc()
		if errors.Is(err, provider.ErrInvalidSignature) {
			s.logger.WarnContext(ctx, "webhook signature rejected", "gateway", kind)
			return nil, domain.ErrUnauthorized("invalid webhook signature")
		}
		return nil, domain.ErrValidation(fmt.Sprintf("malformed %s webhook: %v", kind.Lower(), err))
	}
	if ev.Raw == nil {
		ev.Raw = body
	}
	return s.Handle(ctx, ev)
}

// Handle applies an authenticated event. The log insert, the state change
// and the processed mark commit together, so a redelivery after a failure
// is processed again and a redelivery after success is a no-op.
func (s *WebhookService) Handle(ctx context.Context, ev *domain.WebhookEvent) (*WebhookOutcome, error) {
	out := &WebhookOutcome{EventID: ev.EventID, Kind: ev.Kind}
	if ev.EventID == "" {
		return nil, domain.ErrValidation("webhook event has no id")
	}

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		payload := ev.Raw
		if len(payload) == 0 {
			payload = []byte(`{}`)
		}
		fresh, err := s.repos.Webhooks.Insert(ctx, tx, &domain.WebhookLog{
			ID:        uuid.New(),
			Gateway:   ev.Gateway,
			EventID:   ev.EventID,
			EventType: ev.Type,
			Payload:   payload,
		})
		if err != nil {
			return domain.ErrInternal("log webhook", err)
		}
		if !fresh {
			out.Duplicate = true
			return nil
		}
		if err := s.dispatch(ctx, tx, ev); err != nil {
			return err
		}
		if err := s.repos.Webhooks.MarkProcessed(ctx, tx, ev.Gateway, ev.EventID); err != nil {
			return domain.ErrInternal("mark webhook processed", err)
		}
		return nil
	})

	result := "processed"
	switch {
	case err != nil:
		result = "failed"
	case out.Duplicate:
		result = "duplicate"
	}
	metrics.GetOrCreateCounter(`webhook_events_total{gateway="` + ev.Gateway.Lower() + `",result="` + result + `"}`).Inc()

	if err != nil {
		s.logger.ErrorContext(ctx, "webhook processing failed",
			"error", err, "gateway", ev.Gateway, "event_id", ev.EventID, "kind", ev.Kind)
		return nil, asAppError(err, "handle webhook")
	}
	if out.Duplicate {
		s.logger.InfoContext(ctx, "duplicate webhook ignored", "gateway", ev.Gateway, "event_id", ev.EventID)
	}
	return out, nil
}

func (s *WebhookService) dispatch(ctx context.Context, tx pgx.Tx, ev *domain.WebhookEvent) error {
	switch ev.Kind {
	case domain.WebhookPaymentSucceeded:
		return s.onRequest(ctx, tx, ev, func(req *domain.PaymentRequest) error {
			return s.life.complete(ctx, tx, req, change{providerPaymentID: strPtr(ev.Reference), notes: "confirmed by " + ev.Type})
		})
	case domain.WebhookPaymentFailed:
		return s.onRequest(ctx, tx, ev, func(req *domain.PaymentRequest) error {
			return s.life.abandon(ctx, tx, req, domain.StatusFailed, change{notes: failureNote(ev)})
		})
	case domain.WebhookOrderApproved:
		return s.onRequest(ctx, tx, ev, func(req *domain.PaymentRequest) error {
			client, err := s.gateways.Client(ev.Gateway)
			if err != nil {
				return domain.ErrGatewayUnavailable(ev.Gateway, err.Error())
			}
			orderID := ev.Reference
			if req.ProviderOrderID != nil {
				orderID = *req.ProviderOrderID
			}
			res, err := client.Capture(ctx, orderID)
			if err != nil {
				return domain.ErrProvider(ev.Gateway, "capture", err)
			}
			if !res.Succeeded {
				s.logger.WarnContext(ctx, "approved order not captured",
					"gateway", ev.Gateway, "payment_request_id", req.ID, "status", res.Status)
				return nil
			}
			return s.life.complete(ctx, tx, req, change{providerPaymentID: strPtr(res.PaymentID), notes: "captured after approval"})
		})
	case domain.WebhookPayoutCompleted:
		return s.onRequest(ctx, tx, ev, func(req *domain.PaymentRequest) error {
			return s.life.complete(ctx, tx, req, change{notes: "payout delivered"})
		})
	case domain.WebhookPayoutFailed:
		return s.onRequest(ctx, tx, ev, func(req *domain.PaymentRequest) error {
			return s.life.abandon(ctx, tx, req, domain.StatusFailed, change{notes: failureNote(ev)})
		})
	case domain.WebhookRefundCompleted:
		s.logger.InfoContext(ctx, "provider refund confirmed",
			"gateway", ev.Gateway, "reference", ev.Reference, "amount", ev.Amount)
		return nil
	default:
		s.logger.InfoContext(ctx, "webhook event ignored", "gateway", ev.Gateway, "type", ev.Type)
		return nil
	}
}

// onRequest locks the request an event refers to and applies fn when the
// request can still move. Events for settled requests are acknowledged.
func (s *WebhookService) onRequest(ctx context.Context, tx pgx.Tx, ev *domain.WebhookEvent, fn func(*domain.PaymentRequest) error) error {
	req, err := s.lockEventRequest(ctx, tx, ev)
	if err != nil {
		return err
	}
	if req == nil {
		if ev.Kind.Failure() {
			// The attempt rolled back when the provider call failed.
			s.logger.WarnContext(ctx, "failure webhook for unknown payment request",
				"gateway", ev.Gateway, "event_id", ev.EventID, "kind", ev.Kind,
				"payment_request_id", ev.RequestID, "reference", ev.Reference)
			return nil
		}
		return domain.ErrNotFound("payment request for webhook", ev.EventID)
	}
	if req.Status.Terminal() {
		if req.Status != domain.StatusCompleted || ev.Kind.Failure() {
			s.logger.ErrorContext(ctx, "webhook for settled payment request",
				"gateway", ev.Gateway, "event_id", ev.EventID, "kind", ev.Kind,
				"payment_request_id", req.ID, "status", req.Status)
		}
		return nil
	}
	if req.Type == domain.RequestWithdrawal && req.Status != domain.StatusProcessing {
		s.logger.WarnContext(ctx, "payout webhook before processing",
			"gateway", ev.Gateway, "payment_request_id", req.ID, "status", req.Status)
		return nil
	}
	return fn(req)
}

// lockEventRequest finds the request by the id echoed in metadata, else by
// provider reference. It returns nil when neither matches. A success event
// for an unknown request is retried since it may have raced the commit.
func (s *WebhookService) lockEventRequest(ctx context.Context, tx pgx.Tx, ev *domain.WebhookEvent) (*domain.PaymentRequest, error) {
	var (
		req *domain.PaymentRequest
		err error
	)
	if ev.RequestID != nil {
		req, err = s.repos.Requests.LockForUpdate(ctx, tx, *ev.RequestID)
	}
	if err == nil && req == nil && ev.Reference != "" {
		req, err = s.repos.Requests.LockByProviderRef(ctx, tx, ev.Gateway, ev.Reference)
	}
	if err != nil {
		return nil, domain.ErrInternal("lock payment request", err)
	}
	return req, nil
}

func failureNote(ev *domain.WebhookEvent) string {
	if ev.FailureReason != "" {
		return ev.FailureReason
	}
	return ev.Type + " at " + time.Now().UTC().Format(time.RFC3339)
}
