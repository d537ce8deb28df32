package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/smallbiznis/duno/internal/clock"
	"github.com/smallbiznis/duno/internal/config"
	"github.com/smallbiznis/duno/internal/orgcontext"
	"github.com/smallbiznis/duno/internal/pushnotify/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Cfg   config.Config
	Repo  domain.Repository
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   domain.Repository
	client *retryablehttp.Client
}

func New(p Params) domain.Service {
	client := retryablehttp.NewClient()
	client.RetryMax = p.Cfg.Push.MaxAttempts - 1
	if client.RetryMax < 0 {
		client.RetryMax = 0
	}
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = p.Cfg.Push.Timeout
	client.Logger = nil

	return &Service{
		db:     p.DB,
		log:    p.Log.Named("pushnotify.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		client: client,
	}
}

func (s *Service) Register(ctx context.Context, req domain.RegisterEndpointRequest) (domain.PushEndpoint, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return domain.PushEndpoint{}, domain.ErrInvalidOrganization
	}

	raw := strings.TrimSpace(req.URL)
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return domain.PushEndpoint{}, domain.ErrInvalidURL
	}

	now := s.clock.Now()
	endpoint := domain.PushEndpoint{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		URL:       raw,
		Secret:    strings.TrimSpace(req.Secret),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Insert(ctx, s.db, &endpoint); err != nil {
		return domain.PushEndpoint{}, err
	}
	return endpoint, nil
}

func (s *Service) Unregister(ctx context.Context, id string) error {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return domain.ErrInvalidOrganization
	}

	endpointID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || endpointID == 0 {
		return domain.ErrInvalidID
	}
	return s.repo.Deactivate(ctx, s.db, orgID, endpointID)
}

func (s *Service) List(ctx context.Context) ([]domain.PushEndpoint, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return nil, domain.ErrInvalidOrganization
	}
	return s.repo.ListActive(ctx, s.db, orgID)
}

func (s *Service) Deliver(ctx context.Context, event domain.Event) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		s.log.Warn("push delivery skipped, no organization in context")
		return
	}

	endpoints, err := s.repo.ListActive(ctx, s.db, orgID)
	if err != nil {
		s.log.Error("failed to list push endpoints", zap.Error(err))
		return
	}
	if len(endpoints) == 0 {
		return
	}

	if event.DeliveryID == "" {
		event.DeliveryID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.clock.Now()
	}

	body, err := json.Marshal(event)
	if err != nil {
		s.log.Error("failed to encode push event", zap.Error(err))
		return
	}

	for _, endpoint := range endpoints {
		if err := s.send(ctx, endpoint, event, body); err != nil {
			s.log.Warn("push delivery failed",
				zap.String("endpoint_id", endpoint.ID.String()),
				zap.String("event_type", event.EventType),
				zap.String("delivery_id", event.DeliveryID),
				zap.Error(err))
		}
	}
}

func (s *Service) send(ctx context.Context, endpoint domain.PushEndpoint, event domain.Event, body []byte) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Duno-Event", event.EventType)
	req.Header.Set("X-Duno-Delivery", event.DeliveryID)
	if endpoint.Secret != "" {
		req.Header.Set("X-Duno-Signature", sign(endpoint.Secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &deliveryError{status: resp.StatusCode}
	}
	return nil
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

type deliveryError struct {
	status int
}

func (e *deliveryError) Error() string {
	return fmt.Sprintf("endpoint returned status %d", e.status)
}
