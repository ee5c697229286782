package authz

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/technosupport/ts-auth/internal/access"
	"github.com/technosupport/ts-auth/internal/audit"
	"github.com/technosupport/ts-auth/internal/data"
	"github.com/technosupport/ts-auth/internal/metrics"
	"github.com/technosupport/ts-auth/internal/tokens"
)

// Document is the materialized access view cached per (token, service).
type Document struct {
	UserID      int      `json:"user_id"`
	ServiceID   int      `json:"service_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Scopes      []string `json:"scopes"`
	ExpiresAt   int64    `json:"expires_at"`
}

// TokenResult is the outcome of an identity-only check.
type TokenResult struct {
	Payload   json.RawMessage `json:"payload"`
	Renewed   bool            `json:"renewed"`
	ExpiresAt int64           `json:"expires_at"`
}

// AccessInput is a service-scoped check request: the user token plus
// exactly one of a service token or a body service_id.
type AccessInput struct {
	UserToken      string
	ServiceToken   string
	ServiceID      data.FlexibleID
	PermissionName string
}

// AccessResult is the outcome of a service-scoped check.
type AccessResult struct {
	Document      *Document
	Renewed       bool
	ExpiresAt     int64
	HasPermission *bool
	UsedCache     bool
}

// Orchestrator composes the token manager and the access resolver into the
// two hot request paths, and owns their audit lines.
type Orchestrator struct {
	Tokens   *tokens.Manager
	Services *data.ServiceModel
	Resolver access.Resolver
	Audit    *audit.Logger
}

// CheckToken validates the user token with sliding renewal. Identity only,
// no service context.
func (o *Orchestrator) CheckToken(ctx context.Context, userToken, endpoint, clientIP string) (*TokenResult, error) {
	res, err := o.validateUser(ctx, userToken)
	if err != nil {
		o.Audit.Identity(userToken, endpoint, clientIP, false)
		return nil, err
	}
	o.Audit.Identity(userToken, endpoint, clientIP, true)
	return res, nil
}

func (o *Orchestrator) validateUser(ctx context.Context, userToken string) (*TokenResult, error) {
	if userToken == "" {
		return nil, deny(CodeMissingTokenHeader)
	}
	v, err := o.Tokens.ValidateUserToken(ctx, userToken, true)
	switch {
	case errors.Is(err, tokens.ErrNotFound):
		return nil, deny(CodeInvalidToken)
	case errors.Is(err, tokens.ErrExpired):
		return nil, deny(CodeExpiredToken)
	case err != nil:
		return nil, err
	}
	if v.Renewed {
		metrics.RecordRenewal()
	}
	return &TokenResult{
		Payload:   v.Record.Payload,
		Renewed:   v.Renewed,
		ExpiresAt: v.ExpiresAt,
	}, nil
}

// CheckAccess validates the user token, resolves the service context,
// and answers from the permissions cache, recomputing on miss.
func (o *Orchestrator) CheckAccess(ctx context.Context, in AccessInput, endpoint, clientIP string) (*AccessResult, error) {
	res, usedCache, err := o.checkAccess(ctx, in)
	if err != nil {
		o.Audit.Scoped(in.UserToken, endpoint, clientIP, false, usedCache)
		return nil, err
	}
	o.Audit.Scoped(in.UserToken, endpoint, clientIP, true, usedCache)
	return res, nil
}

func (o *Orchestrator) checkAccess(ctx context.Context, in AccessInput) (*AccessResult, bool, error) {
	// Identity first: a bad user token answers 401 even when the service
	// selectors are malformed too.
	userRes, err := o.validateUser(ctx, in.UserToken)
	if err != nil {
		return nil, false, err
	}

	hasHeader := in.ServiceToken != ""
	hasBody := in.ServiceID.IsSet()
	if hasHeader == hasBody {
		return nil, false, deny(CodeInvalidRequestBody)
	}

	var serviceID int
	if hasHeader {
		serviceID, err = o.serviceFromToken(ctx, in.ServiceToken)
	} else {
		serviceID, err = o.serviceFromBody(ctx, in.ServiceID)
	}
	if err != nil {
		return nil, false, err
	}

	userID, ok := tokens.PayloadUserID(userRes.Payload)
	if !ok {
		return nil, false, deny(CodeInvalidToken)
	}

	doc, usedCache, err := o.loadOrResolve(ctx, in.UserToken, userID, serviceID)
	if err != nil {
		return nil, false, err
	}
	metrics.RecordCacheLookup(usedCache)

	result := &AccessResult{
		Document:  doc,
		Renewed:   userRes.Renewed,
		ExpiresAt: userRes.ExpiresAt,
		UsedCache: usedCache,
	}
	if in.PermissionName != "" {
		has := contains(doc.Permissions, in.PermissionName)
		result.HasPermission = &has
	}
	return result, usedCache, nil
}

// serviceFromToken validates the service token (never renewed) and checks
// the service row is present and active.
func (o *Orchestrator) serviceFromToken(ctx context.Context, serviceToken string) (int, error) {
	v, err := o.Tokens.ValidateServiceToken(ctx, serviceToken)
	if errors.Is(err, tokens.ErrNotFound) {
		return 0, deny(CodeInvalidServiceToken)
	}
	if errors.Is(err, tokens.ErrExpired) {
		return 0, deny(CodeExpiredToken)
	}
	if err != nil {
		return 0, err
	}
	serviceID, ok := tokens.PayloadServiceID(v.Record.Payload)
	if !ok {
		return 0, deny(CodeInvalidServiceToken)
	}
	return o.requireActive(ctx, serviceID, CodeInvalidServiceToken)
}

func (o *Orchestrator) serviceFromBody(ctx context.Context, fid data.FlexibleID) (int, error) {
	serviceID, err := o.Services.ResolveID(ctx, fid, false)
	if errors.Is(err, data.ErrInvalidID) || errors.Is(err, data.ErrServiceNotFound) {
		return 0, deny(CodeInvalidServiceID)
	}
	if err != nil {
		return 0, err
	}
	return o.requireActive(ctx, serviceID, CodeInvalidServiceID)
}

func (o *Orchestrator) requireActive(ctx context.Context, serviceID int, missingCode string) (int, error) {
	info, err := o.Services.Info(ctx, serviceID)
	if errors.Is(err, data.ErrServiceNotFound) {
		return 0, deny(missingCode)
	}
	if err != nil {
		return 0, err
	}
	if !info.Status {
		return 0, deny(CodeServiceInactive)
	}
	return serviceID, nil
}

// loadOrResolve serves the (token, service) pair from the permissions
// cache when the snapshot is still live, otherwise recomputes and stores
// it. Empty access is a valid snapshot and is cached like any other.
func (o *Orchestrator) loadOrResolve(ctx context.Context, userToken string, userID, serviceID int) (*Document, bool, error) {
	now := o.Tokens.Now()

	rec, err := o.Tokens.LoadAccess(ctx, userToken, serviceID)
	if err != nil && !errors.Is(err, data.ErrRecordNotFound) {
		return nil, false, err
	}
	if rec != nil && rec.ExpiresAt > now {
		var doc Document
		if err := json.Unmarshal(rec.AccessJSON, &doc); err == nil {
			return &doc, true, nil
		}
		// Undecodable snapshot: fall through and overwrite it.
	}

	view, err := o.Resolver.Resolve(ctx, userID, serviceID)
	if err != nil {
		return nil, false, err
	}
	doc := &Document{
		UserID:      userID,
		ServiceID:   serviceID,
		Roles:       view.Roles,
		Permissions: view.Permissions,
		Scopes:      []string{},
		ExpiresAt:   now + o.Tokens.UserTTL(),
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, false, err
	}
	if err := o.Tokens.StoreAccess(ctx, userToken, serviceID, raw, doc.ExpiresAt); err != nil {
		return nil, false, err
	}
	return doc, false, nil
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
